// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
)

// Default session configuration values
const (
	DefaultPort                = 4701
	DefaultConnectTimeout      = 30 * time.Second
	DefaultCommandTimeout      = 30 * time.Second
	DefaultSyncTimeoutFactor   = 10
	DefaultMaxFrameSize        = 4 * 1024 * 1024
	DefaultFileTTL             = 300 * time.Second
	DefaultHousekeeperInterval = 1 * time.Second
	DefaultMaxDataRows         = 200000
)

// ProtocolVersion is the protocol version spoken by this client. The
// server must report exactly this version.
const ProtocolVersion = 20

// LibraryVersion is reported to the server at login
const LibraryVersion = "1.0.0"

// DefaultClientInfo is the client description sent at login
const DefaultClientInfo = "go-nxcp/" + LibraryVersion

// ConnState is the state of the session connection
type ConnState int32

const (
	// StateIdle means Connect was never called
	StateIdle ConnState = iota

	// StateConnecting means the TCP connection is being opened
	StateConnecting

	// StateHandshakeSent means the server info request is outstanding
	StateHandshakeSent

	// StateAuthenticating means the login request is outstanding
	StateAuthenticating

	// StateConnected means the session is authenticated and usable
	StateConnected

	// StateClosed means the connection was closed or failed
	StateClosed
)

// String returns the name of the connection state
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshakeSent:
		return "handshake-sent"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// connection is one TCP connection with its receiver and housekeeper
type connection struct {
	conn         net.Conn
	writeMu      sync.Mutex
	queue        *waitQueue
	receiverDone chan struct{}
	housekeeper  *housekeeper

	// closing is set before an intentional close so the receiver does not
	// report the resulting read error as a broken connection
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (c *connection) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// serverInfo is what the server reported during the handshake and login
type serverInfo struct {
	version          string
	id               []byte
	timeZone         string
	challenge        []byte
	userID           uint32
	userSystemRights uint32
}

// Session is a client session with a management server over a single
// TCP connection.
//
// Many requests can be outstanding at once: every request carries a unique
// correlation id and its caller blocks until the reply with that id
// arrives. A single receiver goroutine reads the socket and routes every
// inbound message to a waiting caller, to the object and user caches, to
// the received-file store, or to the registered notification listeners.
//
// Example:
//
//	session, err := nxcp.NewSession("nms.example.com",
//	    nxcp.Login("admin"),
//	    nxcp.Password("secret"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := session.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	if err := session.SyncObjects(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	for _, obj := range session.AllObjects() {
//	    fmt.Println(obj.ID, obj.Name)
//	}
type Session struct {
	// Connection parameters
	Address    string
	Port       int
	ClientInfo string
	login      string // unexported for security
	password   string // unexported for security

	// Timeout configuration
	ConnectTimeout    time.Duration
	CommandTimeout    time.Duration
	SyncTimeoutFactor int

	// Limits and housekeeping
	MaxFrameSize        int
	FileTTL             time.Duration
	HousekeeperInterval time.Duration
	MaxDataRows         int

	instanceID uuid.UUID
	requestID  atomic.Uint32
	state      atomic.Int32

	// lifecycle serializes Connect and Disconnect
	lifecycle sync.Mutex

	// mu guards conn and info
	mu   sync.RWMutex
	conn *connection
	info serverInfo

	objects    *cache[uint64, *Object]
	users      *cache[uint32, *UserDBObject]
	objectSync *syncGate
	userSync   *syncGate
	files      *fileStore
	listeners  *listenerRegistry

	logger Logger
	tracer opentracing.Tracer
}

// NewSession creates a session for the server at address.
//
// The address is a host name or IP, optionally with a port; Port applies
// when the address has none. No connection is made until Connect.
//
// Returns a configured Session or an error if configuration validation fails.
func NewSession(address string, opts ...func(*Session)) (*Session, error) {
	s := &Session{
		Address:             address,
		Port:                DefaultPort,
		ClientInfo:          DefaultClientInfo,
		ConnectTimeout:      DefaultConnectTimeout,
		CommandTimeout:      DefaultCommandTimeout,
		SyncTimeoutFactor:   DefaultSyncTimeoutFactor,
		MaxFrameSize:        DefaultMaxFrameSize,
		FileTTL:             DefaultFileTTL,
		HousekeeperInterval: DefaultHousekeeperInterval,
		MaxDataRows:         DefaultMaxDataRows,
		instanceID:          uuid.New(),
		logger:              &NoOpLogger{},
		tracer:              opentracing.NoopTracer{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.validateConfig(); err != nil {
		return nil, err
	}

	s.objects = newCache[uint64, *Object]()
	s.users = newCache[uint32, *UserDBObject]()
	s.objectSync = newSyncGate()
	s.userSync = newSyncGate()
	s.files = newFileStore(s.FileTTL)
	s.listeners = newListenerRegistry(s.logger)

	s.logger.Info(context.Background(), "Session created",
		"address", s.dialAddress(),
		"session", s.instanceID.String())

	return s, nil
}

// validateConfig validates session configuration before connection
func (s *Session) validateConfig() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", s.Port)
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got: %v", s.ConnectTimeout)
	}
	if s.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got: %v", s.CommandTimeout)
	}
	if s.SyncTimeoutFactor < 1 {
		return fmt.Errorf("sync timeout factor must be >= 1, got: %d", s.SyncTimeoutFactor)
	}
	if s.MaxFrameSize < HeaderSize {
		return fmt.Errorf("max frame size must be at least %d, got: %d", HeaderSize, s.MaxFrameSize)
	}
	if s.FileTTL <= 0 {
		return fmt.Errorf("file TTL must be positive, got: %v", s.FileTTL)
	}
	if s.HousekeeperInterval <= 0 {
		return fmt.Errorf("housekeeper interval must be positive, got: %v", s.HousekeeperInterval)
	}
	if s.MaxDataRows <= 0 {
		return fmt.Errorf("max data rows must be positive, got: %d", s.MaxDataRows)
	}

	if !s.HasCredentials() {
		s.logger.Warn(context.Background(), "No credentials configured",
			"address", s.Address,
			"message", "server will reject login")
	}
	return nil
}

// HasCredentials reports whether a login name has been configured
func (s *Session) HasCredentials() bool {
	return s.login != ""
}

// dialAddress returns host:port for the TCP dial
func (s *Session) dialAddress() string {
	if _, _, err := net.SplitHostPort(s.Address); err == nil {
		return s.Address
	}
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// InstanceID returns the unique id of this session object, used to tag
// log entries and trace spans
func (s *Session) InstanceID() uuid.UUID {
	return s.instanceID
}

// State returns the current connection state
func (s *Session) State() ConnState {
	return ConnState(s.state.Load())
}

func (s *Session) setState(ctx context.Context, state ConnState) {
	old := ConnState(s.state.Swap(int32(state)))
	if old != state {
		s.logger.Debug(ctx, "Session state changed",
			"session", s.instanceID.String(),
			"from", old.String(),
			"to", state.String())
	}
}

// current returns the active connection or nil
func (s *Session) current() *connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// nextRequestID returns a fresh correlation id. Zero is never used.
func (s *Session) nextRequestID() uint32 {
	for {
		if id := s.requestID.Add(1); id != 0 {
			return id
		}
	}
}

// NewMessage creates a message with a fresh correlation id
func (s *Session) NewMessage(code Code) *Message {
	msg := NewMessage(code)
	msg.ID = s.nextRequestID()
	return msg
}

// Connect opens the connection, checks the server protocol version and
// logs in.
//
// Any failure tears the connection down completely before the error is
// returned: a protocol version mismatch yields an error matching
// ErrProtocolVersionMismatch, a rejected login a *RemoteError with the
// server result code, and a socket failure a *TransportError.
//
// Cached objects and users are cleared at the start of every Connect.
func (s *Session) Connect(ctx context.Context) (err error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	span, ctx := s.startSpan(ctx, "connect")
	defer func() { finishSpan(span, err) }()

	if s.teardown(ctx) {
		s.logger.Debug(ctx, "Dropped previous connection before reconnect",
			"session", s.instanceID.String())
	}
	s.objects.clear()
	s.users.clear()

	s.setState(ctx, StateConnecting)
	address := s.dialAddress()
	s.logger.Info(ctx, "Connecting to server",
		"address", address,
		"session", s.instanceID.String())

	dialer := net.Dialer{Timeout: s.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		s.setState(ctx, StateClosed)
		s.logger.Error(ctx, "Connection failed",
			"address", address,
			"error", err.Error())
		return &TransportError{Op: "dial", Err: err}
	}

	c := &connection{
		conn:         netConn,
		queue:        newWaitQueue(s.CommandTimeout),
		receiverDone: make(chan struct{}),
	}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()

	go s.receive(c)
	c.housekeeper = startHousekeeper(s.HousekeeperInterval, s.logger,
		sweepTask{name: "received-files", sweep: s.files.sweep},
		sweepTask{name: "parked-replies", sweep: c.queue.sweep},
	)

	defer func() {
		if err != nil {
			s.teardown(ctx)
			s.setState(ctx, StateClosed)
			s.logger.Error(ctx, "Connect failed, connection closed",
				"address", address,
				"error", err.Error())
		}
	}()

	if err = s.handshake(ctx); err != nil {
		return err
	}
	if err = s.authenticate(ctx); err != nil {
		return err
	}

	s.setState(ctx, StateConnected)
	s.logger.Info(ctx, "Session connected",
		"address", address,
		"server_version", s.ServerVersion(),
		"user_id", s.UserID())
	return nil
}

// handshake requests server information and checks the protocol version
func (s *Session) handshake(ctx context.Context) error {
	s.setState(ctx, StateHandshakeSent)

	reply, err := s.execute(ctx, "server info", s.NewMessage(CmdGetServerInfo))
	if err != nil {
		return err
	}

	if version := reply.Uint32(VidProtocolVersion); version != ProtocolVersion {
		return &ProtocolVersionError{Expected: ProtocolVersion, Actual: version}
	}

	s.mu.Lock()
	s.info.version = reply.String(VidServerVersion)
	s.info.id = reply.Binary(VidServerID)
	s.info.timeZone = reply.String(VidTimezone)
	s.info.challenge = reply.Binary(VidChallenge)
	s.mu.Unlock()
	return nil
}

// authenticate sends the login request
func (s *Session) authenticate(ctx context.Context) error {
	s.setState(ctx, StateAuthenticating)

	msg := s.NewMessage(CmdLogin)
	msg.SetString(VidLoginName, s.login)
	msg.SetString(VidPassword, s.password)
	msg.SetInt16(VidAuthType, AuthTypePassword)
	msg.SetString(VidLibVersion, LibraryVersion)
	msg.SetString(VidClientInfo, s.ClientInfo+" session="+s.instanceID.String())
	msg.SetString(VidOSInfo, runtime.GOOS+" "+runtime.GOARCH)

	reply, err := s.request(ctx, "login", msg, CmdLoginResponse, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.info.userID = reply.Uint32(VidUserID)
	s.info.userSystemRights = reply.Uint32(VidUserSysRights)
	s.mu.Unlock()
	return nil
}

// teardown closes the current connection and waits for its receiver and
// housekeeper to exit. Returns false if there was no connection.
// Caller holds lifecycle.
func (s *Session) teardown(ctx context.Context) bool {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	if c == nil {
		return false
	}

	c.closing.Store(true)
	if err := c.close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn(ctx, "Socket close returned error",
			"session", s.instanceID.String(),
			"error", err.Error())
	}
	<-c.receiverDone
	c.housekeeper.shutdown()
	c.queue.shutdown()
	return true
}

// Disconnect closes the connection and waits until the receiver and
// housekeeper goroutines have exited.
//
// Safe to call at any time and more than once; calling it on a session
// that never connected is a no-op. Cached objects and users stay readable
// until the next Connect. Disconnect must not be called from a
// notification listener.
func (s *Session) Disconnect() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	ctx := context.Background()
	if !s.teardown(ctx) {
		return nil
	}
	s.setState(ctx, StateClosed)
	s.logger.Info(ctx, "Session disconnected",
		"session", s.instanceID.String())
	return nil
}

// Close disconnects the session. It is equivalent to Disconnect and is
// typically deferred after a successful Connect.
func (s *Session) Close() error {
	return s.Disconnect()
}

// SendMessage writes one message to the server. A message without a
// correlation id gets a fresh one.
//
// Writes are serialized so that frames from concurrent callers never
// interleave. A write failure closes the connection and returns a
// *TransportError.
func (s *Session) SendMessage(ctx context.Context, msg *Message) error {
	c := s.current()
	if c == nil || c.queue.isClosed() {
		return ErrNotConnected
	}
	if msg.ID == 0 {
		msg.ID = s.nextRequestID()
	}

	frame, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Code, err)
	}

	deadline := time.Now().Add(s.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if _, err := c.conn.Write(frame); err != nil {
		_ = c.close()
		return &TransportError{Op: "write", Err: err}
	}

	s.logger.Debug(ctx, "Message sent",
		"code", msg.Code.String(),
		"id", msg.ID,
		"size", len(frame))
	return nil
}

// WaitForMessage blocks until a message with the given code and
// correlation id arrives. It returns ErrTimeout when the request timeout
// (default CommandTimeout) or the context deadline passes first, and
// ErrConnectionClosed if the connection goes away while waiting.
func (s *Session) WaitForMessage(ctx context.Context, code Code, id uint32, mods ...func(*Req)) (*Message, error) {
	c := s.current()
	if c == nil {
		return nil, ErrNotConnected
	}
	req := s.newReq(mods)
	return c.queue.wait(ctx, code, id, req.Timeout)
}

// WaitForRCC waits for the request-completed reply with the given
// correlation id and converts a non-success result code into a *RemoteError.
func (s *Session) WaitForRCC(ctx context.Context, id uint32, mods ...func(*Req)) (*Message, error) {
	reply, err := s.WaitForMessage(ctx, CmdRequestCompleted, id, mods...)
	if err != nil {
		return nil, err
	}
	if rcc := ResultCode(reply.Uint32(VidRCC)); rcc != RCCSuccess {
		return nil, &RemoteError{Operation: "request", Code: rcc}
	}
	return reply, nil
}

// Execute sends msg and waits for its request-completed reply.
//
// This is the generic request primitive used by all operations; it is
// exported for requests not covered by a dedicated method.
//
// Example:
//
//	msg := session.NewMessage(nxcp.CmdExecuteAction)
//	msg.SetInt32(nxcp.VidObjectID, nodeID)
//	msg.SetString(nxcp.VidActionName, "Agent.Restart")
//	_, err := session.Execute(ctx, msg, nxcp.Timeout(time.Minute))
func (s *Session) Execute(ctx context.Context, msg *Message, mods ...func(*Req)) (*Message, error) {
	return s.execute(ctx, strings.ToLower(msg.Code.String()), msg, mods...)
}

// execute sends msg and waits for its request-completed reply
func (s *Session) execute(ctx context.Context, op string, msg *Message, mods ...func(*Req)) (*Message, error) {
	return s.request(ctx, op, msg, CmdRequestCompleted, mods)
}

// request sends msg and waits for the reply with replyCode and the same
// correlation id. Replies carrying a result code are checked for success.
func (s *Session) request(ctx context.Context, op string, msg *Message, replyCode Code, mods []func(*Req)) (reply *Message, err error) {
	span, ctx := s.startSpan(ctx, op)
	defer func() { finishSpan(span, err) }()

	if msg.ID == 0 {
		msg.ID = s.nextRequestID()
	}
	if err = s.SendMessage(ctx, msg); err != nil {
		s.logger.Error(ctx, "Request send failed",
			"operation", op,
			"id", msg.ID,
			"error", err.Error())
		return nil, err
	}
	logRequestSent(span, msg)

	reply, err = s.WaitForMessage(ctx, replyCode, msg.ID, mods...)
	if err != nil {
		s.logger.Warn(ctx, "Request failed waiting for reply",
			"operation", op,
			"id", msg.ID,
			"error", err.Error())
		return nil, err
	}
	logReply(span, reply)

	if rcc := ResultCode(reply.Uint32(VidRCC)); rcc != RCCSuccess {
		err = &RemoteError{Operation: op, Code: rcc}
		s.logger.Warn(ctx, "Request rejected by server",
			"operation", op,
			"id", msg.ID,
			"rcc", uint32(rcc),
			"reason", rcc.String())
		return nil, err
	}
	return reply, nil
}

// ServerVersion returns the server version reported during the handshake
func (s *Session) ServerVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.version
}

// ServerID returns the server id reported during the handshake
func (s *Session) ServerID() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.info.id...)
}

// ServerTimeZone returns the server time zone reported during the handshake
func (s *Session) ServerTimeZone() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.timeZone
}

// ServerChallenge returns the login challenge reported during the handshake
func (s *Session) ServerChallenge() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.info.challenge...)
}

// UserID returns the id of the logged-in user
func (s *Session) UserID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.userID
}

// UserSystemRights returns the system rights bitmask of the logged-in user
func (s *Session) UserSystemRights() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.userSystemRights
}

// AddListener registers a notification listener and returns its id.
// Listeners are called in registration order on the receiver goroutine.
func (s *Session) AddListener(l Listener) ListenerID {
	return s.listeners.add(l)
}

// RemoveListener unregisters a listener. Returns false if id is unknown.
func (s *Session) RemoveListener(id ListenerID) bool {
	return s.listeners.remove(id)
}

// WaitForFile blocks until the file transfer with correlation id is
// complete and returns its contents. The file is removed from the store
// once returned. A file nobody claims is evicted after FileTTL.
func (s *Session) WaitForFile(ctx context.Context, id uint32, mods ...func(*Req)) ([]byte, error) {
	var closed <-chan struct{}
	if c := s.current(); c != nil {
		closed = c.queue.done
	}
	req := s.newReq(mods)
	data, err := s.files.wait(ctx, id, req.Timeout, closed)
	if err != nil {
		s.logger.Warn(ctx, "File wait failed",
			"id", id,
			"error", err.Error())
		return nil, err
	}
	s.logger.Debug(ctx, "File claimed",
		"id", id,
		"size", len(data))
	return data, nil
}
