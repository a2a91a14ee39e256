// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// handlerFunc answers one request on a fake server connection
type handlerFunc func(sc *serverConn, req *Message)

// serverConn is the server side of one client connection
type serverConn struct {
	conn net.Conn
	mu   sync.Mutex
}

// send writes one frame to the client
func (sc *serverConn) send(msg *Message) {
	frame, err := msg.Encode()
	if err != nil {
		panic(err)
	}
	sc.sendRaw(frame)
}

func (sc *serverConn) sendRaw(frame []byte) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, _ = sc.conn.Write(frame)
}

// ok answers req with a successful request-completed reply
func (sc *serverConn) ok(req *Message) *Message {
	return sc.rcc(req, RCCSuccess)
}

// rcc answers req with the given result code and returns the sent reply
func (sc *serverConn) rcc(req *Message, code ResultCode) *Message {
	msg := NewMessage(CmdRequestCompleted)
	msg.ID = req.ID
	msg.SetInt32(VidRCC, uint32(code))
	sc.send(msg)
	return msg
}

// fakeServer speaks just enough of the protocol to test a Session
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	handlers map[Code]handlerFunc
	conns    []*serverConn
	requests []*Message
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &fakeServer{
		t:        t,
		ln:       ln,
		handlers: make(map[Code]handlerFunc),
	}
	srv.handle(CmdGetServerInfo, func(sc *serverConn, req *Message) {
		reply := NewMessage(CmdRequestCompleted)
		reply.ID = req.ID
		reply.SetInt32(VidRCC, 0)
		reply.SetInt32(VidProtocolVersion, ProtocolVersion)
		reply.SetString(VidServerVersion, "5.0.1")
		reply.SetBinary(VidServerID, []byte{0xCA, 0xFE})
		reply.SetString(VidTimezone, "UTC")
		reply.SetBinary(VidChallenge, []byte{1, 2, 3, 4})
		sc.send(reply)
	})
	srv.handle(CmdLogin, func(sc *serverConn, req *Message) {
		reply := NewMessage(CmdLoginResponse)
		reply.ID = req.ID
		reply.SetInt32(VidRCC, 0)
		reply.SetInt32(VidUserID, 1)
		reply.SetInt32(VidUserSysRights, 0xFFFF)
		sc.send(reply)
	})

	go srv.accept()
	t.Cleanup(srv.close)
	return srv
}

// address returns host:port of the listener
func (srv *fakeServer) address() string {
	return srv.ln.Addr().String()
}

// handle installs the handler for a request code. Codes without a handler
// are answered with success.
func (srv *fakeServer) handle(code Code, h handlerFunc) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.handlers[code] = h
}

func (srv *fakeServer) accept() {
	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			return
		}
		sc := &serverConn{conn: conn}
		srv.mu.Lock()
		srv.conns = append(srv.conns, sc)
		srv.mu.Unlock()
		go srv.serve(sc)
	}
}

func (srv *fakeServer) serve(sc *serverConn) {
	reader := bufio.NewReader(sc.conn)
	for {
		req, err := ReadMessage(reader, 0)
		if err != nil {
			return
		}

		srv.mu.Lock()
		srv.requests = append(srv.requests, req)
		h, ok := srv.handlers[req.Code]
		srv.mu.Unlock()

		if ok {
			h(sc, req)
		} else {
			sc.ok(req)
		}
	}
}

// conn returns the most recent client connection
func (srv *fakeServer) conn() *serverConn {
	srv.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv.mu.Lock()
		n := len(srv.conns)
		var sc *serverConn
		if n > 0 {
			sc = srv.conns[n-1]
		}
		srv.mu.Unlock()
		if sc != nil {
			return sc
		}
		time.Sleep(time.Millisecond)
	}
	srv.t.Fatal("no client connection")
	return nil
}

// received returns the requests seen with the given code
func (srv *fakeServer) received(code Code) []*Message {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	var out []*Message
	for _, req := range srv.requests {
		if req.Code == code {
			out = append(out, req)
		}
	}
	return out
}

// dropConnections closes every client connection from the server side
func (srv *fakeServer) dropConnections() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, sc := range srv.conns {
		_ = sc.conn.Close()
	}
}

func (srv *fakeServer) close() {
	_ = srv.ln.Close()
	srv.dropConnections()
}

// newTestSession returns a session for srv with short timeouts
func newTestSession(t *testing.T, srv *fakeServer, opts ...func(*Session)) *Session {
	t.Helper()
	base := []func(*Session){
		Login("admin"),
		Password("secret"),
		CommandTimeout(2 * time.Second),
		HousekeeperInterval(10 * time.Millisecond),
	}
	s, err := NewSession(srv.address(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// connectedSession returns a session already connected to srv
func connectedSession(t *testing.T, srv *fakeServer, opts ...func(*Session)) *Session {
	t.Helper()
	s := newTestSession(t, srv, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s
}

// eventually polls cond until it holds or a second passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// notifications collects notifications delivered to a listener
type notifications struct {
	mu   sync.Mutex
	list []Notification
}

func (n *notifications) HandleNotification(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, note)
}

func (n *notifications) ofKind(kind NotificationKind) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, note := range n.list {
		if note.Kind == kind {
			out = append(out, note)
		}
	}
	return out
}

func objectMessage(code Code, id uint64, class ObjectClass, name string, parents ...uint64) *Message {
	msg := NewMessage(code)
	msg.SetInt32(VidObjectID, uint32(id))
	msg.SetInt16(VidObjectClass, uint16(class))
	msg.SetString(VidObjectName, name)
	msg.SetInt32(VidNumParents, uint32(len(parents)))
	for i, p := range parents {
		msg.SetInt32(VidParentIDBase+FieldID(i), uint32(p))
	}
	return msg
}
