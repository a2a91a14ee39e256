// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// TestConnect tests the handshake and login sequence
func TestConnect(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv, ClientInfo("inventory"))

	if s.State() != StateConnected {
		t.Errorf("State() = %v, want connected", s.State())
	}
	if s.ServerVersion() != "5.0.1" {
		t.Errorf("ServerVersion() = %q", s.ServerVersion())
	}
	if s.ServerTimeZone() != "UTC" {
		t.Errorf("ServerTimeZone() = %q", s.ServerTimeZone())
	}
	if !bytes.Equal(s.ServerID(), []byte{0xCA, 0xFE}) {
		t.Errorf("ServerID() = %x", s.ServerID())
	}
	if len(s.ServerChallenge()) != 4 {
		t.Errorf("ServerChallenge() = %x", s.ServerChallenge())
	}
	if s.UserID() != 1 || s.UserSystemRights() != 0xFFFF {
		t.Errorf("UserID()=%d UserSystemRights()=0x%x", s.UserID(), s.UserSystemRights())
	}

	logins := srv.received(CmdLogin)
	if len(logins) != 1 {
		t.Fatalf("server saw %d logins, want 1", len(logins))
	}
	login := logins[0]
	if login.String(VidLoginName) != "admin" || login.String(VidPassword) != "secret" {
		t.Errorf("login credentials = %q/%q", login.String(VidLoginName), login.String(VidPassword))
	}
	info := login.String(VidClientInfo)
	if !strings.HasPrefix(info, "inventory") || !strings.Contains(info, s.InstanceID().String()) {
		t.Errorf("client info = %q", info)
	}
	if login.String(VidLibVersion) != LibraryVersion {
		t.Errorf("library version = %q", login.String(VidLibVersion))
	}
}

// TestConnectFailures tests that every failed Connect leaves the session closed
func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(srv *fakeServer)
		check   func(t *testing.T, err error)
		timeout time.Duration
	}{
		{
			name: "protocol version mismatch",
			setup: func(srv *fakeServer) {
				srv.handle(CmdGetServerInfo, func(sc *serverConn, req *Message) {
					reply := NewMessage(CmdRequestCompleted)
					reply.ID = req.ID
					reply.SetInt32(VidRCC, 0)
					reply.SetInt32(VidProtocolVersion, ProtocolVersion-1)
					sc.send(reply)
				})
			},
			check: func(t *testing.T, err error) {
				var pv *ProtocolVersionError
				if !errors.As(err, &pv) || pv.Actual != ProtocolVersion-1 {
					t.Errorf("error = %v, want ProtocolVersionError", err)
				}
			},
		},
		{
			name: "login rejected",
			setup: func(srv *fakeServer) {
				srv.handle(CmdLogin, func(sc *serverConn, req *Message) {
					reply := NewMessage(CmdLoginResponse)
					reply.ID = req.ID
					reply.SetInt32(VidRCC, uint32(RCCAccessDenied))
					sc.send(reply)
				})
			},
			check: func(t *testing.T, err error) {
				var remote *RemoteError
				if !errors.As(err, &remote) {
					t.Fatalf("error = %v, want RemoteError", err)
				}
				if remote.Code != RCCAccessDenied || remote.Operation != "login" {
					t.Errorf("remote error = %+v", remote)
				}
			},
		},
		{
			name: "server never answers",
			setup: func(srv *fakeServer) {
				srv.handle(CmdGetServerInfo, func(*serverConn, *Message) {})
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrTimeout) {
					t.Errorf("error = %v, want ErrTimeout", err)
				}
			},
			timeout: 50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t)
			tt.setup(srv)

			opts := []func(*Session){}
			if tt.timeout > 0 {
				opts = append(opts, CommandTimeout(tt.timeout))
			}
			s := newTestSession(t, srv, opts...)

			err := s.Connect(context.Background())
			if err == nil {
				t.Fatal("Connect() succeeded")
			}
			tt.check(t, err)

			if s.State() != StateClosed {
				t.Errorf("State() = %v, want closed", s.State())
			}
			if s.current() != nil {
				t.Error("connection kept after failed Connect")
			}
			if err := s.SendMessage(context.Background(), s.NewMessage(CmdKeepalive)); !errors.Is(err, ErrNotConnected) {
				t.Errorf("SendMessage() error = %v, want ErrNotConnected", err)
			}
		})
	}
}

// TestConnectDialFailure tests a refused TCP connection
func TestConnectDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := ln.Addr().String()
	_ = ln.Close()

	s, err := NewSession(address, Login("admin"), ConnectTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	err = s.Connect(context.Background())
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Errorf("Connect() error = %v, want dial TransportError", err)
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
}

// TestDisconnect tests that Disconnect is idempotent
func TestDisconnect(t *testing.T) {
	srv := newFakeServer(t)

	idle := newTestSession(t, srv)
	if err := idle.Disconnect(); err != nil {
		t.Errorf("Disconnect() on idle session error = %v", err)
	}
	if idle.State() != StateIdle {
		t.Errorf("idle State() = %v, want idle", idle.State())
	}

	s := connectedSession(t, srv)
	c := s.current()
	for i := 0; i < 2; i++ {
		if err := s.Disconnect(); err != nil {
			t.Fatalf("Disconnect() #%d error = %v", i+1, err)
		}
	}
	assertStopped(t, c)
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if _, err := s.Execute(context.Background(), s.NewMessage(CmdKeepalive)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Execute() after Disconnect error = %v, want ErrNotConnected", err)
	}
}

// assertStopped fails unless the goroutines of c have already exited
func assertStopped(t *testing.T, c *connection) {
	t.Helper()
	if c == nil {
		t.Fatal("no connection")
	}

	select {
	case <-c.receiverDone:
	default:
		t.Error("receiver still running")
	}
	select {
	case <-c.housekeeper.stop:
	default:
		t.Error("housekeeper not stopped")
	}
	select {
	case <-c.queue.done:
	default:
		t.Error("wait queue not shut down")
	}

	joined := make(chan struct{})
	go func() {
		c.housekeeper.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Error("housekeeper goroutine still running")
	}
}

// TestReconnect tests that a session can connect again after Disconnect
func TestReconnect(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)

	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("State() = %v", s.State())
	}
	if n := len(srv.received(CmdLogin)); n != 2 {
		t.Errorf("server saw %d logins, want 2", n)
	}
}

// TestExecute tests request/reply correlation and result codes
func TestExecute(t *testing.T) {
	tests := []struct {
		name    string
		rcc     ResultCode
		silent  bool
		wantErr error
		wantRCC ResultCode
	}{
		{name: "success", rcc: RCCSuccess},
		{name: "remote failure", rcc: RCCInvalidObjectID, wantRCC: RCCInvalidObjectID},
		{name: "timeout", silent: true, wantErr: ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t)
			srv.handle(CmdDeleteObject, func(sc *serverConn, req *Message) {
				if !tt.silent {
					sc.rcc(req, tt.rcc)
				}
			})
			s := connectedSession(t, srv)

			err := s.DeleteObject(context.Background(), 42, Timeout(50*time.Millisecond))

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantRCC != RCCSuccess:
				var remote *RemoteError
				if !errors.As(err, &remote) || remote.Code != tt.wantRCC {
					t.Errorf("error = %v, want rcc %d", err, tt.wantRCC)
				} else if remote.Operation != "delete object" {
					t.Errorf("Operation = %q", remote.Operation)
				}
			default:
				if err != nil {
					t.Errorf("error = %v", err)
				}
			}

			reqs := srv.received(CmdDeleteObject)
			if len(reqs) != 1 || reqs[0].Uint32(VidObjectID) != 42 {
				t.Errorf("server requests = %v", reqs)
			}
		})
	}
}

// TestConnectionBroken tests the reaction to a connection dropped by the server
func TestConnectionBroken(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(CmdDeleteObject, func(sc *serverConn, _ *Message) {
		_ = sc.conn.Close()
	})
	s := connectedSession(t, srv)

	events := &notifications{}
	s.AddListener(events)

	err := s.DeleteObject(context.Background(), 1)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("pending request error = %v, want ErrConnectionClosed", err)
	}

	eventually(t, "connection broken notification", func() bool {
		return len(events.ofKind(NotifyConnectionBroken)) == 1
	})
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if err := s.SendMessage(context.Background(), s.NewMessage(CmdKeepalive)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage() error = %v, want ErrNotConnected", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
}

// TestDisconnectNoBrokenNotification tests that a requested close is not
// reported as a failure
func TestDisconnectNoBrokenNotification(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)
	events := &notifications{}
	s.AddListener(events)

	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if n := len(events.ofKind(NotifyConnectionBroken)); n != 0 {
		t.Errorf("got %d broken notifications after Disconnect", n)
	}
}

// TestMalformedFrameSkipped tests that the receiver survives a bad frame
func TestMalformedFrameSkipped(t *testing.T) {
	srv := newFakeServer(t)
	srv.handle(CmdDeleteObject, func(sc *serverConn, req *Message) {
		sc.sendRaw(rawFrame(CmdRequestCompleted, 0, req.ID, 1, rawField(VidRCC, FieldType(9), nil)))
		sc.ok(req)
	})
	s := connectedSession(t, srv)

	if err := s.DeleteObject(context.Background(), 1); err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("State() = %v", s.State())
	}
}

// TestCustomMessage tests delivery of custom codes to listeners and waiters
func TestCustomMessage(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)
	events := &notifications{}
	s.AddListener(events)

	custom := NewMessage(CustomMessageBase + 5)
	custom.ID = 900
	custom.SetString(VidValue, "hello")
	srv.conn().send(custom)

	got, err := s.WaitForMessage(context.Background(), CustomMessageBase+5, 900)
	if err != nil {
		t.Fatalf("WaitForMessage() error = %v", err)
	}
	if got.String(VidValue) != "hello" {
		t.Errorf("value = %q", got.String(VidValue))
	}
	eventually(t, "custom notification", func() bool {
		return len(events.ofKind(NotifyCustomMessage)) == 1
	})
}

// TestFileTransfer tests server initiated file delivery
func TestFileTransfer(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)
	events := &notifications{}
	s.AddListener(events)

	sc := srv.conn()
	sc.send(NewDataMessage(CmdFileData, 55, []byte("first ")))
	last := NewDataMessage(CmdFileData, 55, []byte("second"))
	last.Flags |= FlagEndOfFile
	sc.send(last)

	data, err := s.WaitForFile(context.Background(), 55)
	if err != nil {
		t.Fatalf("WaitForFile() error = %v", err)
	}
	if string(data) != "first second" {
		t.Errorf("data = %q", data)
	}
	eventually(t, "file ready notification", func() bool {
		n := events.ofKind(NotifyFileReady)
		return len(n) == 1 && n[0].FileID == 55
	})
}

// TestFileTransferAborted tests a transfer cancelled by the server
func TestFileTransferAborted(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)

	sc := srv.conn()
	sc.send(NewDataMessage(CmdFileData, 8, []byte("partial")))
	abort := NewMessage(CmdAbortFileTransfer)
	abort.ID = 8
	sc.send(abort)

	_, err := s.WaitForFile(context.Background(), 8, Timeout(time.Second))
	if !errors.Is(err, ErrFileTransferFailed) {
		t.Errorf("WaitForFile() error = %v, want ErrFileTransferFailed", err)
	}
}

// TestAlarmNotification tests push alarm updates
func TestAlarmNotification(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)
	events := &notifications{}
	s.AddListener(events)

	update := NewMessage(CmdAlarmUpdate)
	update.SetInt32(VidNotificationCode, AlarmNew)
	update.SetInt32(VidAlarmID, 31)
	update.SetString(VidAlarmMessage, "Node down")
	update.SetInt16(VidAlarmSeverity, 4)
	update.SetInt32(VidSourceObject, 100)
	srv.conn().send(update)

	eventually(t, "alarm notification", func() bool {
		return len(events.ofKind(NotifyAlarm)) == 1
	})
	n := events.ofKind(NotifyAlarm)[0]
	if n.SubCode != AlarmNew || n.Alarm.ID != 31 || n.Alarm.SourceObjectID != 100 {
		t.Errorf("notification = %+v alarm = %+v", n, n.Alarm)
	}
}

// TestJobChangeNotification tests push job updates
func TestJobChangeNotification(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv)
	events := &notifications{}
	s.AddListener(events)

	update := NewMessage(CmdJobChangeNotification)
	update.SetInt32(VidJobID, 3)
	update.SetString(VidJobType, "File.Upload")
	update.SetInt16(VidJobStatus, JobActive)
	update.SetInt16(VidJobProgress, 60)
	srv.conn().send(update)

	eventually(t, "job notification", func() bool {
		return len(events.ofKind(NotifyJobChange)) == 1
	})
	job := events.ofKind(NotifyJobChange)[0].Job
	if job.ID != 3 || job.Status != JobActive || job.Progress != 60 {
		t.Errorf("job = %+v", job)
	}
}

// TestParkedRepliesSwept tests that unclaimed custom messages expire
func TestParkedRepliesSwept(t *testing.T) {
	srv := newFakeServer(t)
	s := connectedSession(t, srv, CommandTimeout(100*time.Millisecond))

	custom := NewMessage(CustomMessageBase + 1)
	custom.ID = 5
	srv.conn().send(custom)

	c := s.current()
	eventually(t, "message parked", func() bool { return c.queue.parkedCount() == 1 })
	eventually(t, "parked message swept", func() bool { return c.queue.parkedCount() == 0 })
}
