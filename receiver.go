// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
)

// readBufferSize is the size of the buffered socket reader
const readBufferSize = 64 * 1024

// GroupIDFlag is set in the id of every user group
const GroupIDFlag uint32 = 0x80000000

// IsGroupID reports whether a user database id denotes a group
func IsGroupID(id uint32) bool {
	return id&GroupIDFlag != 0
}

// routeKind names where an inbound message goes
type routeKind int

const (
	routeWaitQueue routeKind = iota
	routeCache
	routeNotify
	routeFile
)

func (k routeKind) String() string {
	switch k {
	case routeWaitQueue:
		return "wait-queue"
	case routeCache:
		return "cache"
	case routeNotify:
		return "notify"
	case routeFile:
		return "file"
	default:
		return fmt.Sprintf("routeKind(%d)", int(k))
	}
}

// route is one entry of the receiver dispatch table
type route struct {
	kind   routeKind
	handle func(s *Session, ctx context.Context, c *connection, msg *Message)
}

// pushRoutes lists every code that is not an ordinary request reply
var pushRoutes = map[Code]route{
	CmdObject:                {kind: routeCache, handle: (*Session).onObject},
	CmdObjectUpdate:          {kind: routeCache, handle: (*Session).onObject},
	CmdObjectListEnd:         {kind: routeCache, handle: (*Session).onObjectListEnd},
	CmdUserData:              {kind: routeCache, handle: (*Session).onUserData},
	CmdGroupData:             {kind: routeCache, handle: (*Session).onUserData},
	CmdUserDBEOF:             {kind: routeCache, handle: (*Session).onUserDBEOF},
	CmdUserDBUpdate:          {kind: routeCache, handle: (*Session).onUserDBUpdate},
	CmdAlarmUpdate:           {kind: routeNotify, handle: (*Session).onAlarmUpdate},
	CmdJobChangeNotification: {kind: routeNotify, handle: (*Session).onJobChange},
	CmdFileData:              {kind: routeFile, handle: (*Session).onFileData},
	CmdAbortFileTransfer:     {kind: routeFile, handle: (*Session).onFileAbort},
}

// classify returns the route for a message code
func classify(code Code) route {
	if r, ok := pushRoutes[code]; ok {
		return r
	}
	if code >= CustomMessageBase {
		return route{kind: routeNotify, handle: (*Session).onCustomMessage}
	}
	return route{kind: routeWaitQueue, handle: (*Session).onReply}
}

// receive is the only reader of the connection. It runs until the socket
// fails or is closed.
func (s *Session) receive(c *connection) {
	defer close(c.receiverDone)

	ctx := context.Background()
	reader := bufio.NewReaderSize(c.conn, readBufferSize)
	for {
		msg, err := ReadMessage(reader, s.MaxFrameSize)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				s.logger.Warn(ctx, "Skipping malformed frame",
					"session", s.instanceID.String(),
					"error", err.Error())
				continue
			}
			s.receiverStopped(ctx, c, err)
			return
		}

		r := classify(msg.Code)
		s.logger.Debug(ctx, "Message received",
			"code", msg.Code.String(),
			"id", msg.ID,
			"route", r.kind.String())
		r.handle(s, ctx, c, msg)
	}
}

// receiverStopped releases everything blocked on the connection and, unless
// the close was requested, reports the broken connection to listeners
func (s *Session) receiverStopped(ctx context.Context, c *connection, err error) {
	_ = c.close()
	c.queue.shutdown()

	if c.closing.Load() {
		s.logger.Debug(ctx, "Receiver stopped",
			"session", s.instanceID.String())
		return
	}

	s.setState(ctx, StateClosed)
	s.logger.Error(ctx, "Connection lost",
		"session", s.instanceID.String(),
		"error", err.Error())
	s.listeners.dispatch(ctx, Notification{Kind: NotifyConnectionBroken})
}

// onReply hands an ordinary reply to its waiter
func (s *Session) onReply(ctx context.Context, c *connection, msg *Message) {
	if !c.queue.put(msg) {
		s.logger.Debug(ctx, "Reply parked until a waiter arrives",
			"code", msg.Code.String(),
			"id", msg.ID)
	}
}

// onObject applies one object record. Bulk records belong to the full sync
// whose request id they carry; updates are also reported to listeners.
func (s *Session) onObject(ctx context.Context, _ *connection, msg *Message) {
	obj := decodeObject(msg)

	if msg.Code == CmdObject {
		var staged bool
		if obj.Deleted {
			staged = s.objects.unstage(msg.ID, obj.ID)
		} else {
			staged = s.objects.stage(msg.ID, obj.ID, obj)
		}
		if !staged {
			s.logger.Debug(ctx, "Dropping object of abandoned sync",
				"id", msg.ID,
				"object", obj.ID)
		}
		return
	}

	if obj.Deleted {
		s.objects.remove(obj.ID)
	} else {
		s.objects.store(obj.ID, obj)
	}
	s.listeners.dispatch(ctx, Notification{Kind: NotifyObjectChanged, Object: obj})
}

func (s *Session) onObjectListEnd(ctx context.Context, _ *connection, msg *Message) {
	commit := func() { s.objects.commitSync(msg.ID) }
	if !s.objectSync.complete(msg.ID, commit) {
		s.logger.Debug(ctx, "Ignoring end of abandoned object sync",
			"id", msg.ID)
		return
	}
	s.logger.Debug(ctx, "Object sync committed",
		"objects", s.objects.len())
}

func (s *Session) onUserData(ctx context.Context, _ *connection, msg *Message) {
	rec := decodeUserDBObject(msg, msg.Code == CmdGroupData)

	var staged bool
	if rec.Deleted {
		staged = s.users.unstage(msg.ID, rec.ID)
	} else {
		staged = s.users.stage(msg.ID, rec.ID, rec)
	}
	if !staged {
		s.logger.Debug(ctx, "Dropping user record of abandoned sync",
			"id", msg.ID,
			"user", rec.ID)
	}
}

func (s *Session) onUserDBEOF(ctx context.Context, _ *connection, msg *Message) {
	commit := func() { s.users.commitSync(msg.ID) }
	if !s.userSync.complete(msg.ID, commit) {
		s.logger.Debug(ctx, "Ignoring end of abandoned user database sync",
			"id", msg.ID)
		return
	}
	s.logger.Debug(ctx, "User database sync committed",
		"entries", s.users.len())
}

// onUserDBUpdate applies an incremental user database change. The high bit
// of the id tells groups from users.
func (s *Session) onUserDBUpdate(ctx context.Context, _ *connection, msg *Message) {
	updateType := msg.Uint32(VidUpdateType)
	id := msg.Uint32(VidUserID)

	var rec *UserDBObject
	switch updateType {
	case UserDBObjectCreated, UserDBObjectModified:
		rec = decodeUserDBObject(msg, IsGroupID(id))
		s.users.store(id, rec)
	case UserDBObjectDeleted:
		rec, _ = s.users.remove(id)
	default:
		s.logger.Warn(ctx, "Unknown user database update type",
			"type", updateType,
			"id", id)
		return
	}

	if rec != nil {
		s.listeners.dispatch(ctx, Notification{
			Kind:    NotifyUserDBChanged,
			SubCode: updateType,
			User:    rec,
		})
	}
}

func (s *Session) onAlarmUpdate(ctx context.Context, _ *connection, msg *Message) {
	s.listeners.dispatch(ctx, Notification{
		Kind:    NotifyAlarm,
		SubCode: msg.Uint32(VidNotificationCode),
		Alarm:   decodeAlarm(msg),
	})
}

func (s *Session) onJobChange(ctx context.Context, _ *connection, msg *Message) {
	s.listeners.dispatch(ctx, Notification{
		Kind: NotifyJobChange,
		Job:  decodeServerJob(msg, 0),
	})
}

// onFileData appends a chunk to the file buffer keyed by the message id
func (s *Session) onFileData(ctx context.Context, _ *connection, msg *Message) {
	if !msg.IsBinary() {
		s.logger.Warn(ctx, "Ignoring file data without raw payload",
			"id", msg.ID)
		return
	}
	if s.files.append(msg.ID, msg.Data(), msg.IsEndOfFile()) {
		s.logger.Debug(ctx, "File received",
			"id", msg.ID)
		s.listeners.dispatch(ctx, Notification{Kind: NotifyFileReady, FileID: msg.ID})
	}
}

func (s *Session) onFileAbort(ctx context.Context, _ *connection, msg *Message) {
	if s.files.abort(msg.ID) {
		s.logger.Warn(ctx, "File transfer aborted by server",
			"id", msg.ID)
	}
}

// onCustomMessage reports a custom message to listeners and still offers
// it to the wait queue so callers can wait for custom replies
func (s *Session) onCustomMessage(ctx context.Context, c *connection, msg *Message) {
	s.listeners.dispatch(ctx, Notification{Kind: NotifyCustomMessage, Message: msg})
	c.queue.put(msg)
}
