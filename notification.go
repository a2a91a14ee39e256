// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// NotificationKind tags the payload carried by a Notification
type NotificationKind int

const (
	// NotifyObjectChanged carries an updated or deleted object
	NotifyObjectChanged NotificationKind = iota + 1

	// NotifyAlarm carries an alarm; SubCode tells what happened to it
	NotifyAlarm

	// NotifyJobChange carries a server job status change
	NotifyJobChange

	// NotifyUserDBChanged carries a created, modified or deleted user or group
	NotifyUserDBChanged

	// NotifyFileReady is emitted when a server-initiated file transfer completes
	NotifyFileReady

	// NotifyCustomMessage carries a message with a code at or above CustomMessageBase
	NotifyCustomMessage

	// NotifyConnectionBroken is emitted when the connection fails unexpectedly
	NotifyConnectionBroken
)

var notificationKindNames = map[NotificationKind]string{
	NotifyObjectChanged:    "object-changed",
	NotifyAlarm:            "alarm",
	NotifyJobChange:        "job-change",
	NotifyUserDBChanged:    "user-db-changed",
	NotifyFileReady:        "file-ready",
	NotifyCustomMessage:    "custom-message",
	NotifyConnectionBroken: "connection-broken",
}

// String returns the name of the notification kind
func (k NotificationKind) String() string {
	if name, ok := notificationKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NotificationKind(%d)", int(k))
}

// User database change sub-codes
const (
	UserDBObjectCreated  uint32 = 0
	UserDBObjectModified uint32 = 1
	UserDBObjectDeleted  uint32 = 2
)

// Alarm change sub-codes
const (
	AlarmNew        uint32 = 0
	AlarmChanged    uint32 = 1
	AlarmTerminated uint32 = 2
	AlarmDeleted    uint32 = 3
)

// Notification is a push event delivered to listeners. Only the payload
// field matching Kind is set.
type Notification struct {
	Kind    NotificationKind
	SubCode uint32

	Object  *Object
	Alarm   *Alarm
	Job     *ServerJob
	User    *UserDBObject
	FileID  uint32
	Message *Message
}

// JSON renders the notification and its payload as a JSON document
func (n Notification) JSON() (string, error) {
	body := Body{}.
		Set("kind", n.Kind.String()).
		Set("subCode", n.SubCode)

	switch {
	case n.Object != nil:
		body = body.SetRaw("object", n.Object.JSON())
	case n.Alarm != nil:
		body = body.SetRaw("alarm", n.Alarm.JSON())
	case n.Job != nil:
		body = body.SetRaw("job", n.Job.JSON())
	case n.User != nil:
		body = body.SetRaw("user", n.User.JSON())
	}
	if n.Kind == NotifyFileReady {
		body = body.Set("fileId", n.FileID)
	}
	if n.Message != nil {
		body = body.
			Set("message.code", uint16(n.Message.Code)).
			Set("message.id", n.Message.ID)
	}
	return body.String()
}

// GetValue queries the JSON rendering of the notification
func (n Notification) GetValue(path string) gjson.Result {
	s, err := n.JSON()
	if err != nil {
		return gjson.Result{}
	}
	return gjson.Get(s, path)
}

// Listener receives notifications.
//
// HandleNotification runs on the receiver goroutine. It must return
// quickly and must not call Disconnect or Close, otherwise all further
// message processing stalls.
type Listener interface {
	HandleNotification(n Notification)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(n Notification)

// HandleNotification calls f(n)
func (f ListenerFunc) HandleNotification(n Notification) {
	f(n)
}

// ListenerID identifies a registered listener
type ListenerID uint64

type listenerEntry struct {
	id       ListenerID
	listener Listener
}

// listenerRegistry keeps listeners in registration order. Dispatch reads
// an immutable slice so that registration never blocks delivery.
type listenerRegistry struct {
	mu      sync.Mutex
	nextID  ListenerID
	entries atomic.Pointer[[]listenerEntry]
	logger  Logger
}

func newListenerRegistry(logger Logger) *listenerRegistry {
	r := &listenerRegistry{logger: logger}
	r.entries.Store(&[]listenerEntry{})
	return r
}

// add registers l and returns its id
func (r *listenerRegistry) add(l Listener) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	old := *r.entries.Load()
	next := make([]listenerEntry, len(old), len(old)+1)
	copy(next, old)
	next = append(next, listenerEntry{id: r.nextID, listener: l})
	r.entries.Store(&next)
	return r.nextID
}

// remove unregisters a listener. Returns false if the id is unknown.
func (r *listenerRegistry) remove(id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.entries.Load()
	next := make([]listenerEntry, 0, len(old))
	found := false
	for _, e := range old {
		if e.id == id {
			found = true
			continue
		}
		next = append(next, e)
	}
	if found {
		r.entries.Store(&next)
	}
	return found
}

// len returns the number of registered listeners
func (r *listenerRegistry) len() int {
	return len(*r.entries.Load())
}

// dispatch invokes every listener in registration order on the calling goroutine
func (r *listenerRegistry) dispatch(ctx context.Context, n Notification) {
	for _, e := range *r.entries.Load() {
		r.invoke(ctx, e, n)
	}
}

func (r *listenerRegistry) invoke(ctx context.Context, e listenerEntry, n Notification) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(ctx, "Notification listener panicked",
				"listener", e.id,
				"kind", n.Kind.String(),
				"panic", p)
		}
	}()
	e.listener.HandleNotification(n)
}
