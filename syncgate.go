// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// syncGate serializes full resynchronizations of one cache and signals
// completion of the stream to the caller that started it.
//
// Serialization and completion are separate: sem admits one sync at a
// time, and each sync arms its own one-shot done channel keyed by the
// request id. Only the terminator carrying that id fires it.
type syncGate struct {
	sem chan struct{}

	mu   sync.Mutex
	id   uint32
	done chan struct{}
}

func newSyncGate() *syncGate {
	return &syncGate{sem: make(chan struct{}, 1)}
}

// acquire blocks until no other sync is running or ctx is done
func (g *syncGate) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release lets the next sync start. The armed signal, if any, is dropped.
func (g *syncGate) release() {
	g.disarm()
	<-g.sem
}

// arm creates the completion signal for the sync requested with id
func (g *syncGate) arm(id uint32) <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
	g.done = make(chan struct{})
	return g.done
}

// disarm drops the armed signal. Returns false if there was none, which
// after arm means the sync already completed.
func (g *syncGate) disarm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	armed := g.done != nil
	g.done = nil
	g.id = 0
	return armed
}

// complete runs commit and fires the signal armed for id. Returns false
// without running commit when no sync with that id is waiting, e.g. for a
// terminator that arrives after its sync gave up.
func (g *syncGate) complete(id uint32, commit func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done == nil || g.id != id {
		return false
	}
	if commit != nil {
		commit()
	}
	close(g.done)
	g.done = nil
	g.id = 0
	return true
}

// synchronize runs one full resynchronization: it sends msg, waits for the
// acknowledgement and then for the receiver to see the stream terminator.
// The stream may take up to SyncTimeoutFactor times the reply timeout.
// begin and abort start and discard the cache staging area; begin gets
// the request id that scopes the stream.
func (s *Session) synchronize(ctx context.Context, op string, gate *syncGate, begin func(id uint32), abort func(), msg *Message, mods []func(*Req)) (err error) {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}

	if err := gate.acquire(ctx); err != nil {
		return contextCause(ctx)
	}
	defer gate.release()

	if msg.ID == 0 {
		msg.ID = s.nextRequestID()
	}
	begin(msg.ID)
	done := gate.arm(msg.ID)
	defer func() {
		if err != nil {
			abort()
			s.logger.Warn(ctx, "Synchronization failed",
				"operation", op,
				"error", err.Error())
		}
	}()

	if _, err = s.execute(ctx, op, msg, mods...); err != nil {
		gate.disarm()
		return err
	}

	req := s.newReq(mods)
	timeout := req.Timeout * time.Duration(s.SyncTimeoutFactor)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		err = fmt.Errorf("%w waiting for %s stream after %v", ErrTimeout, op, timeout)
	case <-ctx.Done():
		err = contextCause(ctx)
	case <-c.queue.done:
		err = ErrConnectionClosed
	}
	if err != nil && gate.disarm() {
		return err
	}

	// the terminator may win the race against a failure
	s.logger.Debug(ctx, "Synchronization complete",
		"operation", op)
	return nil
}
