// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// waitKey identifies a reply by message code and correlation id
type waitKey struct {
	code Code
	id   uint32
}

// parkedMessage is a reply that arrived before anybody waited for it
type parkedMessage struct {
	msg *Message
	at  time.Time
}

// waitQueue hands replies from the receiver to blocked callers.
//
// Each key has at most one waiter. A reply that arrives while no waiter is
// registered is parked for holdTime and handed to the first waiter that
// asks for it; parked replies are single-consumer.
type waitQueue struct {
	mu       sync.Mutex
	waiters  map[waitKey]chan *Message
	parked   map[waitKey]*queue.Queue
	holdTime time.Duration
	closed   bool
	done     chan struct{}
	now      func() time.Time
}

func newWaitQueue(holdTime time.Duration) *waitQueue {
	return &waitQueue{
		waiters:  make(map[waitKey]chan *Message),
		parked:   make(map[waitKey]*queue.Queue),
		holdTime: holdTime,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// put delivers msg to its waiter or parks it. Returns true if a waiter took it.
func (q *waitQueue) put(msg *Message) bool {
	key := waitKey{code: msg.Code, id: msg.ID}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if ch, ok := q.waiters[key]; ok {
		delete(q.waiters, key)
		ch <- msg
		return true
	}

	pq, ok := q.parked[key]
	if !ok {
		pq = queue.New()
		q.parked[key] = pq
	}
	pq.Add(parkedMessage{msg: msg, at: q.now()})
	return false
}

// takeParked removes and returns the oldest parked message for key. Caller holds mu.
func (q *waitQueue) takeParked(key waitKey) *Message {
	pq, ok := q.parked[key]
	if !ok {
		return nil
	}
	p := pq.Remove().(parkedMessage)
	if pq.Length() == 0 {
		delete(q.parked, key)
	}
	return p.msg
}

// wait blocks until a message with the given code and id is delivered,
// the timeout elapses, ctx is done or the queue is shut down.
// A non-positive timeout waits for ctx only.
func (q *waitQueue) wait(ctx context.Context, code Code, id uint32, timeout time.Duration) (*Message, error) {
	key := waitKey{code: code, id: id}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if msg := q.takeParked(key); msg != nil {
		q.mu.Unlock()
		return msg, nil
	}
	if _, exists := q.waiters[key]; exists {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: duplicate wait for %s id=%d", ErrInternal, code, id)
	}
	ch := make(chan *Message, 1)
	q.waiters[key] = ch
	q.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var cause error
	select {
	case msg := <-ch:
		return msg, nil
	case <-expired:
		cause = fmt.Errorf("%w waiting for %s id=%d after %v", ErrTimeout, code, id, timeout)
	case <-ctx.Done():
		cause = contextCause(ctx)
	case <-q.done:
		cause = ErrConnectionClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, pending := q.waiters[key]; pending {
		delete(q.waiters, key)
		return nil, cause
	}
	// delivered while we were giving up
	return <-ch, nil
}

// contextCause maps an expired context deadline onto ErrTimeout
func contextCause(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// pending returns the number of registered waiters
func (q *waitQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// parkedCount returns the number of parked messages
func (q *waitQueue) parkedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, pq := range q.parked {
		n += pq.Length()
	}
	return n
}

// sweep drops parked messages older than holdTime and returns how many were dropped
func (q *waitQueue) sweep(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for key, pq := range q.parked {
		for pq.Length() > 0 {
			p := pq.Peek().(parkedMessage)
			if now.Sub(p.at) < q.holdTime {
				break
			}
			pq.Remove()
			dropped++
		}
		if pq.Length() == 0 {
			delete(q.parked, key)
		}
	}
	return dropped
}

// shutdown wakes all waiters with ErrConnectionClosed and drops parked messages.
// Safe to call more than once.
func (q *waitQueue) shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	q.parked = make(map[waitKey]*queue.Queue)
}

// isClosed reports whether shutdown has been called
func (q *waitQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
