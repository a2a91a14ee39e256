// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"
)

// FileStatus is the state of a received-file buffer
type FileStatus int

const (
	// FileOpen means chunks are still arriving
	FileOpen FileStatus = iota

	// FileReceived means the end-of-file chunk was seen
	FileReceived

	// FileFailed means the server aborted the transfer
	FileFailed
)

// String returns the name of the file status
func (s FileStatus) String() string {
	switch s {
	case FileOpen:
		return "open"
	case FileReceived:
		return "received"
	case FileFailed:
		return "failed"
	default:
		return fmt.Sprintf("FileStatus(%d)", int(s))
	}
}

// receivedFile accumulates the chunks of one server-initiated file transfer
type receivedFile struct {
	id       uint32
	data     bytes.Buffer
	status   FileStatus
	done     chan struct{}
	receives bool

	// created is when the first chunk arrived, or when the first waiter
	// arrived for a buffer that has no data yet
	created time.Time
}

func (f *receivedFile) finish(status FileStatus) {
	if f.status != FileOpen {
		return
	}
	f.status = status
	close(f.done)
}

// fileStore holds received-file buffers keyed by correlation id until a
// caller claims them or they outlive ttl.
type fileStore struct {
	mu    sync.Mutex
	files map[uint32]*receivedFile
	ttl   time.Duration
	now   func() time.Time
}

func newFileStore(ttl time.Duration) *fileStore {
	return &fileStore{
		files: make(map[uint32]*receivedFile),
		ttl:   ttl,
		now:   time.Now,
	}
}

// entry returns the buffer for id, creating it. Caller holds mu.
func (s *fileStore) entry(id uint32) *receivedFile {
	f, ok := s.files[id]
	if !ok {
		f = &receivedFile{id: id, created: s.now(), done: make(chan struct{})}
		s.files[id] = f
	}
	return f
}

// append adds a chunk and returns true if it completed the file
func (s *fileStore) append(id uint32, chunk []byte, eof bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.entry(id)
	if f.status != FileOpen {
		return false
	}
	if !f.receives {
		f.receives = true
		f.created = s.now()
	}
	f.data.Write(chunk)
	if eof {
		f.finish(FileReceived)
		return true
	}
	return false
}

// abort marks the transfer as failed and wakes its waiter
func (s *fileStore) abort(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok || f.status != FileOpen {
		return false
	}
	f.finish(FileFailed)
	return true
}

// claim removes a finished buffer and returns its contents. Caller holds mu.
func (s *fileStore) claim(f *receivedFile) ([]byte, error) {
	if s.files[f.id] == f {
		delete(s.files, f.id)
	} else if f.status == FileReceived {
		return nil, fmt.Errorf("%w: file %d already claimed or expired", ErrFileTransferFailed, f.id)
	}
	if f.status == FileFailed {
		return nil, fmt.Errorf("%w: file %d", ErrFileTransferFailed, f.id)
	}
	return f.data.Bytes(), nil
}

// wait blocks until file id is complete and claims it. The buffer stays
// in the store on timeout so that a later call can still pick it up.
// A waiter that arrives before the first chunk creates the buffer; its ttl
// restarts when that chunk arrives.
func (s *fileStore) wait(ctx context.Context, id uint32, timeout time.Duration, closed <-chan struct{}) ([]byte, error) {
	s.mu.Lock()
	f := s.entry(id)
	if f.status != FileOpen {
		defer s.mu.Unlock()
		return s.claim(f)
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
	case <-timer.C:
		return nil, fmt.Errorf("%w waiting for file %d after %v", ErrTimeout, id, timeout)
	case <-ctx.Done():
		return nil, contextCause(ctx)
	case <-closed:
		return nil, ErrConnectionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claim(f)
}

// status returns the state of buffer id
func (s *fileStore) status(id uint32) (FileStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return FileOpen, false
	}
	return f.status, true
}

// len returns the number of buffers held
func (s *fileStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// sweep evicts buffers older than ttl and returns how many were evicted.
// Waiters on an evicted open buffer are woken with a failure.
func (s *fileStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, f := range s.files {
		if now.Sub(f.created) > s.ttl {
			f.finish(FileFailed)
			delete(s.files, id)
			evicted++
		}
	}
	return evicted
}
