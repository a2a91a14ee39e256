// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/status"
)

// Sentinel errors, matched with errors.Is
var (
	// ErrTimeout is returned when no matching reply arrives before the deadline
	ErrTimeout = errors.New("nxcp: timeout")

	// ErrProtocolVersionMismatch is returned when the server speaks a different protocol version
	ErrProtocolVersionMismatch = errors.New("nxcp: protocol version mismatch")

	// ErrMalformedFrame is returned for a single inbound frame that cannot be decoded
	ErrMalformedFrame = errors.New("nxcp: malformed frame")

	// ErrInternal marks an internal invariant violation
	ErrInternal = errors.New("nxcp: internal error")

	// ErrNotConnected is returned when an operation needs a live connection
	ErrNotConnected = errors.New("nxcp: not connected")

	// ErrConnectionClosed is returned to waiters when the connection goes away
	ErrConnectionClosed = errors.New("nxcp: connection closed")

	// ErrFileTransferFailed is returned when the server aborts a file transfer
	ErrFileTransferFailed = errors.New("nxcp: file transfer failed")
)

// RemoteError is returned when the server answers a request with a
// non-success result code.
//
// The result code is preserved so that callers can branch on it:
//
//	err := session.DeleteObject(ctx, id)
//	var remote *nxcp.RemoteError
//	if errors.As(err, &remote) && remote.Code == nxcp.RCCAccessDenied {
//	    // ...
//	}
//
// RemoteError also implements GRPCStatus, so status.FromError and
// status.Code map it onto a gRPC status code.
type RemoteError struct {
	// Operation name that failed
	Operation string

	// Code is the result code returned by the server
	Code ResultCode
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("nxcp: %s failed: %s (rcc=%d)", e.Operation, e.Code, uint32(e.Code))
}

// IsTransient reports whether the result code reflects a temporary server condition
func (e *RemoteError) IsTransient() bool {
	return e.Code.IsTransient()
}

// GRPCStatus returns the gRPC status equivalent of the result code
func (e *RemoteError) GRPCStatus() *status.Status {
	return status.New(e.Code.GRPCCode(), e.Error())
}

// ProtocolVersionError is returned by Connect when the server protocol
// version does not match the client.
type ProtocolVersionError struct {
	Expected uint32
	Actual   uint32
}

// Error implements the error interface
func (e *ProtocolVersionError) Error() string {
	return fmt.Sprintf("nxcp: protocol version mismatch: client %d, server %d", e.Expected, e.Actual)
}

// Is matches ErrProtocolVersionMismatch
func (e *ProtocolVersionError) Is(target error) bool {
	return target == ErrProtocolVersionMismatch
}

// TransportError wraps a socket I/O failure. A transport error always
// terminates the connection.
type TransportError struct {
	// Op is the I/O step that failed (dial, read, write)
	Op string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("nxcp: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedFrameError describes a single inbound frame that could not be decoded
type MalformedFrameError struct {
	Code   Code
	ID     uint32
	Reason string
}

// Error implements the error interface
func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("nxcp: malformed frame %s id=%d: %s", e.Code, e.ID, e.Reason)
}

// Is matches ErrMalformedFrame
func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}
