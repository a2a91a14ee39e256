// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"time"

	"github.com/opentracing/opentracing-go"
)

// Session configuration options using the functional options pattern

// Login sets the login name used to authenticate the session
func Login(login string) func(*Session) {
	return func(s *Session) {
		s.login = login
	}
}

// Password sets the password used to authenticate the session
func Password(password string) func(*Session) {
	return func(s *Session) {
		s.password = password
	}
}

// Port sets the server port (default: 4701)
func Port(port int) func(*Session) {
	return func(s *Session) {
		s.Port = port
	}
}

// ClientInfo sets the client description sent at login
func ClientInfo(info string) func(*Session) {
	return func(s *Session) {
		s.ClientInfo = info
	}
}

// ConnectTimeout sets the TCP connect timeout (default: 30s)
func ConnectTimeout(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.ConnectTimeout = duration
	}
}

// CommandTimeout sets the default time to wait for a reply (default: 30s)
//
// The same value bounds how long an early reply is parked while nobody
// waits for it.
func CommandTimeout(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.CommandTimeout = duration
	}
}

// SyncTimeoutFactor sets the multiple of CommandTimeout allowed for a full
// object or user database synchronization stream (default: 10)
func SyncTimeoutFactor(factor int) func(*Session) {
	return func(s *Session) {
		s.SyncTimeoutFactor = factor
	}
}

// MaxFrameSize sets the largest inbound frame accepted (default: 4 MiB).
// Larger frames are skipped and logged.
func MaxFrameSize(size int) func(*Session) {
	return func(s *Session) {
		s.MaxFrameSize = size
	}
}

// FileTTL sets how long a received file is kept unclaimed (default: 300s)
func FileTTL(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.FileTTL = duration
	}
}

// HousekeeperInterval sets the period of the cleanup sweep (default: 1s)
func HousekeeperInterval(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.HousekeeperInterval = duration
	}
}

// MaxDataRows sets the number of rows the server returns at most per
// collected data reply (default: 200000). It must match the server.
func MaxDataRows(rows int) func(*Session) {
	return func(s *Session) {
		s.MaxDataRows = rows
	}
}

// WithLogger configures a custom logger for the session
//
// By default, the session uses NoOpLogger which discards all log messages.
//
// Example:
//
//	logger := nxcp.NewDefaultLogger(nxcp.LogLevelInfo)
//	session, _ := nxcp.NewSession("nms.example.com",
//	    nxcp.Login("admin"),
//	    nxcp.Password("secret"),
//	    nxcp.WithLogger(logger))
func WithLogger(logger Logger) func(*Session) {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer configures an OpenTracing tracer. Every request gets a client
// span; connect, synchronization and paged retrieval get a parent span.
//
// Default: opentracing.NoopTracer
func WithTracer(tracer opentracing.Tracer) func(*Session) {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}
