// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import "time"

// Req holds per-request settings applied through modifiers.
//
// Example:
//
//	alarms, err := session.GetAlarms(ctx, false,
//	    nxcp.Timeout(2*time.Minute))
type Req struct {
	// Timeout is the request-specific reply timeout.
	// Overrides the session CommandTimeout if set.
	Timeout time.Duration
}

// Timeout returns a request modifier that sets a custom reply timeout.
//
// The timeout priority model is:
//  1. Request-specific timeout (this modifier)
//  2. Session.CommandTimeout
//
// A context deadline always applies in addition; whichever expires first
// ends the wait with ErrTimeout.
func Timeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.Timeout = duration
	}
}

// newReq applies modifiers on top of the session defaults
func (s *Session) newReq(mods []func(*Req)) Req {
	req := Req{Timeout: s.CommandTimeout}
	for _, mod := range mods {
		mod(&req)
	}
	if req.Timeout <= 0 {
		req.Timeout = s.CommandTimeout
	}
	return req
}
