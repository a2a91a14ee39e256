// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
)

const (
	subsystemKey = "subsystem"
	sessionKey   = "session"
	codeKey      = "nxcp.code"
	requestIDKey = "nxcp.request_id"
	rccKey       = "nxcp.rcc"
)

var (
	sendEvent  = log.String("event", "send")
	replyEvent = log.String("event", "reply")
	pageEvent  = log.String("event", "page")
	errorEvent = log.String("event", "error")
)

// startSpan opens a client span for op as a child of any span in ctx
func (s *Session) startSpan(ctx context.Context, op string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, s.tracer, "nxcp "+op)
	ext.SpanKindRPCClient.Set(span)
	ext.PeerHostname.Set(span, s.Address)
	ext.PeerPort.Set(span, uint16(s.Port))
	span.SetTag(subsystemKey, "nxcp")
	span.SetTag(sessionKey, s.instanceID.String())
	return span, ctx
}

// logRequestSent records an outgoing message on span
func logRequestSent(span opentracing.Span, msg *Message) {
	span.SetTag(codeKey, msg.Code.String())
	span.SetTag(requestIDKey, msg.ID)
	span.LogFields(
		sendEvent,
		log.Int("fields", msg.NumFields()),
	)
}

// logReply records a received reply on span
func logReply(span opentracing.Span, msg *Message) {
	span.LogFields(
		replyEvent,
		log.String("code", msg.Code.String()),
	)
}

// logPage records one page of a paged retrieval on span
func logPage(span opentracing.Span, page, rows int) {
	span.LogFields(
		pageEvent,
		log.Int("page", page),
		log.Int("rows", rows),
	)
}

// finishSpan marks span failed when err is set and finishes it
func finishSpan(span opentracing.Span, err error) {
	if err != nil {
		ext.Error.Set(span, true)

		var remote *RemoteError
		if errors.As(err, &remote) {
			span.SetTag(rccKey, uint32(remote.Code))
		}
		span.LogFields(
			errorEvent,
			log.String("message", err.Error()),
		)
	}
	span.Finish()
}
