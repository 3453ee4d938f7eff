// File: server/tracing.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Constants used for tracing purpose.
const (
	// Instrumentation scope name
	pkgName = "github.com/momentics/roomsock/server"
	// Instrumentation scope version
	pkgVersion = "0.1.0"

	// Namespace used by spans, events and attributes
	namespace = "roomsock"

	// Span covering one handshake, from first byte read to 101 written
	spanNegotiate = namespace + ".negotiate"
	// Span covering a server initiated closing handshake
	spanClose = namespace + ".close"
	// Span covering graceful shutdown
	spanShutdown = namespace + ".shutdown"

	// Event recorded when the peer did not answer our Close in time
	eventCloseTimeout = namespace + ".close_timeout"

	attrConnID      = namespace + ".conn_id"
	attrRemote      = namespace + ".remote"
	attrPath        = namespace + ".path"
	attrSubprotocol = namespace + ".subprotocol"
	attrStatus      = namespace + ".http_status"
	attrCloseCode   = namespace + ".close_code"
	attrCloseReason = namespace + ".close_reason"
	attrClients     = namespace + ".clients"
)

// handleError records err on span, marks the span failed and returns err.
func handleError(err error, span trace.Span, description string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
	return err
}

// handlePotentialError sets the span status from err and returns err.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		return handleError(err, span, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
