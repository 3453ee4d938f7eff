// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for roomsock.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrTransportClosed   = fmt.Errorf("transport is closed")
	ErrServerClosed      = fmt.Errorf("server is closed")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrResourceExhausted = fmt.Errorf("resource exhausted")
	ErrOperationTimeout  = fmt.Errorf("operation timeout")
)

// Kind classifies a failure by the way the engine recovers from it.
type Kind int

const (
	// KindInternal is anything not covered by the other kinds.
	KindInternal Kind = iota
	// KindNegotiation: malformed or oversized handshake, refused with an HTTP status.
	KindNegotiation
	// KindProtocol: wire violation on an open connection, fatal for that connection.
	KindProtocol
	// KindTransport: socket failure or peer gone.
	KindTransport
	// KindResource: the engine could not take on more work.
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindNegotiation:
		return "negotiation"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindResource:
		return "resource"
	default:
		return "internal"
	}
}

// Error represents a structured error with kind and context.
//
// Code carries the protocol reply for the failure: a WebSocket close code for
// KindProtocol errors, an HTTP status for KindNegotiation errors, zero otherwise.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, code and message, so that sentinel
// values keep matching after WithContext or Wrap produced a copy.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code && e.Message == t.Message
}

// NewError creates a new structured error.
func NewError(kind Kind, code int, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	cp.Context = copyContext(e.Context)
	return &cp
}

// WithContext returns a copy of e carrying an additional context value.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = copyContext(e.Context)
	cp.Context[key] = value
	return &cp
}

func copyContext(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInternal, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// CodeOf returns the protocol reply code attached to err, or fallback.
func CodeOf(err error, fallback int) int {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return fallback
}

// Transport wraps a socket level failure.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Message: op, Err: err}
}

// Resource wraps a capacity failure.
func Resource(op string, err error) *Error {
	return &Error{Kind: KindResource, Message: op, Err: err}
}
