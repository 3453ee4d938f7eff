// File: protocol/errors.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Protocol and negotiation failures. Each carries the reply the engine sends
// before tearing the connection down: a close code or an HTTP status.

package protocol

import (
	"net/http"

	"github.com/momentics/roomsock/api"
)

func protoErr(code CloseCode, msg string) *api.Error {
	return api.NewError(api.KindProtocol, int(code), msg)
}

func negErr(status int, msg string) *api.Error {
	return api.NewError(api.KindNegotiation, status, msg)
}

// Frame codec errors.
var (
	ErrShortRead        = protoErr(CloseProtocolError, "short read")
	ErrInvalidOpcode    = protoErr(CloseProtocolError, "invalid opcode")
	ErrReservedBits     = protoErr(CloseProtocolError, "reserved bits set")
	ErrControlFrame     = protoErr(CloseProtocolError, "fragmented or oversized control frame")
	ErrInvalidLength    = protoErr(CloseProtocolError, "invalid payload length")
	ErrFrameTooLarge    = protoErr(CloseMessageSizeExceeded, "frame payload exceeds limit")
	ErrInvalidUTF8      = protoErr(CloseInconsistentDataType, "invalid utf-8 in text payload")
	ErrInvalidCloseCode = protoErr(CloseProtocolError, "invalid close code")
)

// Message assembler errors.
var (
	ErrNoFragmentStart    = protoErr(CloseProtocolError, "continuation without fragment start")
	ErrFragmentInProgress = protoErr(CloseProtocolError, "data frame while fragmented message pending")
	ErrFragmentOverflow   = protoErr(CloseMessageSizeExceeded, "too many fragments")
	ErrMessageTooLarge    = protoErr(CloseMessageSizeExceeded, "message exceeds limit")
)

// Handshake errors.
var (
	ErrHeaderTooLarge      = negErr(http.StatusRequestHeaderFieldsTooLarge, "request header fields too large")
	ErrMissingKey          = negErr(http.StatusBadRequest, "missing Sec-WebSocket-Key header")
	ErrMalformedRequest    = negErr(http.StatusBadRequest, "malformed request line")
	ErrHandshakeIncomplete = negErr(http.StatusBadRequest, "connection closed before end of headers")
)

// CloseCodeOf returns the close code to reply with for err.
func CloseCodeOf(err error) CloseCode {
	if api.IsKind(err, api.KindProtocol) {
		return CloseCode(api.CodeOf(err, int(CloseProtocolError)))
	}
	return CloseUnexpectedCondition
}
