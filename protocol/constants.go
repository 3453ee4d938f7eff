// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

// Opcode is the 4-bit frame type.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

const (
	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// MaxFramePayload is the codec default when the caller passes no limit.
	MaxFramePayload = 16 << 20

	// Bit masks
	FinBit    = 0x80
	RsvBits   = 0x70
	OpcodeBit = 0x0F
	MaskBit   = 0x80
	LenBits   = 0x7F

	len16 = 126
	len64 = 127

	// WebSocketGUID is appended to the client key before hashing (RFC 6455 1.3).
	WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
)

// Valid reports whether o is one of the six defined opcodes.
func (o Opcode) Valid() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// IsControl reports Close, Ping and Pong.
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

// IsData reports Text and Binary (not Continuation).
func (o Opcode) IsData() bool {
	return o == OpText || o == OpBinary
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "unknown"
	}
}

// CloseCode is the status carried in the first two bytes of a Close payload.
type CloseCode uint16

const (
	CloseNormal                      CloseCode = 1000
	CloseGoingAway                   CloseCode = 1001
	CloseProtocolError               CloseCode = 1002
	CloseUnacceptableDataType        CloseCode = 1003
	CloseNoCloseCode                 CloseCode = 1005 // reserved, never sent
	CloseAbnormal                    CloseCode = 1006 // reserved, never sent
	CloseInconsistentDataType        CloseCode = 1007
	ClosePolicyViolation             CloseCode = 1008
	CloseMessageSizeExceeded         CloseCode = 1009
	CloseExtensionNegotiationFailure CloseCode = 1010
	CloseUnexpectedCondition         CloseCode = 1011
	CloseTLSHandshakeFailure         CloseCode = 1015 // reserved, never sent
)

// Reserved reports codes that must never appear on the wire.
func (c CloseCode) Reserved() bool {
	return c == CloseNoCloseCode || c == CloseAbnormal || c == CloseTLSHandshakeFailure
}

// Valid reports whether a received close code is acceptable: 1000-1003,
// 1007-1011, or the registered/private range 3000-4999.
func (c CloseCode) Valid() bool {
	switch {
	case c >= 1000 && c <= 1003:
		return true
	case c >= 1007 && c <= 1011:
		return true
	case c >= 3000 && c <= 4999:
		return true
	}
	return false
}

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case CloseGoingAway:
		return "going away"
	case CloseProtocolError:
		return "protocol error"
	case CloseUnacceptableDataType:
		return "unacceptable data type"
	case CloseNoCloseCode:
		return "no close code"
	case CloseAbnormal:
		return "abnormal close"
	case CloseInconsistentDataType:
		return "inconsistent data type"
	case ClosePolicyViolation:
		return "policy violation"
	case CloseMessageSizeExceeded:
		return "message size exceeded"
	case CloseExtensionNegotiationFailure:
		return "extension negotiation failure"
	case CloseUnexpectedCondition:
		return "unexpected condition"
	case CloseTLSHandshakeFailure:
		return "tls handshake failure"
	default:
		return "application"
	}
}
