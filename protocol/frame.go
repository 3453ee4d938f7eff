// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame model and masking.

package protocol

import (
	"encoding/binary"
	"unicode/utf8"
)

// Frame is one decoded WebSocket frame. Frames are treated as immutable once
// built: the codec never mutates a Payload it was handed.
type Frame struct {
	Fin     bool   // FIN bit
	Masked  bool   // MASK bit
	Opcode  Opcode // operation code
	MaskKey [4]byte
	Payload []byte // unmasked payload

	// Close frames only.
	CloseCode   CloseCode
	CloseReason string
}

// NewTextFrame builds a final text frame.
func NewTextFrame(text string) *Frame {
	return &Frame{Fin: true, Opcode: OpText, Payload: []byte(text)}
}

// NewBinaryFrame builds a final binary frame.
func NewBinaryFrame(data []byte) *Frame {
	return &Frame{Fin: true, Opcode: OpBinary, Payload: data}
}

// NewContinuationFrame builds a continuation fragment.
func NewContinuationFrame(data []byte, fin bool) *Frame {
	return &Frame{Fin: fin, Opcode: OpContinuation, Payload: data}
}

// NewPingFrame builds a ping carrying payload verbatim.
func NewPingFrame(payload []byte) *Frame {
	return &Frame{Fin: true, Opcode: OpPing, Payload: payload}
}

// NewPongFrame builds a pong carrying payload verbatim.
func NewPongFrame(payload []byte) *Frame {
	return &Frame{Fin: true, Opcode: OpPong, Payload: payload}
}

// NewCloseFrame builds a close frame. CloseNoCloseCode yields an empty payload;
// otherwise the code is written big-endian followed by the UTF-8 reason.
// The reason is truncated so the payload stays within 125 bytes.
func NewCloseFrame(code CloseCode, reason string) *Frame {
	f := &Frame{Fin: true, Opcode: OpClose, CloseCode: code}
	if code == 0 || code == CloseNoCloseCode {
		f.CloseCode = CloseNoCloseCode
		return f
	}
	if len(reason) > MaxControlPayloadLen-2 {
		reason = truncateUTF8(reason, MaxControlPayloadLen-2)
	}
	f.CloseReason = reason
	f.Payload = make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(f.Payload, uint16(code))
	copy(f.Payload[2:], reason)
	return f
}

// Text returns the payload as a string.
func (f *Frame) Text() string {
	return string(f.Payload)
}

// IsControl reports whether f is a Close, Ping or Pong frame.
func (f *Frame) IsControl() bool {
	return f.Opcode.IsControl()
}

// Mask XORs buf in place with key. Applying it twice restores the input.
func Mask(buf []byte, key [4]byte) {
	for i := 0; i < len(buf); i++ {
		buf[i] ^= key[i%4]
	}
}

// MaskCopy returns a masked copy of buf, leaving buf untouched.
func MaskCopy(buf []byte, key [4]byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	Mask(out, key)
	return out
}

func truncateUTF8(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
