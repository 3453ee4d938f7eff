// File: protocol/frame_codec.go
// Package protocol implements the frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoding pulls exactly the bytes a frame needs from the stream, so the same
// reader can be handed back for the next frame. Encoding never mutates the
// caller's payload.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/momentics/roomsock/api"
)

// ReadFrame reads one complete frame from r. A clean end of stream before the
// first header byte is reported as io.EOF.
func ReadFrame(r io.Reader, maxPayload int64) (*Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, readErr("header", err)
	}
	return ParseFrame(hdr, r, maxPayload)
}

// ParseFrame decodes the rest of a frame whose 2-byte header has already been
// read, pulling extended length, masking key and payload from r.
// maxPayload <= 0 selects MaxFramePayload.
func ParseFrame(hdr [2]byte, r io.Reader, maxPayload int64) (*Frame, error) {
	if hdr[0]&RsvBits != 0 {
		return nil, ErrReservedBits.WithContext("byte0", hdr[0])
	}
	fin := hdr[0]&FinBit != 0
	opcode := Opcode(hdr[0] & OpcodeBit)
	if !opcode.Valid() {
		return nil, ErrInvalidOpcode.WithContext("opcode", byte(opcode))
	}
	masked := hdr[1]&MaskBit != 0
	length := uint64(hdr[1] & LenBits)

	if opcode.IsControl() && (!fin || length > MaxControlPayloadLen) {
		return nil, ErrControlFrame.WithContext("opcode", opcode.String())
	}

	switch length {
	case len16:
		var ext [2]byte
		if err := readFull(r, ext[:], "extended length"); err != nil {
			return nil, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case len64:
		var ext [8]byte
		if err := readFull(r, ext[:], "extended length"); err != nil {
			return nil, err
		}
		length = binary.BigEndian.Uint64(ext[:])
		if length>>63 != 0 {
			return nil, ErrInvalidLength
		}
	}

	if maxPayload <= 0 {
		maxPayload = MaxFramePayload
	}
	if length > uint64(maxPayload) {
		return nil, ErrFrameTooLarge.WithContext("length", length)
	}

	f := &Frame{Fin: fin, Masked: masked, Opcode: opcode}
	if masked {
		if err := readFull(r, f.MaskKey[:], "masking key"); err != nil {
			return nil, err
		}
	}

	f.Payload = make([]byte, length)
	if err := readFull(r, f.Payload, "payload"); err != nil {
		return nil, err
	}
	if masked {
		Mask(f.Payload, f.MaskKey)
	}

	switch opcode {
	case OpText:
		// Fragments are validated as a whole by the Assembler; a code point
		// may straddle two frames.
		if fin && !utf8.Valid(f.Payload) {
			return nil, ErrInvalidUTF8
		}
	case OpClose:
		if err := parseClose(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// parseClose fills CloseCode and CloseReason from a close payload.
func parseClose(f *Frame) error {
	switch len(f.Payload) {
	case 0:
		f.CloseCode = CloseNoCloseCode
		return nil
	case 1:
		return ErrInvalidCloseCode.WithContext("length", 1)
	}
	code := CloseCode(binary.BigEndian.Uint16(f.Payload))
	if !code.Valid() {
		return ErrInvalidCloseCode.WithContext("code", uint16(code))
	}
	reason := f.Payload[2:]
	if !utf8.Valid(reason) {
		return ErrInvalidUTF8
	}
	f.CloseCode = code
	f.CloseReason = string(reason)
	return nil
}

// Serialize encodes f into a new byte slice. If f.Masked is set and f.MaskKey
// is all zero, a key is drawn from crypto/rand.
func Serialize(f *Frame) ([]byte, error) {
	if !f.Opcode.Valid() {
		return nil, ErrInvalidOpcode.WithContext("opcode", byte(f.Opcode))
	}
	payload := f.Payload
	if f.Opcode == OpClose && len(payload) == 0 && f.CloseCode != 0 && !f.CloseCode.Reserved() {
		payload = NewCloseFrame(f.CloseCode, f.CloseReason).Payload
	}
	plen := len(payload)
	if f.Opcode.IsControl() && (!f.Fin || plen > MaxControlPayloadLen) {
		return nil, ErrControlFrame.WithContext("opcode", f.Opcode.String())
	}

	var hdr [MaxFrameHeaderLen]byte
	if f.Fin {
		hdr[0] = FinBit
	}
	hdr[0] |= byte(f.Opcode) & OpcodeBit

	var maskBit byte
	if f.Masked {
		maskBit = MaskBit
	}
	n := 2
	switch {
	case plen <= MaxControlPayloadLen:
		hdr[1] = byte(plen) | maskBit
	case plen <= 0xFFFF:
		hdr[1] = len16 | maskBit
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
		n += 2
	default:
		hdr[1] = len64 | maskBit
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
		n += 8
	}

	key := f.MaskKey
	if f.Masked {
		if key == ([4]byte{}) {
			if _, err := rand.Read(key[:]); err != nil {
				return nil, api.Resource("mask key", err)
			}
		}
		copy(hdr[n:], key[:])
		n += 4
	}

	out := make([]byte, n+plen)
	copy(out, hdr[:n])
	copy(out[n:], payload)
	if f.Masked {
		Mask(out[n:], key)
	}
	return out, nil
}

// WriteFrame serializes f and writes it to w in a single Write call.
func WriteFrame(w io.Writer, f *Frame) error {
	b, err := Serialize(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return api.Transport("write frame", err)
	}
	return nil
}

func readFull(r io.Reader, buf []byte, what string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return readErr(what, err)
	}
	return nil
}

// readErr maps truncation to ErrShortRead and everything else to a transport error.
func readErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortRead.WithContext("reading", what).Wrap(err)
	}
	return api.Transport("read "+what, err)
}
