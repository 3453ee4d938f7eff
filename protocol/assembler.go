// File: protocol/assembler.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reassembly of fragmented messages. One Assembler belongs to one connection
// and is driven only by that connection's receive loop.

package protocol

import "unicode/utf8"

const (
	// DefaultMaxFragments bounds the number of frames in one message.
	DefaultMaxFragments = 1024
	// DefaultMaxMessageSize bounds the reassembled payload.
	DefaultMaxMessageSize = 16 << 20

	// retainBufferCap is the largest buffer kept across messages.
	retainBufferCap = 64 << 10
)

// Message is one logical application payload.
type Message struct {
	Type Opcode // OpText or OpBinary
	Data []byte
}

// Text returns the message payload as a string.
func (m *Message) Text() string {
	return string(m.Data)
}

// IsText reports a text message.
func (m *Message) IsText() bool {
	return m.Type == OpText
}

// MessageFromFrame wraps a single final data frame.
func MessageFromFrame(f *Frame) *Message {
	return &Message{Type: f.Opcode, Data: f.Payload}
}

// Assembler buffers fragment frames into one Message.
type Assembler struct {
	MaxFragments   int
	MaxMessageSize int

	pending   bool
	typ       Opcode
	fragments int
	buf       []byte
}

// NewAssembler returns an Assembler with the given limits; zero selects defaults.
func NewAssembler(maxFragments, maxMessageSize int) *Assembler {
	if maxFragments <= 0 {
		maxFragments = DefaultMaxFragments
	}
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Assembler{MaxFragments: maxFragments, MaxMessageSize: maxMessageSize}
}

// Pending reports whether a fragmented message is in progress.
func (a *Assembler) Pending() bool {
	return a.pending
}

// Start opens a buffer with the first fragment (a Text or Binary frame with
// FIN clear). Only one buffer may be open at a time.
func (a *Assembler) Start(f *Frame) error {
	if a.pending {
		return ErrFragmentInProgress
	}
	if !f.Opcode.IsData() {
		return ErrInvalidOpcode.WithContext("opcode", f.Opcode.String())
	}
	if len(f.Payload) > a.MaxMessageSize {
		return ErrMessageTooLarge
	}
	a.pending = true
	a.typ = f.Opcode
	a.fragments = 1
	a.buf = append(a.buf[:0], f.Payload...)
	return nil
}

// Append adds a continuation frame. When f.Fin is set the buffer is finalized
// and the completed Message returned; otherwise the Message is nil.
func (a *Assembler) Append(f *Frame) (*Message, error) {
	if !a.pending {
		return nil, ErrNoFragmentStart
	}
	if f.Opcode != OpContinuation {
		return nil, ErrFragmentInProgress
	}
	a.fragments++
	if a.fragments > a.MaxFragments {
		a.Reset()
		return nil, ErrFragmentOverflow.WithContext("max", a.MaxFragments)
	}
	if len(a.buf)+len(f.Payload) > a.MaxMessageSize {
		a.Reset()
		return nil, ErrMessageTooLarge.WithContext("max", a.MaxMessageSize)
	}
	a.buf = append(a.buf, f.Payload...)
	if !f.Fin {
		return nil, nil
	}

	msg := &Message{Type: a.typ, Data: make([]byte, len(a.buf))}
	copy(msg.Data, a.buf)
	a.Reset()
	if msg.Type == OpText && !utf8.Valid(msg.Data) {
		return nil, ErrInvalidUTF8
	}
	return msg, nil
}

// Reset drops any buffered fragments. A buffer grown past 64 KiB is released.
func (a *Assembler) Reset() {
	a.pending = false
	a.typ = 0
	a.fragments = 0
	if cap(a.buf) > retainBufferCap {
		a.buf = nil
	} else {
		a.buf = a.buf[:0]
	}
}

// BufferCap reports the capacity held for the next fragmented message.
func (a *Assembler) BufferCap() int {
	return cap(a.buf)
}
