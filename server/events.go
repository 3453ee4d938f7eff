// File: server/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/roomsock/protocol"
)

// EventKind tags an Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
	EventControlFrame
	EventError

	numEventKinds
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventControlFrame:
		return "control_frame"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one lifecycle occurrence. Conn is nil for negotiation and
// resource failures, which never produce a connection. Seq is the position
// in the global delivery order.
type Event struct {
	Kind    EventKind
	Conn    Conn
	Message *protocol.Message
	Frame   *protocol.Frame
	Err     error
	Seq     uint64
	At      time.Time
}
