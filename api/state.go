// File: api/state.go
// Package api defines the connection lifecycle.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// State is the lifecycle position of a connection.
//
//	Accepted -> Negotiating -> Open -> Closing -> Closed
type State int32

const (
	StateAccepted State = iota
	StateNegotiating
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
