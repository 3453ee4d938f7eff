// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the core WebSocket protocol logic (RFC 6455) for roomsock.
//
// Nothing here starts goroutines or owns sockets; the server package drives
// these pieces from its accept, negotiation and receive loops.
//
// Includes:
//   - Frame decoding straight from a stream and encoding with masking
//   - Close code parsing, big-endian on the wire
//   - Fragmented message reassembly with fragment and size limits
//   - Raw HTTP Upgrade negotiation and the 101/4xx replies
package protocol
