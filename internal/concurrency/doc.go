// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for roomsock: a bounded Executor used for handshake
// negotiation and an EventLoop that serializes event delivery into a single
// global order.
package concurrency
