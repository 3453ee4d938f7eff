// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime telemetry and debug introspection for roomsock servers.
//
// Provides:
//   - Prometheus collectors for connections, handshakes, frames, events and broadcasts
//   - A nil-safe *Metrics so uninstrumented servers pay nothing
//   - Named debug probes dumped as a single state snapshot
package control
