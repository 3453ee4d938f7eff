// File: server/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package server runs the WebSocket engine: a blocking accept loop, a bounded
// negotiation pool, one receive goroutine per open connection and a single
// dispatcher goroutine that delivers every lifecycle event to subscribers in
// one global order. Connections can be routed into a room directory and
// addressed by path for broadcast.
//
//	srv, _ := server.New(server.DefaultConfig())
//	srv.Dispatcher().OnMessage(func(ev server.Event) {
//		_ = srv.Send(ev.Conn, protocol.NewTextFrame(ev.Message.Text()))
//	})
//	_ = srv.Serve(ctx)
package server
