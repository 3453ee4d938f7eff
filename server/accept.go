// File: server/accept.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accept loop and handshake negotiation.

package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/momentics/roomsock/api"
	"github.com/momentics/roomsock/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// acceptLoop hands every accepted socket to the negotiation pool. It returns
// when the listener is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn("accept failed", "err", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if err := s.executor.Submit(func() { s.negotiate(conn) }); err != nil {
			remote := conn.RemoteAddr().String()
			_ = conn.Close()
			rerr := api.Resource("submit negotiation", err).WithContext("remote", remote)
			s.metrics.Handshake("overloaded")
			s.logger.Warn("negotiation pool rejected connection", "remote", remote, "err", err)
			s.publish(Event{Kind: EventError, Err: rerr})
		}
	}
}

// negotiate runs on a pool worker: it performs the handshake and, on
// success, registers the client and starts its receive goroutine.
func (s *Server) negotiate(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	_, span := s.tracer.Start(context.Background(), spanNegotiate,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrRemote, remote)),
	)
	defer span.End()

	if s.closing.Load() {
		s.reject(conn, span, remote, api.Resource("negotiate", api.ErrServerClosed))
		return
	}
	if s.cfg.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	}

	resp, req, err := s.negotiator.Negotiate(conn)
	if err != nil {
		s.reject(conn, span, remote, err)
		return
	}
	span.SetAttributes(
		attribute.String(attrPath, req.Path),
		attribute.String(attrSubprotocol, resp.Protocol),
	)

	if n := s.active.Add(1); s.cfg.MaxConnections > 0 && n > int64(s.cfg.MaxConnections) {
		s.active.Add(-1)
		s.reject(conn, span, remote, api.Resource("connection limit", api.ErrResourceExhausted))
		return
	}

	if _, err := resp.WriteTo(conn); err != nil {
		s.active.Add(-1)
		_ = conn.Close()
		terr := api.Transport("write handshake response", err)
		s.metrics.Handshake("failed")
		s.logger.Info("handshake response not delivered", "remote", remote, "err", err)
		_ = handleError(terr, span, "handshake response not delivered")
		s.publish(Event{Kind: EventError, Err: terr})
		return
	}
	_ = conn.SetDeadline(time.Time{})

	reader := bufio.NewReader(io.MultiReader(bytes.NewReader(resp.Rest), conn))
	c := newClient(conn, reader, req, resp.Protocol, clientOptions{
		writeTimeout:   s.cfg.WriteTimeout,
		closeTimeout:   s.cfg.CloseTimeout,
		maxFragments:   s.cfg.MaxFragments,
		maxMessageSize: s.cfg.MaxMessageSize,
		tracer:         s.tracer,
		onDispose:      s.release,
		onSent: func(op protocol.Opcode) {
			s.metrics.FrameSent(op.String())
		},
	})
	s.clients.Add(c.id, c)
	s.metrics.ConnectionOpened()
	s.metrics.Handshake("ok")
	span.SetAttributes(attribute.String(attrConnID, c.id))
	_ = handlePotentialError(nil, span)
	s.logger.Info("connection opened", "conn_id", c.id, "remote", remote, "path", req.Path)

	for _, hook := range s.onConnect {
		hook(c)
	}
	s.publish(Event{Kind: EventConnected, Conn: c})

	s.receivers.Add(1)
	go s.receive(c)
}

// reject answers a failed handshake with an HTTP error status and closes the
// socket. No Client is created.
func (s *Server) reject(conn net.Conn, span trace.Span, remote string, err error) {
	status := protocol.RejectStatus(err)
	span.SetAttributes(attribute.Int(attrStatus, status))
	_ = protocol.WriteReject(conn, err)
	go lingerClose(conn)

	result := "rejected"
	if api.IsKind(err, api.KindResource) {
		result = "overloaded"
	}
	s.metrics.Handshake(result)
	s.logger.Info("handshake rejected", "remote", remote, "status", status, "err", err)
	_ = handleError(err, span, "handshake rejected")
	s.publish(Event{Kind: EventError, Err: err})
}

// rejectLinger bounds how long a refused socket is drained before closing.
const rejectLinger = 500 * time.Millisecond

// lingerClose half-closes conn and discards what the peer still sends, so
// the error reply is not destroyed by a reset caused by unread request bytes.
func lingerClose(conn net.Conn) {
	defer conn.Close()
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.CloseWrite()
	_ = tc.SetReadDeadline(time.Now().Add(rejectLinger))
	_, _ = io.Copy(io.Discard, io.LimitReader(tc, 256<<10))
}
