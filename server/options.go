// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"

	"github.com/momentics/roomsock/control"
	"go.opentelemetry.io/otel/trace"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default() tagged
// with component=roomsock.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. If not set, the
// global tracer provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDebugProbes registers the server's state probes on dp.
func WithDebugProbes(dp *control.DebugProbes) Option {
	return func(s *Server) {
		s.probes = dp
	}
}

// WithMiddleware attaches event delivery middleware in FIFO order.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithOnConnect adds a hook run on the negotiation worker right after a
// client is registered and before its Connected event is published.
func WithOnConnect(fn func(*Client)) Option {
	return func(s *Server) {
		s.onConnect = append(s.onConnect, fn)
	}
}
