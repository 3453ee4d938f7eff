// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the WebSocket engine. Every method tolerates a
// nil receiver.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures collector naming and registration.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "roomsock").
	Namespace string
	// Subsystem is the metrics subsystem (default: "").
	Subsystem string
	// ConstLabels are added to every collector.
	ConstLabels prometheus.Labels
	// Registry receives the collectors (default: prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

// MetricsOption customizes MetricsConfig.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(ns string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = ns }
}

// WithConstLabels sets constant labels.
func WithConstLabels(l prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = l }
}

// WithRegistry sets the registerer.
func WithRegistry(r prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = r }
}

// Metrics groups the engine collectors.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	handshakes        *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	eventsDispatched  *prometheus.CounterVec
	protocolErrors    *prometheus.CounterVec
	broadcastFanout   prometheus.Histogram
}

// NewMetrics registers the collectors and returns them.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{Namespace: "roomsock", Registry: prometheus.DefaultRegisterer}
	for _, o := range opts {
		o(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "connections_active",
			Help: "Number of open WebSocket connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "connections_total",
			Help: "Total WebSocket connections opened",
		}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "handshakes_total",
			Help: "Handshake attempts by result",
		}, []string{"result"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "frames_received_total",
			Help: "Frames parsed from peers by opcode",
		}, []string{"opcode"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "frames_sent_total",
			Help: "Frames written to peers by opcode",
		}, []string{"opcode"}),
		eventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "events_dispatched_total",
			Help: "Events delivered to subscribers by kind",
		}, []string{"kind"}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "protocol_errors_total",
			Help: "Connection failures by error kind",
		}, []string{"reason"}),
		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name:    "broadcast_fanout",
			Help:    "Send invocations per broadcast",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

// ConnectionOpened counts a connection that reached Open.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

// ConnectionClosed decrements the active gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// Handshake records a handshake outcome ("ok", "rejected", "overloaded").
func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

// FrameReceived counts an inbound frame.
func (m *Metrics) FrameReceived(opcode string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(opcode).Inc()
}

// FrameSent counts an outbound frame.
func (m *Metrics) FrameSent(opcode string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(opcode).Inc()
}

// EventDispatched counts a delivered event.
func (m *Metrics) EventDispatched(kind string) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(kind).Inc()
}

// ProtocolError counts a failed connection by reason.
func (m *Metrics) ProtocolError(reason string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(reason).Inc()
}

// Broadcast observes the fan-out of one broadcast.
func (m *Metrics) Broadcast(sends int) {
	if m == nil {
		return
	}
	m.broadcastFanout.Observe(float64(sends))
}
