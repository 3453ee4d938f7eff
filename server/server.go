// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/roomsock/api"
	"github.com/momentics/roomsock/control"
	"github.com/momentics/roomsock/internal/concurrency"
	"github.com/momentics/roomsock/internal/netutil"
	"github.com/momentics/roomsock/internal/registry"
	"github.com/momentics/roomsock/protocol"
	"github.com/momentics/roomsock/room"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrAlreadyRunning = errors.New("server already running")

// Server owns the listener, the negotiation pool, the connection registry,
// the room directory and the event dispatcher.
type Server struct {
	cfg            *Config
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        *control.Metrics
	probes         *control.DebugProbes
	middleware     []Middleware
	onConnect      []func(*Client)

	negotiator *protocol.Negotiator
	executor   *concurrency.Executor
	clients    *registry.Registry[*Client]
	rooms      *room.Directory
	dispatcher *Dispatcher

	mu         sync.Mutex
	listener   net.Listener
	started    bool
	stopped    bool
	closing    atomic.Bool
	active     atomic.Int64
	acceptDone chan struct{}
	receivers  sync.WaitGroup
}

// New builds a Server from cfg (DefaultConfig when nil).
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		logger:     slog.Default().With("component", "roomsock"),
		acceptDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = s.tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion))

	s.negotiator = &protocol.Negotiator{
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		ChunkSize:      cfg.HandshakeChunkSize,
		Strict:         cfg.StrictHandshake,
	}
	s.clients = registry.New[*Client](cfg.RegistryShards)
	s.rooms = room.NewDirectory()
	s.dispatcher = NewDispatcher(s.logger, s.metrics)
	s.dispatcher.Use(s.middleware...)
	if s.probes != nil {
		s.registerProbes(s.probes)
	}
	return s, nil
}

// Start binds the listener and launches the dispatcher and accept
// goroutines. A bind failure is the only error it reports.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyRunning
	}
	ln, err := netutil.Listen(ctx, s.cfg.ListenAddr, netutil.ListenOptions{ReuseAddr: s.cfg.ReuseAddr})
	if err != nil {
		return err
	}
	s.listener = ln
	s.started = true
	s.executor = concurrency.NewExecutor(s.cfg.NegotiationWorkers, s.cfg.NegotiationQueue)
	s.executor.OnPanic(func(r any) {
		s.logger.Error("negotiation worker panicked", "panic", r)
	})
	s.dispatcher.Start()
	go s.acceptLoop(ln)
	s.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Serve starts the server and blocks until ctx is cancelled, then shuts down
// within Config.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(sctx)
}

// Shutdown stops accepting, closes every client with 1001, waits for their
// receive goroutines and drains the dispatcher. Clients still open when ctx
// expires are disposed forcibly. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, spanShutdown, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	s.closing.Store(true)
	_ = ln.Close()
	<-s.acceptDone
	s.executor.Close()

	clients := s.clients.Snapshot()
	span.SetAttributes(attribute.Int(attrClients, len(clients)))
	s.logger.Info("shutting down", "clients", len(clients))

	var closers sync.WaitGroup
	for _, c := range clients {
		closers.Add(1)
		go func(c *Client) {
			defer closers.Done()
			_ = c.Close(protocol.CloseGoingAway, "server shutdown")
		}(c)
	}

	var err error
	if !waitGroupCtx(ctx, &closers) || !waitGroupCtx(ctx, &s.receivers) {
		for _, c := range s.clients.Snapshot() {
			c.dispose()
		}
		s.receivers.Wait()
		err = fmt.Errorf("shutdown: %w", ctx.Err())
	}
	s.dispatcher.Stop()
	return handlePotentialError(err, span)
}

// waitGroupCtx waits for wg or ctx, reporting whether wg finished.
func waitGroupCtx(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Config returns the server configuration.
func (s *Server) Config() *Config { return s.cfg }

// Dispatcher returns the event dispatcher for subscriptions.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Rooms returns the room directory.
func (s *Server) Rooms() *room.Directory { return s.rooms }

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Len returns the number of open connections.
func (s *Server) Len() int { return s.clients.Len() }

// Connections returns a snapshot of the open connections.
func (s *Server) Connections() []Conn {
	clients := s.clients.Snapshot()
	out := make([]Conn, len(clients))
	for i, c := range clients {
		out[i] = c
	}
	return out
}

// Lookup finds an open connection by id.
func (s *Server) Lookup(id string) (Conn, bool) {
	c, ok := s.clients.Get(id)
	if !ok {
		return nil, false
	}
	return c, true
}

// Send writes f to c.
func (s *Server) Send(c Conn, f *protocol.Frame) error {
	if c == nil {
		return api.ErrInvalidArgument
	}
	return c.Send(f)
}

// SendText sends a single-frame text message.
func (s *Server) SendText(c Conn, text string) error {
	return s.Send(c, protocol.NewTextFrame(text))
}

// SendBinary sends a single-frame binary message.
func (s *Server) SendBinary(c Conn, data []byte) error {
	return s.Send(c, protocol.NewBinaryFrame(data))
}

// Broadcast sends f to every open connection and returns the number of
// send invocations.
func (s *Server) Broadcast(f *protocol.Frame) (int, error) {
	var errs []error
	clients := s.clients.Snapshot()
	for _, c := range clients {
		if err := c.Send(f); err != nil {
			errs = append(errs, fmt.Errorf("conn %s: %w", c.id, err))
		}
	}
	s.metrics.Broadcast(len(clients))
	return len(clients), errors.Join(errs...)
}

// Route adds c to the room at path, creating intermediate rooms. A closing
// or closed connection is refused with api.ErrTransportClosed.
func (s *Server) Route(c Conn, path string) (*room.Room, error) {
	if c.State() >= api.StateClosing {
		return nil, api.ErrTransportClosed
	}
	r := s.rooms.Route(c, path)
	// release may have run between the check and the insert.
	if c.State() >= api.StateClosing {
		s.rooms.RemoveMember(c.ID())
		return nil, api.ErrTransportClosed
	}
	s.logger.Debug("routed", "conn_id", c.ID(), "path", r.Name())
	return r, nil
}

// Unroute removes c from the room at path.
func (s *Server) Unroute(c Conn, path string) bool {
	return s.rooms.Unroute(c, path)
}

// BroadcastPath sends f to the room at path, or to every room below it when
// recursive is set.
func (s *Server) BroadcastPath(path string, f *protocol.Frame, recursive bool) (int, error) {
	n, err := s.rooms.BroadcastPath(path, nil, f, recursive)
	s.metrics.Broadcast(n)
	return n, err
}

// publish hands ev to the dispatcher; events after shutdown are dropped.
func (s *Server) publish(ev Event) {
	if err := s.dispatcher.Publish(ev); err != nil {
		s.logger.Debug("event dropped", "kind", ev.Kind.String(), "err", err)
	}
}

// release runs once per client when its socket is disposed.
func (s *Server) release(c *Client) {
	s.clients.Remove(c.id)
	s.rooms.RemoveMember(c.id)
	s.active.Add(-1)
	s.metrics.ConnectionClosed()
	s.logger.Debug("connection released", "conn_id", c.id)
}

func (s *Server) registerProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("connections", func() any { return s.Len() })
	dp.RegisterProbe("rooms", func() any { return s.rooms.Rooms() })
	dp.RegisterProbe("event_queue", func() any { return s.dispatcher.Pending() })
	dp.RegisterProbe("negotiation_queue", func() any {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.executor == nil {
			return 0
		}
		return s.executor.Pending()
	})
}
