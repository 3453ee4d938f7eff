// File: cmd/roomsock/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/momentics/roomsock/control"
	"github.com/momentics/roomsock/room"
	"github.com/momentics/roomsock/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	metricsAddr string
	logLevel    string
	logFormat   string
	autoJoin    bool
}

func serveCmd() *cobra.Command {
	cfg := server.DefaultConfig()
	opts := serveOptions{logLevel: "info", logFormat: "text", autoJoin: true}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket room server",
		Long: `Run the WebSocket room server until interrupted.

With --metrics-addr an admin listener serves /metrics, /healthz, /rooms
and /debug/state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, opts, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "WebSocket listen address")
	f.BoolVar(&cfg.ReuseAddr, "reuse-addr", cfg.ReuseAddr, "Set SO_REUSEADDR on the listener")
	f.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", cfg.MaxHeaderBytes, "Handshake header size limit")
	f.BoolVar(&cfg.StrictHandshake, "strict-handshake", cfg.StrictHandshake, "Require Upgrade, Connection and version 13 headers")
	f.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Handshake deadline, 0 disables")
	f.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Idle read deadline per frame, 0 disables")
	f.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Write deadline per frame, 0 disables")
	f.DurationVar(&cfg.CloseTimeout, "close-timeout", cfg.CloseTimeout, "Wait for the peer's Close reply")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown budget")
	f.IntVar(&cfg.NegotiationWorkers, "workers", cfg.NegotiationWorkers, "Handshake worker goroutines")
	f.IntVar(&cfg.NegotiationQueue, "queue", cfg.NegotiationQueue, "Pending handshakes before refusing")
	f.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Open connection cap, 0 = unlimited")
	f.Int64Var(&cfg.MaxFramePayload, "max-frame", cfg.MaxFramePayload, "Largest accepted frame payload")
	f.IntVar(&cfg.MaxFragments, "max-fragments", cfg.MaxFragments, "Frames per fragmented message")
	f.IntVar(&cfg.MaxMessageSize, "max-message", cfg.MaxMessageSize, "Largest reassembled message")

	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Admin listen address, empty disables")
	f.StringVar(&opts.logLevel, "log-level", opts.logLevel, "debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", opts.logFormat, "text or json")
	f.BoolVar(&opts.autoJoin, "auto-join", opts.autoJoin, "Join clients to the room named by their request path")

	return cmd
}

// newLogger builds the process logger from the --log-* flags.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	ho := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, ho)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, ho)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
}

// eventLogger traces every dispatched event at debug level.
func eventLogger(logger *slog.Logger) server.Middleware {
	return func(next server.Handler) server.Handler {
		return func(ev server.Event) {
			attrs := []any{"kind", ev.Kind.String(), "seq", ev.Seq}
			if ev.Conn != nil {
				attrs = append(attrs, "conn_id", ev.Conn.ID())
			}
			if ev.Err != nil {
				attrs = append(attrs, "err", ev.Err)
			}
			logger.Debug("event", attrs...)
			next(ev)
		}
	}
}

func runServe(ctx context.Context, cfg *server.Config, opts serveOptions, logOut io.Writer) error {
	logger, err := newLogger(logOut, opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	probes := control.NewDebugProbes()

	var srv *server.Server
	srvOpts := []server.Option{
		server.WithLogger(logger.With("component", "roomsock")),
		server.WithMetrics(control.NewMetrics(control.WithRegistry(reg))),
		server.WithDebugProbes(probes),
		server.WithMiddleware(eventLogger(logger)),
	}
	if opts.autoJoin {
		srvOpts = append(srvOpts, server.WithOnConnect(func(c *server.Client) {
			if p := room.Clean(c.Path()); p != room.Root {
				if _, err := srv.Route(c, p); err != nil {
					logger.Debug("auto-join skipped", "conn_id", c.ID(), "path", p, "err", err)
				}
			}
		}))
	}
	srv, err = server.New(cfg, srvOpts...)
	if err != nil {
		return err
	}
	srv.Dispatcher().OnMessage(newChat(srv, logger).onMessage)

	var admin *http.Server
	if opts.metricsAddr != "" {
		admin = &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           newAdminRouter(srv, reg, probes),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("admin listening", "addr", opts.metricsAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", "err", err)
			}
		}()
	}

	err = srv.Serve(ctx)
	if admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = admin.Shutdown(sctx)
	}
	return err
}
