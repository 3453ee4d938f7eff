package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/momentics/roomsock/control"
	"github.com/momentics/roomsock/protocol"
	"github.com/momentics/roomsock/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, version+"\n", out.String())
}

func TestServeFlagsMapOntoConfig(t *testing.T) {
	cmd := serveCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--addr", "127.0.0.1:7000", "--max-connections", "5", "--strict-handshake"}))
	v, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", v)
	n, err := cmd.Flags().GetInt("max-connections")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestServeRejectsBadLogFlags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"serve", "--log-format", "xml", "--addr", "127.0.0.1:0"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log format")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger(io.Discard, "loud", "text")
	assert.Error(t, err)
}

func TestAdminRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	probes := control.NewDebugProbes()
	srv, err := server.New(nil,
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		server.WithMetrics(control.NewMetrics(control.WithRegistry(reg))),
		server.WithDebugProbes(probes),
	)
	require.NoError(t, err)
	_, err = srv.Route(&fakeConn{id: "a"}, "/lobby/eu")
	require.NoError(t, err)
	h := newAdminRouter(srv, reg, probes)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get("/rooms")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var rooms []map[string]any
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &rooms))
	paths := []string{}
	for _, r := range rooms {
		paths = append(paths, r["path"].(string))
	}
	assert.Equal(t, []string{"/", "/lobby", "/lobby/eu"}, paths)

	rec = get("/rooms/lobby/eu")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path":"/lobby/eu","members":1}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, get("/rooms/nowhere").Code)

	rec = get("/debug/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connections":0`)

	n, err := srv.BroadcastPath("/lobby", protocol.NewTextFrame("x"), true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rec = get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "roomsock_broadcast_fanout_count 1"))
}
