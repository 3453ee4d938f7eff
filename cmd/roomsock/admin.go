// File: cmd/roomsock/admin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/momentics/roomsock/control"
	"github.com/momentics/roomsock/room"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sugawarayuuta/sonnet"
)

// roomLister is the part of the server the admin endpoints read.
type roomLister interface {
	Rooms() *room.Directory
	Len() int
}

// newAdminRouter serves metrics, health and room listings.
func newAdminRouter(srv roomLister, gatherer prometheus.Gatherer, probes *control.DebugProbes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, srv.Rooms().Rooms())
	})
	r.Get("/rooms/*", func(w http.ResponseWriter, r *http.Request) {
		rm, ok := srv.Rooms().Lookup(chi.URLParam(r, "*"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, room.Info{Path: rm.Name(), Members: rm.Len()})
	})
	r.Get("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, probes.DumpState())
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := sonnet.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
