// Package transport exposes a gateway's admin surfaces: a gRPC health
// service and an HTTP endpoint with metrics and read-only views.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/wal"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerSource lists live workers
type WorkerSource interface {
	Workers() []membership.WorkerSnapshot
}

// PendingSource lists unacknowledged requests
type PendingSource interface {
	ListPending() []wal.Entry
}

// HTTP is the admin HTTP server.
type HTTP struct {
	addr    string
	srv     *http.Server
	lis     net.Listener
	workers WorkerSource
	pending PendingSource
}

// NewHTTP builds the admin router. pending may be nil for transports without a WAL.
func NewHTTP(addr string, gatherer prometheus.Gatherer, workers WorkerSource, pending PendingSource) *HTTP {
	h := &HTTP{
		addr:    addr,
		workers: workers,
		pending: pending,
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/v1/workers", h.listWorkers).Methods(http.MethodGet)
	r.HandleFunc("/v1/pending", h.listPending).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	h.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// Handler exposes the router, mostly for tests.
func (h *HTTP) Handler() http.Handler {
	return h.srv.Handler
}

// Listen binds the admin port
func (h *HTTP) Listen() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	h.lis = lis
	return nil
}

// Serve blocks until Shutdown
func (h *HTTP) Serve() error {
	if h.lis == nil {
		return errors.New("http admin: Listen not called")
	}
	err := h.srv.Serve(h.lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address, nil before Listen
func (h *HTTP) Addr() net.Addr {
	if h.lis == nil {
		return nil
	}
	return h.lis.Addr()
}

func (h *HTTP) Shutdown(ctx context.Context) error {
	err := h.srv.Shutdown(ctx)
	logger.Printf("[admin] http server on %s stopped", h.addr)
	return err
}

func (h *HTTP) listWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.workers.Workers())
}

func (h *HTTP) listPending(w http.ResponseWriter, r *http.Request) {
	if h.pending == nil {
		writeJSON(w, http.StatusOK, []wal.Entry{})
		return
	}
	writeJSON(w, http.StatusOK, h.pending.ListPending())
}

func (h *HTTP) healthz(w http.ResponseWriter, r *http.Request) {
	live := len(h.workers.Workers())
	status := http.StatusOK
	if live == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]int{"live_workers": live})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[admin] failed to encode response: %v", err)
	}
}
