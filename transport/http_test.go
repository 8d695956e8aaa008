package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/wal"
)

type staticWorkers []membership.WorkerSnapshot

func (s staticWorkers) Workers() []membership.WorkerSnapshot { return s }

type staticPending []wal.Entry

func (s staticPending) ListPending() []wal.Entry { return s }

func serve(h *HTTP, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h := NewHTTP("127.0.0.1:0", prometheus.NewRegistry(), staticWorkers{}, nil)
	rec := serve(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"live_workers":0}`, rec.Body.String())

	h = NewHTTP("127.0.0.1:0", prometheus.NewRegistry(), staticWorkers{{Address: "127.0.0.1:9001"}}, nil)
	rec = serve(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"live_workers":1}`, rec.Body.String())
}

func TestViews(t *testing.T) {
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	workers := staticWorkers{
		{Address: "127.0.0.1:9001", LastSeen: seen},
		{Address: "127.0.0.1:9002", LastSeen: seen},
	}
	pending := staticPending{{ID: "abc", Payload: "abc;SALDO;alice;pw", Status: wal.StatusPending, Attempts: 2}}
	h := NewHTTP("127.0.0.1:0", prometheus.NewRegistry(), workers, pending)

	rec := serve(h, http.MethodGet, "/v1/workers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var gotWorkers []membership.WorkerSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gotWorkers))
	assert.Equal(t, []membership.WorkerSnapshot(workers), gotWorkers)

	rec = serve(h, http.MethodGet, "/v1/pending")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0]["id"])
	assert.Equal(t, "pending", entries[0]["status"])
	assert.Equal(t, float64(2), entries[0]["attempts"])
}

func TestPendingWithoutLog(t *testing.T) {
	h := NewHTTP("127.0.0.1:0", prometheus.NewRegistry(), staticWorkers{}, nil)
	rec := serve(h, http.MethodGet, "/v1/pending")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMetricsAndMethods(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	h := NewHTTP("127.0.0.1:0", reg, staticWorkers{}, nil)
	rec := serve(h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_total 3")

	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPost, "/v1/workers").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/nope").Code)
}

func TestServeBeforeListen(t *testing.T) {
	h := NewHTTP("127.0.0.1:0", prometheus.NewRegistry(), staticWorkers{}, nil)
	assert.Nil(t, h.Addr())
	assert.Error(t, h.Serve())
}
