// Package metrics holds the prometheus collectors exported by a gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "gateway"

// Request outcomes
const (
	OutcomeOK              = "ok"
	OutcomeFailed          = "failed"
	OutcomeRejected        = "rejected"
	OutcomeNoCapacity      = "no_capacity"
	OutcomeWorkerError     = "worker_error"
	OutcomeInvalidResponse = "invalid_response"
	OutcomeBadMethod       = "method_not_allowed"
	OutcomeQueued          = "queued"
)

// Metrics groups the collectors of one gateway. Each gateway owns its own
// prometheus registry so several can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	LiveWorkers    prometheus.Gauge
	WorkerEvents   *prometheus.CounterVec
	Requests       *prometheus.CounterVec
	ForwardLatency *prometheus.HistogramVec
	Replies        *prometheus.CounterVec
	Retries        prometheus.Counter
	Exhausted      prometheus.Counter
}

// New creates and registers the gateway collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		LiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_workers",
			Help:      "Workers currently in the rotation.",
		}),
		WorkerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_events_total",
			Help:      "Membership changes by kind (join, leave).",
		}, []string{"event"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Client requests by transport and outcome.",
		}, []string{"transport", "outcome"}),
		ForwardLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Worker round trip duration of synchronous transports.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_replies_total",
			Help:      "Worker ACKs by status.",
		}, []string{"status"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_retries_total",
			Help:      "Pending requests resent by the retry sweeper.",
		}),
		Exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_exhausted_total",
			Help:      "Pending requests that ran out of attempts.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		m.LiveWorkers,
		m.WorkerEvents,
		m.Requests,
		m.ForwardLatency,
		m.Replies,
		m.Retries,
		m.Exhausted,
	)
	return m
}

// RegisterPendingGauge exposes the WAL pending count through fn.
func (m *Metrics) RegisterPendingGauge(fn func() float64) error {
	return m.Registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wal_pending",
		Help:      "Requests logged and not yet acknowledged.",
	}, fn))
}

// Request counts one client request
func (m *Metrics) Request(transport, outcome string) {
	m.Requests.WithLabelValues(transport, outcome).Inc()
}
