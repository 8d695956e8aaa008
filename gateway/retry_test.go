package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gateway/dispatch"
	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
	"github.com/adamgarcia4/goLearning/gateway/wal"
)

type sent struct {
	id     protocol.CorrelationID
	worker membership.WorkerAddress
}

type retryFixture struct {
	log      *wal.Log
	registry *membership.Registry
	metrics  *metrics.Metrics
	sweeper  *RetrySweeper
	base     time.Time
	sent     []sent
	gaveUp   []wal.Entry
	sendErr  error
}

func newRetryFixture(t *testing.T, maxAttempts int) *retryFixture {
	t.Helper()
	f := &retryFixture{
		registry: membership.NewRegistry(),
		metrics:  metrics.New(),
		base:     time.Unix(1_700_000_000, 0),
	}

	// every log write happens one second after the previous
	tick := f.base
	log, err := wal.Open(wal.NewMemoryStorage(), wal.Options{Now: func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	f.log = log

	f.sweeper = NewRetrySweeper(log, dispatch.NewRoundRobin(f.registry), RetryOptions{
		Timeout:     5 * time.Second,
		Period:      time.Second,
		MaxAttempts: maxAttempts,
		Send: func(id protocol.CorrelationID, payload string, worker membership.WorkerAddress) error {
			if f.sendErr != nil {
				return f.sendErr
			}
			f.sent = append(f.sent, sent{id, worker})
			_, err := log.RecordAttempt(id, worker.String())
			return err
		},
		Exhausted: func(e wal.Entry) { f.gaveUp = append(f.gaveUp, e) },
		Metrics:   f.metrics,
	})
	return f
}

func (f *retryFixture) submit(t *testing.T, id protocol.CorrelationID) {
	t.Helper()
	require.NoError(t, f.log.Append(id, string(id)+";SALDO;alice;pw"))
}

func TestSweepLeavesFreshEntriesAlone(t *testing.T) {
	f := newRetryFixture(t, 0)
	f.registry.AddIfAbsent("w1")
	f.submit(t, "a")

	submitted, _ := f.log.Timestamp("a")
	assert.Equal(t, 0, f.sweeper.Sweep(submitted.Add(5*time.Second)))
	assert.Empty(t, f.sent)
}

func TestSweepResendsOverdueEntriesInRotation(t *testing.T) {
	f := newRetryFixture(t, 0)
	f.registry.AddIfAbsent("w1")
	f.registry.AddIfAbsent("w2")
	f.submit(t, "a")
	f.submit(t, "b")
	f.submit(t, "c")

	// a and b are overdue, c is not
	c, _ := f.log.Timestamp("c")
	assert.Equal(t, 2, f.sweeper.Sweep(c.Add(5*time.Second)))
	assert.Equal(t, []sent{{"a", "w1"}, {"b", "w2"}}, f.sent)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Retries))

	// overdue entries keep being resent until they are acked
	require.NoError(t, f.log.SetStatus("a", wal.StatusAcked, "OK;feito"))
	f.sent = nil
	assert.Equal(t, 2, f.sweeper.Sweep(c.Add(10*time.Second)))
	assert.Equal(t, []sent{{"b", "w1"}, {"c", "w2"}}, f.sent)
}

func TestSweepWithoutWorkersKeepsEntriesPending(t *testing.T) {
	f := newRetryFixture(t, 0)
	f.submit(t, "a")

	a, _ := f.log.Timestamp("a")
	assert.Equal(t, 0, f.sweeper.Sweep(a.Add(time.Minute)))
	assert.Equal(t, 1, f.log.PendingCount())

	f.registry.AddIfAbsent("w1")
	assert.Equal(t, 1, f.sweeper.Sweep(a.Add(time.Minute)))
}

func TestSweepExhaustsEntries(t *testing.T) {
	f := newRetryFixture(t, 2)
	f.registry.AddIfAbsent("w1")
	f.submit(t, "a")
	_, err := f.log.RecordAttempt("a", "w1")
	require.NoError(t, err)

	a, _ := f.log.Timestamp("a")
	now := a.Add(time.Minute)
	assert.Equal(t, 1, f.sweeper.Sweep(now))
	assert.Equal(t, 0, f.sweeper.Sweep(now))

	require.Len(t, f.gaveUp, 1)
	assert.Equal(t, protocol.CorrelationID("a"), f.gaveUp[0].ID)
	assert.Equal(t, 2, f.gaveUp[0].Attempts)

	e, ok := f.log.Get("a")
	require.True(t, ok)
	assert.Equal(t, wal.StatusFailed, e.Status)
	assert.Equal(t, exhaustedResult, e.Result)
	assert.Equal(t, 0, f.log.PendingCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Exhausted))
}

func TestSweepSurvivesSendErrors(t *testing.T) {
	f := newRetryFixture(t, 0)
	f.registry.AddIfAbsent("w1")
	f.submit(t, "a")
	f.sendErr = errors.New("network is unreachable")

	a, _ := f.log.Timestamp("a")
	assert.Equal(t, 0, f.sweeper.Sweep(a.Add(time.Minute)))
	assert.Equal(t, 1, f.log.PendingCount())
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.Retries))
}

func TestExhaustSkipsEntriesAckedMeanwhile(t *testing.T) {
	f := newRetryFixture(t, 1)
	f.registry.AddIfAbsent("w1")
	f.submit(t, "a")

	stale := f.log.ListPending()[0]
	require.NoError(t, f.log.SetStatus("a", wal.StatusAcked, "OK;feito"))

	f.sweeper.exhaust(stale)
	assert.Empty(t, f.gaveUp)
	status, _ := f.log.Status("a")
	assert.Equal(t, wal.StatusAcked, status)
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.Exhausted))
}
