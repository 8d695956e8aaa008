package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/dispatch"
	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
	"github.com/adamgarcia4/goLearning/gateway/wal"
)

// exhaustedResult is stored on WAL entries that ran out of attempts.
const exhaustedResult = "retries exhausted"

// RetryOptions configures a RetrySweeper
type RetryOptions struct {
	// Timeout is how long an entry may stay pending since submission before it is resent.
	Timeout time.Duration
	Period  time.Duration
	// MaxAttempts fails an entry once it was sent this many times; 0 retries forever.
	MaxAttempts int

	Send      func(id protocol.CorrelationID, payload string, worker membership.WorkerAddress) error
	Exhausted func(e wal.Entry)
	Metrics   *metrics.Metrics
}

// RetrySweeper resends WAL entries that are still pending after the retry
// timeout, each time to the next worker in the rotation. The submission time
// is never reset, so once overdue an entry is resent on every pass until an
// ACK arrives or its attempts are exhausted. Delivery is at least once: when
// only the ACK was lost the worker executes the request again, under the same ID.
type RetrySweeper struct {
	log      *wal.Log
	selector dispatch.Selector
	opts     RetryOptions
}

// NewRetrySweeper creates a retry sweeper over log
func NewRetrySweeper(log *wal.Log, selector dispatch.Selector, opts RetryOptions) *RetrySweeper {
	return &RetrySweeper{log: log, selector: selector, opts: opts}
}

// Run sweeps on every tick until ctx is cancelled
func (r *RetrySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Sweep runs one pass at the given instant and returns how many entries were resent.
func (r *RetrySweeper) Sweep(now time.Time) int {
	resent := 0
	for _, e := range r.log.ListPending() {
		// ListPending is oldest first, so the first fresh entry ends the pass.
		if now.Sub(e.SubmittedAt) <= r.opts.Timeout {
			break
		}

		if r.opts.MaxAttempts > 0 && e.Attempts >= r.opts.MaxAttempts {
			r.exhaust(e)
			continue
		}

		worker, err := r.selector.SelectWorker()
		if err != nil {
			logger.Warnf("[retry] %d requests overdue, no live worker", r.log.PendingCount())
			return resent
		}

		logger.Warnf("[retry] resending %s to %s (pending for %v)", e.ID, worker, now.Sub(e.SubmittedAt).Round(time.Millisecond))
		if err := r.opts.Send(e.ID, e.Payload, worker); err != nil {
			logger.Warnf("[retry] %v", err)
			continue
		}
		if r.opts.Metrics != nil {
			r.opts.Metrics.Retries.Inc()
		}
		resent++
	}
	return resent
}

func (r *RetrySweeper) exhaust(e wal.Entry) {
	err := r.log.SetStatus(e.ID, wal.StatusFailed, exhaustedResult)
	if errors.Is(err, wal.ErrTerminal) {
		// acked since the pending list was taken
		logger.Debugf("[retry] %v", err)
		return
	}
	if err != nil {
		logger.Errorf("[retry] failed to mark %s failed: %v", e.ID, err)
		if status, _ := r.log.Status(e.ID); status != wal.StatusFailed {
			return
		}
	}
	logger.Errorf("[retry] giving up on %s after %d attempts", e.ID, e.Attempts)
	if r.opts.Metrics != nil {
		r.opts.Metrics.Exhausted.Inc()
	}
	if r.opts.Exhausted != nil {
		r.opts.Exhausted(e)
	}
}
