package membership

import (
	"context"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/logger"
)

// Sweeper periodically evicts workers whose heartbeat went stale.
type Sweeper struct {
	registry *Registry
	window   time.Duration
	period   time.Duration
}

// NewSweeper creates a sweeper that runs every period and evicts workers
// silent for longer than window.
func NewSweeper(registry *Registry, window, period time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		window:   window,
		period:   period,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Sweep applies one eviction pass at the given instant.
func (s *Sweeper) Sweep(now time.Time) []WorkerAddress {
	evicted := s.registry.EvictStale(now, s.window)
	for _, addr := range evicted {
		logger.Printf("[membership] worker left %s (no heartbeat for %v)", addr, s.window)
	}
	return evicted
}
