// Package dispatch picks the worker that serves the next request.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/adamgarcia4/goLearning/gateway/membership"
)

// ErrNoCapacity means no live worker could be selected.
var ErrNoCapacity = errors.New("no live worker available")

// Selector chooses a worker for one request.
type Selector interface {
	SelectWorker() (membership.WorkerAddress, error)
}

// RoundRobin cycles over the registry's current live set in insertion order.
// Membership changes mid-rotation may skip or repeat an address once.
type RoundRobin struct {
	registry *membership.Registry
}

// NewRoundRobin creates a round robin selector over registry
func NewRoundRobin(registry *membership.Registry) *RoundRobin {
	return &RoundRobin{registry: registry}
}

// SelectWorker returns the next worker or ErrNoCapacity when none is alive.
func (r *RoundRobin) SelectWorker() (membership.WorkerAddress, error) {
	addr, err := r.registry.Next()
	if errors.Is(err, membership.ErrNoWorkers) {
		return "", ErrNoCapacity
	}
	if err != nil {
		return "", fmt.Errorf("select worker: %w", err)
	}
	return addr, nil
}
