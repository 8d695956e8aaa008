package worker

import (
	"errors"
	"fmt"
	"sync"
)

// Manager manages multiple stub workers
type Manager struct {
	template Config
	workers  []*Worker // maintain order with slice
	mu       sync.RWMutex
	nextID   int // monotonically increasing counter for unique worker IDs
}

// NewManager creates a manager whose workers are built from template
func NewManager(template Config) *Manager {
	return &Manager{
		template: template,
		workers:  make([]*Worker, 0),
		nextID:   1,
	}
}

// CreateWorker creates and starts a new worker
func (m *Manager) CreateWorker() (*Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	config := m.template
	config.ID = fmt.Sprintf("worker-%d", m.nextID)
	config.CandidatePorts = append([]int(nil), m.template.CandidatePorts...)
	m.nextID++

	w, err := New(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	m.workers = append(m.workers, w)
	return w, nil
}

// DeleteWorker stops and removes a worker by its index in the list
func (m *Manager) DeleteWorker(index int) error {
	m.mu.Lock()

	if index < 0 || index >= len(m.workers) {
		m.mu.Unlock()
		return fmt.Errorf("invalid worker index: %d", index)
	}

	w := m.workers[index]
	m.workers = append(m.workers[:index], m.workers[index+1:]...)
	m.mu.Unlock()

	if err := w.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
		return fmt.Errorf("failed to stop %s: %w", w.ID(), err)
	}
	return nil
}

// GetWorkers returns a list of all workers (maintains order)
func (m *Manager) GetWorkers() []*Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	workers := make([]*Worker, len(m.workers))
	copy(workers, m.workers)
	return workers
}

// StopAll stops and removes all workers
func (m *Manager) StopAll() error {
	m.mu.Lock()
	workers := m.workers
	m.workers = make([]*Worker, 0)
	m.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.Stop(); err != nil && !errors.Is(err, ErrNotStarted) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
