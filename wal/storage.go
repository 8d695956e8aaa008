package wal

import "sync"

// Storage is the stable, append-only home of the log records.
type Storage interface {
	// Append durably adds rec at the tail.
	Append(rec Record) error

	// Load returns every record in append order.
	Load() ([]Record, error)

	// Truncate drops every record.
	Truncate() error

	Close() error
}

// MemoryStorage keeps records in memory. Nothing survives a restart.
type MemoryStorage struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStorage) Load() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *MemoryStorage) Truncate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
