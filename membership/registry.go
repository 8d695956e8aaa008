package membership

import (
	"sync"
	"sync/atomic"
	"time"
)

// Registry is the ordered set of live workers plus the round robin cursor and
// the last heartbeat seen from each worker.
//
// Insertion order is rotation order. Mutations hold the write lock; taking a
// rotation index holds the read lock and advances the cursor atomically, so
// concurrent dispatches never block each other but never observe a size that
// is being changed underneath them.
type Registry struct {
	mu       sync.RWMutex
	workers  []WorkerAddress
	lastSeen map[WorkerAddress]time.Time

	// cursor is always within [-1, len(workers)-1]
	cursor atomic.Int64

	observers []Observer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	r := &Registry{
		lastSeen: make(map[WorkerAddress]time.Time),
	}
	r.cursor.Store(-1)
	return r
}

// Subscribe registers an observer for join and leave events.
// Observers run synchronously after the lock is released.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// AddIfAbsent appends addr to the rotation and reports whether it was new.
func (r *Registry) AddIfAbsent(addr WorkerAddress) bool {
	r.mu.Lock()
	added := r.addLocked(addr)
	live := len(r.workers)
	r.mu.Unlock()

	if added {
		r.notify(Event{Kind: EventJoin, Address: addr, Live: live})
	}
	return added
}

// Heartbeat records a liveness announcement: the worker is added when unknown
// and its last-seen timestamp is refreshed unconditionally.
func (r *Registry) Heartbeat(addr WorkerAddress, now time.Time) bool {
	r.mu.Lock()
	joined := r.addLocked(addr)
	r.lastSeen[addr] = now
	live := len(r.workers)
	r.mu.Unlock()

	if joined {
		r.notify(Event{Kind: EventJoin, Address: addr, Live: live})
	}
	return joined
}

func (r *Registry) addLocked(addr WorkerAddress) bool {
	for _, w := range r.workers {
		if w == addr {
			return false
		}
	}
	r.workers = append(r.workers, addr)
	return true
}

// Remove drops addr and its heartbeat record.
func (r *Registry) Remove(addr WorkerAddress) bool {
	r.mu.Lock()
	removed := r.removeLocked([]WorkerAddress{addr})
	live := len(r.workers)
	r.mu.Unlock()

	for _, a := range removed {
		r.notify(Event{Kind: EventLeave, Address: a, Live: live})
	}
	return len(removed) == 1
}

// EvictStale removes every worker whose last heartbeat is older than window
// (or that has no heartbeat record at all) and returns the evicted addresses.
// The whole batch is applied under one lock.
func (r *Registry) EvictStale(now time.Time, window time.Duration) []WorkerAddress {
	r.mu.Lock()
	var stale []WorkerAddress
	for _, w := range r.workers {
		seen, ok := r.lastSeen[w]
		if !ok || now.Sub(seen) > window {
			stale = append(stale, w)
		}
	}
	removed := r.removeLocked(stale)
	live := len(r.workers)
	r.mu.Unlock()

	for _, a := range removed {
		r.notify(Event{Kind: EventLeave, Address: a, Live: live})
	}
	return removed
}

// removeLocked removes the given addresses and clamps the cursor to
// max(cursor-K, -1) where K is the number actually removed.
func (r *Registry) removeLocked(addrs []WorkerAddress) []WorkerAddress {
	if len(addrs) == 0 {
		return nil
	}

	drop := make(map[WorkerAddress]bool, len(addrs))
	for _, a := range addrs {
		drop[a] = true
	}

	kept := r.workers[:0:0]
	var removed []WorkerAddress
	for _, w := range r.workers {
		if drop[w] {
			removed = append(removed, w)
			delete(r.lastSeen, w)
			continue
		}
		kept = append(kept, w)
	}
	r.workers = kept

	cursor := r.cursor.Load() - int64(len(removed))
	if cursor < -1 || len(r.workers) == 0 {
		cursor = -1
	}
	r.cursor.Store(cursor)
	return removed
}

// NextIndex advances the cursor and returns it modulo the current size.
func (r *Registry) NextIndex() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextIndexLocked()
}

// Next advances the cursor and returns the worker it now points at.
func (r *Registry) Next() (WorkerAddress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, err := r.nextIndexLocked()
	if err != nil {
		return "", err
	}
	return r.workers[idx], nil
}

func (r *Registry) nextIndexLocked() (int, error) {
	size := int64(len(r.workers))
	if size == 0 {
		return -1, ErrNoWorkers
	}
	for {
		cur := r.cursor.Load()
		next := (cur + 1) % size
		if r.cursor.CompareAndSwap(cur, next) {
			return int(next), nil
		}
	}
}

// Snapshot returns the live workers in rotation order.
func (r *Registry) Snapshot() []WorkerAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerAddress, len(r.workers))
	copy(out, r.workers)
	return out
}

// Workers returns the live workers together with their last heartbeat.
func (r *Registry) Workers() []WorkerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerSnapshot, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, WorkerSnapshot{Address: w, LastSeen: r.lastSeen[w]})
	}
	return out
}

// LastSeen returns the last heartbeat recorded for addr.
func (r *Registry) LastSeen(addr WorkerAddress) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastSeen[addr]
	return t, ok
}

// Len returns the number of live workers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Cursor returns the current rotation cursor
func (r *Registry) Cursor() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.cursor.Load())
}

func (r *Registry) notify(e Event) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()

	for _, o := range observers {
		o(e)
	}
}
