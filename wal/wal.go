// Package wal is the write-ahead log of in-flight UDP requests.
//
// Every change is first appended to stable storage and only then applied to
// the in-memory tables, which are the authoritative live view consulted on
// the hot path. Replaying the storage on start rebuilds those tables, so
// requests that were in flight when the process stopped are retried.
package wal

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/wangjia184/sortedset"

	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

var (
	ErrUnknownID   = errors.New("unknown correlation id")
	ErrDuplicateID = errors.New("correlation id already logged")
	ErrClosed      = errors.New("write-ahead log closed")
	// ErrTerminal rejects status changes of a failed entry, and failing an entry that is no longer pending.
	ErrTerminal = errors.New("request already settled")
)

// Options controls how a Log is opened.
type Options struct {
	// Replay rebuilds the live tables from storage; when false the storage is truncated.
	Replay bool

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Log is the write-ahead log. It is safe for concurrent use by the receive
// loop and the retry sweeper.
type Log struct {
	mu      sync.RWMutex
	storage Storage
	entries map[protocol.CorrelationID]*Entry

	// pending indexes StatusPending entries by submission time.
	pending *sortedset.SortedSet

	now    func() time.Time
	closed bool
}

// Open wraps storage in a Log.
func Open(storage Storage, opts Options) (*Log, error) {
	l := &Log{
		storage: storage,
		entries: make(map[protocol.CorrelationID]*Entry),
		pending: sortedset.New(),
		now:     opts.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}

	if !opts.Replay {
		if err := storage.Truncate(); err != nil {
			return nil, fmt.Errorf("failed to reset wal: %w", err)
		}
		return l, nil
	}

	records, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to replay wal: %w", err)
	}
	for _, rec := range records {
		if err := l.apply(rec); err != nil {
			logger.Warnf("[wal] replay: %v", err)
		}
	}
	if len(records) > 0 {
		logger.Printf("[wal] replayed %d records, %d requests pending", len(records), l.pending.GetCount())
	}
	return l, nil
}

// Append logs a new request as pending and stamps its submission time.
func (l *Log) Append(id protocol.CorrelationID, payload string) error {
	return l.write(Record{Kind: RecordSubmit, ID: id, Payload: payload})
}

// SetReplyAddress records where the reply for id must be sent.
func (l *Log) SetReplyAddress(id protocol.CorrelationID, addr string) error {
	return l.write(Record{Kind: RecordReplyTo, ID: id, ReplyTo: addr})
}

// SetStatus moves id to status. Acking twice is harmless; StatusFailed is
// terminal and only reachable from StatusPending (ErrTerminal otherwise).
// When storage rejects the record the live tables are still updated, since
// the caller has already acted on the new status, and the error is returned.
func (l *Log) SetStatus(id protocol.CorrelationID, status Status, result string) error {
	return l.write(Record{Kind: RecordStatus, ID: id, Status: status, Result: result})
}

// RecordAttempt notes that id was sent to worker and returns the attempt count.
func (l *Log) RecordAttempt(id protocol.CorrelationID, worker string) (int, error) {
	if err := l.write(Record{Kind: RecordAttempt, ID: id, Worker: worker}); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[id].Attempts, nil
}

func (l *Log) write(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	e, known := l.entries[rec.ID]
	switch {
	case rec.Kind == RecordSubmit && known:
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	case rec.Kind != RecordSubmit && !known:
		return fmt.Errorf("%w: %s", ErrUnknownID, rec.ID)
	case rec.Kind == RecordStatus && e.Status == StatusFailed:
		return fmt.Errorf("%w: %s failed", ErrTerminal, rec.ID)
	case rec.Kind == RecordStatus && rec.Status == StatusFailed && e.Status != StatusPending:
		return fmt.Errorf("%w: %s is %s", ErrTerminal, rec.ID, e.Status)
	}

	rec.At = l.now()
	if err := l.storage.Append(rec); err != nil {
		err = fmt.Errorf("failed to log %s for %s: %w", rec.Kind, rec.ID, err)
		if rec.Kind == RecordStatus {
			return errors.Join(err, l.apply(rec))
		}
		return err
	}
	return l.apply(rec)
}

// apply mutates the live tables. Caller holds the write lock (or is replaying).
func (l *Log) apply(rec Record) error {
	if rec.Kind == RecordSubmit {
		e := &Entry{
			ID:          rec.ID,
			Payload:     rec.Payload,
			Status:      StatusPending,
			SubmittedAt: rec.At,
		}
		l.entries[rec.ID] = e
		l.pending.AddOrUpdate(string(rec.ID), sortedset.SCORE(rec.At.UnixNano()), e)
		return nil
	}

	e, ok := l.entries[rec.ID]
	if !ok {
		return fmt.Errorf("%w: %s record for %s", ErrUnknownID, rec.Kind, rec.ID)
	}

	switch rec.Kind {
	case RecordReplyTo:
		e.ReplyTo = rec.ReplyTo
	case RecordAttempt:
		e.Attempts++
		e.LastAttempt = rec.At
		e.LastWorker = rec.Worker
	case RecordStatus:
		e.Status = rec.Status
		e.Result = rec.Result
		if rec.Status == StatusPending {
			l.pending.AddOrUpdate(string(rec.ID), sortedset.SCORE(e.SubmittedAt.UnixNano()), e)
		} else {
			l.pending.Remove(string(rec.ID))
		}
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	return nil
}

// ReplyAddress returns the client address recorded for id.
func (l *Log) ReplyAddress(id protocol.CorrelationID) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok || e.ReplyTo == "" {
		return "", false
	}
	return e.ReplyTo, true
}

// Status returns the current status of id.
func (l *Log) Status(id protocol.CorrelationID) (Status, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return 0, false
	}
	return e.Status, true
}

// Timestamp returns the submission time of id.
func (l *Log) Timestamp(id protocol.CorrelationID) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.SubmittedAt, true
}

// Get returns a copy of the entry for id.
func (l *Log) Get(id protocol.CorrelationID) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ListPending returns copies of the pending entries, oldest submission first.
func (l *Log) ListPending() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pending.GetCount() == 0 {
		return nil
	}

	nodes := l.pending.GetByScoreRange(sortedset.SCORE(math.MinInt64), sortedset.SCORE(math.MaxInt64), nil)
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, *n.Value.(*Entry))
	}
	return out
}

// PendingCount returns how many entries are still pending.
func (l *Log) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending.GetCount()
}

// Len returns the number of logged requests.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close closes the underlying storage. Further writes fail with ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.storage.Close()
}
