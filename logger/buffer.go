package logger

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry is one decoded log line
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Source    string
	Message   string
}

// LogBuffer keeps the most recent entries in a fixed-size ring.
type LogBuffer struct {
	mu   sync.RWMutex
	ring []LogEntry
	head int // next write position
	size int
}

// NewLogBuffer creates a buffer holding at most capacity entries
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LogBuffer{ring: make([]LogEntry, capacity)}
}

// Add appends an entry, overwriting the oldest one when full.
func (lb *LogBuffer) Add(level, source, message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.ring[lb.head] = LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
	}
	lb.head = (lb.head + 1) % len(lb.ring)
	if lb.size < len(lb.ring) {
		lb.size++
	}
}

// GetRecent returns up to count of the newest entries, oldest first.
func (lb *LogBuffer) GetRecent(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.lastLocked(count)
}

// GetAll returns every buffered entry, oldest first.
func (lb *LogBuffer) GetAll() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.lastLocked(lb.size)
}

func (lb *LogBuffer) lastLocked(count int) []LogEntry {
	if count > lb.size {
		count = lb.size
	}
	if count < 0 {
		count = 0
	}

	out := make([]LogEntry, count)
	start := lb.head - count
	if start < 0 {
		start += len(lb.ring)
	}
	for i := range out {
		out[i] = lb.ring[(start+i)%len(lb.ring)]
	}
	return out
}

func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.size
}

// Clear drops every entry
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	clear(lb.ring)
	lb.head, lb.size = 0, 0
}

// FormatLogEntry renders an entry for the TUI log pane.
func FormatLogEntry(entry LogEntry) string {
	ts := entry.Timestamp.Format("15:04:05")
	if entry.Level == "" {
		return fmt.Sprintf("[%s] %s: %s", ts, entry.Source, entry.Message)
	}
	return fmt.Sprintf("[%s] %-5s %s: %s", ts, entry.Level, entry.Source, entry.Message)
}
