package wal

import (
	"fmt"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

// Status is the lifecycle state of a logged request.
type Status int

const (
	// StatusPending: forwarded (or waiting for capacity), no reply yet.
	StatusPending Status = iota
	// StatusAcked: a worker reply was received and relayed.
	StatusAcked
	// StatusFailed: retries exhausted; terminal.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAcked:
		return "acked"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText lets Status render as a word in JSON views.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func parseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "acked":
		return StatusAcked, nil
	case "failed":
		return StatusFailed, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// Entry is the live view of one logged request.
type Entry struct {
	ID          protocol.CorrelationID `json:"id"`
	Payload     string                 `json:"payload"`
	Status      Status                 `json:"status"`
	Result      string                 `json:"result,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	ReplyTo     string                 `json:"reply_to,omitempty"`
	Attempts    int                    `json:"attempts"`
	LastAttempt time.Time              `json:"last_attempt,omitempty"`
	LastWorker  string                 `json:"last_worker,omitempty"`
}

// RecordKind identifies what a log record changes.
type RecordKind string

const (
	RecordSubmit  RecordKind = "submit"
	RecordReplyTo RecordKind = "reply_to"
	RecordAttempt RecordKind = "attempt"
	RecordStatus  RecordKind = "status"
)

// Record is one append-only log line. Replaying every record in order
// rebuilds the live entry table.
type Record struct {
	Kind    RecordKind
	ID      protocol.CorrelationID
	Payload string
	ReplyTo string
	Status  Status
	Result  string
	Worker  string
	At      time.Time
}
