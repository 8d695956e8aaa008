package membership

/*
Membership answers two questions for the gateway:
 1. Which workers are alive? (Registry + last-seen table)
 2. Which one serves the next request? (rotation cursor)

Liveness is heartbeat driven. A worker joins the moment its first heartbeat
arrives and leaves when the sweeper notices that its last heartbeat is older
than the staleness window. Nothing is persisted: after a restart the set is
rebuilt from live heartbeats.
*/

import (
	"errors"
	"time"
)

// ErrNoWorkers is returned when a rotation index is requested from an empty registry.
var ErrNoWorkers = errors.New("no live workers")

// WorkerAddress is the host:port endpoint of one backend worker.
type WorkerAddress string

func (a WorkerAddress) String() string {
	return string(a)
}

// WorkerSnapshot is a copy of one registry entry, safe to hand out.
type WorkerSnapshot struct {
	Address  WorkerAddress `json:"address"`
	LastSeen time.Time     `json:"last_seen"`
}

// EventKind tells a membership observer what happened.
type EventKind int

const (
	EventJoin EventKind = iota
	EventLeave
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	}
	return "unknown"
}

// Event is published on every membership change.
type Event struct {
	Kind    EventKind
	Address WorkerAddress
	Live    int
}

// Observer is notified after the registry applied a change.
type Observer func(Event)
