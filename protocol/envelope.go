package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidEnvelope  = errors.New("invalid envelope")
	ErrInvalidAck       = errors.New("invalid worker response")
	ErrInvalidHeartbeat = errors.New("invalid heartbeat")
)

// CorrelationID links a forwarded request to the worker's reply.
type CorrelationID string

// NewCorrelationID mints a fresh random ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// Envelope is a client request prefixed with the gateway's correlation ID.
type Envelope struct {
	ID      CorrelationID
	Request string
}

// Wrap builds the worker-bound envelope for req.
func Wrap(id CorrelationID, req Request) Envelope {
	return Envelope{ID: id, Request: req.Raw}
}

// String renders "<id>;<request>".
func (e Envelope) String() string {
	return string(e.ID) + Separator + e.Request
}

// ParseEnvelope splits a worker-side line into its ID and request text.
func ParseEnvelope(line string) (Envelope, error) {
	line = strings.TrimSpace(line)
	id, req, ok := strings.Cut(line, Separator)
	if !ok || id == "" || req == "" {
		return Envelope{}, fmt.Errorf("%w: %q", ErrInvalidEnvelope, line)
	}
	return Envelope{ID: CorrelationID(id), Request: req}, nil
}

// Status is the outcome reported by a worker.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "Falhou"
)

const ackKeyword = "ACK"

// Ack is a worker reply: "<id>;ACK;<OK|Falhou>;<body>".
type Ack struct {
	ID     CorrelationID
	Status Status
	Body   string
}

// Succeeded reports whether the worker executed the operation.
func (a Ack) Succeeded() bool {
	return a.Status == StatusOK
}

func (a Ack) String() string {
	return strings.Join([]string{string(a.ID), ackKeyword, string(a.Status), a.Body}, Separator)
}

// ParseAck validates a worker reply. Anything other than exactly four fields
// with the ACK keyword and a known status is ErrInvalidAck.
func ParseAck(line string) (Ack, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, Separator)
	if len(fields) != 4 || fields[1] != ackKeyword || fields[0] == "" {
		return Ack{}, fmt.Errorf("%w: %q", ErrInvalidAck, line)
	}

	status := Status(fields[2])
	if status != StatusOK && status != StatusFailed {
		return Ack{}, fmt.Errorf("%w: unknown status %q", ErrInvalidAck, fields[2])
	}

	return Ack{
		ID:     CorrelationID(fields[0]),
		Status: status,
		Body:   fields[3],
	}, nil
}

// HeartbeatMessage is the literal liveness announcement.
const HeartbeatMessage = "HEARTBEAT"

// IsDatagramHeartbeat reports whether a UDP payload is a heartbeat.
func IsDatagramHeartbeat(payload []byte) bool {
	return strings.TrimSpace(string(payload)) == HeartbeatMessage
}

// StreamHeartbeat renders the TCP heartbeat line for a worker serving on port.
func StreamHeartbeat(port int) string {
	return HeartbeatMessage + Separator + strconv.Itoa(port)
}

// ParseStreamHeartbeat extracts the announced worker port from "HEARTBEAT;<port>".
func ParseStreamHeartbeat(line string) (int, error) {
	line = strings.TrimSpace(line)
	keyword, rawPort, ok := strings.Cut(line, Separator)
	if !ok || keyword != HeartbeatMessage {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHeartbeat, line)
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: bad port %q", ErrInvalidHeartbeat, rawPort)
	}
	return port, nil
}
