package worker

import "errors"

var (
	ErrIDRequired               = errors.New("worker ID is required")
	ErrUnknownTransport         = errors.New("unknown worker transport")
	ErrAddressRequired          = errors.New("address is required")
	ErrNoCandidatePorts         = errors.New("at least one candidate port is required")
	ErrGatewayRequired          = errors.New("gateway heartbeat address is required")
	ErrInvalidHeartbeatInterval = errors.New("heartbeat interval must be positive")
	ErrNoFreePort               = errors.New("no candidate port could be bound")
	ErrAlreadyStarted           = errors.New("worker already started")
	ErrNotStarted               = errors.New("worker not started")
)
