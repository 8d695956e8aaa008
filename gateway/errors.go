package gateway

import "errors"

var (
	ErrUnknownTransport       = errors.New("unknown transport")
	ErrAddressRequired        = errors.New("address is required")
	ErrInvalidPort            = errors.New("invalid port")
	ErrInvalidStalenessWindow = errors.New("staleness window must be positive")
	ErrInvalidSweepInterval   = errors.New("sweep interval must be positive")
	ErrNegativeTimeout        = errors.New("timeouts must not be negative")
	ErrNegativeLimit          = errors.New("limits must not be negative")
	ErrInvalidRetry           = errors.New("retry interval and timeout must be positive")
	ErrInvalidDatagramSize    = errors.New("max datagram size must be positive")
	ErrWALPathRequired        = errors.New("wal path is required")
	ErrUnknownWALBackend      = errors.New("unknown wal backend")

	ErrAlreadyStarted = errors.New("gateway already started")
	ErrNotStarted     = errors.New("gateway not started")
)

// errWorker wraps transport failures while talking to a worker.
var errWorker = errors.New("worker unreachable")
