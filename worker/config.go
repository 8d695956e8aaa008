package worker

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

// Transport is the wire a worker serves and heartbeats on.
type Transport string

const (
	// TransportUDP: envelopes and ACKs are datagrams; the bare heartbeat is
	// sent from the serving socket.
	TransportUDP Transport = "udp"
	// TransportTCP: one envelope line per connection; the heartbeat names the serving port.
	TransportTCP Transport = "tcp"
)

// Default configuration constants
const (
	DefaultAddress              = "127.0.0.1"
	DefaultGatewayHeartbeatAddr = "127.0.0.1:9007"
	DefaultHeartbeatInterval    = time.Second
)

// DefaultCandidatePorts are tried in order until one binds.
var DefaultCandidatePorts = []int{9001, 9002, 9003, 9004, 9005}

// Handler executes one request and returns the ACK status and body.
type Handler func(req protocol.Request) (protocol.Status, string)

// Config holds the configuration for a worker
type Config struct {
	ID        string
	Transport Transport

	// Server configuration
	Address        string
	CandidatePorts []int // a single 0 binds an ephemeral port

	// Heartbeat configuration
	GatewayHeartbeatAddr string
	HeartbeatInterval    time.Duration

	Handler Handler
	// Silent workers heartbeat and receive but never reply.
	Silent bool
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(id string, transport Transport) *Config {
	ports := make([]int, len(DefaultCandidatePorts))
	copy(ports, DefaultCandidatePorts)

	return &Config{
		ID:                   id,
		Transport:            transport,
		Address:              DefaultAddress,
		CandidatePorts:       ports,
		GatewayHeartbeatAddr: DefaultGatewayHeartbeatAddr,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		Handler:              EchoHandler,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.ID == "" {
		return ErrIDRequired
	}
	if c.Transport != TransportUDP && c.Transport != TransportTCP {
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
	}
	if c.Address == "" {
		return ErrAddressRequired
	}
	if len(c.CandidatePorts) == 0 {
		return ErrNoCandidatePorts
	}
	if c.GatewayHeartbeatAddr == "" {
		return ErrGatewayRequired
	}
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	return nil
}

func (c *Config) addressFor(port int) string {
	return net.JoinHostPort(c.Address, strconv.Itoa(port))
}

// EchoHandler acknowledges every well-formed request without executing it.
func EchoHandler(req protocol.Request) (protocol.Status, string) {
	return protocol.StatusOK, fmt.Sprintf("%s processada para %s", req.Op, req.User())
}
