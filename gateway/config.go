package gateway

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Transport selects the client protocol a gateway speaks.
type Transport string

const (
	TransportUDP  Transport = "udp"
	TransportTCP  Transport = "tcp"
	TransportHTTP Transport = "http"
	// TransportMux serves line TCP and HTTP clients on one port.
	TransportMux Transport = "mux"
)

// ParseTransport accepts the transport names used on the command line.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(s); t {
	case TransportUDP, TransportTCP, TransportHTTP, TransportMux:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransport, s)
}

// Streamed reports whether workers are reached over TCP connections.
func (t Transport) Streamed() bool {
	return t != TransportUDP
}

// Default configuration constants
const (
	DefaultAddress         = "127.0.0.1"
	DefaultDatagramPort    = 9000
	DefaultStreamPort      = 9050
	DefaultHeartbeatPort   = 9007
	DefaultWALPath         = "requestsUDP.log"
	DefaultMaxDatagramSize = 1024
	DefaultHealthService   = "gateway"
)

// WAL storage backends
const (
	WALBackendFile   = "file"
	WALBackendBolt   = "bolt"
	WALBackendMemory = "memory"
)

// WALConfig configures the write-ahead log of the UDP transport
type WALConfig struct {
	Backend    string `mapstructure:"backend"`
	Path       string `mapstructure:"path"`
	Replay     bool   `mapstructure:"replay"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// AdminConfig enables the admin surfaces. Empty addresses disable them.
type AdminConfig struct {
	HTTPAddr      string `mapstructure:"http_addr"`
	GRPCAddr      string `mapstructure:"grpc_addr"`
	HealthService string `mapstructure:"health_service"`
}

// Config holds the configuration for a gateway
type Config struct {
	Transport Transport `mapstructure:"transport"`

	// Client listener. Port 0 picks an ephemeral port.
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`

	// Heartbeat listener, bound on Address
	HeartbeatPort int `mapstructure:"heartbeat_port"`

	// Membership
	StalenessWindow time.Duration `mapstructure:"staleness_window"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`

	// Stream transports
	ForwardTimeout    time.Duration `mapstructure:"forward_timeout"`
	ClientReadTimeout time.Duration `mapstructure:"client_read_timeout"`
	CapacityBackoff   time.Duration `mapstructure:"capacity_backoff"`
	MaxInFlight       int           `mapstructure:"max_in_flight"`

	// Datagram transport
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	RetryTimeout    time.Duration `mapstructure:"retry_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	MaxDatagramSize int           `mapstructure:"max_datagram_size"`
	WAL             WALConfig     `mapstructure:"wal"`

	Admin AdminConfig `mapstructure:"admin"`

	LogLevel string `mapstructure:"log_level"`
}

// DefaultConfig returns the defaults for transport t
func DefaultConfig(t Transport) *Config {
	c := &Config{
		Transport:         t,
		Address:           DefaultAddress,
		Port:              DefaultStreamPort,
		HeartbeatPort:     DefaultHeartbeatPort,
		StalenessWindow:   3 * time.Second,
		SweepInterval:     time.Second,
		ForwardTimeout:    30 * time.Second,
		ClientReadTimeout: 30 * time.Second,
		CapacityBackoff:   time.Second,
		RetryInterval:     5 * time.Second,
		RetryTimeout:      5 * time.Second,
		MaxAttempts:       10,
		MaxDatagramSize:   DefaultMaxDatagramSize,
		WAL: WALConfig{
			Backend: WALBackendFile,
			Path:    DefaultWALPath,
		},
		Admin: AdminConfig{
			HealthService: DefaultHealthService,
		},
		LogLevel: "info",
	}
	if t == TransportUDP {
		c.Port = DefaultDatagramPort
		c.StalenessWindow = 5 * time.Second
	}
	return c
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if _, err := ParseTransport(string(c.Transport)); err != nil {
		return err
	}
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidPort, c.Port)
	}
	if c.HeartbeatPort < 0 || c.HeartbeatPort > 65535 {
		return fmt.Errorf("%w: heartbeat port %d", ErrInvalidPort, c.HeartbeatPort)
	}
	if c.Port != 0 && c.Port == c.HeartbeatPort {
		return fmt.Errorf("%w: client and heartbeat ports are both %d", ErrInvalidPort, c.Port)
	}
	if c.StalenessWindow <= 0 {
		return ErrInvalidStalenessWindow
	}
	if c.SweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}
	if c.ForwardTimeout < 0 || c.ClientReadTimeout < 0 || c.CapacityBackoff < 0 {
		return ErrNegativeTimeout
	}
	if c.MaxInFlight < 0 || c.MaxAttempts < 0 {
		return ErrNegativeLimit
	}
	if c.Transport == TransportUDP {
		if c.RetryInterval <= 0 || c.RetryTimeout <= 0 {
			return ErrInvalidRetry
		}
		if c.MaxDatagramSize <= 0 {
			return ErrInvalidDatagramSize
		}
		switch c.WAL.Backend {
		case WALBackendMemory:
		case WALBackendFile, WALBackendBolt:
			if c.WAL.Path == "" {
				return ErrWALPathRequired
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownWALBackend, c.WAL.Backend)
		}
	}
	return nil
}

// GetAddress returns the client listener address (address:port)
func (c *Config) GetAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// HeartbeatAddress returns the heartbeat listener address
func (c *Config) HeartbeatAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.HeartbeatPort))
}
