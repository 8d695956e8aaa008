// Package config loads a gateway.Config from a file, GATEWAY_* environment
// variables and command line flags, in increasing order of precedence.
// Anything left unset falls back to the defaults of the chosen transport.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/adamgarcia4/goLearning/gateway/gateway"
)

// EnvPrefix prefixes every environment override, e.g. GATEWAY_WAL_PATH.
const EnvPrefix = "GATEWAY"

// flagKeys maps command line flags to config keys
var flagKeys = map[string]string{
	"transport":        "transport",
	"address":          "address",
	"port":             "port",
	"heartbeat-port":   "heartbeat_port",
	"staleness-window": "staleness_window",
	"sweep-interval":   "sweep_interval",
	"forward-timeout":  "forward_timeout",
	"capacity-backoff": "capacity_backoff",
	"max-in-flight":    "max_in_flight",
	"retry-interval":   "retry_interval",
	"retry-timeout":    "retry_timeout",
	"max-attempts":     "max_attempts",
	"wal-backend":      "wal.backend",
	"wal-path":         "wal.path",
	"wal-replay":       "wal.replay",
	"wal-sync":         "wal.sync_writes",
	"admin-http":       "admin.http_addr",
	"admin-grpc":       "admin.grpc_addr",
	"log-level":        "log_level",
}

// RegisterFlags adds the gateway flags to fs. Zero values mean "use the
// transport default".
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Config file (yaml, toml or json)")
	fs.StringP("transport", "t", string(gateway.TransportUDP), "Client transport: udp, tcp, http or mux")
	fs.StringP("address", "a", "", "Address to bind the gateway to (default "+gateway.DefaultAddress+")")
	fs.IntP("port", "p", 0, "Client port (default 9000 for udp, 9050 otherwise)")
	fs.Int("heartbeat-port", 0, "Heartbeat port (default 9007)")
	fs.Duration("staleness-window", 0, "Evict workers silent for longer than this (default 5s for udp, 3s otherwise)")
	fs.Duration("sweep-interval", 0, "How often stale workers are evicted (default 1s)")
	fs.Duration("forward-timeout", 0, "Deadline of one worker round trip (default 30s)")
	fs.Duration("capacity-backoff", 0, "Pause after rejecting a client for lack of workers (default 1s)")
	fs.Int("max-in-flight", 0, "Concurrent request cap, 0 for unbounded")
	fs.Duration("retry-interval", 0, "How often pending UDP requests are checked (default 5s)")
	fs.Duration("retry-timeout", 0, "Resend UDP requests pending for longer than this (default 5s)")
	fs.Int("max-attempts", 0, "Give up on a UDP request after this many sends (default 10)")
	fs.String("wal-backend", "", "WAL storage: file, bolt or memory (default file)")
	fs.String("wal-path", "", "WAL file path (default "+gateway.DefaultWALPath+")")
	fs.Bool("wal-replay", false, "Replay the WAL on start instead of truncating it")
	fs.Bool("wal-sync", false, "fsync every WAL record")
	fs.String("admin-http", "", "Admin HTTP address for metrics and views, empty to disable")
	fs.String("admin-grpc", "", "gRPC health address, empty to disable")
	fs.String("log-level", "", "Log level: debug, info, warn or error (default info)")
}

// Load resolves the gateway configuration. path may be empty; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*gateway.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	raw := v.GetString("transport")
	if raw == "" {
		raw = string(gateway.TransportUDP)
	}
	t, err := gateway.ParseTransport(raw)
	if err != nil {
		return nil, err
	}
	setDefaults(v, gateway.DefaultConfig(t))

	c := gateway.DefaultConfig(t)
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Transport = t

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d *gateway.Config) {
	for key, value := range map[string]any{
		"transport":            string(d.Transport),
		"address":              d.Address,
		"port":                 d.Port,
		"heartbeat_port":       d.HeartbeatPort,
		"staleness_window":     d.StalenessWindow,
		"sweep_interval":       d.SweepInterval,
		"forward_timeout":      d.ForwardTimeout,
		"client_read_timeout":  d.ClientReadTimeout,
		"capacity_backoff":     d.CapacityBackoff,
		"max_in_flight":        d.MaxInFlight,
		"retry_interval":       d.RetryInterval,
		"retry_timeout":        d.RetryTimeout,
		"max_attempts":         d.MaxAttempts,
		"max_datagram_size":    d.MaxDatagramSize,
		"wal.backend":          d.WAL.Backend,
		"wal.path":             d.WAL.Path,
		"wal.replay":           d.WAL.Replay,
		"wal.sync_writes":      d.WAL.SyncWrites,
		"admin.http_addr":      d.Admin.HTTPAddr,
		"admin.grpc_addr":      d.Admin.GRPCAddr,
		"admin.health_service": d.Admin.HealthService,
		"log_level":            d.LogLevel,
	} {
		v.SetDefault(key, value)
	}
}
