// Package gateway accepts client requests over UDP, line TCP or HTTP and
// forwards each to one live worker chosen round robin.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/dispatch"
	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
	"github.com/adamgarcia4/goLearning/gateway/transport"
	"github.com/adamgarcia4/goLearning/gateway/wal"
)

// adminShutdownTimeout bounds the admin HTTP drain on Stop.
const adminShutdownTimeout = 2 * time.Second

// Gateway is one running gateway process: a heartbeat listener, a sweeper,
// a client adapter and, for UDP, the write-ahead log with its retry sweeper.
type Gateway struct {
	config   *Config
	registry *membership.Registry
	selector dispatch.Selector
	sweeper  *membership.Sweeper
	metrics  *metrics.Metrics

	heartbeat membership.Listener
	stream    net.Listener
	packet    net.PacketConn
	wal       *wal.Log
	retry     *RetrySweeper
	tasks     *taskPool

	health *transport.GRPC
	admin  *transport.HTTP

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
}

// New creates a gateway with the given configuration. Nothing is bound until Start.
func New(config *Config) (*Gateway, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry := membership.NewRegistry()
	m := metrics.New()
	registry.Subscribe(func(e membership.Event) {
		m.LiveWorkers.Set(float64(e.Live))
		m.WorkerEvents.WithLabelValues(e.Kind.String()).Inc()
	})

	ctx, cancel := context.WithCancel(context.Background())

	g := &Gateway{
		config:   config,
		registry: registry,
		selector: dispatch.NewRoundRobin(registry),
		sweeper:  membership.NewSweeper(registry, config.StalenessWindow, config.SweepInterval),
		metrics:  m,
		tasks:    newTaskPool(config.MaxInFlight),
		ctx:      ctx,
		cancel:   cancel,
	}

	if config.Transport == TransportUDP {
		err := m.RegisterPendingGauge(func() float64 {
			if log := g.WAL(); log != nil {
				return float64(log.PendingCount())
			}
			return 0
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to register wal metrics: %w", err)
		}
	}
	return g, nil
}

// Start binds every socket synchronously, so a port already in use is
// reported here, and then serves in background goroutines.
func (g *Gateway) Start() (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return ErrAlreadyStarted
	}

	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()

	if err := g.openHeartbeat(); err != nil {
		return err
	}
	cleanup = append(cleanup, func() { g.heartbeat.Close() })

	if g.config.Transport == TransportUDP {
		if err := g.openWAL(); err != nil {
			return err
		}
		cleanup = append(cleanup, func() {
			g.wal.Close()
			g.wal = nil
		})
	}

	if err := g.openClient(); err != nil {
		return err
	}
	cleanup = append(cleanup, func() { g.closeClient() })

	if err := g.openAdmin(); err != nil {
		return err
	}

	g.started = true
	g.serve()

	g.logf("gateway (%s) serving clients on %s, heartbeats on %s", g.config.Transport, g.clientAddr(), g.heartbeat.Addr())
	return nil
}

func (g *Gateway) openHeartbeat() error {
	var err error
	if g.config.Transport == TransportUDP {
		g.heartbeat, err = membership.ListenUDP(g.config.HeartbeatAddress(), g.registry)
	} else {
		g.heartbeat, err = membership.ListenTCP(g.config.HeartbeatAddress(), g.registry)
	}
	if err != nil {
		return fmt.Errorf("failed to bind heartbeat listener: %w", err)
	}
	return nil
}

func (g *Gateway) openWAL() error {
	storage, err := openStorage(g.config.WAL)
	if err != nil {
		return fmt.Errorf("failed to open wal storage: %w", err)
	}

	log, err := wal.Open(storage, wal.Options{Replay: g.config.WAL.Replay})
	if err != nil {
		storage.Close()
		return err
	}
	g.wal = log

	g.retry = NewRetrySweeper(log, g.selector, RetryOptions{
		Timeout:     g.config.RetryTimeout,
		Period:      g.config.RetryInterval,
		MaxAttempts: g.config.MaxAttempts,
		Send:        g.sendToWorker,
		Exhausted:   g.replyExhausted,
		Metrics:     g.metrics,
	})
	return nil
}

func openStorage(cfg WALConfig) (wal.Storage, error) {
	switch cfg.Backend {
	case WALBackendMemory:
		return wal.NewMemoryStorage(), nil
	case WALBackendBolt:
		return wal.OpenBolt(cfg.Path)
	default:
		return wal.OpenFile(cfg.Path, cfg.SyncWrites)
	}
}

func (g *Gateway) openClient() error {
	var err error
	if g.config.Transport == TransportUDP {
		g.packet, err = net.ListenPacket("udp", g.config.GetAddress())
	} else {
		g.stream, err = net.Listen("tcp", g.config.GetAddress())
	}
	if err != nil {
		return fmt.Errorf("failed to bind client listener: %w", err)
	}
	return nil
}

func (g *Gateway) closeClient() {
	if g.packet != nil {
		g.packet.Close()
	}
	if g.stream != nil {
		g.stream.Close()
	}
}

func (g *Gateway) openAdmin() error {
	if addr := g.config.Admin.GRPCAddr; addr != "" {
		health, err := transport.NewGRPC(addr, g.config.Admin.HealthService)
		if err != nil {
			return fmt.Errorf("failed to create grpc admin: %w", err)
		}
		if err := health.Listen(); err != nil {
			return fmt.Errorf("failed to bind grpc admin: %w", err)
		}
		g.registry.Subscribe(func(e membership.Event) { health.SetServing(e.Live > 0) })
		health.SetServing(g.registry.Len() > 0)
		g.health = health
	}

	if addr := g.config.Admin.HTTPAddr; addr != "" {
		var pending transport.PendingSource
		if g.wal != nil {
			pending = g.wal
		}
		admin := transport.NewHTTP(addr, g.metrics.Registry, g.registry, pending)
		if err := admin.Listen(); err != nil {
			if g.health != nil {
				g.health.Stop()
				g.health = nil
			}
			return fmt.Errorf("failed to bind http admin: %w", err)
		}
		g.admin = admin
	}
	return nil
}

func (g *Gateway) serve() {
	g.goServe("heartbeat listener", func() error { return g.heartbeat.Serve(g.ctx) })
	g.goServe("sweeper", func() error { g.sweeper.Run(g.ctx); return nil })

	switch g.config.Transport {
	case TransportUDP:
		g.goServe("udp adapter", func() error { return g.serveDatagrams(g.ctx) })
		g.goServe("retry sweeper", func() error { g.retry.Run(g.ctx); return nil })
	case TransportTCP:
		g.goServe("tcp adapter", func() error { return g.serveStream(g.ctx, g.stream, lineAdapter(g)) })
	case TransportHTTP:
		g.goServe("http adapter", func() error { return g.serveStream(g.ctx, g.stream, httpAdapter(g)) })
	case TransportMux:
		g.goServe("mux adapter", func() error { return g.serveMux(g.ctx, g.stream) })
	}

	if g.health != nil {
		g.goServe("grpc admin", g.health.Serve)
	}
	if g.admin != nil {
		g.goServe("http admin", g.admin.Serve)
	}
}

func (g *Gateway) goServe(name string, fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.logErrorf("%s stopped: %v", name, err)
		}
	}()
}

// Stop stops the gateway gracefully: listeners are closed, in-flight
// requests finish, and the WAL is flushed and closed.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return ErrNotStarted
	}
	g.started = false

	// Cancel context to stop every loop
	g.cancel()
	g.mu.Unlock()

	g.logf("stopping gateway...")

	var errs []error
	if err := g.heartbeat.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("close heartbeat listener: %w", err))
	}
	g.closeClient()

	if g.health != nil {
		g.health.Stop()
	}
	if g.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		if err := g.admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http admin: %w", err))
		}
		cancel()
	}

	g.wg.Wait()
	g.tasks.Wait()

	if g.wal != nil {
		if err := g.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close wal: %w", err))
		}
	}

	g.logf("gateway stopped")
	return errors.Join(errs...)
}

// Registry returns the membership registry (for external access)
func (g *Gateway) Registry() *membership.Registry {
	return g.registry
}

// WAL returns the write-ahead log; nil unless the transport is UDP and the gateway started.
func (g *Gateway) WAL() *wal.Log {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.wal
}

// Metrics returns the gateway's collectors
func (g *Gateway) Metrics() *metrics.Metrics {
	return g.metrics
}

// GetConfig returns the gateway configuration (for external access)
func (g *Gateway) GetConfig() *Config {
	return g.config
}

// Addr returns the bound client address
func (g *Gateway) Addr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.clientAddr()
}

func (g *Gateway) clientAddr() net.Addr {
	if g.packet != nil {
		return g.packet.LocalAddr()
	}
	if g.stream != nil {
		return g.stream.Addr()
	}
	return nil
}

// HeartbeatAddr returns the bound heartbeat address
func (g *Gateway) HeartbeatAddr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.heartbeat == nil {
		return nil
	}
	return g.heartbeat.Addr()
}

// AdminHTTPAddr returns the bound admin HTTP address, nil when disabled
func (g *Gateway) AdminHTTPAddr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.admin == nil {
		return nil
	}
	return g.admin.Addr()
}

// AdminGRPCAddr returns the bound gRPC health address, nil when disabled
func (g *Gateway) AdminGRPCAddr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.health == nil {
		return nil
	}
	return g.health.Addr()
}

// logf logs using the global logger (which handles both stdout and log buffer)
func (g *Gateway) logf(format string, args ...interface{}) {
	logger.Printf("[gateway] %s", fmt.Sprintf(format, args...))
}

func (g *Gateway) logErrorf(format string, args ...interface{}) {
	logger.Errorf("[gateway] %s", fmt.Sprintf(format, args...))
}
