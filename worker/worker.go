// Package worker is a loopback stand-in for a backend worker. It speaks the
// gateway's worker wire contract and heartbeats, but executes nothing: the
// configured Handler decides the ACK.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

const (
	readPoll      = 500 * time.Millisecond
	streamTimeout = 5 * time.Second
)

// Worker represents one stub worker
type Worker struct {
	config *Config

	packet net.PacketConn
	stream net.Listener

	handled atomic.Int64
	paused  atomic.Bool

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
}

// New creates a new worker with the given configuration
func New(config *Config) (*Worker, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Handler == nil {
		config.Handler = EchoHandler
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start binds the first free candidate port, then serves and heartbeats in
// the background. The first heartbeat is sent before Start returns.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	if err := w.bind(); err != nil {
		return err
	}
	w.started = true

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		if w.config.Transport == TransportUDP {
			w.serveDatagrams()
		} else {
			w.serveStream()
		}
	}()

	w.sendHeartbeat()
	go func() {
		defer w.wg.Done()
		w.heartbeatLoop()
	}()

	w.logf("serving %s on %s, heartbeats to %s every %v",
		w.config.Transport, w.addr(), w.config.GatewayHeartbeatAddr, w.config.HeartbeatInterval)
	return nil
}

func (w *Worker) bind() error {
	var lastErr error
	for _, port := range w.config.CandidatePorts {
		addr := w.config.addressFor(port)
		var err error
		if w.config.Transport == TransportUDP {
			w.packet, err = net.ListenPacket("udp", addr)
		} else {
			w.stream, err = net.Listen("tcp", addr)
		}
		if err == nil {
			return nil
		}
		w.logf("port %d unavailable: %v", port, err)
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrNoFreePort, lastErr)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return ErrNotStarted
	}
	w.started = false
	w.cancel()
	packet, stream := w.packet, w.stream
	w.mu.Unlock()

	var err error
	if packet != nil {
		err = packet.Close()
	}
	if stream != nil {
		err = stream.Close()
	}
	w.wg.Wait()

	w.logf("stopped")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the serving address
func (w *Worker) Addr() net.Addr {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.addr()
}

func (w *Worker) addr() net.Addr {
	if w.packet != nil {
		return w.packet.LocalAddr()
	}
	if w.stream != nil {
		return w.stream.Addr()
	}
	return nil
}

// ID returns the worker ID
func (w *Worker) ID() string {
	return w.config.ID
}

// GetConfig returns the worker configuration (for external access)
func (w *Worker) GetConfig() *Config {
	return w.config
}

// Handled returns how many envelopes the worker received
func (w *Worker) Handled() int64 {
	return w.handled.Load()
}

// PauseHeartbeats stops or resumes heartbeats while the worker keeps serving,
// which makes the gateway evict it after the staleness window.
func (w *Worker) PauseHeartbeats(paused bool) {
	w.paused.Store(paused)
}

// HeartbeatsPaused reports whether heartbeats are paused
func (w *Worker) HeartbeatsPaused() bool {
	return w.paused.Load()
}

func (w *Worker) heartbeatLoop() {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.sendHeartbeat()
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) sendHeartbeat() {
	if w.paused.Load() {
		return
	}
	var err error
	if w.config.Transport == TransportUDP {
		err = w.sendDatagramHeartbeat()
	} else {
		err = w.sendStreamHeartbeat()
	}
	if err != nil {
		w.logDebugf("heartbeat failed: %v", err)
	}
}

// sendDatagramHeartbeat sends from the serving socket so the gateway learns
// the serving address from the datagram source.
func (w *Worker) sendDatagramHeartbeat() error {
	gw, err := net.ResolveUDPAddr("udp", w.config.GatewayHeartbeatAddr)
	if err != nil {
		return err
	}
	_, err = w.packet.WriteTo([]byte(protocol.HeartbeatMessage), gw)
	return err
}

func (w *Worker) sendStreamHeartbeat() error {
	conn, err := net.DialTimeout("tcp", w.config.GatewayHeartbeatAddr, w.config.HeartbeatInterval)
	if err != nil {
		return err
	}
	defer conn.Close()

	port := w.stream.Addr().(*net.TCPAddr).Port
	_, err = io.WriteString(conn, protocol.StreamHeartbeat(port)+"\n")
	return err
}

func (w *Worker) serveDatagrams() {
	buf := make([]byte, 1024)
	for {
		if w.ctx.Err() != nil {
			return
		}
		w.packet.SetReadDeadline(time.Now().Add(readPoll))
		n, src, err := w.packet.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			w.logf("read failed: %v", err)
			continue
		}

		reply, ok := w.handle(string(buf[:n]))
		if !ok {
			continue
		}
		if _, err := w.packet.WriteTo([]byte(reply), src); err != nil {
			w.logf("reply to %s failed: %v", src, err)
		}
	}
}

func (w *Worker) serveStream() {
	for {
		conn, err := w.stream.Accept()
		if err != nil {
			if w.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			w.logf("accept failed: %v", err)
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer conn.Close()

			conn.SetDeadline(time.Now().Add(streamTimeout))
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil && line == "" {
				return
			}
			reply, ok := w.handle(line)
			if !ok {
				return
			}
			io.WriteString(conn, reply+"\n")
		}()
	}
}

// handle turns an envelope into its ACK line. ok is false when nothing must be sent.
func (w *Worker) handle(line string) (string, bool) {
	env, err := protocol.ParseEnvelope(line)
	if err != nil {
		w.logDebugf("dropping %v", err)
		return "", false
	}
	w.handled.Add(1)

	if w.config.Silent {
		w.logf("received %s, staying silent", env.ID)
		return "", false
	}

	ack := protocol.Ack{ID: env.ID}
	req, err := protocol.ParseRequest(env.Request)
	if err != nil {
		ack.Status, ack.Body = protocol.StatusFailed, "Formato de requisição inválido"
	} else {
		ack.Status, ack.Body = w.config.Handler(req)
	}
	w.logf("request %s: %s", env.ID, ack.Status)
	return ack.String(), true
}

// logf logs using the global logger with the worker ID as source
func (w *Worker) logf(format string, args ...interface{}) {
	logger.Printf("[%s] %s", w.config.ID, fmt.Sprintf(format, args...))
}

func (w *Worker) logDebugf(format string, args ...interface{}) {
	logger.Debugf("[%s] %s", w.config.ID, fmt.Sprintf(format, args...))
}
