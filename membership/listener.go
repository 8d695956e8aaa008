package membership

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

// pollInterval bounds how long a blocked read waits before re-checking the context.
const pollInterval = 500 * time.Millisecond

// streamReadTimeout bounds a single TCP heartbeat connection.
const streamReadTimeout = 2 * time.Second

// Listener accepts worker heartbeats and feeds them to the Registry.
type Listener interface {
	// Serve runs the receive loop until ctx is cancelled or the listener is closed.
	Serve(ctx context.Context) error
	Addr() net.Addr
	Close() error
}

// UDPListener receives "HEARTBEAT" datagrams. The worker address is the
// datagram's source, which is the worker's serving socket.
type UDPListener struct {
	conn     net.PacketConn
	registry *Registry
	now      func() time.Time
}

// ListenUDP binds the heartbeat socket synchronously so bind errors surface to the caller.
func ListenUDP(addr string, registry *Registry) (*UDPListener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for heartbeats on %s: %w", addr, err)
	}
	return &UDPListener{conn: conn, registry: registry, now: time.Now}, nil
}

func (l *UDPListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *UDPListener) Close() error {
	return l.conn.Close()
}

func (l *UDPListener) Serve(ctx context.Context) error {
	logger.Printf("[membership] heartbeat listener (udp) on %s", l.conn.LocalAddr())
	buf := make([]byte, 1024)

	for {
		if ctx.Err() != nil {
			return nil
		}

		l.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Errorf("[membership] heartbeat read failed: %v", err)
			continue
		}

		if !protocol.IsDatagramHeartbeat(buf[:n]) {
			logger.Debugf("[membership] ignoring malformed heartbeat from %s: %q", src, buf[:n])
			continue
		}
		announce(l.registry, WorkerAddress(src.String()), l.now())
	}
}

// TCPListener accepts one "HEARTBEAT;<port>" line per connection. The worker
// address is the connection's remote host joined with the announced port.
type TCPListener struct {
	lis      net.Listener
	registry *Registry
	now      func() time.Time
}

// ListenTCP binds the heartbeat listener synchronously.
func ListenTCP(addr string, registry *Registry) (*TCPListener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for heartbeats on %s: %w", addr, err)
	}
	return &TCPListener{lis: lis, registry: registry, now: time.Now}, nil
}

func (l *TCPListener) Addr() net.Addr {
	return l.lis.Addr()
}

func (l *TCPListener) Close() error {
	return l.lis.Close()
}

func (l *TCPListener) Serve(ctx context.Context) error {
	logger.Printf("[membership] heartbeat listener (tcp) on %s", l.lis.Addr())

	stop := context.AfterFunc(ctx, func() { l.lis.Close() })
	defer stop()

	for {
		conn, err := l.lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTimeout(err) {
				continue
			}
			logger.Errorf("[membership] heartbeat accept failed: %v", err)
			continue
		}
		go l.handle(conn)
	}
}

func (l *TCPListener) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		logger.Debugf("[membership] heartbeat from %s unreadable: %v", conn.RemoteAddr(), err)
		return
	}

	port, err := protocol.ParseStreamHeartbeat(line)
	if err != nil {
		logger.Debugf("[membership] ignoring heartbeat from %s: %v", conn.RemoteAddr(), err)
		return
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		logger.Debugf("[membership] bad remote address %s: %v", conn.RemoteAddr(), err)
		return
	}
	announce(l.registry, WorkerAddress(net.JoinHostPort(host, strconv.Itoa(port))), l.now())
}

func announce(registry *Registry, addr WorkerAddress, now time.Time) {
	if registry.Heartbeat(addr, now) {
		logger.Printf("[membership] worker joined %s", addr)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
