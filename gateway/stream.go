package gateway

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/soheilhy/cmux"

	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
)

// acceptRetryDelay is the pause after an unexpected accept error.
const acceptRetryDelay = 50 * time.Millisecond

// streamAdapter is one connection-oriented client protocol.
type streamAdapter struct {
	name string
	// handle serves one client connection and closes it.
	handle func(ctx context.Context, conn net.Conn)
	// reject answers a client that arrived while no worker is live.
	reject func(conn net.Conn)
}

// serveStream is the accept loop shared by the line and HTTP adapters. While
// the registry is empty each accepted client is rejected and the loop backs
// off before accepting again.
func (g *Gateway) serveStream(ctx context.Context, lis net.Listener, a streamAdapter) error {
	logger.Printf("[%s] accepting clients on %s", a.name, lis.Addr())

	stop := context.AfterFunc(ctx, func() { lis.Close() })
	defer stop()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, cmux.ErrListenerClosed) {
				return nil
			}
			logger.Warnf("[%s] accept failed: %v", a.name, err)
			if !sleepCtx(ctx, acceptRetryDelay) {
				return nil
			}
			continue
		}

		if g.registry.Len() == 0 {
			logger.Warnf("[%s] no live worker, rejecting %s", a.name, conn.RemoteAddr())
			a.reject(conn)
			conn.Close()
			g.metrics.Request(a.name, metrics.OutcomeNoCapacity)
			if !sleepCtx(ctx, g.config.CapacityBackoff) {
				return nil
			}
			continue
		}

		g.tasks.Go(func() { a.handle(ctx, conn) })
	}
}

// sleepCtx waits for d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
