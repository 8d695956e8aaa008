package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/dispatch"
	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

// forward picks a worker for req, sends it the wrapped request over a fresh
// TCP connection and waits for the single ACK line. The ACK must carry the
// ID that was sent.
func (g *Gateway) forward(ctx context.Context, transport string, req protocol.Request) (protocol.Ack, error) {
	worker, err := g.selector.SelectWorker()
	if err != nil {
		return protocol.Ack{}, err
	}

	env := protocol.Wrap(protocol.NewCorrelationID(), req)
	logger.Printf("[%s] forwarding %s to %s", transport, env.ID, worker)

	start := time.Now()
	ack, err := g.roundTrip(ctx, worker, env)
	g.metrics.ForwardLatency.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warnf("[%s] request %s to %s failed: %v", transport, env.ID, worker, err)
		return protocol.Ack{}, err
	}

	g.metrics.Replies.WithLabelValues(string(ack.Status)).Inc()
	logger.Printf("[%s] request %s answered by %s: %s", transport, env.ID, worker, ack.Status)
	return ack, nil
}

func (g *Gateway) roundTrip(ctx context.Context, worker membership.WorkerAddress, env protocol.Envelope) (protocol.Ack, error) {
	if timeout := g.config.ForwardTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", worker.String())
	if err != nil {
		return protocol.Ack{}, fmt.Errorf("%w: %v", errWorker, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// Unblock the read when the gateway stops
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, env.String()+"\n"); err != nil {
		return protocol.Ack{}, fmt.Errorf("%w: %v", errWorker, err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return protocol.Ack{}, fmt.Errorf("%w: %v", errWorker, err)
	}

	ack, err := protocol.ParseAck(line)
	if err != nil {
		return protocol.Ack{}, err
	}
	if ack.ID != env.ID {
		return protocol.Ack{}, fmt.Errorf("%w: ack for %s while waiting for %s", protocol.ErrInvalidAck, ack.ID, env.ID)
	}
	return ack, nil
}

// outcome maps a forward result to its metrics label
func outcome(ack protocol.Ack, err error) string {
	switch {
	case err == nil && ack.Succeeded():
		return metrics.OutcomeOK
	case err == nil:
		return metrics.OutcomeFailed
	case errors.Is(err, dispatch.ErrNoCapacity):
		return metrics.OutcomeNoCapacity
	case errors.Is(err, protocol.ErrInvalidAck):
		return metrics.OutcomeInvalidResponse
	default:
		return metrics.OutcomeWorkerError
	}
}
