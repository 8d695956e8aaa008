package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/dispatch"
	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
	"github.com/adamgarcia4/goLearning/gateway/wal"
)

const (
	datagramTransport = "udp"

	// datagramPoll bounds a blocked read before the loop re-checks its context.
	datagramPoll = 500 * time.Millisecond
)

// serveDatagrams is the UDP receive loop. Clients and workers share the
// socket: client requests are logged and forwarded, worker ACKs complete the
// logged request and are relayed to the recorded client address.
func (g *Gateway) serveDatagrams(ctx context.Context) error {
	logger.Printf("[udp] accepting datagrams on %s", g.packet.LocalAddr())
	buf := make([]byte, g.config.MaxDatagramSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		g.packet.SetReadDeadline(time.Now().Add(datagramPoll))
		n, src, err := g.packet.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Errorf("[udp] read failed: %v", err)
			continue
		}

		payload := string(buf[:n])
		g.tasks.Go(func() { g.handleDatagram(payload, src) })
	}
}

func (g *Gateway) handleDatagram(payload string, src net.Addr) {
	if req, err := protocol.ParseRequest(payload); err == nil {
		g.submitDatagram(req, src)
		return
	}

	if ack, err := protocol.ParseAck(payload); err == nil {
		g.completeDatagram(ack, src)
		return
	}

	// A broken ACK must not be answered, or two peers could bounce errors forever.
	if strings.Contains(payload, protocol.Separator+"ACK"+protocol.Separator) {
		logger.Warnf("[udp] dropping malformed reply from %s: %q", src, payload)
		g.metrics.Request(datagramTransport, metrics.OutcomeInvalidResponse)
		return
	}

	logger.Warnf("[udp] rejecting datagram from %s: %q", src, payload)
	g.metrics.Request(datagramTransport, metrics.OutcomeRejected)
	g.writeDatagram(protocol.LineInvalidRequest, src)
}

// submitDatagram logs the request before anything is sent, so a worker reply
// can never race ahead of the entry it completes. Without a live worker the
// entry stays pending and the retry sweeper dispatches it later.
func (g *Gateway) submitDatagram(req protocol.Request, src net.Addr) {
	env := protocol.Wrap(protocol.NewCorrelationID(), req)
	payload := env.String()

	if err := g.wal.Append(env.ID, payload); err != nil {
		logger.Errorf("[udp] failed to log request from %s: %v", src, err)
		g.metrics.Request(datagramTransport, metrics.OutcomeWorkerError)
		g.writeDatagram(protocol.LineWorkerError, src)
		return
	}
	if err := g.wal.SetReplyAddress(env.ID, src.String()); err != nil {
		logger.Errorf("[udp] failed to log reply address of %s: %v", env.ID, err)
	}

	worker, err := g.selector.SelectWorker()
	if errors.Is(err, dispatch.ErrNoCapacity) {
		logger.Warnf("[udp] no live worker, request %s stays pending", env.ID)
		g.metrics.Request(datagramTransport, metrics.OutcomeQueued)
		return
	}
	if err != nil {
		logger.Errorf("[udp] %v", err)
		return
	}

	if err := g.sendToWorker(env.ID, payload, worker); err != nil {
		logger.Warnf("[udp] %v; the retry sweeper will resend %s", err, env.ID)
	}
}

// sendToWorker transmits a logged request to worker and counts the attempt.
func (g *Gateway) sendToWorker(id protocol.CorrelationID, payload string, worker membership.WorkerAddress) error {
	addr, err := net.ResolveUDPAddr("udp", worker.String())
	if err != nil {
		return fmt.Errorf("resolve worker %s: %w", worker, err)
	}

	attempt, err := g.wal.RecordAttempt(id, worker.String())
	if err != nil {
		return fmt.Errorf("record attempt of %s: %w", id, err)
	}

	if _, err := g.packet.WriteTo([]byte(payload), addr); err != nil {
		return fmt.Errorf("send %s to %s: %w", id, worker, err)
	}
	logger.Printf("[udp] sent %s to %s (attempt %d)", id, worker, attempt)
	return nil
}

// completeDatagram marks the request acknowledged and relays the result to
// the client that submitted it. Duplicate ACKs are relayed again; an ACK for a
// request that already ran out of retries is not, the client was told it failed.
func (g *Gateway) completeDatagram(ack protocol.Ack, src net.Addr) {
	replyTo, ok := g.wal.ReplyAddress(ack.ID)
	if !ok {
		logger.Warnf("[udp] ack for unknown request %s from %s", ack.ID, src)
		return
	}

	err := g.wal.SetStatus(ack.ID, wal.StatusAcked, string(ack.Status)+protocol.Separator+ack.Body)
	if errors.Is(err, wal.ErrTerminal) {
		logger.Warnf("[udp] late ack for %s from %s after retries were exhausted: %s", ack.ID, src, ack.Status)
		g.metrics.Replies.WithLabelValues(string(ack.Status)).Inc()
		return
	}
	if err != nil {
		logger.Errorf("[udp] failed to log ack of %s: %v", ack.ID, err)
	}
	g.metrics.Replies.WithLabelValues(string(ack.Status)).Inc()
	g.metrics.Request(datagramTransport, outcome(ack, nil))
	logger.Printf("[udp] request %s answered by %s: %s", ack.ID, src, ack.Status)

	addr, err := net.ResolveUDPAddr("udp", replyTo)
	if err != nil {
		logger.Errorf("[udp] bad reply address %q for %s: %v", replyTo, ack.ID, err)
		return
	}
	g.writeDatagram(protocol.DatagramReply(ack), addr)
}

// replyExhausted tells the client that its request was given up on.
func (g *Gateway) replyExhausted(e wal.Entry) {
	if e.ReplyTo == "" {
		return
	}
	addr, err := net.ResolveUDPAddr("udp", e.ReplyTo)
	if err != nil {
		logger.Errorf("[udp] bad reply address %q for %s: %v", e.ReplyTo, e.ID, err)
		return
	}
	g.writeDatagram(protocol.DatagramExhausted(e.ID, e.Attempts), addr)
}

func (g *Gateway) writeDatagram(text string, to net.Addr) {
	if _, err := g.packet.WriteTo([]byte(text), to); err != nil {
		logger.Debugf("[udp] reply to %s lost: %v", to, err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
