package gateway

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/dispatch"
	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

const lineTransport = "tcp"

func lineAdapter(g *Gateway) streamAdapter {
	return streamAdapter{
		name:   lineTransport,
		handle: g.handleLine,
		reject: func(conn net.Conn) { writeLine(conn, protocol.LineNoCapacity) },
	}
}

// handleLine serves one line client: read one request line, forward it,
// write one reply line, close.
func (g *Gateway) handleLine(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if g.config.ClientReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(g.config.ClientReadTimeout))
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		logger.Debugf("[tcp] client %s sent nothing: %v", conn.RemoteAddr(), err)
		return
	}

	req, err := protocol.ParseRequest(line)
	if err != nil {
		logger.Warnf("[tcp] rejecting request from %s: %v", conn.RemoteAddr(), err)
		writeLine(conn, protocol.LineInvalidRequest)
		g.metrics.Request(lineTransport, metrics.OutcomeRejected)
		return
	}

	ack, err := g.forward(ctx, lineTransport, req)
	g.metrics.Request(lineTransport, outcome(ack, err))
	writeLine(conn, lineText(ack, err))
}

// lineText renders a forward result as the text returned to the client.
func lineText(ack protocol.Ack, err error) string {
	switch {
	case err == nil:
		return protocol.LineReply(ack)
	case errors.Is(err, dispatch.ErrNoCapacity):
		return protocol.LineNoCapacity
	case errors.Is(err, protocol.ErrInvalidAck):
		return protocol.LineInvalidResponse
	default:
		return protocol.LineWorkerError
	}
}

func writeLine(conn net.Conn, text string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(conn, text+"\n"); err != nil {
		logger.Debugf("[tcp] reply to %s lost: %v", conn.RemoteAddr(), err)
	}
}

// writeTimeout bounds every reply written to a client.
const writeTimeout = 5 * time.Second
