package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/adamgarcia4/goLearning/gateway/dispatch"
	"github.com/adamgarcia4/goLearning/gateway/logger"
	"github.com/adamgarcia4/goLearning/gateway/metrics"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

const (
	httpTransport  = "http"
	httpServerName = "gateway"

	textMethodNotAllowed = "Erro - Método HTTP não é reconhecido."
)

// httpMethods are the request-line methods the adapter understands; any
// other method is answered with 405.
var httpMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

func httpAdapter(g *Gateway) streamAdapter {
	return streamAdapter{
		name:   httpTransport,
		handle: g.handleHTTP,
		reject: func(conn net.Conn) {
			writeHTTP(conn, http.StatusServiceUnavailable, protocol.LineNoCapacity)
		},
	}
}

// handleHTTP serves one HTTP/1.x exchange. The request target is the request
// text, minus the slash every origin-form target starts with. Headers and
// body are ignored.
func (g *Gateway) handleHTTP(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if g.config.ClientReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(g.config.ClientReadTimeout))
	}
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		logger.Debugf("[http] client %s sent nothing: %v", conn.RemoteAddr(), err)
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	drainHeaders(r)

	if !httpMethods[fields[0]] {
		logger.Warnf("[http] method %q from %s not allowed", fields[0], conn.RemoteAddr())
		writeHTTP(conn, http.StatusMethodNotAllowed, textMethodNotAllowed)
		g.metrics.Request(httpTransport, metrics.OutcomeBadMethod)
		return
	}

	target := ""
	if len(fields) > 1 {
		target = strings.TrimPrefix(fields[1], "/")
	}
	req, err := protocol.ParseRequest(target)
	if err != nil {
		logger.Warnf("[http] rejecting request from %s: %v", conn.RemoteAddr(), err)
		writeHTTP(conn, http.StatusBadRequest, protocol.LineInvalidRequest)
		g.metrics.Request(httpTransport, metrics.OutcomeRejected)
		return
	}

	ack, err := g.forward(ctx, httpTransport, req)
	g.metrics.Request(httpTransport, outcome(ack, err))
	writeHTTP(conn, httpStatus(ack, err), lineText(ack, err))
}

func httpStatus(ack protocol.Ack, err error) int {
	switch {
	case err == nil && ack.Succeeded():
		return http.StatusOK
	case errors.Is(err, dispatch.ErrNoCapacity):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// drainHeaders consumes header lines up to the blank line so that closing the
// connection does not reset it under unread client data. Bodies are not read.
func drainHeaders(r *bufio.Reader) {
	for {
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			return
		}
	}
}

// writeHTTP writes a complete HTTP/1.0 response with an HTML body.
func writeHTTP(conn net.Conn, status int, message string) {
	body := "<html><body>" + html.EscapeString(message) + "</body></html>"

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.0 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(&b, "Server: %s\r\n", httpServerName)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.WriteString(body)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(conn, b.String()); err != nil {
		logger.Debugf("[http] reply to %s lost: %v", conn.RemoteAddr(), err)
	}
}
