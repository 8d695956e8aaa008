package gateway

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

func TestLineRequestSucceeds(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))
	startWorker(t, workerConfig(g, "w1"))
	waitLive(t, g, 1)

	reply := sendLine(t, g.Addr(), "SALDO;alice;pw")
	assert.Equal(t, "Operação finalizada com sucesso: SALDO processada para alice", reply)
}

func TestLineRequestReportsWorkerFailure(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))
	c := workerConfig(g, "w1")
	c.Handler = func(req protocol.Request) (protocol.Status, string) {
		return protocol.StatusFailed, "saldo insuficiente"
	}
	startWorker(t, c)
	waitLive(t, g, 1)

	reply := sendLine(t, g.Addr(), "SACAR;alice;pw;100")
	assert.Equal(t, "Sucesso no pipeline. Falha na operação. Resultado do servidor: saldo insuficiente", reply)
}

func TestLineMalformedRequestNeverReachesWorker(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))
	f := newFakeStreamWorker(t, func(env protocol.Envelope, _ string) string {
		return protocol.Ack{ID: env.ID, Status: protocol.StatusOK, Body: "x"}.String()
	})
	f.register(t, g)
	waitLive(t, g, 1)

	for _, bad := range []string{"HELLO", "CRIAR;alice", "DEPOSITAR;alice;pw", "SALDO;;pw"} {
		assert.Equal(t, protocol.LineInvalidRequest, sendLine(t, g.Addr(), bad), bad)
	}
	assert.Equal(t, int64(0), f.accepted.Load())
}

func TestLineEnvelopeCarriesFreshCorrelationID(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))
	f := newFakeStreamWorker(t, func(env protocol.Envelope, _ string) string {
		return protocol.Ack{ID: env.ID, Status: protocol.StatusOK, Body: "ok"}.String()
	})
	f.register(t, g)
	waitLive(t, g, 1)

	sendLine(t, g.Addr(), "SALDO;alice;pw")
	sendLine(t, g.Addr(), "SALDO;alice;pw")

	first, err := protocol.ParseEnvelope(<-f.lines)
	require.NoError(t, err)
	second, err := protocol.ParseEnvelope(<-f.lines)
	require.NoError(t, err)

	assert.Equal(t, "SALDO;alice;pw", first.Request)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLineInvalidWorkerResponse(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))

	cases := map[string]func(env protocol.Envelope) string{
		"garbage":      func(protocol.Envelope) string { return "garbage" },
		"wrong status": func(env protocol.Envelope) string { return string(env.ID) + ";ACK;MAYBE;x" },
		"foreign id":   func(protocol.Envelope) string { return "other-id;ACK;OK;x" },
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFakeStreamWorker(t, func(env protocol.Envelope, _ string) string { return reply(env) })
			g.Registry().Heartbeat(membership.WorkerAddress(f.address()), time.Now())
			defer g.Registry().Remove(membership.WorkerAddress(f.address()))

			assert.Equal(t, protocol.LineInvalidResponse, sendLine(t, g.Addr(), "SALDO;alice;pw"))
		})
	}
}

func TestLineUnreachableWorker(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := lis.Addr().String()
	lis.Close()

	g.Registry().Heartbeat(membership.WorkerAddress(dead), time.Now())
	assert.Equal(t, protocol.LineWorkerError, sendLine(t, g.Addr(), "SALDO;alice;pw"))
}

func TestLineForwardTimeout(t *testing.T) {
	c := testConfig(TransportTCP)
	c.ForwardTimeout = 100 * time.Millisecond
	g := startGateway(t, c)

	// accepts and never answers
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(waitFor))
		buf := make([]byte, 256)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	defer func() {
		lis.Close()
		wg.Wait()
	}()

	g.Registry().Heartbeat(membership.WorkerAddress(lis.Addr().String()), time.Now())
	start := time.Now()
	assert.Equal(t, protocol.LineWorkerError, sendLine(t, g.Addr(), "SALDO;alice;pw"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLineRejectsWithoutWorkers(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))
	assert.Equal(t, protocol.LineNoCapacity, sendLine(t, g.Addr(), "SALDO;alice;pw"))

	// the gateway keeps accepting once a worker shows up
	startWorker(t, workerConfig(g, "w1"))
	waitLive(t, g, 1)
	assert.Contains(t, sendLine(t, g.Addr(), "SALDO;alice;pw"), "Operação finalizada com sucesso")
}

func TestLineRoundRobinsAcrossWorkers(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))
	w1 := startWorker(t, workerConfig(g, "w1"))
	w2 := startWorker(t, workerConfig(g, "w2"))
	waitLive(t, g, 2)

	for i := 0; i < 6; i++ {
		sendLine(t, g.Addr(), "SALDO;alice;pw")
	}
	assert.Equal(t, int64(3), w1.Handled())
	assert.Equal(t, int64(3), w2.Handled())
}

func TestLineConcurrentClientsWithBoundedPool(t *testing.T) {
	c := testConfig(TransportTCP)
	c.MaxInFlight = 2
	g := startGateway(t, c)
	startWorker(t, workerConfig(g, "w1"))
	startWorker(t, workerConfig(g, "w2"))
	waitLive(t, g, 2)

	var wg sync.WaitGroup
	replies := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := lineRoundTrip(g.Addr(), "EXTRATO;alice;pw")
			if err != nil {
				t.Error(err)
			}
			replies <- reply
		}()
	}
	wg.Wait()
	close(replies)

	for r := range replies {
		assert.Equal(t, "Operação finalizada com sucesso: EXTRATO processada para alice", r)
	}
}
