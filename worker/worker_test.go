package worker

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 3 * time.Second

// fakeGateway receives datagram heartbeats and exchanges envelopes with a worker.
func fakeGateway(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrom(t *testing.T, conn *net.UDPConn) (string, *net.UDPAddr) {
	t.Helper()
	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(waitFor))
	n, src, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n]), src
}

func testConfig(transport Transport, gateway string) *Config {
	c := DefaultConfig("w1", transport)
	c.CandidatePorts = []int{0}
	c.GatewayHeartbeatAddr = gateway
	c.HeartbeatInterval = 50 * time.Millisecond
	return c
}

func start(t *testing.T, c *Config) *Worker {
	t.Helper()
	w, err := New(c)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"missing id", func(c *Config) { c.ID = "" }, ErrIDRequired},
		{"unknown transport", func(c *Config) { c.Transport = "sctp" }, ErrUnknownTransport},
		{"missing address", func(c *Config) { c.Address = "" }, ErrAddressRequired},
		{"no ports", func(c *Config) { c.CandidatePorts = nil }, ErrNoCandidatePorts},
		{"no gateway", func(c *Config) { c.GatewayHeartbeatAddr = "" }, ErrGatewayRequired},
		{"zero interval", func(c *Config) { c.HeartbeatInterval = 0 }, ErrInvalidHeartbeatInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig("w1", TransportUDP)
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}
	assert.NoError(t, DefaultConfig("w1", TransportTCP).Validate())
}

func TestDatagramWorkerHeartbeatsFromServingSocket(t *testing.T) {
	gw := fakeGateway(t)
	w := start(t, testConfig(TransportUDP, gw.LocalAddr().String()))

	msg, src := readFrom(t, gw)
	assert.Equal(t, protocol.HeartbeatMessage, msg)
	assert.Equal(t, w.Addr().String(), src.String())
}

func TestDatagramWorkerAcknowledges(t *testing.T) {
	gw := fakeGateway(t)
	w := start(t, testConfig(TransportUDP, gw.LocalAddr().String()))
	w.PauseHeartbeats(true)

	to := w.Addr().(*net.UDPAddr)
	send := func(payload string) string {
		_, err := gw.WriteToUDP([]byte(payload), to)
		require.NoError(t, err)
		for {
			msg, _ := readFrom(t, gw)
			if msg != protocol.HeartbeatMessage {
				return msg
			}
		}
	}

	assert.Equal(t, "id-1;ACK;OK;SALDO processada para alice", send("id-1;SALDO;alice;pw"))
	assert.Equal(t, "id-2;ACK;Falhou;Formato de requisição inválido", send("id-2;HELLO"))
	assert.Equal(t, int64(2), w.Handled())
}

func TestWorkerDropsInvalidEnvelopes(t *testing.T) {
	gw := fakeGateway(t)
	c := testConfig(TransportUDP, gw.LocalAddr().String())
	w := start(t, c)
	w.PauseHeartbeats(true)

	_, err := gw.WriteToUDP([]byte("no-separator"), w.Addr().(*net.UDPAddr))
	require.NoError(t, err)

	// drain the heartbeats sent before the pause
	gw.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 256)
	for {
		n, _, err := gw.ReadFromUDP(buf)
		if err != nil {
			break
		}
		assert.Equal(t, protocol.HeartbeatMessage, string(buf[:n]))
	}
	assert.Equal(t, int64(0), w.Handled())
}

func TestSilentWorkerNeverReplies(t *testing.T) {
	gw := fakeGateway(t)
	c := testConfig(TransportUDP, gw.LocalAddr().String())
	c.Silent = true
	w := start(t, c)
	w.PauseHeartbeats(true)

	_, err := gw.WriteToUDP([]byte("id-1;SALDO;alice;pw"), w.Addr().(*net.UDPAddr))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return w.Handled() == 1 }, waitFor, 10*time.Millisecond)
	gw.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 256)
	for {
		n, _, err := gw.ReadFromUDP(buf)
		if err != nil {
			break
		}
		assert.Equal(t, protocol.HeartbeatMessage, string(buf[:n]))
	}
}

func TestStreamWorker(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	c := testConfig(TransportTCP, lis.Addr().String())
	c.Handler = func(req protocol.Request) (protocol.Status, string) {
		return protocol.StatusFailed, "sem saldo para " + req.User()
	}
	w := start(t, c)

	// the first heartbeat names the serving port
	hb, err := lis.Accept()
	require.NoError(t, err)
	hb.SetDeadline(time.Now().Add(waitFor))
	line, err := bufio.NewReader(hb).ReadString('\n')
	hb.Close()
	require.NoError(t, err)
	port, err := protocol.ParseStreamHeartbeat(strings.TrimSpace(line))
	require.NoError(t, err)
	assert.Equal(t, w.Addr().(*net.TCPAddr).Port, port)

	conn, err := net.Dial("tcp", w.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(waitFor))
	_, err = io.WriteString(conn, "abc;SACAR;bob;pw;10\n")
	require.NoError(t, err)
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "abc;ACK;Falhou;sem saldo para bob\n", reply)
}

func TestBindSkipsTakenPorts(t *testing.T) {
	taken, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	busy := taken.LocalAddr().(*net.UDPAddr).Port

	gw := fakeGateway(t)
	c := testConfig(TransportUDP, gw.LocalAddr().String())
	c.CandidatePorts = []int{busy, 0}
	w := start(t, c)
	assert.NotEqual(t, busy, w.Addr().(*net.UDPAddr).Port)

	c = testConfig(TransportUDP, gw.LocalAddr().String())
	c.ID = "w2"
	c.CandidatePorts = []int{busy}
	w2, err := New(c)
	require.NoError(t, err)
	assert.ErrorIs(t, w2.Start(), ErrNoFreePort)
}

func TestLifecycleErrors(t *testing.T) {
	gw := fakeGateway(t)
	w, err := New(testConfig(TransportUDP, gw.LocalAddr().String()))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Stop(), ErrNotStarted)
	assert.Nil(t, w.Addr())

	require.NoError(t, w.Start())
	assert.ErrorIs(t, w.Start(), ErrAlreadyStarted)
	assert.NoError(t, w.Stop())

	_, err = New(nil)
	assert.Error(t, err)
}

func TestManager(t *testing.T) {
	gw := fakeGateway(t)
	m := NewManager(*testConfig(TransportUDP, gw.LocalAddr().String()))
	defer m.StopAll()

	w1, err := m.CreateWorker()
	require.NoError(t, err)
	w2, err := m.CreateWorker()
	require.NoError(t, err)
	assert.Equal(t, "worker-1", w1.ID())
	assert.Equal(t, "worker-2", w2.ID())
	assert.Equal(t, []*Worker{w1, w2}, m.GetWorkers())

	require.NoError(t, m.DeleteWorker(0))
	assert.Equal(t, []*Worker{w2}, m.GetWorkers())
	assert.Error(t, m.DeleteWorker(5))

	w3, err := m.CreateWorker()
	require.NoError(t, err)
	assert.Equal(t, "worker-3", w3.ID())

	require.NoError(t, m.StopAll())
	assert.Empty(t, m.GetWorkers())
}
