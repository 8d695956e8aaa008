package gateway

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/adamgarcia4/goLearning/gateway/membership"
	"github.com/adamgarcia4/goLearning/gateway/protocol"
	"github.com/adamgarcia4/goLearning/gateway/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 3 * time.Second

func testConfig(t Transport) *Config {
	c := DefaultConfig(t)
	c.Port = 0
	c.HeartbeatPort = 0
	c.StalenessWindow = 500 * time.Millisecond
	c.SweepInterval = 50 * time.Millisecond
	c.CapacityBackoff = 10 * time.Millisecond
	c.ForwardTimeout = 2 * time.Second
	c.ClientReadTimeout = 2 * time.Second
	c.RetryInterval = 50 * time.Millisecond
	c.RetryTimeout = 200 * time.Millisecond
	c.WAL.Backend = WALBackendMemory
	return c
}

func startGateway(t *testing.T, c *Config) *Gateway {
	t.Helper()
	g, err := New(c)
	require.NoError(t, err)
	require.NoError(t, g.Start())
	t.Cleanup(func() { require.NoError(t, g.Stop()) })
	return g
}

func workerConfig(g *Gateway, id string) *worker.Config {
	transport := worker.TransportTCP
	if g.GetConfig().Transport == TransportUDP {
		transport = worker.TransportUDP
	}
	c := worker.DefaultConfig(id, transport)
	c.CandidatePorts = []int{0}
	c.GatewayHeartbeatAddr = g.HeartbeatAddr().String()
	c.HeartbeatInterval = 50 * time.Millisecond
	return c
}

func startWorker(t *testing.T, c *worker.Config) *worker.Worker {
	t.Helper()
	w, err := worker.New(c)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })
	return w
}

func waitLive(t *testing.T, g *Gateway, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return g.Registry().Len() == n }, waitFor, 10*time.Millisecond,
		"expected %d live workers", n)
}

// sendLine opens a client connection, writes one line and returns the reply line.
func sendLine(t *testing.T, addr net.Addr, line string) string {
	t.Helper()
	reply, err := lineRoundTrip(addr, line)
	require.NoError(t, err)
	return reply
}

func lineRoundTrip(addr net.Addr, line string) (string, error) {
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(waitFor))

	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return "", err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(reply, "\n"), nil
}

// fakeStreamWorker is a TCP worker whose reply is scripted. It counts
// connections so tests can prove nothing reached it.
type fakeStreamWorker struct {
	lis      net.Listener
	accepted atomic.Int64
	lines    chan string
	wg       sync.WaitGroup
}

func newFakeStreamWorker(t *testing.T, reply func(env protocol.Envelope, line string) string) *fakeStreamWorker {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeStreamWorker{lis: lis, lines: make(chan string, 64)}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			f.accepted.Add(1)
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				defer conn.Close()
				conn.SetDeadline(time.Now().Add(waitFor))
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				line = strings.TrimSpace(line)
				f.lines <- line
				env, _ := protocol.ParseEnvelope(line)
				io.WriteString(conn, reply(env, line)+"\n")
			}()
		}
	}()
	t.Cleanup(func() {
		lis.Close()
		f.wg.Wait()
	})
	return f
}

func (f *fakeStreamWorker) address() string {
	return f.lis.Addr().String()
}

// register announces the fake worker with a single TCP heartbeat
func (f *fakeStreamWorker) register(t *testing.T, g *Gateway) {
	t.Helper()
	conn, err := net.Dial("tcp", g.HeartbeatAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, protocol.StreamHeartbeat(f.lis.Addr().(*net.TCPAddr).Port)+"\n")
	require.NoError(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	c := testConfig(TransportTCP)
	c.StalenessWindow = 0
	_, err = New(c)
	assert.ErrorIs(t, err, ErrInvalidStalenessWindow)

	c = testConfig(TransportUDP)
	c.WAL.Backend = WALBackendFile
	c.WAL.Path = ""
	_, err = New(c)
	assert.ErrorIs(t, err, ErrWALPathRequired)
}

func TestStartStopLifecycle(t *testing.T) {
	g, err := New(testConfig(TransportTCP))
	require.NoError(t, err)
	assert.ErrorIs(t, g.Stop(), ErrNotStarted)

	require.NoError(t, g.Start())
	assert.ErrorIs(t, g.Start(), ErrAlreadyStarted)
	assert.NotNil(t, g.Addr())
	assert.NotNil(t, g.HeartbeatAddr())
	assert.Nil(t, g.WAL())
	require.NoError(t, g.Stop())
}

func TestStartReportsBindErrors(t *testing.T) {
	first := startGateway(t, testConfig(TransportTCP))

	c := testConfig(TransportTCP)
	_, port, err := net.SplitHostPort(first.HeartbeatAddr().String())
	require.NoError(t, err)
	c.HeartbeatPort, err = strconv.Atoi(port)
	require.NoError(t, err)

	g, err := New(c)
	require.NoError(t, err)
	assert.Error(t, g.Start())
	assert.ErrorIs(t, g.Stop(), ErrNotStarted)
}

func TestWorkersJoinAndLeave(t *testing.T) {
	g := startGateway(t, testConfig(TransportTCP))

	w1 := startWorker(t, workerConfig(g, "w1"))
	startWorker(t, workerConfig(g, "w2"))
	waitLive(t, g, 2)

	w1.PauseHeartbeats(true)
	waitLive(t, g, 1)
	assert.NotContains(t, g.Registry().Snapshot(), membership.WorkerAddress(w1.Addr().String()))

	w1.PauseHeartbeats(false)
	waitLive(t, g, 2)
}

func TestStartCanBeRetriedAfterBindFailure(t *testing.T) {
	busy, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	c := testConfig(TransportUDP)
	c.Port = busy.LocalAddr().(*net.UDPAddr).Port
	g, err := New(c)
	require.NoError(t, err)

	// the client port fails after the WAL is already open
	require.Error(t, g.Start())
	assert.Nil(t, g.WAL())

	require.NoError(t, busy.Close())
	require.NoError(t, g.Start())
	defer func() { require.NoError(t, g.Stop()) }()
	assert.NotNil(t, g.WAL())
}
