package client

import (
	"context"
	crand "crypto/rand"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sutext.github.io/gamelink/event"
	"sutext.github.io/gamelink/frame"
	"sutext.github.io/gamelink/xerr"
)

// testServer is a loopback endpoint speaking the gamelink frame protocol:
// Hello/Welcome handshake, Ping answered with Pong, Data echoed back.
type testServer struct {
	t     *testing.T
	ln    net.Listener
	codec *frame.Codec
	done  chan struct{}

	mu     sync.Mutex
	conns  []net.Conn
	hellos [][]byte

	accepts     atomic.Int32
	rejectHello atomic.Bool
	silent      atomic.Bool
	mute        atomic.Bool
	stall       time.Duration
	token       []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	codec, err := frame.NewCodec(512, 4<<20)
	require.NoError(t, err)
	s := &testServer{
		t:     t,
		ln:    ln,
		codec: codec,
		done:  make(chan struct{}),
		token: []byte("tok-1"),
	}
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *testServer) addr() string {
	return s.ln.Addr().String()
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepts.Add(1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *testServer) serve(conn net.Conn) {
	defer conn.Close()
	hello, err := s.codec.Decode(conn)
	if err != nil || hello.Type != frame.Hello {
		return
	}
	s.mu.Lock()
	s.hellos = append(s.hellos, append([]byte(nil), hello.Payload...))
	s.mu.Unlock()
	if s.stall > 0 {
		time.Sleep(s.stall)
	}
	if s.rejectHello.Load() {
		s.codec.Encode(conn, frame.NewClose("handshake rejected"))
		return
	}
	if err := s.codec.Encode(conn, frame.NewWelcome(s.token)); err != nil {
		return
	}
	if s.mute.Load() {
		// stop reading so the client's writes back up
		<-s.done
		return
	}
	for {
		m, err := s.codec.Decode(conn)
		if err != nil {
			return
		}
		switch m.Type {
		case frame.Ping:
			if !s.silent.Load() {
				s.codec.Encode(conn, frame.NewPong())
			}
		case frame.Data:
			if !s.silent.Load() {
				s.codec.Encode(conn, frame.NewData(m.Payload))
			}
		case frame.Close:
			return
		}
	}
}

func (s *testServer) helloPayloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.hellos))
	copy(out, s.hellos)
	return out
}

// dropConns closes every server-side connection, simulating a network loss.
func (s *testServer) dropConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// writeRaw pushes raw bytes down the newest connection, bypassing the codec.
func (s *testServer) writeRaw(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.conns)
	s.conns[len(s.conns)-1].Write(b)
}

func (s *testServer) close() {
	s.ln.Close()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.dropConns()
}

// recorder collects lifecycle events on buffered channels.
type recorder struct {
	connected    chan struct{}
	disconnected chan struct{}
	errs         chan string
	latency      chan float64
}

func newRecorder(c *Client) *recorder {
	r := &recorder{
		connected:    make(chan struct{}, 16),
		disconnected: make(chan struct{}, 16),
		errs:         make(chan string, 16),
		latency:      make(chan float64, 16),
	}
	c.Notifier().Subscribe(event.Funcs{
		Connected:    func() { r.connected <- struct{}{} },
		Disconnected: func() { r.disconnected <- struct{}{} },
		Error:        func(msg string) { r.errs <- msg },
		LatencyMeasured: func(v float64) {
			select {
			case r.latency <- v:
			default:
			}
		},
	})
	return r
}

func waitSignal[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state never reached %v, still %v", want, c.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func baseConfig(addr string) Config {
	return Config{
		ServerAddress:     addr,
		Transport:         "tcp",
		ConnectTimeout:    2 * time.Second,
		MaxRetryAttempts:  1,
		RetryBaseDelay:    20 * time.Millisecond,
		BackoffStrategy:   "constant",
		KeepaliveInterval: time.Hour,
		ProbeTimeout:      time.Second,
		ReconnectDelay:    time.Hour,
		DisconnectTimeout: 2 * time.Second,
	}
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) *Client {
	t.Helper()
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectSendEcho(t *testing.T) {
	srv := newTestServer(t)
	echoes := make(chan []byte, 1)
	c := newTestClient(t, baseConfig(srv.addr()), WithHandler(HandlerFunc(func(m *frame.Message) error {
		echoes <- m.Payload
		return nil
	})))
	r := newRecorder(c)

	require.NoError(t, c.Connect(context.Background()))
	waitSignal(t, r.connected, "connected event")
	assert.Equal(t, Connected, c.State())

	require.NoError(t, c.SendData([]byte("hello world")))
	got := waitSignal(t, echoes, "echo")
	assert.Equal(t, []byte("hello world"), got)

	require.NoError(t, c.Disconnect())
	waitSignal(t, r.disconnected, "disconnected event")
	assert.Equal(t, Disconnected, c.State())

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.TotalConnections)
	assert.Equal(t, uint64(1), m.TotalDisconnections)
	assert.Equal(t, uint64(0), m.TotalErrors)
}

func TestConnectWhileConnecting(t *testing.T) {
	srv := newTestServer(t)
	srv.stall = 300 * time.Millisecond
	c := newTestClient(t, baseConfig(srv.addr()))

	errs := make(chan error, 1)
	go func() { errs <- c.Connect(context.Background()) }()
	waitState(t, c, Connecting)

	assert.ErrorIs(t, c.Connect(context.Background()), xerr.AlreadyConnecting)
	require.NoError(t, waitSignal(t, errs, "first connect"))
	assert.ErrorIs(t, c.Connect(context.Background()), xerr.AlreadyConnected)
}

func TestSendWhenDisconnected(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, baseConfig(srv.addr()))
	assert.ErrorIs(t, c.SendData([]byte("nope")), xerr.NotConnected)
}

func TestConnectRetryExhausted(t *testing.T) {
	// grab a port nothing listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := baseConfig(addr)
	cfg.MaxRetryAttempts = 2
	cfg.ConnectTimeout = 500 * time.Millisecond
	c := newTestClient(t, cfg)

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, xerr.RetryExhausted)
	assert.Equal(t, Disconnected, c.State())
	assert.GreaterOrEqual(t, c.Metrics().TotalErrors, uint64(1))
}

func TestHandshakeRejectionFaultsClient(t *testing.T) {
	srv := newTestServer(t)
	srv.rejectHello.Store(true)
	c := newTestClient(t, baseConfig(srv.addr()))

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, xerr.HandshakeRejected)
	assert.Equal(t, Faulted, c.State())

	// faulted requires an explicit disconnect before reconnecting
	assert.ErrorIs(t, c.Connect(context.Background()), xerr.ClientFaulted)
	require.NoError(t, c.Disconnect())

	srv.rejectHello.Store(false)
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Connected, c.State())
}

func TestDisconnectInterruptsBackoff(t *testing.T) {
	// a listener that drops every connection before the handshake
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	cfg := baseConfig(ln.Addr().String())
	cfg.MaxRetryAttempts = 5
	cfg.RetryBaseDelay = 2 * time.Second
	c := newTestClient(t, cfg)

	errs := make(chan error, 1)
	go func() { errs <- c.Connect(context.Background()) }()
	waitState(t, c, Connecting)
	// let the first attempt fail and the backoff wait begin
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, c.Disconnect())
	err = waitSignal(t, errs, "connect result")
	assert.ErrorIs(t, err, xerr.SessionCancelled)
	assert.Less(t, time.Since(start), cfg.RetryBaseDelay, "backoff wait must be interrupted, not served out")
}

func TestSendBackpressure(t *testing.T) {
	srv := newTestServer(t)
	srv.mute.Store(true)
	cfg := baseConfig(srv.addr())
	cfg.SendQueueSize = 1
	cfg.MaxFrameSize = 2 << 20
	c := newTestClient(t, cfg)
	require.NoError(t, c.Connect(context.Background()))

	// incompressible payloads so the socket buffers fill quickly
	payload := make([]byte, 512<<10)
	_, err := crand.Read(payload)
	require.NoError(t, err)

	var full bool
	for i := 0; i < 64; i++ {
		if err := c.SendData(payload); errors.Is(err, xerr.SendQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full, "a stalled peer must surface as SendQueueFull, not a blocked Send")
	assert.Equal(t, Connected, c.State(), "backpressure is not a connection error")
}

func TestOversizedFrameTearsConnectionDown(t *testing.T) {
	srv := newTestServer(t)
	cfg := baseConfig(srv.addr())
	cfg.MaxFrameSize = 1024
	c := newTestClient(t, cfg)
	r := newRecorder(c)
	require.NoError(t, c.Connect(context.Background()))
	waitSignal(t, r.connected, "connected event")

	// declared length way beyond the client's max frame size
	srv.writeRaw([]byte{0x70, 0x11, 0x01, 0x00})

	waitSignal(t, r.errs, "protocol error event")
	waitSignal(t, r.disconnected, "disconnected event")
	waitState(t, c, Disconnected)
	assert.GreaterOrEqual(t, c.Metrics().TotalErrors, uint64(1))
}

func TestSupervisorReconnectsWithResumptionToken(t *testing.T) {
	srv := newTestServer(t)
	cfg := baseConfig(srv.addr())
	cfg.ReconnectDelay = 50 * time.Millisecond
	c := newTestClient(t, cfg)
	r := newRecorder(c)
	require.NoError(t, c.Connect(context.Background()))
	waitSignal(t, r.connected, "connected event")

	srv.dropConns()
	waitSignal(t, r.disconnected, "disconnected event")

	// the supervisor dials again under the still-live session scope
	waitSignal(t, r.connected, "reconnected event")
	assert.Equal(t, Connected, c.State())

	hellos := srv.helloPayloads()
	require.Len(t, hellos, 2)
	assert.Empty(t, hellos[0], "first handshake carries no token")
	assert.Equal(t, []byte("tok-1"), hellos[1], "reconnect must resume with the issued token")
	assert.Equal(t, uint64(2), c.Metrics().TotalConnections)
}

func TestKeepaliveMeasuresLatency(t *testing.T) {
	srv := newTestServer(t)
	cfg := baseConfig(srv.addr())
	cfg.KeepaliveInterval = 50 * time.Millisecond
	cfg.ProbeTimeout = 2 * time.Second
	c := newTestClient(t, cfg)
	r := newRecorder(c)
	require.NoError(t, c.Connect(context.Background()))

	rtt := waitSignal(t, r.latency, "latency sample")
	assert.GreaterOrEqual(t, rtt, 0.0)
	assert.Greater(t, c.Metrics().AverageLatency, time.Duration(0))
	assert.Equal(t, uint64(0), c.Metrics().TotalErrors)
}

func TestProbeTimeoutTearsConnectionDown(t *testing.T) {
	srv := newTestServer(t)
	srv.silent.Store(true)
	cfg := baseConfig(srv.addr())
	cfg.KeepaliveInterval = 50 * time.Millisecond
	cfg.ProbeTimeout = 100 * time.Millisecond
	c := newTestClient(t, cfg)
	r := newRecorder(c)
	require.NoError(t, c.Connect(context.Background()))

	waitSignal(t, r.errs, "probe failure event")
	waitSignal(t, r.disconnected, "disconnected event")
	waitState(t, c, Disconnected)
}

func TestCloseDisposesClient(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, baseConfig(srv.addr()))
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Connect(context.Background()), xerr.ClientDisposed)
	assert.ErrorIs(t, c.SendData([]byte("x")), xerr.NotConnected)
	// idempotent
	require.NoError(t, c.Close())
}

// stubConn is an in-memory Conn for transition tests that bypass the network.
type stubConn struct {
	closed atomic.Bool
}

func (s *stubConn) Dial(ctx context.Context) error { return nil }
func (s *stubConn) Close() error                   { s.closed.Store(true); return nil }
func (s *stubConn) Read() (*frame.Message, error)  { return nil, io.EOF }
func (s *stubConn) Write(m *frame.Message) error   { return nil }

func TestDisconnectWinsOverLateDialSuccess(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, baseConfig(srv.addr()))
	r := newRecorder(c)

	c.mu.Lock()
	c._setState(Connecting)
	c.mu.Unlock()
	require.NoError(t, c.Disconnect())
	waitSignal(t, r.disconnected, "disconnected event")

	// the dial that was in flight completes now; it must not resurrect the client
	conn := &stubConn{}
	assert.False(t, c.finalizeConnect(conn))
	assert.True(t, conn.closed.Load(), "late conn must be closed")
	assert.Equal(t, Disconnected, c.State())
	select {
	case <-r.connected:
		t.Fatal("connected event fired after an intentional disconnect")
	default:
	}
	assert.Equal(t, uint64(0), c.Metrics().TotalConnections)
}

func TestStoppedQueueIsNotBackpressure(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, baseConfig(srv.addr()))
	require.NoError(t, c.Connect(context.Background()))

	c.sendQueue.Close()
	<-c.sendQueue.Done()
	assert.ErrorIs(t, c.pushControl(frame.NewPing()), xerr.ClientDisposed)
	assert.ErrorIs(t, c.SendData([]byte("x")), xerr.ClientDisposed)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := baseConfig("127.0.0.1:9000")
		cfg.ApplyDefaults()
		return cfg
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"empty address", func(c *Config) { c.ServerAddress = "" }, xerr.InvalidServerAddress},
		{"address without port", func(c *Config) { c.ServerAddress = "localhost" }, xerr.InvalidServerAddress},
		{"unknown transport", func(c *Config) { c.Transport = "carrier-pigeon" }, xerr.TransportNotSupported},
		{"unknown backoff", func(c *Config) { c.BackoffStrategy = "fibonacci" }, xerr.InvalidConfigValue},
		{"zero attempts", func(c *Config) { c.MaxRetryAttempts = 0 }, xerr.InvalidConfigValue},
		{"negative attempts", func(c *Config) { c.MaxRetryAttempts = -1 }, xerr.InvalidConfigValue},
		{"negative timeout", func(c *Config) { c.ConnectTimeout = -time.Second }, xerr.InvalidConfigValue},
		{"zero queue", func(c *Config) { c.SendQueueSize = -1 }, xerr.InvalidConfigValue},
		{"negative threshold", func(c *Config) { c.CompressionThreshold = -1 }, xerr.InvalidConfigValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, xerr.InvalidServerAddress)
}

func TestParseTransport(t *testing.T) {
	for s, want := range map[string]Transport{"tcp": TransportTCP, "": TransportTCP, "ws": TransportWS, "websocket": TransportWS, "grpc": TransportGRPC} {
		got, err := ParseTransport(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTransport("udp")
	assert.ErrorIs(t, err, xerr.TransportNotSupported)
}
