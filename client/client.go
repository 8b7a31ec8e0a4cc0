package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sutext.github.io/gamelink/backoff"
	"sutext.github.io/gamelink/event"
	"sutext.github.io/gamelink/frame"
	"sutext.github.io/gamelink/internal/queue"
	"sutext.github.io/gamelink/scope"
	"sutext.github.io/gamelink/xerr"
	"sutext.github.io/gamelink/xlog"
)

// gracefulCloseWait bounds how long Disconnect waits for the Close frame to
// leave the sender queue before forcing the transport down.
const gracefulCloseWait = 250 * time.Millisecond

// Client is the connection client. One sender task, one receiver task, one
// keepalive task and one reconnect supervisor run per active connection; all
// of them observe the session cancellation scope. The client is reusable: a
// disconnected client may connect again.
type Client struct {
	cfg       Config
	transport Transport
	codec     *frame.Codec
	policy    backoff.Backoff
	logger    *xlog.Logger
	handler   Handler
	notifier  *event.Notifier
	scopes    *scope.Manager
	ownScopes bool
	store     TokenStore
	metrics   Metrics
	health    *healthMonitor
	superv    *supervisor
	sendQueue *queue.Queue
	seq       atomic.Uint32

	mu         sync.RWMutex
	state      State
	conn       Conn
	connCancel context.CancelFunc
	disposed   bool
	loops      sync.WaitGroup
	closeOnce  sync.Once
}

// New builds a client from the config. Configuration errors are returned
// synchronously and are never retried.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport, err := ParseTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	codec, err := cfg.codec()
	if err != nil {
		return nil, err
	}
	o := newOptions(&cfg, opts...)
	c := &Client{
		cfg:       cfg,
		transport: transport,
		codec:     codec,
		policy:    o.policy,
		logger:    o.logger,
		handler:   o.handler,
		notifier:  o.notifier,
		scopes:    o.scopes,
		store:     o.store,
		state:     Disconnected,
		sendQueue: queue.New(cfg.SendQueueSize),
	}
	if c.scopes == nil {
		c.scopes = scope.NewManager().WithLogger(c.logger)
		c.ownScopes = true
	}
	c.health = newHealthMonitor(cfg.KeepaliveInterval, cfg.ProbeTimeout)
	c.health.sendPing = func() error {
		return c.pushControl(frame.NewPing())
	}
	c.health.onFailure = func(err error) {
		c.logger.Warn("keepalive probe failed", xlog.Err(err))
		c.teardown(err)
	}
	c.health.onLatency = func(rtt time.Duration) {
		c.metrics.recordLatency(rtt)
		c.notifier.LatencyMeasured(float64(rtt) / float64(time.Millisecond))
	}
	c.superv = newSupervisor(c, cfg.ReconnectDelay)
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Metrics returns a snapshot of the connection counters.
func (c *Client) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Notifier exposes the lifecycle event notifier for subscriptions.
func (c *Client) Notifier() *event.Notifier {
	return c.notifier
}

// Scopes exposes the cancellation scope manager supervising the client's
// background work.
func (c *Client) Scopes() *scope.Manager {
	return c.scopes
}

// Connect dials the server, retrying up to MaxRetryAttempts with the backoff
// policy between attempts (none before the first). It is only legal from
// Disconnected; a concurrent Connect returns AlreadyConnecting with no side
// effects. Backoff waits are cancellable: Disconnect during Connect
// interrupts them immediately.
func (c *Client) Connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return xerr.ClientDisposed
	}
	switch c.state {
	case Connecting:
		c.mu.Unlock()
		return xerr.AlreadyConnecting
	case Connected:
		c.mu.Unlock()
		return xerr.AlreadyConnected
	case Faulted:
		c.mu.Unlock()
		return xerr.ClientFaulted
	case Disconnecting:
		c.mu.Unlock()
		return xerr.NotConnected
	}
	c._setState(Connecting)
	c.mu.Unlock()

	// A cancelled session (explicit Disconnect or CancelSession) gets a
	// fresh scope for the new logical session.
	if c.scopes.SessionContext().Err() != nil {
		c.scopes.ResetSession()
	}
	ctx, stop := c.scopes.Linked(ctx)
	defer stop()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetryAttempts; attempt++ {
		if attempt > 1 {
			delay := c.policy.Next(int64(attempt - 1))
			c.logger.Debug("connect backoff", xlog.Attempt(attempt), xlog.Dur(delay))
			select {
			case <-ctx.Done():
				return c.abortConnect()
			case <-time.After(delay):
			}
		}
		conn, err := c.dial(ctx)
		if err == nil {
			if !c.finalizeConnect(conn) {
				return xerr.SessionCancelled
			}
			return nil
		}
		if ctx.Err() != nil {
			return c.abortConnect()
		}
		if !xerr.IsRetryable(err) {
			c.fault(err)
			return err
		}
		lastErr = err
		c.logger.Warn("connect attempt failed", xlog.Addr(c.cfg.ServerAddress), xlog.Attempt(attempt), xlog.Err(err))
	}
	c.metrics.errorOccurred()
	c.mu.Lock()
	c._setState(Disconnected)
	c.mu.Unlock()
	c.notifier.Error(fmt.Sprintf("connect failed after %d attempts: %v", c.cfg.MaxRetryAttempts, lastErr))
	return fmt.Errorf("%w: %w", xerr.RetryExhausted, lastErr)
}

// dial performs one connection attempt under the per-attempt timeout:
// transport dial, then the Hello/Welcome handshake.
func (c *Client) dial(ctx context.Context) (Conn, error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := newConn(c.transport, c.cfg.ServerAddress, c.codec)
	if err != nil {
		return nil, err
	}
	// Closing the half-open conn on deadline unblocks the handshake reads.
	stop := context.AfterFunc(actx, func() { conn.Close() })
	if err := conn.Dial(actx); err != nil {
		stop()
		return nil, c.attemptError(actx, ctx, err)
	}
	c.seq.Store(0)
	err = c.handshake(conn)
	if !stop() && err == nil {
		err = xerr.ConnectTimeout
	}
	if err != nil {
		conn.Close()
		return nil, c.attemptError(actx, ctx, err)
	}
	return conn, nil
}

// attemptError normalizes a per-attempt deadline into ConnectTimeout, keeping
// protocol errors intact.
func (c *Client) attemptError(actx, ctx context.Context, err error) error {
	if actx.Err() != nil && ctx.Err() == nil && xerr.ClassOf(err) == xerr.ClassTransient {
		return xerr.ConnectTimeout
	}
	return err
}

func (c *Client) handshake(conn Conn) error {
	token, _ := c.store.Load()
	hello := frame.NewHello(token)
	hello.Seq = c.seq.Add(1)
	hello.Timestamp = time.Now().UnixMilli()
	if err := conn.Write(hello); err != nil {
		return err
	}
	resp, err := conn.Read()
	if err != nil {
		return err
	}
	if resp.Type != frame.Welcome {
		return xerr.HandshakeRejected
	}
	if len(resp.Payload) > 0 {
		if err := c.store.Save(resp.Payload); err != nil {
			c.logger.Warn("resumption token not saved", xlog.Err(err))
		}
	}
	return nil
}

// finalizeConnect commits a successful dial. It reports false when a
// concurrent Disconnect took the state away while the handshake was finishing;
// the fresh conn is closed and no transition or event fires.
func (c *Client) finalizeConnect(conn Conn) bool {
	connCtx, connCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.state != Connecting {
		c.mu.Unlock()
		connCancel()
		conn.Close()
		return false
	}
	c.conn = conn
	c.connCancel = connCancel
	c._setState(Connected)
	c.mu.Unlock()
	c.metrics.connectionOpened()
	c.health.markActivity()
	c.trackConnLoop("connection.receiver", connCtx, func(ctx context.Context) error {
		return c.recvLoop(ctx, conn)
	})
	c.trackConnLoop("connection.health", connCtx, c.health.run)
	c.superv.start()
	c.logger.Info("connected", xlog.Addr(c.cfg.ServerAddress), xlog.Str("transport", c.transport.String()))
	c.notifier.Connected()
	return true
}

// abortConnect ends a cancelled Connect. When a concurrent Disconnect owns
// the state it keeps it; otherwise the client returns to Disconnected.
func (c *Client) abortConnect() error {
	c.mu.Lock()
	if c.state == Connecting {
		c._setState(Disconnected)
	}
	c.mu.Unlock()
	return xerr.SessionCancelled
}

func (c *Client) fault(err error) {
	c.mu.Lock()
	c._setState(Faulted)
	c.mu.Unlock()
	c.metrics.errorOccurred()
	c.logger.Error("unrecoverable connect error", xlog.Err(err))
	c.notifier.Error(err.Error())
}

// Send enqueues a message for the sender loop. It never blocks on network
// I/O: a full queue is reported as SendQueueFull (backpressure) instead.
func (c *Client) Send(m *frame.Message) error {
	if c.State() != Connected {
		return xerr.NotConnected
	}
	m.Seq = c.seq.Add(1)
	m.Timestamp = time.Now().UnixMilli()
	switch err := c.sendQueue.Push(func() { c.write(m) }); err {
	case nil:
		return nil
	case queue.ErrQueueIsFull:
		return xerr.SendQueueFull
	default:
		return xerr.ClientDisposed
	}
}

// SendData sends an application payload.
func (c *Client) SendData(payload []byte) error {
	return c.Send(frame.NewData(payload))
}

// pushControl sends a keepalive frame through the queue's priority lane so
// probes are not stuck behind queued application writes.
func (c *Client) pushControl(m *frame.Message) error {
	if c.State() != Connected {
		return xerr.NotConnected
	}
	m.Seq = c.seq.Add(1)
	m.Timestamp = time.Now().UnixMilli()
	switch err := c.sendQueue.Jump(func() { c.write(m) }); err {
	case nil:
		return nil
	case queue.ErrQueueIsFull:
		return xerr.SendQueueFull
	default:
		return xerr.ClientDisposed
	}
}

// write runs on the sender goroutine.
func (c *Client) write(m *frame.Message) {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()
	if state != Connected || conn == nil {
		return
	}
	if err := conn.Write(m); err != nil {
		c.teardown(err)
		return
	}
	c.logger.Debug("sent", xlog.Str("type", m.Type.String()), xlog.Seq(m.Seq))
	c.health.markActivity()
}

func (c *Client) recvLoop(ctx context.Context, conn Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	for {
		m, err := conn.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.teardown(err)
			return nil
		}
		c.health.markActivity()
		c.dispatch(m)
	}
}

func (c *Client) dispatch(m *frame.Message) {
	c.logger.Debug("received", xlog.Str("type", m.Type.String()), xlog.Seq(m.Seq))
	switch m.Type {
	case frame.Data:
		if err := c.handler.OnMessage(m); err != nil {
			c.logger.Error("message handler error", xlog.Seq(m.Seq), xlog.Err(err))
		}
	case frame.Ping:
		if err := c.pushControl(frame.NewPong()); err != nil {
			c.logger.Warn("pong not sent", xlog.Err(err))
		}
	case frame.Pong:
		c.health.handlePong()
	case frame.Close:
		c.logger.Info("server closed connection")
		c.teardown(xerr.ConnectionReset)
	default:
		// Hello/Welcome after the handshake carry no meaning
	}
}

// teardown handles an unintentional connection loss: protocol errors, probe
// timeouts, transport faults. The supervisor picks reconnection up; the
// session scope stays alive.
func (c *Client) teardown(err error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	connCancel := c.connCancel
	c.connCancel = nil
	c._setState(Disconnected)
	c.mu.Unlock()
	if connCancel != nil {
		connCancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.metrics.errorOccurred()
	c.metrics.connectionClosed()
	c.logger.Warn("connection lost", xlog.Err(err))
	c.notifier.Error(err.Error())
	c.notifier.Disconnected()
}

// Disconnect shuts the connection down intentionally. Idempotent. The session
// scope is cancelled before the socket goes down, so the health monitor and
// the supervisor stop first and no reconnect races the teardown. The wait for
// background loops is bounded by DisconnectTimeout, after which the transport
// is closed forcibly.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	switch c.state {
	case Disconnected, Disconnecting:
		c.mu.Unlock()
		return nil
	}
	wasConnected := c.state == Connected
	conn := c.conn
	c.conn = nil
	connCancel := c.connCancel
	c.connCancel = nil
	c._setState(Disconnecting)
	c.mu.Unlock()

	c.scopes.CancelSession()
	if connCancel != nil {
		connCancel()
	}

	if wasConnected && conn != nil {
		c.gracefulClose(conn)
	}

	done := make(chan struct{})
	go func() {
		c.loops.Wait()
		close(done)
	}()
	if conn != nil {
		conn.Close()
	}
	select {
	case <-done:
	case <-time.After(c.cfg.DisconnectTimeout):
		c.logger.Warn("background loops did not stop within disconnect timeout")
	}

	c.mu.Lock()
	c._setState(Disconnected)
	c.mu.Unlock()
	if wasConnected {
		c.metrics.connectionClosed()
	}
	c.logger.Info("disconnected", xlog.Addr(c.cfg.ServerAddress))
	c.notifier.Disconnected()
	return nil
}

// gracefulClose pushes a Close frame through the priority lane and waits
// briefly for it to reach the wire. Best effort only.
func (c *Client) gracefulClose(conn Conn) {
	sent := make(chan struct{})
	err := c.sendQueue.Jump(func() {
		closeMsg := frame.NewClose("client disconnect")
		closeMsg.Seq = c.seq.Add(1)
		closeMsg.Timestamp = time.Now().UnixMilli()
		if err := conn.Write(closeMsg); err != nil {
			c.logger.Debug("close frame not sent", xlog.Err(err))
		}
		close(sent)
	})
	if err != nil {
		return
	}
	select {
	case <-sent:
	case <-time.After(gracefulCloseWait):
	}
}

// Close disposes the client: Disconnect with the bounded wait, then release
// every resource exactly once. Safe from any state and any goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.state == Faulted {
			// Faulted holds no live connection; fall through to release.
			c._setState(Disconnected)
		}
		c.mu.Unlock()
		err = c.Disconnect()
		c.mu.Lock()
		c.disposed = true
		c.mu.Unlock()
		c.sendQueue.Close()
		if c.ownScopes {
			c.scopes.Shutdown()
		}
	})
	return err
}

// _setState must be called with c.mu held.
func (c *Client) _setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state change", xlog.Str("from", c.state.String()), xlog.Str("to", s.String()))
	c.state = s
}

// trackConnLoop runs fn under the session scope, additionally bounded by the
// connection's own context so loops from an old connection never outlive it.
func (c *Client) trackConnLoop(name string, connCtx context.Context, fn func(context.Context) error) {
	c.loops.Add(1)
	c.scopes.Go(name, scope.Session, func(ctx context.Context) error {
		defer c.loops.Done()
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(connCtx, cancel)
		defer stop()
		return fn(mctx)
	})
}

// trackLoop runs fn under the session scope for the session's whole lifetime.
func (c *Client) trackLoop(name string, fn func(context.Context) error) {
	c.loops.Add(1)
	c.scopes.Go(name, scope.Session, func(ctx context.Context) error {
		defer c.loops.Done()
		return fn(ctx)
	})
}
