package client

import (
	"net"
	"time"

	"sutext.github.io/gamelink/backoff"
	"sutext.github.io/gamelink/event"
	"sutext.github.io/gamelink/frame"
	"sutext.github.io/gamelink/scope"
	"sutext.github.io/gamelink/xerr"
	"sutext.github.io/gamelink/xlog"
)

// Config is the connection configuration. It is immutable after the client is
// constructed; Validate rejects bad values synchronously, they are never
// retried.
type Config struct {
	ServerAddress        string        `yaml:"server_address"`
	Transport            string        `yaml:"transport"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	MaxRetryAttempts     int           `yaml:"max_retry_attempts"`
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay        time.Duration `yaml:"retry_max_delay"`
	BackoffStrategy      string        `yaml:"backoff_strategy"`
	EnableJitter         bool          `yaml:"enable_jitter"`
	KeepaliveInterval    time.Duration `yaml:"keepalive_interval"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	CompressionThreshold int           `yaml:"compression_threshold"`
	MaxFrameSize         int           `yaml:"max_frame_size"`
	SendQueueSize        int           `yaml:"send_queue_size"`
	DisconnectTimeout    time.Duration `yaml:"disconnect_timeout"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.BackoffStrategy == "" {
		c.BackoffStrategy = "exponential"
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 10 * time.Second
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = 512
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = 1 << 20
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = 256
	}
	if c.DisconnectTimeout == 0 {
		c.DisconnectTimeout = 5 * time.Second
	}
}

// Validate checks the configuration. All violations are configuration errors.
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return xerr.InvalidServerAddress
	}
	if _, _, err := net.SplitHostPort(c.ServerAddress); err != nil {
		return xerr.InvalidServerAddress
	}
	if _, err := ParseTransport(c.Transport); err != nil {
		return err
	}
	switch c.BackoffStrategy {
	case "linear", "exponential", "constant":
	default:
		return xerr.InvalidConfigValue
	}
	if c.ConnectTimeout <= 0 || c.RetryBaseDelay <= 0 ||
		c.KeepaliveInterval <= 0 || c.ProbeTimeout <= 0 ||
		c.ReconnectDelay <= 0 || c.DisconnectTimeout <= 0 {
		return xerr.InvalidConfigValue
	}
	if c.MaxRetryAttempts < 1 || c.SendQueueSize < 1 {
		return xerr.InvalidConfigValue
	}
	if c.MaxFrameSize <= 0 || c.CompressionThreshold < 0 {
		return xerr.InvalidConfigValue
	}
	return nil
}

// Backoff builds the retry policy described by the config.
func (c *Config) Backoff() backoff.Backoff {
	var b backoff.Backoff
	switch c.BackoffStrategy {
	case "linear":
		b = backoff.Linear(c.RetryBaseDelay)
	case "constant":
		b = backoff.Constant(c.RetryBaseDelay)
	default:
		b = backoff.Exponential(c.RetryBaseDelay, c.RetryMaxDelay)
	}
	if c.EnableJitter {
		b = backoff.Jitter(b, 0.20)
	}
	return b
}

func (c *Config) codec() (*frame.Codec, error) {
	return frame.NewCodec(c.CompressionThreshold, c.MaxFrameSize)
}

// Handler receives application messages from the receive loop.
type Handler interface {
	OnMessage(m *frame.Message) error
}

type emptyHandler struct{}

func (emptyHandler) OnMessage(m *frame.Message) error {
	return nil
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(m *frame.Message) error

func (f HandlerFunc) OnMessage(m *frame.Message) error {
	return f(m)
}

type options struct {
	logger   *xlog.Logger
	handler  Handler
	notifier *event.Notifier
	scopes   *scope.Manager
	store    TokenStore
	policy   backoff.Backoff
}

type Option struct {
	f func(*options)
}

func newOptions(cfg *Config, opts ...Option) *options {
	o := &options{
		logger:  xlog.Default(),
		handler: emptyHandler{},
		store:   NewMemoryTokenStore(),
	}
	for _, opt := range opts {
		opt.f(o)
	}
	if o.notifier == nil {
		o.notifier = event.NewNotifier().WithLogger(o.logger)
	}
	if o.policy == nil {
		o.policy = cfg.Backoff()
	}
	return o
}

// WithLogger sets the client logger.
func WithLogger(l *xlog.Logger) Option {
	return Option{f: func(o *options) {
		o.logger = l
	}}
}

// WithHandler sets the application message handler.
func WithHandler(h Handler) Option {
	return Option{f: func(o *options) {
		o.handler = h
	}}
}

// WithNotifier injects a shared event notifier.
func WithNotifier(n *event.Notifier) Option {
	return Option{f: func(o *options) {
		o.notifier = n
	}}
}

// WithScopes injects a shared cancellation scope manager. The caller keeps
// ownership; Close will not shut it down.
func WithScopes(m *scope.Manager) Option {
	return Option{f: func(o *options) {
		o.scopes = m
	}}
}

// WithTokenStore sets the resumption token store.
func WithTokenStore(s TokenStore) Option {
	return Option{f: func(o *options) {
		o.store = s
	}}
}

// WithBackoff overrides the policy built from the config.
func WithBackoff(b backoff.Backoff) Option {
	return Option{f: func(o *options) {
		o.policy = b
	}}
}
