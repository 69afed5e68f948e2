package graphbolt

import (
	"context"
	"time"
)

const (
	// DefaultMaxConnectionPoolSize is the per-address cap on live
	// connections (spec.md §6).
	DefaultMaxConnectionPoolSize = 100
	// DefaultConnectionAcquisitionTimeout bounds how long Acquire waits for
	// a free pool slot.
	DefaultConnectionAcquisitionTimeout = 60 * time.Second
	// DefaultConnectionTimeout bounds TCP/TLS/handshake establishment.
	DefaultConnectionTimeout = 30 * time.Second
	// DefaultMaxConnectionLifetime is the age at which a connection is
	// retired instead of reused.
	DefaultMaxConnectionLifetime = 1 * time.Hour
	// DefaultMaxTransactionRetryTime is the retry engine's total budget per
	// logical transaction.
	DefaultMaxTransactionRetryTime = 30 * time.Second
	// DefaultFetchSize is the PULL batch size a Cursor requests.
	DefaultFetchSize = 1000
	// DefaultUserAgent is sent in HELLO's extra map.
	DefaultUserAgent = "graphbolt/1.0"
)

// EncryptionLevel selects whether the driver establishes TLS before the
// Bolt handshake.
type EncryptionLevel int

const (
	EncryptionNone EncryptionLevel = iota
	EncryptionRequired
)

// Option configures a Driver, in the same functional-options shape as
// aznet.Option.
type Option func(*Config)

// Config holds every tunable named in spec.md §6. Its zero value is never
// used directly — build one via defaultConfig() and Options.
type Config struct {
	ctx    context.Context
	cancel context.CancelFunc

	metrics Metrics
	logger  Logger

	encryption   EncryptionLevel
	trust        TrustStrategy
	userAgent    string
	ipv6Enabled  bool
	socketKeepAlive bool

	maxConnectionPoolSize       int
	maxIdleConnectionPoolSize   int
	idlePoolSizeSet             bool
	connectionAcquisitionTimeout time.Duration
	connectionTimeout           time.Duration
	maxConnectionLifetime       time.Duration
	connectionIdleTimeout       time.Duration
	connectionLivenessThreshold time.Duration
	livenessThresholdSet        bool

	maxTransactionRetryTime time.Duration
	fetchSize               int64

	telemetryDisabled bool
}

// Validate mirrors aznet.Config.Validate's "fail fast on nonsensical
// combinations" role, extended to this driver's surface.
func (c *Config) Validate() error {
	if c.maxConnectionPoolSize <= 0 {
		return ErrInvalidConfig
	}
	if c.maxIdleConnectionPoolSize < 0 || c.maxIdleConnectionPoolSize > c.maxConnectionPoolSize {
		return ErrInvalidConfig
	}
	if c.livenessThresholdSet && c.connectionLivenessThreshold < 0 {
		return ErrInvalidConfig
	}
	if c.fetchSize == 0 {
		return ErrInvalidConfig
	}
	return nil
}

func defaultConfig() *Config {
	ctx, cancel := context.WithCancel(context.Background())
	return &Config{
		ctx:                          ctx,
		cancel:                       cancel,
		metrics:                      NewDefaultMetrics(),
		logger:                      NewNopLogger(),
		encryption:                   EncryptionNone,
		trust:                        TrustSystemCAs(),
		userAgent:                    DefaultUserAgent,
		ipv6Enabled:                  false,
		socketKeepAlive:              true,
		maxConnectionPoolSize:        DefaultMaxConnectionPoolSize,
		maxIdleConnectionPoolSize:    DefaultMaxConnectionPoolSize,
		connectionAcquisitionTimeout: DefaultConnectionAcquisitionTimeout,
		connectionTimeout:            DefaultConnectionTimeout,
		maxConnectionLifetime:        DefaultMaxConnectionLifetime,
		connectionIdleTimeout:        0, // infinite
		maxTransactionRetryTime:      DefaultMaxTransactionRetryTime,
		fetchSize:                    DefaultFetchSize,
	}
}

func applyConfig(opts []Option) *Config {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if !cfg.idlePoolSizeSet {
		cfg.maxIdleConnectionPoolSize = cfg.maxConnectionPoolSize
	}
	return cfg
}

// WithEncryption sets whether the driver wraps its TCP connections in TLS
// before the Bolt handshake.
func WithEncryption(level EncryptionLevel) Option {
	return func(c *Config) { c.encryption = level }
}

// WithTrustStrategy sets the TLS certificate trust policy (tls.go).
func WithTrustStrategy(t TrustStrategy) Option {
	return func(c *Config) { c.trust = t }
}

// WithUserAgent overrides the client name/version reported in HELLO.
func WithUserAgent(agent string) Option {
	return func(c *Config) {
		if agent != "" {
			c.userAgent = agent
		}
	}
}

// WithMaxConnectionPoolSize sets the per-address cap on live connections.
func WithMaxConnectionPoolSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxConnectionPoolSize = n
		}
	}
}

// WithMaxIdleConnectionPoolSize sets the per-address idle FIFO cap. Defaults
// to MaxConnectionPoolSize when unset.
func WithMaxIdleConnectionPoolSize(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.maxIdleConnectionPoolSize = n
			c.idlePoolSizeSet = true
		}
	}
}

// WithConnectionAcquisitionTimeout bounds how long Acquire waits for a free
// pool slot. On timeout, sessions report a retryable ServiceUnavailable
// error wrapping pool.ErrAcquisitionTimeout.
func WithConnectionAcquisitionTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.connectionAcquisitionTimeout = d
		}
	}
}

// WithConnectionTimeout bounds TCP/TLS/handshake establishment.
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.connectionTimeout = d
		}
	}
}

// WithMaxConnectionLifetime sets the age at which a pooled connection is
// retired instead of reused. Zero disables lifetime eviction.
func WithMaxConnectionLifetime(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.maxConnectionLifetime = d
		}
	}
}

// WithConnectionIdleTimeout sets the idle duration after which a pooled
// connection is evicted. Zero (the default) disables idle eviction.
func WithConnectionIdleTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.connectionIdleTimeout = d
		}
	}
}

// WithConnectionLivenessThreshold sets the idle duration past which an
// acquired connection is RESET-probed before being handed to a caller. A
// value of exactly zero means "probe on every acquisition" (DESIGN.md's
// resolution of spec.md §9's open question); negative values are rejected
// by Validate.
func WithConnectionLivenessThreshold(d time.Duration) Option {
	return func(c *Config) {
		c.connectionLivenessThreshold = d
		c.livenessThresholdSet = true
	}
}

// WithMaxTransactionRetryTime sets the retry engine's total time budget per
// logical transaction.
func WithMaxTransactionRetryTime(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.maxTransactionRetryTime = d
		}
	}
}

// WithFetchSize sets the default PULL batch size for result cursors.
func WithFetchSize(n int64) Option {
	return func(c *Config) {
		if n != 0 {
			c.fetchSize = n
		}
	}
}

// WithIpv6Enabled allows the driver to resolve and dial IPv6 addresses.
func WithIpv6Enabled(enabled bool) Option {
	return func(c *Config) { c.ipv6Enabled = enabled }
}

// WithSocketKeepAlive toggles TCP keep-alive probes on dialed connections.
func WithSocketKeepAlive(enabled bool) Option {
	return func(c *Config) { c.socketKeepAlive = enabled }
}

// WithTelemetryDisabled suppresses the best-effort TELEMETRY message
// normally sent after HELLO.
func WithTelemetryDisabled(disabled bool) Option {
	return func(c *Config) { c.telemetryDisabled = disabled }
}

// WithContext sets the Driver's base context; Driver.Close cancels it. The
// pool sweeper and routing-table refreshes do not derive from this context
// and are not stopped by its cancellation.
func WithContext(ctx context.Context) Option {
	return func(c *Config) {
		if ctx != nil {
			c.ctx, c.cancel = context.WithCancel(ctx)
		}
	}
}

// WithMetrics installs a custom Metrics implementation.
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger installs a custom Logger implementation.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}
