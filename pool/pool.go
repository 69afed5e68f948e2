// Package pool implements the bounded per-address connection pool (spec.md
// §4.6): an idle FIFO plus an in-use counter plus a FIFO waiter queue per
// server address, with liveness probing, lifetime/idle eviction, and a
// background reaper.
//
// The shape — one map of live resources guarded by a mutex, plus a
// goroutine that periodically sweeps it for expired entries — is a direct
// generalization of aznet.Listener's `conns sync.Map` + `janitor()` pair,
// re-targeted from "reap dead peer connections" to "reap idle pool slots
// and enforce per-address bounds".
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Conn is the subset of *bolt.Connection the pool needs. Kept as an
// interface so pool tests can exercise the FIFO/fairness/eviction logic
// with fakes instead of real sockets.
type Conn interface {
	Reset(ctx context.Context) error
	Close() error
	Broken() bool
	CreatedAt() time.Time
	LastUsedAt() time.Time
}

// Dialer creates a brand new Conn to address. The pool calls it whenever
// it needs to grow past the idle set (up to MaxPoolSize).
type Dialer func(ctx context.Context, address string) (Conn, error)

// Metrics is the pool's pluggable instrumentation hook, in the same spirit
// as aznet.Metrics: increment-only counters a caller can read back.
type Metrics interface {
	IncrementAcquired()
	IncrementReleased()
	IncrementCreated()
	IncrementClosed()
	IncrementTimeouts()
	IncrementLivenessFailures()
}

// NopMetrics discards everything; the pool's default.
type NopMetrics struct{}

func (NopMetrics) IncrementAcquired()        {}
func (NopMetrics) IncrementReleased()        {}
func (NopMetrics) IncrementCreated()         {}
func (NopMetrics) IncrementClosed()          {}
func (NopMetrics) IncrementTimeouts()        {}
func (NopMetrics) IncrementLivenessFailures() {}

// Config carries the bounds of spec.md §4.6.
type Config struct {
	MaxPoolSize            int
	MaxIdleSize            int
	AcquisitionTimeout     time.Duration
	MaxLifetime            time.Duration // 0 disables lifetime eviction
	IdleTimeout            time.Duration // 0 disables idle eviction
	LivenessCheckThreshold time.Duration // 0 means "probe on every acquisition"
	SweepInterval          time.Duration
}

// Validate rejects nonsensical bounds; per DESIGN.md's resolution of spec.md
// §9's Open Question 2, a LivenessCheckThreshold of exactly zero is valid
// (and means "always probe"); only negative values are rejected.
func (c Config) Validate() error {
	if c.MaxPoolSize <= 0 {
		return errors.New("pool: MaxPoolSize must be positive")
	}
	if c.MaxIdleSize < 0 || c.MaxIdleSize > c.MaxPoolSize {
		return errors.New("pool: MaxIdleSize must be between 0 and MaxPoolSize")
	}
	if c.LivenessCheckThreshold < 0 {
		return errors.New("pool: LivenessCheckThreshold must not be negative")
	}
	return nil
}

var (
	// ErrPoolClosed is returned by Acquire once the pool has been closed.
	ErrPoolClosed = errors.New("pool: closed")
	// ErrAcquisitionTimeout is returned when no connection becomes
	// available within Config.AcquisitionTimeout.
	ErrAcquisitionTimeout = errors.New("pool: acquisition timed out")
)

type acquireResult struct {
	conn Conn
	err  error
}

type waiter struct {
	mu     sync.Mutex
	done   bool
	result chan acquireResult
}

// deliver hands r to a waiter that popWaiter has already claimed (done is
// set under lock there, so cancel can no longer win); result is buffered
// for exactly this one value.
func (w *waiter) deliver(r acquireResult) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.result <- r
	return true
}

func (w *waiter) cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return false
	}
	w.done = true
	return true
}

// addressPool is the per-server-address bookkeeping: idle FIFO, in-use
// count, and the ordered queue of acquirers waiting for a slot. The
// invariant len(idle) + inUse <= Config.MaxPoolSize holds at every point
// this mutex is not held.
type addressPool struct {
	mu      sync.Mutex
	idle    []Conn
	inUse   int
	waiters []*waiter
}

// Pool is a set of addressPools, one per server address, sharing a single
// Config, Dialer and Metrics.
type Pool struct {
	cfg     Config
	dial    Dialer
	metrics Metrics

	mu        sync.Mutex
	addresses map[string]*addressPool

	closed    bool
	closeOnce sync.Once
	stopSweep chan struct{}
}

// New builds a Pool and starts its background reaper goroutine.
func New(cfg Config, dial Dialer, metrics Metrics) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	p := &Pool{
		cfg:       cfg,
		dial:      dial,
		metrics:   metrics,
		addresses: make(map[string]*addressPool),
		stopSweep: make(chan struct{}),
	}
	go p.sweeper()
	return p, nil
}

func (p *Pool) addressPoolFor(address string) *addressPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ap, ok := p.addresses[address]
	if !ok {
		ap = &addressPool{}
		p.addresses[address] = ap
	}
	return ap
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// shouldCheckLiveness reports whether an idle connection must be RESET-probed
// before being handed out, per spec.md §4.6.
func (p *Pool) shouldCheckLiveness(c Conn) bool {
	return time.Since(c.LastUsedAt()) >= p.cfg.LivenessCheckThreshold
}

// connExpired reports whether c has crossed MaxLifetime or IdleTimeout,
// the same staleness test sweepOnce applies in the background.
func (p *Pool) connExpired(c Conn) bool {
	now := time.Now()
	return (p.cfg.MaxLifetime > 0 && now.Sub(c.CreatedAt()) > p.cfg.MaxLifetime) ||
		(p.cfg.IdleTimeout > 0 && now.Sub(c.LastUsedAt()) > p.cfg.IdleTimeout)
}

// Acquire returns a ready-to-use connection to address: popping an idle one
// when available (closing it and trying the next if it has gone stale,
// probing its liveness if due), dialing a fresh one while under
// MaxPoolSize, or waiting in FIFO order for one to free up.
func (p *Pool) Acquire(ctx context.Context, address string) (Conn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	ap := p.addressPoolFor(address)

	for {
		ap.mu.Lock()
		if n := len(ap.idle); n > 0 {
			c := ap.idle[0]
			ap.idle = ap.idle[1:]
			ap.inUse++
			ap.mu.Unlock()
			if p.connExpired(c) {
				_ = c.Close()
				p.metrics.IncrementClosed()
				ap.mu.Lock()
				ap.inUse--
				ap.mu.Unlock()
				continue
			}
			if p.shouldCheckLiveness(c) {
				if err := c.Reset(ctx); err != nil {
					p.metrics.IncrementLivenessFailures()
					_ = c.Close()
					p.metrics.IncrementClosed()
					ap.mu.Lock()
					ap.inUse--
					ap.mu.Unlock()
					continue
				}
			}
			p.metrics.IncrementAcquired()
			return c, nil
		}
		if ap.inUse < p.cfg.MaxPoolSize {
			ap.inUse++
			ap.mu.Unlock()
			c, err := p.dial(ctx, address)
			if err != nil {
				ap.mu.Lock()
				ap.inUse--
				ap.mu.Unlock()
				return nil, err
			}
			p.metrics.IncrementCreated()
			p.metrics.IncrementAcquired()
			return c, nil
		}
		// Pool is at capacity: enqueue and wait, FIFO, for a hand-off.
		w := &waiter{result: make(chan acquireResult, 1)}
		ap.waiters = append(ap.waiters, w)
		ap.mu.Unlock()

		waitCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.AcquisitionTimeout > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquisitionTimeout)
			defer cancel()
		}

		select {
		case res := <-w.result:
			if res.err != nil {
				return nil, res.err
			}
			p.metrics.IncrementAcquired()
			return res.conn, nil
		case <-waitCtx.Done():
			if w.cancel() {
				p.metrics.IncrementTimeouts()
				if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && waitCtx != ctx {
					return nil, ErrAcquisitionTimeout
				}
				return nil, ctx.Err()
			}
			// Lost the race: a hand-off already landed in the channel.
			res := <-w.result
			if res.err != nil {
				return nil, res.err
			}
			p.metrics.IncrementAcquired()
			return res.conn, nil
		}
	}
}

// popWaiter returns the next live (non-cancelled) waiter, if any.
func (ap *addressPool) popWaiter() *waiter {
	for len(ap.waiters) > 0 {
		w := ap.waiters[0]
		ap.waiters = ap.waiters[1:]
		w.mu.Lock()
		if !w.done {
			w.done = true
			w.mu.Unlock()
			return w
		}
		w.mu.Unlock()
	}
	return nil
}

// Release returns c to the pool for address, handing it directly to the
// longest-waiting acquirer if one exists (spec.md §4.6's fairness
// requirement), otherwise pushing it onto the idle FIFO, otherwise closing
// it if the connection is broken, past its MaxLifetime, or the idle FIFO is
// already at MaxIdleSize.
func (p *Pool) Release(ctx context.Context, address string, c Conn) {
	ap := p.addressPoolFor(address)
	p.metrics.IncrementReleased()

	expired := c.Broken() || p.isClosed() || (p.cfg.MaxLifetime > 0 && time.Since(c.CreatedAt()) > p.cfg.MaxLifetime)

	ap.mu.Lock()
	if !expired {
		if w := ap.popWaiter(); w != nil {
			ap.mu.Unlock()
			if !w.deliver(acquireResult{conn: c}) {
				// Should not happen: popWaiter already marked it done under
				// lock, but guard anyway by falling back to idle storage.
				ap.mu.Lock()
				ap.idle = append(ap.idle, c)
				ap.inUse--
				ap.mu.Unlock()
			}
			return
		}
		if len(ap.idle) < p.cfg.MaxIdleSize {
			ap.idle = append(ap.idle, c)
			ap.inUse--
			ap.mu.Unlock()
			return
		}
	}
	// Either expired, or idle set is full: close it and free the slot.
	ap.inUse--
	w := ap.popWaiter()
	if w != nil {
		ap.inUse++ // reserve the freed slot for the waiter's replacement dial
	}
	ap.mu.Unlock()
	_ = c.Close()
	p.metrics.IncrementClosed()

	if w == nil {
		return
	}
	go func() {
		nc, err := p.dial(ctx, address)
		if err != nil {
			ap.mu.Lock()
			ap.inUse--
			ap.mu.Unlock()
			w.deliver(acquireResult{err: err})
			return
		}
		p.metrics.IncrementCreated()
		w.deliver(acquireResult{conn: nc})
	}()
}

// sweeper evicts idle connections that have exceeded IdleTimeout or
// MaxLifetime, mirroring aznet.Listener.janitor's ticker-driven sweep.
func (p *Pool) sweeper() {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	p.mu.Lock()
	addrs := make([]*addressPool, 0, len(p.addresses))
	for _, ap := range p.addresses {
		addrs = append(addrs, ap)
	}
	p.mu.Unlock()

	for _, ap := range addrs {
		ap.mu.Lock()
		kept := ap.idle[:0]
		for _, c := range ap.idle {
			if p.connExpired(c) {
				_ = c.Close()
				p.metrics.IncrementClosed()
				continue
			}
			kept = append(kept, c)
		}
		ap.idle = kept
		ap.mu.Unlock()
	}
}

// Close closes every idle connection and prevents further Acquire calls.
// Connections still checked out are closed by their own Release once the
// caller returns them.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		addrs := make([]*addressPool, 0, len(p.addresses))
		for _, ap := range p.addresses {
			addrs = append(addrs, ap)
		}
		p.mu.Unlock()
		close(p.stopSweep)

		for _, ap := range addrs {
			ap.mu.Lock()
			for _, c := range ap.idle {
				_ = c.Close()
				p.metrics.IncrementClosed()
			}
			ap.idle = nil
			for _, w := range ap.waiters {
				w.deliver(acquireResult{err: ErrPoolClosed})
			}
			ap.waiters = nil
			ap.mu.Unlock()
		}
	})
	return nil
}

// Stats reports the current idle/in-use counts for address, for tests and
// diagnostics.
func (p *Pool) Stats(address string) (idle, inUse int) {
	ap := p.addressPoolFor(address)
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return len(ap.idle), ap.inUse
}

func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("pool(addresses=%d)", len(p.addresses))
}
