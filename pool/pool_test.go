package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConn struct {
	id        int
	createdAt time.Time
	usedAt    atomic.Int64 // unix nano
	broken    atomic.Bool
	resetErr  error
	closed    atomic.Bool
}

func newFakeConn(id int) *fakeConn {
	c := &fakeConn{id: id, createdAt: time.Now()}
	c.usedAt.Store(time.Now().UnixNano())
	return c
}

func (c *fakeConn) Reset(ctx context.Context) error {
	c.usedAt.Store(time.Now().UnixNano())
	return c.resetErr
}
func (c *fakeConn) Close() error             { c.closed.Store(true); return nil }
func (c *fakeConn) Broken() bool             { return c.broken.Load() }
func (c *fakeConn) CreatedAt() time.Time     { return c.createdAt }
func (c *fakeConn) LastUsedAt() time.Time    { return time.Unix(0, c.usedAt.Load()) }

func testConfig() Config {
	return Config{
		MaxPoolSize:            2,
		MaxIdleSize:            2,
		AcquisitionTimeout:     200 * time.Millisecond,
		LivenessCheckThreshold: time.Hour, // avoid RESET probes in most tests
		SweepInterval:          time.Hour,
	}
}

func TestAcquireDialsUpToMaxPoolSize(t *testing.T) {
	var dialed int32
	dial := func(ctx context.Context, address string) (Conn, error) {
		n := atomic.AddInt32(&dialed, 1)
		return newFakeConn(int(n)), nil
	}
	p, err := New(testConfig(), dial, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx := context.Background()
	c1, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if c1 == c2 {
		t.Fatal("expected distinct connections")
	}
	if atomic.LoadInt32(&dialed) != 2 {
		t.Fatalf("expected 2 dials, got %d", dialed)
	}
}

func TestAcquireReusesReleasedIdleConnection(t *testing.T) {
	var dialed int32
	dial := func(ctx context.Context, address string) (Conn, error) {
		atomic.AddInt32(&dialed, 1)
		return newFakeConn(1), nil
	}
	p, _ := New(testConfig(), dial, nil)
	defer p.Close()

	ctx := context.Background()
	c1, _ := p.Acquire(ctx, "a")
	p.Release(ctx, "a", c1)

	c2, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if c2 != c1 {
		t.Fatal("expected the released connection to be reused")
	}
	if atomic.LoadInt32(&dialed) != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", dialed)
	}
}

func TestAcquireBlocksAtCapacityThenTimesOut(t *testing.T) {
	dial := func(ctx context.Context, address string) (Conn, error) {
		return newFakeConn(1), nil
	}
	cfg := testConfig()
	cfg.MaxPoolSize = 1
	cfg.MaxIdleSize = 1
	cfg.AcquisitionTimeout = 50 * time.Millisecond
	p, _ := New(cfg, dial, nil)
	defer p.Close()

	ctx := context.Background()
	_, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Acquire(ctx, "a")
	if !errors.Is(err, ErrAcquisitionTimeout) {
		t.Fatalf("expected ErrAcquisitionTimeout, got %v", err)
	}
}

func TestReleaseHandsOffDirectlyToFIFOWaiter(t *testing.T) {
	dial := func(ctx context.Context, address string) (Conn, error) {
		return newFakeConn(1), nil
	}
	cfg := testConfig()
	cfg.MaxPoolSize = 1
	cfg.MaxIdleSize = 1
	cfg.AcquisitionTimeout = time.Second
	p, _ := New(cfg, dial, nil)
	defer p.Close()

	ctx := context.Background()
	held, _ := p.Acquire(ctx, "a")

	resultCh := make(chan Conn, 1)
	go func() {
		c, err := p.Acquire(ctx, "a")
		if err != nil {
			t.Error(err)
			return
		}
		resultCh <- c
	}()

	time.Sleep(20 * time.Millisecond) // let the waiter enqueue
	p.Release(ctx, "a", held)

	select {
	case c := <-resultCh:
		if c != held {
			t.Fatal("expected the waiter to receive the released connection directly")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never received a connection")
	}
}

func TestAcquireProbesLivenessWhenThresholdElapsed(t *testing.T) {
	dial := func(ctx context.Context, address string) (Conn, error) {
		return newFakeConn(1), nil
	}
	cfg := testConfig()
	cfg.LivenessCheckThreshold = 0
	p, _ := New(cfg, dial, nil)
	defer p.Close()

	ctx := context.Background()
	c, _ := p.Acquire(ctx, "a")
	fc := c.(*fakeConn)
	before := fc.usedAt.Load()
	p.Release(ctx, "a", c)

	time.Sleep(2 * time.Millisecond)
	_, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if fc.usedAt.Load() == before {
		t.Fatal("expected a liveness RESET to refresh LastUsedAt")
	}
}

func TestAcquireDiscardsConnectionFailingLivenessProbe(t *testing.T) {
	var dialed int32
	dial := func(ctx context.Context, address string) (Conn, error) {
		atomic.AddInt32(&dialed, 1)
		return newFakeConn(int(dialed)), nil
	}
	cfg := testConfig()
	cfg.LivenessCheckThreshold = 0
	p, _ := New(cfg, dial, nil)
	defer p.Close()

	ctx := context.Background()
	c, _ := p.Acquire(ctx, "a")
	fc := c.(*fakeConn)
	fc.resetErr = errors.New("dead")
	p.Release(ctx, "a", c)

	c2, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !fc.closed.Load() {
		t.Fatal("expected the failed-liveness connection to be closed")
	}
	if c2.(*fakeConn) == fc {
		t.Fatal("expected a freshly dialed connection")
	}
	if atomic.LoadInt32(&dialed) != 2 {
		t.Fatalf("expected 2 dials, got %d", dialed)
	}
}

func TestAcquireDiscardsIdleConnectionPastMaxLifetime(t *testing.T) {
	var dialed int32
	dial := func(ctx context.Context, address string) (Conn, error) {
		atomic.AddInt32(&dialed, 1)
		return newFakeConn(int(dialed)), nil
	}
	cfg := testConfig()
	cfg.MaxLifetime = 10 * time.Millisecond
	cfg.SweepInterval = time.Hour // only the Acquire-path check should catch this
	p, _ := New(cfg, dial, nil)
	defer p.Close()

	ctx := context.Background()
	c, _ := p.Acquire(ctx, "a")
	fc := c.(*fakeConn)
	p.Release(ctx, "a", c)

	time.Sleep(20 * time.Millisecond)
	c2, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !fc.closed.Load() {
		t.Fatal("expected the over-age idle connection to be closed before reuse")
	}
	if c2.(*fakeConn) == fc {
		t.Fatal("expected a freshly dialed connection")
	}
	if atomic.LoadInt32(&dialed) != 2 {
		t.Fatalf("expected 2 dials, got %d", dialed)
	}
}

func TestAcquireDiscardsIdleConnectionPastIdleTimeout(t *testing.T) {
	var dialed int32
	dial := func(ctx context.Context, address string) (Conn, error) {
		atomic.AddInt32(&dialed, 1)
		return newFakeConn(int(dialed)), nil
	}
	cfg := testConfig()
	cfg.IdleTimeout = 10 * time.Millisecond
	cfg.SweepInterval = time.Hour
	p, _ := New(cfg, dial, nil)
	defer p.Close()

	ctx := context.Background()
	c, _ := p.Acquire(ctx, "a")
	fc := c.(*fakeConn)
	p.Release(ctx, "a", c)

	time.Sleep(20 * time.Millisecond)
	c2, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !fc.closed.Load() {
		t.Fatal("expected the idle-too-long connection to be closed before reuse")
	}
	if c2.(*fakeConn) == fc {
		t.Fatal("expected a freshly dialed connection")
	}
	if atomic.LoadInt32(&dialed) != 2 {
		t.Fatalf("expected 2 dials, got %d", dialed)
	}
}

func TestReleaseClosesBrokenConnectionInsteadOfPoolingIt(t *testing.T) {
	dial := func(ctx context.Context, address string) (Conn, error) {
		return newFakeConn(1), nil
	}
	p, _ := New(testConfig(), dial, nil)
	defer p.Close()

	ctx := context.Background()
	c, _ := p.Acquire(ctx, "a")
	fc := c.(*fakeConn)
	fc.broken.Store(true)
	p.Release(ctx, "a", c)

	idle, inUse := p.Stats("a")
	if idle != 0 || inUse != 0 {
		t.Fatalf("expected broken connection discarded, got idle=%d inUse=%d", idle, inUse)
	}
	if !fc.closed.Load() {
		t.Fatal("expected broken connection to be closed")
	}
}

func TestPoolInvariantIdlePlusInUseNeverExceedsMax(t *testing.T) {
	var dialed int32
	dial := func(ctx context.Context, address string) (Conn, error) {
		atomic.AddInt32(&dialed, 1)
		return newFakeConn(int(dialed)), nil
	}
	cfg := testConfig()
	cfg.MaxPoolSize = 3
	cfg.AcquisitionTimeout = 2 * time.Second
	p, _ := New(cfg, dial, nil)
	defer p.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := p.Acquire(ctx, "a")
			if err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
			p.Release(ctx, "a", c)
		}()
	}
	wg.Wait()

	idle, inUse := p.Stats("a")
	if idle+inUse > cfg.MaxPoolSize {
		t.Fatalf("invariant violated: idle=%d inUse=%d max=%d", idle, inUse, cfg.MaxPoolSize)
	}
}

func TestClosePreventsFurtherAcquire(t *testing.T) {
	dial := func(ctx context.Context, address string) (Conn, error) {
		return newFakeConn(1), nil
	}
	p, _ := New(testConfig(), dial, nil)
	p.Close()

	_, err := p.Acquire(context.Background(), "a")
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}
