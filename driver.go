package graphbolt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atsika/graphbolt/bolt"
	"github.com/atsika/graphbolt/packstream"
	"github.com/atsika/graphbolt/pool"
	"github.com/atsika/graphbolt/retry"
	"github.com/atsika/graphbolt/router"
)

// defaultProposals lists the four Bolt versions this driver offers during
// handshake, most-preferred first, per spec.md §6 ("3.0, 4.1-4.4, 5.0-5.7");
// only four proposal slots exist on the wire, so the newest 5.x, the 5.1
// split-auth baseline, the newest 4.x, and the oldest supported version are
// offered rather than every point release.
var defaultProposals = []bolt.Version{
	{Major: 5, Minor: 7},
	{Major: 5, Minor: 1},
	{Major: 4, Minor: 4},
	{Major: 3, Minor: 0},
}

// splitAuthVersion is the first negotiated version that carries credentials
// via a separate LOGON instead of folded into HELLO (spec.md §6).
var splitAuthVersion = bolt.Version{Major: 5, Minor: 1}

func wantsSplitAuth(v bolt.Version) bool {
	return v.Major > splitAuthVersion.Major ||
		(v.Major == splitAuthVersion.Major && v.Minor >= splitAuthVersion.Minor)
}

// telemetryAPIDriver reports the "generic driver API" usage category in the
// best-effort TELEMETRY message sent once per connection after HELLO.
const telemetryAPIDriver int64 = 0

// Driver is the top-level entry point: it owns the routing table, the
// connection pool, and the retry engine, and hands out Sessions. Its
// "parse options, build the stack, hand back a handle" shape generalizes
// aznet.Dial/aznet.Listen's bootstrap (aznet.go) to this driver's
// URI/auth/pool/routing surface.
type Driver struct {
	uri  *URI
	auth AuthToken
	cfg  *Config

	pool      *pool.Pool
	routing   *router.RoutingTable
	retrier   *retry.Engine
	bookmarks BookmarkManager

	mu     sync.Mutex
	closed bool
}

// NewDriver parses target (a bolt://, bolt+s://, bolt+ssc://, neo4j://,
// neo4j+s://, or neo4j+ssc:// URI), builds the pool/router/retry stack, and
// returns a ready Driver. It never dials eagerly — the first Session to run
// work triggers the first connection; call VerifyConnectivity to dial early.
func NewDriver(target string, auth AuthToken, opts ...Option) (*Driver, error) {
	uri, err := ParseURI(target)
	if err != nil {
		return nil, err
	}
	cfg := applyConfig(opts)
	if uri.Encryption != EncryptionNone {
		cfg.encryption = uri.Encryption
		cfg.trust = uri.Trust
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		uri:       uri,
		auth:      auth,
		cfg:       cfg,
		bookmarks: NewInMemoryBookmarkManager(),
	}

	p, err := pool.New(pool.Config{
		MaxPoolSize:            cfg.maxConnectionPoolSize,
		MaxIdleSize:            cfg.maxIdleConnectionPoolSize,
		AcquisitionTimeout:     cfg.connectionAcquisitionTimeout,
		MaxLifetime:            cfg.maxConnectionLifetime,
		IdleTimeout:            cfg.connectionIdleTimeout,
		LivenessCheckThreshold: cfg.connectionLivenessThreshold,
		SweepInterval:          30 * time.Second,
	}, d.dial, poolMetricsAdapter{m: cfg.metrics})
	if err != nil {
		return nil, err
	}
	d.pool = p
	d.routing = router.New(d.refresh)
	d.retrier = retry.New(retry.Config{
		MaxTransactionRetryTime: cfg.maxTransactionRetryTime,
		InitialInterval:         1 * time.Second,
		MaxInterval:             30 * time.Second,
		Multiplier:              2.0,
		RandomizationFactor:     0.2,
	}, IsRetryable, retryMetricsAdapter{m: cfg.metrics})

	return d, nil
}

// dial is the pool.Dialer: it opens a TCP (optionally TLS) connection to
// address, runs the Bolt handshake, and completes HELLO/LOGON.
func (d *Driver) dial(ctx context.Context, address string) (pool.Conn, error) {
	raw, err := d.dialRaw(ctx, address)
	if err != nil {
		return nil, wrapConnect(address, err)
	}

	connID := "conn-" + uuid.NewString()
	conn, err := bolt.OpenConnection(ctx, raw, connID, defaultProposals)
	if err != nil {
		raw.Close()
		return nil, wrapConnect(address, err)
	}

	extra := map[string]any{
		"user_agent": d.cfg.userAgent,
	}
	if len(d.uri.RoutingContext) > 0 {
		extra["routing"] = stringMapToAny(d.uri.RoutingContext)
	}
	if err := conn.Hello(ctx, extra, d.auth.toMap(), wantsSplitAuth(conn.Version())); err != nil {
		conn.Close()
		return nil, wrapConnect(address, err)
	}
	if !d.cfg.telemetryDisabled {
		conn.Telemetry(ctx, telemetryAPIDriver)
	}
	d.cfg.logger.Debugf("driver", "opened connection %s to %s (bolt %s)", conn.ID(), address, conn.Version())
	return conn, nil
}

func (d *Driver) dialRaw(ctx context.Context, address string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.cfg.connectionTimeout, KeepAlive: keepAliveInterval(d.cfg.socketKeepAlive)}
	network := "tcp4"
	if d.cfg.ipv6Enabled {
		network = "tcp"
	}
	if d.cfg.encryption == EncryptionNone {
		return dialer.DialContext(ctx, network, address)
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	tlsCfg, err := d.cfg.trust.Build(host)
	if err != nil {
		return nil, err
	}
	rawConn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(rawConn, tlsCfg)
	if dl, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(dl)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func keepAliveInterval(enabled bool) time.Duration {
	if enabled {
		return 30 * time.Second
	}
	return -1
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *Driver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// selectAddress picks the address a Session should use for database/mode:
// the single direct address for bolt:// URIs, or a routing-table selection
// for neo4j:// URIs (spec.md §4.7).
func (d *Driver) selectAddress(ctx context.Context, database string, mode AccessMode) (string, error) {
	if !d.uri.Routing {
		return d.uri.Address(), nil
	}
	role := router.RoleWriter
	if mode == AccessModeRead {
		role = router.RoleReader
	}
	return d.routing.Select(ctx, database, role)
}

// refresh is the router.Refresher: it issues ROUTE against each known router
// address in turn, falling back to the driver's initial address if none are
// known yet (spec.md §4.7).
func (d *Driver) refresh(ctx context.Context, database string, knownRouters []string) (*router.Table, error) {
	addrs := knownRouters
	if len(addrs) == 0 {
		addrs = []string{d.uri.Address()}
	}
	var lastErr error
	for _, addr := range addrs {
		table, err := d.routeVia(ctx, addr, database)
		if err == nil {
			d.cfg.metrics.IncrementRoutingTableRefreshes()
			return table, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, router.ErrNoRouters
}

func (d *Driver) routeVia(ctx context.Context, address, database string) (*router.Table, error) {
	conn, err := d.pool.Acquire(ctx, address)
	if err != nil {
		return nil, err
	}
	bc, ok := conn.(*bolt.Connection)
	if !ok {
		d.pool.Release(ctx, address, conn)
		return nil, fmt.Errorf("graphbolt: pool connection is not *bolt.Connection")
	}
	dbExtra := map[string]any{}
	if database != "" {
		dbExtra["db"] = database
	}
	rt, err := bc.Route(ctx, stringMapToAny(d.uri.RoutingContext), d.bookmarks.GetBookmarks(database), dbExtra)
	d.pool.Release(ctx, address, conn)
	if err != nil {
		return nil, err
	}
	return parseRoutingTable(rt)
}

func parseRoutingTable(rt map[string]any) (*router.Table, error) {
	if rt == nil {
		return nil, errors.New("graphbolt: empty routing table response")
	}
	var ttlSeconds int64
	switch v := rt["ttl"].(type) {
	case int64:
		ttlSeconds = v
	case float64:
		ttlSeconds = int64(v)
	}
	table := &router.Table{TTL: time.Duration(ttlSeconds) * time.Second}
	servers, _ := rt["servers"].([]any)
	for _, raw := range servers {
		entry, ok := toAnyMap(raw)
		if !ok {
			continue
		}
		role, _ := entry["role"].(string)
		addrsRaw, _ := entry["addresses"].([]any)
		addrs := make([]string, 0, len(addrsRaw))
		for _, a := range addrsRaw {
			if s, ok := a.(string); ok {
				addrs = append(addrs, s)
			}
		}
		switch role {
		case "READ":
			table.Readers = addrs
		case "WRITE":
			table.Writers = addrs
		case "ROUTE":
			table.Routers = addrs
		}
	}
	return table, nil
}

func toAnyMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case *packstream.Map:
		return m.ToGoMap(), true
	default:
		return nil, false
	}
}

// NewSession opens a Session against database using mode as its default
// access mode. bookmarks, if non-empty, seeds the session's causal chain;
// otherwise the driver's BookmarkManager supplies the database's last known
// bookmarks. No connection is acquired until the session's first query.
func (d *Driver) NewSession(database string, mode AccessMode, bookmarks ...string) *Session {
	bms := append([]string(nil), bookmarks...)
	if len(bms) == 0 {
		bms = d.bookmarks.GetBookmarks(database)
	}
	return &Session{driver: d, database: database, mode: mode, bookmarks: bms}
}

// TransactionWork is user logic run inside a managed, retryable transaction
// (spec.md §4.8/§4.9): return a result and nil to commit, or an error to
// roll back and, if the error is retryable, try again under a fresh
// transaction and connection.
type TransactionWork func(tx *Transaction) (any, error)

// ExecuteRead runs work inside a read-mode transaction, retried per the
// retry engine's schedule and budget.
func (d *Driver) ExecuteRead(ctx context.Context, database string, work TransactionWork, bookmarks ...string) (any, error) {
	return d.executeTransaction(ctx, database, AccessModeRead, work, bookmarks)
}

// ExecuteWrite runs work inside a write-mode transaction, retried per the
// retry engine's schedule and budget.
func (d *Driver) ExecuteWrite(ctx context.Context, database string, work TransactionWork, bookmarks ...string) (any, error) {
	return d.executeTransaction(ctx, database, AccessModeWrite, work, bookmarks)
}

func (d *Driver) executeTransaction(ctx context.Context, database string, mode AccessMode, work TransactionWork, bookmarks []string) (any, error) {
	var result any
	err := d.retrier.Run(ctx, func(ctx context.Context) error {
		session := d.NewSession(database, mode, bookmarks...)
		defer session.Close(ctx)

		tx, err := session.BeginTransaction(ctx)
		if err != nil {
			return err
		}
		res, err := work(tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// VerifyConnectivity dials (or reuses) one connection to the driver's
// initial address and releases it, surfacing any handshake/auth/network
// failure without running a query.
func (d *Driver) VerifyConnectivity(ctx context.Context) error {
	address := d.uri.Address()
	conn, err := d.pool.Acquire(ctx, address)
	if err != nil {
		return err
	}
	d.pool.Release(ctx, address, conn)
	return nil
}

// Close releases the connection pool and stops the driver's background
// housekeeping. Sessions opened against a closed Driver fail their first
// operation with ErrDriverClosed.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.cfg.cancel()
	return d.pool.Close()
}
