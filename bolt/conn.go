package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// State is a Bolt connection's position in the state machine of spec.md
// §4.3. AUTHENTICATED is folded into Ready: once HELLO/LOGON succeeds the
// connection accepts exactly the same request kinds READY does, so no
// observable behaviour distinguishes them.
type State int

const (
	StateNegotiating State = iota
	StateReady
	StateStreaming
	StateTxReady
	StateTxStreaming
	StateFailed
	StateDefunct
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "NEGOTIATING"
	case StateReady:
		return "READY"
	case StateStreaming:
		return "STREAMING"
	case StateTxReady:
		return "TX_READY"
	case StateTxStreaming:
		return "TX_STREAMING"
	case StateFailed:
		return "FAILED"
	case StateDefunct:
		return "DEFUNCT"
	default:
		return "UNKNOWN"
	}
}

type messageKind int

const (
	kindHello messageKind = iota
	kindLogon
	kindLogoff
	kindGoodbye
	kindReset
	kindRun
	kindDiscard
	kindPull
	kindBegin
	kindCommit
	kindRollback
	kindRoute
	kindTelemetry
)

// Connection is a single, exclusively-owned Bolt socket: the per-connection
// state machine (C3), wrapping a chunked transport (C2) and a response
// pipeline (C4). It is never shared between goroutines concurrently — it is
// held by the pool while idle, or by exactly one session while in use
// (spec.md §3, §5). Its Read/Write/flush shape is a direct generalization
// of aznet.Conn: a buffered write side flushed on demand, and synchronous
// per-message reads instead of aznet's streamed Read() since Bolt has no
// equivalent of arbitrary-sized application reads — every read is "the next
// whole message".
type Connection struct {
	raw     net.Conn
	version Version
	id      string
	server  string // server-reported address, may differ from dial address

	createdAt  time.Time
	lastUsedAt time.Time

	pipeline *pipeline
	writeBuf bytes.Buffer

	mu    sync.Mutex
	state State
	err   error

	serverVersion string
}

// OpenConnection performs the handshake on an already-dialed net.Conn and
// returns a Connection in StateNegotiating, ready for HELLO/LOGON.
func OpenConnection(ctx context.Context, raw net.Conn, connID string, proposals []Version) (*Connection, error) {
	version, err := Handshake(ctx, raw, proposals)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Connection{
		raw:        raw,
		version:    version,
		id:         connID,
		createdAt:  now,
		lastUsedAt: now,
		pipeline:   newPipeline(),
		state:      StateNegotiating,
	}, nil
}

// Version returns the negotiated protocol version.
func (c *Connection) Version() Version { return c.version }

// ID returns the client-generated connection identifier.
func (c *Connection) ID() string { return c.id }

// ServerVersion returns the server-reported agent string from HELLO's
// SUCCESS metadata, once available.
func (c *Connection) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// State returns the current FSM state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Broken reports whether the connection is DEFUNCT and must be discarded.
func (c *Connection) Broken() bool { return c.State() == StateDefunct }

// CreatedAt / LastUsedAt / Touch track the pool's liveness bookkeeping
// (spec.md §4.6).
func (c *Connection) CreatedAt() time.Time { return c.createdAt }
func (c *Connection) LastUsedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsedAt
}
func (c *Connection) touch() {
	c.mu.Lock()
	c.lastUsedAt = time.Now()
	c.mu.Unlock()
}

var errAllowedTransitions = map[State]map[messageKind]bool{
	StateNegotiating: {kindHello: true, kindLogon: true},
	StateReady:       {kindRun: true, kindBegin: true, kindRoute: true, kindReset: true, kindLogoff: true, kindLogon: true, kindGoodbye: true, kindTelemetry: true},
	StateStreaming:   {kindPull: true, kindDiscard: true, kindReset: true, kindGoodbye: true},
	StateTxReady:     {kindRun: true, kindCommit: true, kindRollback: true, kindReset: true, kindGoodbye: true},
	StateTxStreaming: {kindPull: true, kindDiscard: true, kindReset: true, kindGoodbye: true},
	StateFailed:      {kindReset: true, kindGoodbye: true},
}

// stateHandler wraps a caller's ResponseHandler so the connection's FSM
// advances exactly once per terminal response, per the table in spec.md
// §4.3.
type stateHandler struct {
	conn  *Connection
	kind  messageKind
	inner ResponseHandler
}

func (h *stateHandler) OnSuccess(meta map[string]any) {
	h.conn.onTerminal(h.kind, true, meta)
	h.inner.OnSuccess(meta)
}
func (h *stateHandler) OnRecord(fields []any) { h.inner.OnRecord(fields) }
func (h *stateHandler) OnFailure(err *Neo4jError) {
	h.conn.onTerminal(h.kind, false, nil)
	h.inner.OnFailure(err)
}
func (h *stateHandler) OnIgnored() { h.inner.OnIgnored() }

func (c *Connection) onTerminal(kind messageKind, success bool, meta map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDefunct {
		return
	}
	if !success {
		if kind == kindReset {
			c.state = StateDefunct
		} else {
			c.state = StateFailed
		}
		return
	}
	hasMore, _ := meta["has_more"].(bool)
	switch kind {
	case kindHello, kindLogon:
		c.state = StateReady
		if sv, ok := meta["server"].(string); ok {
			c.serverVersion = sv
		}
	case kindLogoff:
		c.state = StateNegotiating
	case kindRun:
		if c.state == StateTxReady {
			c.state = StateTxStreaming
		} else {
			c.state = StateStreaming
		}
	case kindRoute, kindReset, kindTelemetry:
		c.state = StateReady
	case kindPull, kindDiscard:
		if c.state == StateTxStreaming {
			if !hasMore {
				c.state = StateTxReady
			}
		} else if !hasMore {
			c.state = StateReady
		}
	case kindBegin:
		c.state = StateTxReady
	case kindCommit, kindRollback:
		c.state = StateReady
	case kindGoodbye:
		c.state = StateDefunct
	}
}

// Send encodes req, wraps handler for FSM tracking, appends it to the
// chunked write buffer, and enqueues it on the response pipeline. It does
// not perform I/O; call Flush to force the write.
func (c *Connection) Send(kind messageKind, req Request, handler ResponseHandler) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateDefunct {
		return fmt.Errorf("bolt: connection %s is defunct", c.id)
	}
	if allowed := errAllowedTransitions[state]; allowed == nil || !allowed[kind] {
		// Per spec.md §4.3, FAILED silently IGNOREs everything but RESET —
		// callers are still allowed to send, they'll just get IGNORED back.
		if state != StateFailed {
			return fmt.Errorf("bolt: request kind %d not valid in state %s", kind, state)
		}
	}
	payload, err := req.Encode()
	if err != nil {
		return err
	}
	c.pipeline.Enqueue(&stateHandler{conn: c, kind: kind, inner: handler})
	return writeChunked(&c.writeBuf, payload)
}

// Flush writes any buffered messages to the socket, per spec.md §4.3's send
// policy: "the pipeline is flushed at least whenever the caller needs a
// response to proceed, at commit, and on RESET."
func (c *Connection) Flush(ctx context.Context) error {
	if c.writeBuf.Len() == 0 {
		return nil
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.raw.SetWriteDeadline(dl)
	}
	payload := c.writeBuf.Bytes()
	if _, err := c.raw.Write(payload); err != nil {
		c.markDefunct(err)
		return err
	}
	c.writeBuf.Reset()
	c.touch()
	return nil
}

// Receive reads exactly one whole message and dispatches it through the
// pipeline, advancing the FSM as needed. Callers loop on Receive until the
// handler(s) they care about have fired (tracked by the handler
// implementation itself, e.g. cursor.go's runHandler).
func (c *Connection) Receive(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.raw.SetReadDeadline(dl)
	}
	payload, err := readMessage(c.raw)
	if err != nil {
		c.markDefunct(err)
		return err
	}
	resp, err := DecodeResponse(payload)
	if err != nil {
		c.markDefunct(err)
		return err
	}
	c.touch()
	if err := c.pipeline.Dispatch(resp); err != nil {
		c.markDefunct(err)
		return err
	}
	return nil
}

// markDefunct poisons every pending handler and moves the connection to
// DEFUNCT, per spec.md §4.3/§7.
func (c *Connection) markDefunct(cause error) {
	c.mu.Lock()
	if c.state == StateDefunct {
		c.mu.Unlock()
		return
	}
	c.state = StateDefunct
	c.err = cause
	c.mu.Unlock()
	c.pipeline.Poison(&Neo4jError{Class: ClassServiceUnavailable, Message: cause.Error(), Retryable: true})
}

// syncHandler is a ResponseHandler that blocks until its terminal response
// arrives, used for simple request/response exchanges (HELLO, LOGON,
// COMMIT, ROLLBACK, RESET) that never stream records.
type syncHandler struct {
	done    bool
	meta    map[string]any
	failure *Neo4jError
	ignored bool
}

func (h *syncHandler) OnSuccess(meta map[string]any) { h.done = true; h.meta = meta }
func (h *syncHandler) OnRecord([]any)                {}
func (h *syncHandler) OnFailure(err *Neo4jError)     { h.done = true; h.failure = err }
func (h *syncHandler) OnIgnored()                    { h.done = true; h.ignored = true }

// roundTrip sends req, flushes, and blocks for its single terminal
// response.
func (c *Connection) roundTrip(ctx context.Context, kind messageKind, req Request) (map[string]any, error) {
	h := &syncHandler{}
	if err := c.Send(kind, req, h); err != nil {
		return nil, err
	}
	if err := c.Flush(ctx); err != nil {
		return nil, err
	}
	for !h.done {
		if err := c.Receive(ctx); err != nil {
			return nil, err
		}
	}
	if h.failure != nil {
		return nil, h.failure
	}
	if h.ignored {
		return nil, errors.New("bolt: request was ignored")
	}
	return h.meta, nil
}

// Hello performs the HELLO (and, for protocol versions that split
// credentials out, a pipelined LOGON) handshake step.
func (c *Connection) Hello(ctx context.Context, extra map[string]any, auth map[string]any, splitAuth bool) error {
	if !splitAuth {
		merged := map[string]any{}
		for k, v := range extra {
			merged[k] = v
		}
		for k, v := range auth {
			merged[k] = v
		}
		_, err := c.roundTrip(ctx, kindHello, NewHello(merged))
		return err
	}
	// Bolt 5.1+: HELLO and LOGON are sent pipelined for latency, not
	// RESET-then-HELLO.
	helloHandler := &syncHandler{}
	logonHandler := &syncHandler{}
	if err := c.Send(kindHello, NewHello(extra), helloHandler); err != nil {
		return err
	}
	if err := c.Send(kindLogon, NewLogon(auth), logonHandler); err != nil {
		return err
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	for !helloHandler.done || !logonHandler.done {
		if err := c.Receive(ctx); err != nil {
			return err
		}
	}
	if helloHandler.failure != nil {
		return helloHandler.failure
	}
	if logonHandler.failure != nil {
		return logonHandler.failure
	}
	return nil
}

// ReAuth re-authenticates an existing connection via pipelined LOGOFF+LOGON,
// per DESIGN.md's resolution of spec.md §9's Open Question 3.
func (c *Connection) ReAuth(ctx context.Context, auth map[string]any) error {
	logoffHandler := &syncHandler{}
	logonHandler := &syncHandler{}
	if err := c.Send(kindLogoff, NewLogoff(), logoffHandler); err != nil {
		return err
	}
	if err := c.Send(kindLogon, NewLogon(auth), logonHandler); err != nil {
		return err
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	for !logoffHandler.done || !logonHandler.done {
		if err := c.Receive(ctx); err != nil {
			return err
		}
	}
	if logoffHandler.failure != nil {
		return logoffHandler.failure
	}
	return logonHandler.failure
}

// Reset implements spec.md §4.3's RESET semantics: flush first (so RESET is
// never merged into a still-buffered prior request), then send RESET alone
// and drain until the pipeline is empty, cancelling every still-pending
// handler as IGNORED along the way via the normal IGNORED dispatch path.
func (c *Connection) Reset(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		return err
	}
	h := &syncHandler{}
	if err := c.Send(kindReset, NewReset(), h); err != nil {
		return err
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	for c.pipeline.Pending() > 0 {
		if err := c.Receive(ctx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	if c.state != StateDefunct {
		c.state = StateReady
	}
	c.mu.Unlock()
	c.pipeline.ClearSticky()
	if h.failure != nil {
		return h.failure
	}
	return nil
}

// Goodbye sends GOODBYE (no response expected) and closes the socket.
func (c *Connection) Goodbye() error {
	_ = c.Send(kindGoodbye, NewGoodbye(), &syncHandler{})
	_ = c.Flush(context.Background())
	return c.Close()
}

// Close closes the underlying socket without sending GOODBYE (used on
// already-broken connections).
func (c *Connection) Close() error {
	c.mu.Lock()
	c.state = StateDefunct
	c.mu.Unlock()
	return c.raw.Close()
}

// BeginTx sends BEGIN and blocks for its SUCCESS/FAILURE.
func (c *Connection) BeginTx(ctx context.Context, extra map[string]any) error {
	_, err := c.roundTrip(ctx, kindBegin, NewBegin(extra))
	return err
}

// CommitTx sends COMMIT, flushing first per spec.md §4.3, and returns the
// bookmark string from SUCCESS metadata.
func (c *Connection) CommitTx(ctx context.Context) (string, error) {
	meta, err := c.roundTrip(ctx, kindCommit, NewCommit())
	if err != nil {
		return "", err
	}
	bm, _ := meta["bookmark"].(string)
	return bm, nil
}

// RollbackTx sends ROLLBACK and blocks for its SUCCESS/FAILURE.
func (c *Connection) RollbackTx(ctx context.Context) error {
	_, err := c.roundTrip(ctx, kindRollback, NewRollback())
	return err
}

// Route sends ROUTE and blocks for its SUCCESS/FAILURE, returning the raw
// "rt" routing-table metadata.
func (c *Connection) Route(ctx context.Context, routingContext map[string]any, bookmarks []string, dbExtra map[string]any) (map[string]any, error) {
	meta, err := c.roundTrip(ctx, kindRoute, NewRoute(routingContext, bookmarks, dbExtra))
	if err != nil {
		return nil, err
	}
	rt, _ := toMap(meta["rt"])
	return rt, nil
}

// Telemetry reports an API-usage category; failures are swallowed, per
// real Bolt servers treating TELEMETRY as best-effort.
func (c *Connection) Telemetry(ctx context.Context, apiType int64) {
	_, _ = c.roundTrip(ctx, kindTelemetry, NewTelemetry(apiType))
}
