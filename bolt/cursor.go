package bolt

import "context"

// DefaultFetchSize is the number of records requested per PULL when the
// caller does not override it (spec.md §4.5).
const DefaultFetchSize = 1000

// cursorHandler buffers RECORD messages and tracks the terminal response of
// a RUN/PULL/DISCARD exchange for Cursor.
type cursorHandler struct {
	records [][]any
	done    bool
	hasMore bool
	failure *Neo4jError
	ignored bool
	meta    map[string]any
}

func (h *cursorHandler) OnSuccess(meta map[string]any) {
	h.done = true
	h.meta = meta
	hasMore, _ := meta["has_more"].(bool)
	h.hasMore = hasMore
}
func (h *cursorHandler) OnRecord(fields []any) { h.records = append(h.records, fields) }
func (h *cursorHandler) OnFailure(err *Neo4jError) {
	h.done = true
	h.failure = err
}
func (h *cursorHandler) OnIgnored() { h.done = true; h.ignored = true }

// Cursor is a lazy, backpressured result stream (component C5): it never
// buffers more than one fetch's worth of records in memory at a time, and
// only issues the next PULL once the caller has consumed the current batch
// (spec.md §4.5).
type Cursor struct {
	conn      *Connection
	fetchSize int64
	qid       int64 // -1 for the implicit "last statement" qid
	keys      []string

	buffer  [][]any
	pos     int
	hasMore bool
	closed  bool
	err     error
}

// Keys returns the field names of the running statement, available once Run
// returns.
func (c *Cursor) Keys() []string { return c.keys }

// Run sends RUN on its own and blocks for RUN's SUCCESS (to capture field
// keys) before the caller ever sees a record. No PULL is sent with the RUN;
// the first PULL goes out on the cursor's first Next.
func Run(ctx context.Context, conn *Connection, query string, params map[string]any, extra map[string]any, fetchSize int64, qid int64) (*Cursor, error) {
	if fetchSize <= 0 {
		fetchSize = DefaultFetchSize
	}
	runHandler := &cursorHandler{}
	if err := conn.Send(kindRun, NewRun(query, params, extra), runHandler); err != nil {
		return nil, err
	}
	if err := conn.Flush(ctx); err != nil {
		return nil, err
	}
	for !runHandler.done {
		if err := conn.Receive(ctx); err != nil {
			return nil, err
		}
	}
	if runHandler.failure != nil {
		return nil, runHandler.failure
	}
	keys, _ := runHandler.meta["fields"].([]any)
	keyStrs := make([]string, len(keys))
	for i, k := range keys {
		if s, ok := k.(string); ok {
			keyStrs[i] = s
		}
	}
	cur := &Cursor{conn: conn, fetchSize: fetchSize, qid: qid, keys: keyStrs, hasMore: true}
	return cur, nil
}

// pullExtra builds the {"n": fetchSize, "qid": qid} extra map for PULL,
// omitting qid when it refers to the implicit last statement.
func (c *Cursor) pullExtra() map[string]any {
	extra := map[string]any{"n": c.fetchSize}
	if c.qid != -1 {
		extra["qid"] = c.qid
	}
	return extra
}

// discardExtra is pullExtra with n = -1, so DISCARD abandons every
// remaining record rather than one batch.
func (c *Cursor) discardExtra() map[string]any {
	extra := c.pullExtra()
	extra["n"] = int64(-1)
	return extra
}

// fetch issues one PULL and blocks until its terminal response, refilling
// the internal buffer.
func (c *Cursor) fetch(ctx context.Context) error {
	h := &cursorHandler{}
	if err := c.conn.Send(kindPull, NewPull(c.pullExtra()), h); err != nil {
		return err
	}
	if err := c.conn.Flush(ctx); err != nil {
		return err
	}
	for !h.done {
		if err := c.conn.Receive(ctx); err != nil {
			return err
		}
	}
	if h.failure != nil {
		c.hasMore = false
		return h.failure
	}
	c.buffer = h.records
	c.pos = 0
	c.hasMore = h.hasMore
	return nil
}

// Next advances the cursor and returns the next record's fields, issuing a
// new PULL transparently once the current batch is exhausted. It returns
// (nil, false, nil) once the stream is done.
func (c *Cursor) Next(ctx context.Context) ([]any, bool, error) {
	if c.closed {
		return nil, false, c.err
	}
	for c.pos >= len(c.buffer) {
		if !c.hasMore {
			return nil, false, nil
		}
		if err := c.fetch(ctx); err != nil {
			c.err = err
			c.closed = true
			return nil, false, err
		}
	}
	rec := c.buffer[c.pos]
	c.pos++
	return rec, true, nil
}

// Consume drains any remaining records without materializing them and, if
// the server still has more to send, issues a DISCARD to abandon the rest
// server-side (spec.md §4.5: "dropping a cursor before exhaustion issues an
// asynchronous DISCARD instead of reading every remaining record").
func (c *Cursor) Consume(ctx context.Context) (map[string]any, error) {
	if c.closed {
		return nil, c.err
	}
	c.buffer = nil
	c.pos = 0
	if c.hasMore {
		h := &cursorHandler{}
		if err := c.conn.Send(kindDiscard, NewDiscard(c.discardExtra()), h); err != nil {
			return nil, err
		}
		if err := c.conn.Flush(ctx); err != nil {
			return nil, err
		}
		for !h.done {
			if err := c.conn.Receive(ctx); err != nil {
				return nil, err
			}
		}
		c.closed = true
		if h.failure != nil {
			c.err = h.failure
			return nil, h.failure
		}
		return h.meta, nil
	}
	c.closed = true
	return nil, nil
}

// Discard abandons the cursor without blocking for the server's
// acknowledgement: it only queues the DISCARD request, for callers that do
// not need the summary metadata back. The request goes out on the
// connection's next Flush and its response is dispatched by a later Receive;
// until that response arrives the connection stays in STREAMING and does
// not accept a new RUN.
func (c *Cursor) Discard() error {
	if c.closed || !c.hasMore {
		c.closed = true
		return nil
	}
	c.closed = true
	return c.conn.Send(kindDiscard, NewDiscard(c.discardExtra()), &cursorHandler{})
}
