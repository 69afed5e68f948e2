package graphbolt

import (
	"context"
	"fmt"
	"sync"

	"github.com/atsika/graphbolt/bolt"
)

// AccessMode selects which half of the routing table a Session's work is
// directed to (spec.md §4.7/§4.9): reads load-balance across readers,
// writes always target a writer.
type AccessMode int

const (
	AccessModeWrite AccessMode = iota
	AccessModeRead
)

func (m AccessMode) wireMode() string {
	if m == AccessModeRead {
		return "r"
	}
	return "w"
}

// Session is the unit-of-work FSM of spec.md §4.9: it holds a database
// name, an access mode, a bookmark set, a lazily-acquired connection lease,
// and at most one open cursor or explicit transaction at a time. It is not
// safe for concurrent use from multiple goroutines, matching the
// single-threaded-per-connection ownership rule of spec.md §5.
//
// This is the "external collaborator" surface spec.md §1 names as a
// Non-goal for polish: it implements the FSM mechanics C9 budgets, not a
// fluent query-building or row-scanning API on top of them. Result records
// stay raw []any field slices (DESIGN.md's scope note), exactly the shape
// bolt.Cursor already returns.
type Session struct {
	driver    *Driver
	database  string
	mode      AccessMode
	bookmarks []string

	mu         sync.Mutex
	conn       *bolt.Connection
	address    string
	cursor     *bolt.Cursor
	explicitTx bool
	closed     bool
}

// LastBookmarks returns the bookmark set the session will chain its next
// transaction after: the bookmarks it was opened with, or the replacement
// from its most recently committed transaction or drained auto-commit
// query.
func (s *Session) LastBookmarks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bookmarks...)
}

func (s *Session) ensureConnection(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	if s.driver.isClosed() {
		return ErrDriverClosed
	}
	address, err := s.driver.selectAddress(ctx, s.database, s.mode)
	if err != nil {
		return wrapInfraRetryable(err)
	}
	conn, err := s.driver.pool.Acquire(ctx, address)
	if err != nil {
		return wrapInfraRetryable(err)
	}
	bc, ok := conn.(*bolt.Connection)
	if !ok {
		s.driver.pool.Release(ctx, address, conn)
		return fmt.Errorf("graphbolt: pool connection is not *bolt.Connection")
	}
	s.conn = bc
	s.address = address
	return nil
}

// drainOpenCursor consumes any still-open cursor before a new query or
// transaction starts, per spec.md §4.9 ("running a query when an open
// cursor exists first drains that cursor"), and captures a bookmark if the
// summary carries one.
func (s *Session) drainOpenCursor(ctx context.Context) error {
	if s.cursor == nil {
		return nil
	}
	cur := s.cursor
	s.cursor = nil
	meta, err := cur.Consume(ctx)
	if err != nil {
		return err
	}
	s.captureBookmark(meta)
	return nil
}

func (s *Session) captureBookmark(meta map[string]any) {
	bm, _ := meta["bookmark"].(string)
	if bm == "" {
		return
	}
	s.bookmarks = []string{bm}
	s.driver.bookmarks.UpdateBookmarks(s.database, s.bookmarks)
}

func (s *Session) runExtra() map[string]any {
	extra := map[string]any{}
	if s.database != "" {
		extra["db"] = s.database
	}
	if len(s.bookmarks) > 0 {
		bms := make([]any, len(s.bookmarks))
		for i, b := range s.bookmarks {
			bms[i] = b
		}
		extra["bookmarks"] = bms
	}
	if s.mode == AccessModeRead {
		extra["mode"] = s.mode.wireMode()
	}
	return extra
}

// handleFailure applies spec.md §4.7's forgetting rules when a query fails
// with a routing-relevant code, so the next Select on this database skips
// the bad address. NotALeader/ForbiddenOnReadOnlyDatabase only disqualify
// the address as a writer; DatabaseUnavailable disqualifies it everywhere.
func (s *Session) handleFailure(err error) {
	if !s.driver.uri.Routing {
		return
	}
	ne, ok := AsNeo4jError(err)
	if !ok {
		return
	}
	switch ne.Code {
	case "Neo.ClientError.Cluster.NotALeader",
		"Neo.ClientError.General.ForbiddenOnReadOnlyDatabase":
		s.driver.routing.ForgetWriter(s.database, s.address)
	case "Neo.TransientError.General.DatabaseUnavailable":
		s.driver.routing.ForgetAll(s.database, s.address)
	}
}

// Run executes query in auto-commit mode: the server implicitly wraps it in
// its own transaction (spec.md §4.9: "auto-commit RUN is equivalent to
// BEGIN+RUN+COMMIT elided by the server"). Only one explicit transaction or
// auto-commit cursor may be open at a time; calling Run while a prior cursor
// is still open drains it first.
func (s *Session) Run(ctx context.Context, query string, params map[string]any) (*bolt.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.explicitTx {
		return nil, ErrTransactionAlreadyOpen
	}
	if err := s.drainOpenCursor(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureConnection(ctx); err != nil {
		return nil, err
	}
	cur, err := bolt.Run(ctx, s.conn, query, params, s.runExtra(), s.driver.cfg.fetchSize, -1)
	if err != nil {
		s.handleFailure(err)
		return nil, err
	}
	s.cursor = cur
	return cur, nil
}

// BeginTransaction opens an explicit transaction (spec.md §4.9): BEGIN is
// sent and acknowledged before this call returns. Only one explicit
// transaction may be open per session at a time.
func (s *Session) BeginTransaction(ctx context.Context) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.explicitTx {
		return nil, ErrTransactionAlreadyOpen
	}
	if err := s.drainOpenCursor(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureConnection(ctx); err != nil {
		return nil, err
	}
	if err := s.conn.BeginTx(ctx, s.runExtra()); err != nil {
		s.handleFailure(err)
		return nil, err
	}
	s.explicitTx = true
	return &Transaction{session: s}, nil
}

// Close drains any open cursor (rolling back an uncommitted explicit
// transaction instead), releases the session's connection lease back to
// the pool, and marks the session unusable. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	var err error
	if s.explicitTx {
		err = s.conn.RollbackTx(ctx)
		s.explicitTx = false
	} else {
		err = s.drainOpenCursor(ctx)
	}
	s.driver.pool.Release(ctx, s.address, s.conn)
	s.conn = nil
	return err
}
