package graphbolt

import (
	"context"

	"github.com/atsika/graphbolt/bolt"
)

// Transaction is an explicit unit of work opened by Session.BeginTransaction
// (spec.md §4.9): BEGIN has already been sent when a Transaction is handed
// back, and exactly one of Commit or Rollback (or the owning Session's
// Close, which rolls back) ends it. Only one cursor may be open on a
// Transaction at a time; Run drains a prior one first.
type Transaction struct {
	session *Session
	cursor  *bolt.Cursor
	closed  bool
}

func (t *Transaction) drainOpenCursor(ctx context.Context) error {
	if t.cursor == nil {
		return nil
	}
	cur := t.cursor
	t.cursor = nil
	_, err := cur.Consume(ctx)
	return err
}

// Run sends query within this transaction. Running a query while a prior
// cursor on this transaction is still open drains that cursor first.
func (t *Transaction) Run(ctx context.Context, query string, params map[string]any) (*bolt.Cursor, error) {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if t.closed {
		return nil, ErrTransactionClosed
	}
	if err := t.drainOpenCursor(ctx); err != nil {
		return nil, err
	}
	cur, err := bolt.Run(ctx, t.session.conn, query, params, nil, t.session.driver.cfg.fetchSize, -1)
	if err != nil {
		t.session.handleFailure(err)
		return nil, err
	}
	t.cursor = cur
	return cur, nil
}

// Commit drains any open cursor, sends COMMIT, and — on success — replaces
// the owning session's bookmark set with the single bookmark COMMIT's
// SUCCESS metadata carries (spec.md §4.9). Commit is not idempotent: a
// second call returns ErrTransactionClosed.
func (t *Transaction) Commit(ctx context.Context) error {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if t.closed {
		return ErrTransactionClosed
	}
	if err := t.drainOpenCursor(ctx); err != nil {
		t.closed = true
		t.session.explicitTx = false
		return err
	}
	bookmark, err := t.session.conn.CommitTx(ctx)
	t.closed = true
	t.session.explicitTx = false
	if err != nil {
		t.session.handleFailure(err)
		return err
	}
	if bookmark != "" {
		t.session.bookmarks = []string{bookmark}
		t.session.driver.bookmarks.UpdateBookmarks(t.session.database, t.session.bookmarks)
	}
	return nil
}

// Rollback abandons any open cursor and sends ROLLBACK. Unlike Commit, a
// failure draining the cursor does not prevent the ROLLBACK from being
// attempted — a half-failed query is exactly when a caller most needs
// Rollback to still go through.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if t.closed {
		return ErrTransactionClosed
	}
	if t.cursor != nil {
		_, _ = t.cursor.Consume(ctx)
		t.cursor = nil
	}
	err := t.session.conn.RollbackTx(ctx)
	t.closed = true
	t.session.explicitTx = false
	return err
}
