package graphbolt

import (
	"net"
	"testing"
)

func TestSessionRunDrainsOpenCursorAndCapturesBookmark(t *testing.T) {
	d := fakeDriver(t, func(server net.Conn) {
		serverRecv(t, server) // RUN (first query)
		serverSend(t, server, sigSuccess, map[string]any{"fields": []any{"n"}})
		serverRecv(t, server) // DISCARD issued by the drain before the 2nd RUN
		serverSend(t, server, sigSuccess, map[string]any{"has_more": false, "bookmark": "bm:1"})
		serverRecv(t, server) // RUN (second query)
		serverSend(t, server, sigSuccess, map[string]any{"fields": []any{"m"}})
		serverRecv(t, server) // DISCARD, from Session.Close draining the 2nd cursor
		serverSend(t, server, sigSuccess, map[string]any{"has_more": false, "bookmark": "bm:2"})
	})
	ctx := withDeadline(t)

	sess := d.NewSession("", AccessModeWrite)
	defer sess.Close(ctx)

	cur1, err := sess.Run(ctx, "RETURN 1 AS n", nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if cur1 == nil {
		t.Fatal("expected non-nil cursor")
	}

	// Starting a second query while cur1 is still open must drain cur1 first.
	cur2, err := sess.Run(ctx, "RETURN 2 AS m", nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if cur2 == nil {
		t.Fatal("expected non-nil cursor")
	}

	if got := sess.LastBookmarks(); len(got) != 1 || got[0] != "bm:1" {
		t.Fatalf("LastBookmarks = %v, want [bm:1]", got)
	}
}

func TestSessionRunAfterCloseReturnsErrSessionClosed(t *testing.T) {
	d := fakeDriver(t, nil)
	ctx := withDeadline(t)

	sess := d.NewSession("", AccessModeWrite)
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("second Close should be idempotent, got: %v", err)
	}

	if _, err := sess.Run(ctx, "RETURN 1", nil); err != ErrSessionClosed {
		t.Fatalf("Run after Close = %v, want ErrSessionClosed", err)
	}
	if _, err := sess.BeginTransaction(ctx); err != ErrSessionClosed {
		t.Fatalf("BeginTransaction after Close = %v, want ErrSessionClosed", err)
	}
}

func TestSessionBeginTransactionAlreadyOpen(t *testing.T) {
	d := fakeDriver(t, func(server net.Conn) {
		serverRecv(t, server) // BEGIN
		serverSend(t, server, sigSuccess, map[string]any{})
		serverRecv(t, server) // ROLLBACK, from the explicit tx.Rollback below
		serverSend(t, server, sigSuccess, map[string]any{})
	})
	ctx := withDeadline(t)

	sess := d.NewSession("", AccessModeWrite)
	defer sess.Close(ctx)

	tx, err := sess.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected non-nil transaction")
	}

	if _, err := sess.BeginTransaction(ctx); err != ErrTransactionAlreadyOpen {
		t.Fatalf("second BeginTransaction = %v, want ErrTransactionAlreadyOpen", err)
	}
	if _, err := sess.Run(ctx, "RETURN 1", nil); err != ErrTransactionAlreadyOpen {
		t.Fatalf("Run while tx open = %v, want ErrTransactionAlreadyOpen", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
}

func TestSessionCloseRollsBackOpenTransaction(t *testing.T) {
	d := fakeDriver(t, func(server net.Conn) {
		serverRecv(t, server) // BEGIN
		serverSend(t, server, sigSuccess, map[string]any{})
		serverRecv(t, server) // ROLLBACK, from Session.Close
		serverSend(t, server, sigSuccess, map[string]any{})
	})
	ctx := withDeadline(t)

	sess := d.NewSession("", AccessModeWrite)
	if _, err := sess.BeginTransaction(ctx); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
