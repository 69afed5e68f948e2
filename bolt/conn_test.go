package bolt

import (
	"errors"
	"testing"
)

func TestConnectionHandshakeHelloRunPull(t *testing.T) {
	client, server := pipePair(t)
	ctx := withDeadline(t)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		serveHandshake(t, server, Version{Major: 5, Minor: 4})
		serverRecv(t, server) // HELLO
		serverSend(t, server, sigSuccess, map[string]any{"server": "Neo4j/5.4.0"})
		serverRecv(t, server) // RUN
		serverSend(t, server, sigSuccess, map[string]any{"fields": []any{"n"}})
		serverRecv(t, server) // PULL
		serverSend(t, server, sigRecord, []any{int64(1)})
		serverSend(t, server, sigSuccess, map[string]any{"has_more": false, "bookmark": "bm:1"})
	}()

	conn, err := OpenConnection(ctx, client, "conn-1", []Version{{Major: 5, Minor: 4}})
	if err != nil {
		t.Fatalf("OpenConnection: %v", err)
	}
	if err := conn.Hello(ctx, map[string]any{"user_agent": "test/1.0"}, map[string]any{"scheme": "none"}, false); err != nil {
		t.Fatalf("Hello: %v", err)
	}
	if conn.State() != StateReady {
		t.Fatalf("state after Hello = %s, want READY", conn.State())
	}
	if conn.ServerVersion() != "Neo4j/5.4.0" {
		t.Fatalf("ServerVersion = %q", conn.ServerVersion())
	}

	cur, err := Run(ctx, conn, "RETURN 1 AS n", nil, nil, 1000, -1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if keys := cur.Keys(); len(keys) != 1 || keys[0] != "n" {
		t.Fatalf("Keys = %v", keys)
	}

	rec, ok, err := cur.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next = %v, ok=%v, err=%v", rec, ok, err)
	}
	if len(rec) != 1 || rec[0].(int64) != 1 {
		t.Fatalf("record = %v", rec)
	}
	if _, ok, err := cur.Next(ctx); err != nil || ok {
		t.Fatalf("expected end of stream, got ok=%v err=%v", ok, err)
	}
	if conn.State() != StateReady {
		t.Fatalf("state after stream end = %s, want READY", conn.State())
	}

	<-serverDone
}

func TestConnectionFailureThenReset(t *testing.T) {
	client, server := pipePair(t)
	ctx := withDeadline(t)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		serveHandshake(t, server, Version{Major: 5, Minor: 4})
		serverRecv(t, server) // HELLO
		serverSend(t, server, sigSuccess, map[string]any{"server": "Neo4j/5.4.0"})
		serverRecv(t, server) // RUN
		serverSend(t, server, sigFailure, map[string]any{"code": "Neo.ClientError.Statement.SyntaxError", "message": "bad query"})
		serverRecv(t, server) // RESET
		serverSend(t, server, sigSuccess, map[string]any{})
	}()

	conn, err := OpenConnection(ctx, client, "conn-2", []Version{{Major: 5, Minor: 4}})
	if err != nil {
		t.Fatalf("OpenConnection: %v", err)
	}
	if err := conn.Hello(ctx, nil, map[string]any{"scheme": "none"}, false); err != nil {
		t.Fatalf("Hello: %v", err)
	}

	if _, err := Run(ctx, conn, "INVALID", nil, nil, 1000, -1); err == nil {
		t.Fatal("expected RUN failure")
	} else {
		var ne *Neo4jError
		if !errors.As(err, &ne) || ne.Class != ClassClientError {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if conn.State() != StateFailed {
		t.Fatalf("state after FAILURE = %s, want FAILED", conn.State())
	}

	if err := conn.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if conn.State() != StateReady {
		t.Fatalf("state after Reset = %s, want READY", conn.State())
	}

	<-serverDone
}

func TestConnectionSplitAuthHelloLogon(t *testing.T) {
	client, server := pipePair(t)
	ctx := withDeadline(t)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		serveHandshake(t, server, Version{Major: 5, Minor: 4})
		hello := serverRecv(t, server)
		if hello.Signature != sigHello {
			t.Errorf("first message signature = 0x%02X, want HELLO", hello.Signature)
		}
		logon := serverRecv(t, server)
		if logon.Signature != sigLogon {
			t.Errorf("second message signature = 0x%02X, want LOGON", logon.Signature)
		}
		serverSend(t, server, sigSuccess, map[string]any{"server": "Neo4j/5.4.0"})
		serverSend(t, server, sigSuccess, map[string]any{})
	}()

	conn, err := OpenConnection(ctx, client, "conn-5", []Version{{Major: 5, Minor: 4}})
	if err != nil {
		t.Fatalf("OpenConnection: %v", err)
	}
	if err := conn.Hello(ctx, map[string]any{"user_agent": "test/1.0"}, map[string]any{"scheme": "basic", "principal": "neo4j", "credentials": "pw"}, true); err != nil {
		t.Fatalf("Hello: %v", err)
	}
	if conn.State() != StateReady {
		t.Fatalf("state after pipelined Hello+Logon = %s, want READY", conn.State())
	}

	<-serverDone
}
