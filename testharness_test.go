package graphbolt

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/atsika/graphbolt/bolt"
	"github.com/atsika/graphbolt/packstream"
	"github.com/atsika/graphbolt/pool"
	"github.com/atsika/graphbolt/retry"
	"github.com/atsika/graphbolt/router"
)

// Bolt message signatures, mirrored from bolt/messages.go (unexported
// there): a fake server driven from this package has no other way to name
// them.
const (
	sigSuccess byte = 0x70
	sigRecord  byte = 0x71
	sigFailure byte = 0x7F
)

// The root package only sees bolt's exported surface, so this harness
// reimplements the same minimal chunk framing bolt/testharness_test.go
// drives from inside the bolt package — the wire shape is simple and fixed
// (2-byte length prefix, zero-length terminator) and is exercised against
// the real client through bolt.OpenConnection, never duplicated into
// production code.

func pipePair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func serveHandshake(t *testing.T, w io.ReadWriter, major, minor byte) {
	t.Helper()
	var req [20]byte
	if _, err := io.ReadFull(w, req[:]); err != nil {
		t.Fatalf("server: read handshake: %v", err)
	}
	if _, err := w.Write([]byte{0x00, 0x00, minor, major}); err != nil {
		t.Fatalf("server: write chosen version: %v", err)
	}
}

func writeChunkedMsg(w io.Writer, payload []byte) error {
	const maxChunk = 0xFFFF
	for len(payload) > 0 {
		n := len(payload)
		if n > maxChunk {
			n = maxChunk
		}
		var header [2]byte
		binary.BigEndian.PutUint16(header[:], uint16(n))
		if _, err := w.Write(header[:]); err != nil {
			return err
		}
		if _, err := w.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	var term [2]byte
	_, err := w.Write(term[:])
	return err
}

func readChunkedMsg(r io.Reader) ([]byte, error) {
	var msg []byte
	var header [2]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint16(header[:])
		if n == 0 {
			return msg, nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}
		msg = append(msg, chunk...)
	}
}

// serverSend encodes and chunks a single Struct response (SUCCESS, RECORD,
// or FAILURE) onto w.
func serverSend(t *testing.T, w io.Writer, sig byte, fields ...any) {
	t.Helper()
	enc := packstream.NewEncoder(128)
	if err := enc.WriteValue(packstream.Struct{Signature: sig, Fields: fields}); err != nil {
		t.Fatalf("server: encode: %v", err)
	}
	if err := writeChunkedMsg(w, enc.Bytes()); err != nil {
		t.Fatalf("server: write chunked: %v", err)
	}
}

// serverRecv reads and decodes the next whole client request as a
// packstream.Struct, returning its signature and fields.
func serverRecv(t *testing.T, r io.Reader) packstream.Struct {
	t.Helper()
	payload, err := readChunkedMsg(r)
	if err != nil {
		t.Fatalf("server: read message: %v", err)
	}
	v, err := packstream.Decode(payload)
	if err != nil {
		t.Fatalf("server: decode: %v", err)
	}
	st, ok := v.(packstream.Struct)
	if !ok {
		t.Fatalf("server: decoded value is %T, want packstream.Struct", v)
	}
	return st
}

func withDeadline(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// fakeDriver builds a Driver whose pool dials a net.Pipe instead of a real
// socket: the dial side runs the handshake and HELLO for real through
// bolt.OpenConnection/Connection.Hello, and serverScript plays the rest of
// the conversation for each Acquire. Every test builds its own Driver and
// so its own Pool, so Acquire never reuses another test's pipe.
func fakeDriver(t *testing.T, serverScript func(server net.Conn)) *Driver {
	t.Helper()
	uri, err := ParseURI("bolt://fake.invalid:7687")
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	cfg := defaultConfig()
	cfg.fetchSize = 2

	dialer := func(ctx context.Context, address string) (pool.Conn, error) {
		client, server := net.Pipe()
		go func() {
			serveHandshake(t, server, 5, 4)
			serverRecv(t, server) // HELLO
			serverSend(t, server, sigSuccess, map[string]any{"server": "Neo4j/5.4.0"})
			if serverScript != nil {
				serverScript(server)
			}
		}()
		conn, err := bolt.OpenConnection(ctx, client, "conn-fake", []bolt.Version{{Major: 5, Minor: 4}})
		if err != nil {
			return nil, err
		}
		if err := conn.Hello(ctx, map[string]any{"user_agent": cfg.userAgent}, map[string]any{"scheme": "none"}, false); err != nil {
			return nil, err
		}
		return conn, nil
	}

	p, err := pool.New(pool.Config{
		MaxPoolSize:        10,
		MaxIdleSize:        10,
		AcquisitionTimeout: 2 * time.Second,
	}, dialer, pool.NopMetrics{})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}

	d := &Driver{
		uri:       uri,
		auth:      NoAuth(),
		cfg:       cfg,
		bookmarks: NewInMemoryBookmarkManager(),
		pool:      p,
	}
	d.routing = router.New(d.refresh)
	d.retrier = retry.New(retry.Config{
		MaxTransactionRetryTime: 2 * time.Second,
		InitialInterval:         5 * time.Millisecond,
		MaxInterval:             20 * time.Millisecond,
		Multiplier:              2.0,
		RandomizationFactor:     0,
	}, IsRetryable, retry.NopMetrics{})
	return d
}
