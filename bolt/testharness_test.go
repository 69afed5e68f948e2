package bolt

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/atsika/graphbolt/packstream"
)

// pipePair returns a connected client/server net.Conn pair, closed when the
// test ends. Matches the fake net.Conn pair style spec.md §1a's ambient
// testing section calls for.
func pipePair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// serveHandshake reads the 20-byte client handshake preamble+proposals and
// writes back chosen as the negotiated version.
func serveHandshake(t *testing.T, w io.ReadWriter, chosen Version) {
	t.Helper()
	var req [20]byte
	if _, err := io.ReadFull(w, req[:]); err != nil {
		t.Fatalf("server: read handshake: %v", err)
	}
	if _, err := w.Write([]byte{0x00, 0x00, chosen.Minor, chosen.Major}); err != nil {
		t.Fatalf("server: write chosen version: %v", err)
	}
}

// serverSend encodes and chunks a single response message (SUCCESS, RECORD,
// FAILURE, or IGNORED) onto w.
func serverSend(t *testing.T, w io.Writer, sig byte, fields ...any) {
	t.Helper()
	enc := packstream.NewEncoder(128)
	if err := enc.WriteValue(packstream.Struct{Signature: sig, Fields: fields}); err != nil {
		t.Fatalf("server: encode: %v", err)
	}
	if err := writeChunked(w, enc.Bytes()); err != nil {
		t.Fatalf("server: write chunked: %v", err)
	}
}

// serverRecv reads and decodes the next whole client request.
func serverRecv(t *testing.T, r io.Reader) Response {
	t.Helper()
	payload, err := readMessage(r)
	if err != nil {
		t.Fatalf("server: read message: %v", err)
	}
	resp, err := DecodeResponse(payload)
	if err != nil {
		t.Fatalf("server: decode: %v", err)
	}
	return resp
}

func withDeadline(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
