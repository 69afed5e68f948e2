// Package bolt implements the Bolt message pipeline: chunked framing over a
// byte stream, version handshake, the per-connection request/response state
// machine, the response-handler pipeline, and the lazy result cursor.
//
// The chunking and connection shape is a direct generalization of
// aznet.Conn's frame-based Read/Write loop (see frame.go / aznet.go): a
// write-side buffer flushed in bounded chunks, and a read-side buffer that
// peeks a frame header before consuming its payload.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxChunkSize is the largest payload a single Bolt chunk may carry; the
// 2-byte big-endian length prefix caps it at 65535.
const maxChunkSize = 0xFFFF

// handshakePreamble is the 4-byte magic that starts every Bolt handshake.
var handshakePreamble = [4]byte{0x60, 0x60, 0xB0, 0x17}

// ErrUnsupportedVersion is returned when the server rejects every proposed
// Bolt version (chosen version 0x00000000) or the handshake response is
// malformed.
var ErrUnsupportedVersion = errors.New("bolt: server does not support any proposed version")

// Version is a negotiated (or proposed) Bolt protocol version.
type Version struct {
	Major byte
	Minor byte
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// encodeProposal renders a single 4-byte handshake proposal slot. Per
// DESIGN.md's resolution of spec.md §9's open question, this repo never
// proposes a minor-version *range*: the range byte is always zero, and each
// slot names exactly one (major, minor) pair this client fully supports.
func encodeProposal(v Version) [4]byte {
	return [4]byte{0x00, 0x00, v.Minor, v.Major}
}

// Handshake writes the 4-byte magic preamble followed by four 4-byte version
// proposal slots, 20 bytes in all (most-preferred first, padded with
// zero-proposals if fewer than four are given) and reads back the server's chosen 4-byte version. It returns
// ErrUnsupportedVersion if the server rejects all proposals.
func Handshake(ctx context.Context, rw io.ReadWriter, proposals []Version) (Version, error) {
	if len(proposals) == 0 || len(proposals) > 4 {
		return Version{}, fmt.Errorf("bolt: handshake needs 1-4 proposals, got %d", len(proposals))
	}
	var out bytes.Buffer
	out.Write(handshakePreamble[:])
	for i := 0; i < 4; i++ {
		if i < len(proposals) {
			p := encodeProposal(proposals[i])
			out.Write(p[:])
		} else {
			out.Write([]byte{0, 0, 0, 0})
		}
	}
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	if _, err := rw.Write(out.Bytes()); err != nil {
		return Version{}, fmt.Errorf("bolt: handshake write: %w", err)
	}

	var resp [4]byte
	if _, err := io.ReadFull(rw, resp[:]); err != nil {
		return Version{}, fmt.Errorf("bolt: handshake read: %w", err)
	}
	chosen := binary.BigEndian.Uint32(resp[:])
	if chosen == 0 {
		return Version{}, ErrUnsupportedVersion
	}
	// Chosen version layout mirrors the proposal layout: [0, 0, minor, major].
	return Version{Major: resp[3], Minor: resp[2]}, nil
}

// writeChunked splits a single message payload into ≤65535-byte chunks
// terminated by an empty chunk, matching BuildFrame's role in aznet/frame.go
// but with Bolt's 2-byte-length-only chunk header instead of aznet's
// 4-byte-length-plus-type header.
func writeChunked(w io.Writer, payload []byte) error {
	for len(payload) > 0 {
		n := len(payload)
		if n > maxChunkSize {
			n = maxChunkSize
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
	var term [2]byte // 0x00 0x00
	_, err := w.Write(term[:])
	return err
}

// ChunkCount returns the number of chunks (payload chunks plus the
// terminator) writeChunked emits for a payload of length L, per spec.md §8's
// framing law: ceil(L/65535) + 1.
func ChunkCount(payloadLen int) int {
	if payloadLen == 0 {
		return 1
	}
	return (payloadLen+maxChunkSize-1)/maxChunkSize + 1
}

// readMessage concatenates chunks from r until the terminating empty chunk,
// returning the reassembled message payload. A zero-length chunk is always
// the terminator in this 2-byte-length framing, so there is no distinct
// mid-message zero-length chunk for a framing error to catch: every
// zero-length chunk this function sees ends the current message.
func readMessage(r io.Reader) ([]byte, error) {
	var msg []byte
	var header [2]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) && len(msg) == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("bolt: chunk header read: %w", err)
		}
		n := binary.BigEndian.Uint16(header[:])
		if n == 0 {
			return msg, nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("bolt: chunk payload read: %w", err)
		}
		msg = append(msg, chunk...)
	}
}
