package packstream

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTripScalars(t *testing.T) {
	cases := []any{
		nil, true, false,
		int64(0), int64(127), int64(-16), int64(-17), int64(128), int64(-129),
		int64(32767), int64(32768), int64(-32769),
		int64(1 << 40), int64(-1 << 40),
		float64(0), float64(3.14159), float64(-2.5),
		"", "hello", strings.Repeat("x", 15), strings.Repeat("x", 16), strings.Repeat("x", 300),
	}
	for _, v := range cases {
		enc, err := Encode(v)
		if err != nil {
			t.Fatalf("encode(%v): %v", v, err)
		}
		got, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode(%v) bytes=%x: %v", v, enc, err)
		}
		if got != v {
			// nil compares oddly against interface{}; handle explicitly.
			if v == nil && got == nil {
				continue
			}
			t.Errorf("round trip mismatch: want %#v got %#v", v, got)
		}
	}
}

func TestRoundTripBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	enc, err := Encode(b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	gb, ok := got.([]byte)
	if !ok || !bytes.Equal(gb, b) {
		t.Errorf("want %v got %v", b, got)
	}
}

func TestRoundTripListOrderPreserved(t *testing.T) {
	list := []any{int64(1), "two", int64(3), true, nil}
	enc, err := Encode(list)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	gl, ok := got.([]any)
	if !ok || len(gl) != len(list) {
		t.Fatalf("want %v got %v", list, got)
	}
	for i := range list {
		if gl[i] != list[i] && !(list[i] == nil && gl[i] == nil) {
			t.Errorf("index %d: want %#v got %#v", i, list[i], gl[i])
		}
	}
}

func TestRoundTripMapKeySet(t *testing.T) {
	m := NewMap()
	m.Set("a", int64(1))
	m.Set("b", "two")
	m.Set("c", true)
	enc, err := Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	gm, ok := got.(*Map)
	if !ok {
		t.Fatalf("want *Map got %T", got)
	}
	if gm.Len() != 3 {
		t.Fatalf("want 3 entries got %d", gm.Len())
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := gm.Get(k); !ok {
			t.Errorf("missing key %q", k)
		}
	}
}

func TestRoundTripStruct(t *testing.T) {
	s := Struct{Signature: 0x71, Fields: []any{int64(1), "n"}}
	enc, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	gs, ok := got.(Struct)
	if !ok || gs.Signature != s.Signature || len(gs.Fields) != len(s.Fields) {
		t.Fatalf("want %#v got %#v", s, got)
	}
}

func TestMinimumSizeEncoding(t *testing.T) {
	cases := []struct {
		v    int64
		want []byte
	}{
		{127, []byte{0x7F}},
		{-16, []byte{0xF0}},
		{200, []byte{markerInt16, 0x00, 0xC8}},
		{128, []byte{markerInt16, 0x00, 0x80}},
	}
	for _, c := range cases {
		got, err := Encode(c.v)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, c.want) {
			t.Errorf("encode(%d): want % X got % X", c.v, c.want, got)
		}
	}

	s15 := strings.Repeat("a", 15)
	enc, _ := Encode(s15)
	if enc[0] != markerTinyStringMin|15 {
		t.Errorf("15-byte string should use TINY_STRING, got marker 0x%02X", enc[0])
	}
	s16 := strings.Repeat("a", 16)
	enc, _ = Encode(s16)
	if enc[0] != markerString8 {
		t.Errorf("16-byte string should use STRING_8, got marker 0x%02X", enc[0])
	}
}

func TestDecodeUnknownMarkerIsProtocolError(t *testing.T) {
	_, err := Decode([]byte{0xC5})
	if err == nil {
		t.Fatal("expected error for unknown marker")
	}
	var pe *ProtocolError
	if !asProtocolError(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func TestDecodeTruncatedInputIsProtocolErrorNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("decode panicked: %v", r)
		}
	}()
	inputs := [][]byte{
		{markerString8}, // missing length byte
		{markerString8, 0x05, 'a', 'b'}, // missing payload bytes
		{markerInt64, 0x00, 0x00},       // truncated int64
		{markerTinyStructMin | 2, 0x01}, // signature present, both fields missing
	}
	for _, in := range inputs {
		_, err := Decode(in)
		if err == nil {
			t.Errorf("expected error decoding %x", in)
		}
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	// TINY_STRING length 1 containing an invalid UTF-8 byte.
	buf := []byte{markerTinyStringMin | 1, 0xFF}
	_, err := Decode(buf)
	if err == nil {
		t.Fatal("expected protocol error for invalid utf-8")
	}
}

func TestPeekKindDoesNotAdvance(t *testing.T) {
	enc, _ := Encode(int64(42))
	d := NewDecoder(enc)
	k1, err := d.PeekKind()
	if err != nil {
		t.Fatal(err)
	}
	posAfterPeek := d.pos
	k2, err := d.PeekKind()
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 || posAfterPeek != d.pos || d.pos != 0 {
		t.Fatalf("PeekKind must not advance position: pos=%d", d.pos)
	}
	v, err := d.ReadValue()
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(42) {
		t.Fatalf("want 42 got %v", v)
	}
}

func TestEncodeNonStringMapKeyFails(t *testing.T) {
	// Only map[string]any and *Map are encodable maps; a Go map keyed by
	// anything else must fail cleanly instead of panicking.
	_, err := Encode(map[int]any{1: "one"})
	if err == nil {
		t.Fatal("expected error encoding map with non-string keys")
	}
}

func TestStructWriterFieldCountMismatch(t *testing.T) {
	e := NewEncoder(16)
	w, err := e.WriteStructHeader(0x01, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Field(int64(1)); err != nil {
		t.Fatal(err)
	}
	// Declared 2, only wrote 1.
	if err := w.Close(); err == nil {
		t.Fatal("expected error closing struct writer with too few fields")
	}

	e.Reset()
	w, _ = e.WriteStructHeader(0x01, 1)
	_ = w.Field(int64(1))
	if err := w.Field(int64(2)); err == nil {
		t.Fatal("expected error writing more fields than declared")
	}
}

// asProtocolError is a small helper since errors.As needs an addressable
// target of the exact pointer type.
func asProtocolError(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if ok {
		*target = pe
	}
	return ok
}
