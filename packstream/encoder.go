package packstream

import (
	"encoding/binary"
	"math"
)

// Encoder writes PackStream values to an internal buffer using the
// minimum-size marker for every value. It is not safe for concurrent use.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with the given initial buffer capacity.
func NewEncoder(capacityHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacityHint)}
}

// Reset discards any buffered bytes, retaining the underlying array.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the bytes written so far. The slice is invalidated by the
// next call to Reset.
func (e *Encoder) Bytes() []byte { return e.buf }

// WriteNull writes the null marker.
func (e *Encoder) WriteNull() { e.buf = append(e.buf, markerNull) }

// WriteBool writes a boolean marker.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, markerTrue)
	} else {
		e.buf = append(e.buf, markerFalse)
	}
}

// WriteInt writes the smallest legal integer marker for v.
func (e *Encoder) WriteInt(v int64) {
	switch {
	case v >= tinyIntNegativeMin && v <= tinyIntPositiveMax:
		e.buf = append(e.buf, byte(int8(v)))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		e.buf = append(e.buf, markerInt8, byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(int16(v)))
		e.buf = append(e.buf, markerInt16)
		e.buf = append(e.buf, b[:]...)
	case v >= math.MinInt32 && v <= math.MaxInt32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(v)))
		e.buf = append(e.buf, markerInt32)
		e.buf = append(e.buf, b[:]...)
	default:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		e.buf = append(e.buf, markerInt64)
		e.buf = append(e.buf, b[:]...)
	}
}

// WriteFloat writes an IEEE-754 big-endian double.
func (e *Encoder) WriteFloat(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf = append(e.buf, markerFloat64)
	e.buf = append(e.buf, b[:]...)
}

// WriteString writes a UTF-8 string with the smallest legal length marker.
func (e *Encoder) WriteString(s string) error {
	n := len(s)
	switch {
	case n <= 15:
		e.buf = append(e.buf, markerTinyStringMin|byte(n))
	case n <= math.MaxUint8:
		e.buf = append(e.buf, markerString8, byte(n))
	case n <= math.MaxUint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		e.buf = append(e.buf, markerString16)
		e.buf = append(e.buf, b[:]...)
	case uint64(n) <= math.MaxUint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		e.buf = append(e.buf, markerString32)
		e.buf = append(e.buf, b[:]...)
	default:
		return newEncodingError("string too long")
	}
	e.buf = append(e.buf, s...)
	return nil
}

// WriteBytes writes a byte blob with the smallest legal length marker.
func (e *Encoder) WriteBytes(b []byte) error {
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		e.buf = append(e.buf, markerBytes8, byte(n))
	case n <= math.MaxUint16:
		var lb [2]byte
		binary.BigEndian.PutUint16(lb[:], uint16(n))
		e.buf = append(e.buf, markerBytes16)
		e.buf = append(e.buf, lb[:]...)
	case uint64(n) <= math.MaxUint32:
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(n))
		e.buf = append(e.buf, markerBytes32)
		e.buf = append(e.buf, lb[:]...)
	default:
		return newEncodingError("byte blob too long")
	}
	e.buf = append(e.buf, b...)
	return nil
}

// WriteListHeader writes a list marker for n upcoming elements. The caller
// must then write exactly n values.
func (e *Encoder) WriteListHeader(n int) error {
	return e.writeContainerHeader(n, markerTinyListMin, markerTinyListMax, markerList8, markerList16, markerList32)
}

// WriteMapHeader writes a map marker for n upcoming key/value pairs. The
// caller must then write exactly n string keys interleaved with n values.
func (e *Encoder) WriteMapHeader(n int) error {
	return e.writeContainerHeader(n, markerTinyMapMin, markerTinyMapMax, markerMap8, markerMap16, markerMap32)
}

func (e *Encoder) writeContainerHeader(n int, tinyMin, tinyMax, m8, m16, m32 byte) error {
	if n < 0 {
		return newEncodingError("negative container length")
	}
	switch {
	case n <= int(tinyMax-tinyMin):
		e.buf = append(e.buf, tinyMin|byte(n))
	case n <= math.MaxUint8:
		e.buf = append(e.buf, m8, byte(n))
	case n <= math.MaxUint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		e.buf = append(e.buf, m16)
		e.buf = append(e.buf, b[:]...)
	case uint64(n) <= math.MaxUint32:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		e.buf = append(e.buf, m32)
		e.buf = append(e.buf, b[:]...)
	default:
		return newEncodingError("container too large")
	}
	return nil
}

// structWriter tracks how many fields have been written against a
// pre-declared count, so writing too many or too few is caught rather than
// silently corrupting the stream.
type structWriter struct {
	enc      *Encoder
	declared int
	written  int
}

// WriteStructHeader begins a struct with the given signature and declared
// field count. The returned structWriter must have exactly fieldCount
// values written to it via Field, then Close must be called.
func (e *Encoder) WriteStructHeader(signature byte, fieldCount int) (*structWriter, error) {
	if fieldCount < 0 {
		return nil, newEncodingError("negative struct field count")
	}
	switch {
	case fieldCount <= int(markerTinyStructMax-markerTinyStructMin):
		e.buf = append(e.buf, markerTinyStructMin|byte(fieldCount))
	case fieldCount <= math.MaxUint8:
		e.buf = append(e.buf, markerStruct8, byte(fieldCount))
	case fieldCount <= math.MaxUint16:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(fieldCount))
		e.buf = append(e.buf, markerStruct16)
		e.buf = append(e.buf, b[:]...)
	default:
		return nil, newEncodingError("struct has too many fields")
	}
	e.buf = append(e.buf, signature)
	return &structWriter{enc: e, declared: fieldCount}, nil
}

// Field writes one struct field value, tracking the declared count.
func (w *structWriter) Field(v any) error {
	if w.written >= w.declared {
		return newEncodingErrorf("struct writer: wrote more than declared %d fields", w.declared)
	}
	w.written++
	return w.enc.WriteValue(v)
}

// Close verifies exactly the declared number of fields were written.
func (w *structWriter) Close() error {
	if w.written != w.declared {
		return newEncodingErrorf("struct writer: declared %d fields, wrote %d", w.declared, w.written)
	}
	return nil
}

// WriteValue dispatches on the dynamic type of v, covering every type
// producible by Decoder plus the plain Go equivalents (map[string]any,
// []any, []byte, string, bool, the integer and float kinds).
func (e *Encoder) WriteValue(v any) error {
	switch t := v.(type) {
	case nil:
		e.WriteNull()
	case bool:
		e.WriteBool(t)
	case int:
		e.WriteInt(int64(t))
	case int8:
		e.WriteInt(int64(t))
	case int16:
		e.WriteInt(int64(t))
	case int32:
		e.WriteInt(int64(t))
	case int64:
		e.WriteInt(t)
	case uint8:
		e.WriteInt(int64(t))
	case uint16:
		e.WriteInt(int64(t))
	case uint32:
		e.WriteInt(int64(t))
	case float32:
		e.WriteFloat(float64(t))
	case float64:
		e.WriteFloat(t)
	case string:
		return e.WriteString(t)
	case []byte:
		return e.WriteBytes(t)
	case []any:
		if err := e.WriteListHeader(len(t)); err != nil {
			return err
		}
		for _, elem := range t {
			if err := e.WriteValue(elem); err != nil {
				return err
			}
		}
	case map[string]any:
		return e.writeGoMap(t)
	case *Map:
		return e.writeOrderedMap(t)
	case Struct:
		return e.writeStruct(t)
	case *Struct:
		return e.writeStruct(*t)
	default:
		return newEncodingErrorf("unsupported value type %T", v)
	}
	return nil
}

func (e *Encoder) writeGoMap(m map[string]any) error {
	if err := e.WriteMapHeader(len(m)); err != nil {
		return err
	}
	for k, v := range m {
		if err := e.WriteString(k); err != nil {
			return err
		}
		if err := e.WriteValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeOrderedMap(m *Map) error {
	if err := e.WriteMapHeader(m.Len()); err != nil {
		return err
	}
	var outerErr error
	m.Range(func(k string, v any) {
		if outerErr != nil {
			return
		}
		if err := e.WriteString(k); err != nil {
			outerErr = err
			return
		}
		outerErr = e.WriteValue(v)
	})
	return outerErr
}

func (e *Encoder) writeStruct(s Struct) error {
	w, err := e.WriteStructHeader(s.Signature, len(s.Fields))
	if err != nil {
		return err
	}
	for _, f := range s.Fields {
		if err := w.Field(f); err != nil {
			return err
		}
	}
	return w.Close()
}

// Encode is a convenience wrapper returning the bytes for a single value.
func Encode(v any) ([]byte, error) {
	e := NewEncoder(64)
	if err := e.WriteValue(v); err != nil {
		return nil, err
	}
	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out, nil
}
