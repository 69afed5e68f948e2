package packstream

// Struct is a PackStream struct: a tagged aggregate identified by a one-byte
// signature, carrying an ordered list of fields. Bolt messages and temporal
///spatial values are all Structs distinguished by Signature.
type Struct struct {
	Signature byte
	Fields    []any
}

// Map preserves insertion order, required for round-tripping request
// messages (HELLO auth tokens, RUN parameters, ...). Values decoded from a
// server response are also represented as *Map but their order carries no
// meaning per spec.
type Map struct {
	keys   []string
	values []any
}

// NewMap returns an empty, order-preserving Map.
func NewMap() *Map { return &Map{} }

// Set inserts or overwrites a key, preserving the position of the first
// insertion.
func (m *Map) Set(key string, value any) {
	for i, k := range m.keys {
		if k == key {
			m.values[i] = value
			return
		}
	}
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (any, bool) {
	for i, k := range m.keys {
		if k == key {
			return m.values[i], true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. Callers must not mutate it.
func (m *Map) Keys() []string { return m.keys }

// Range calls fn for every key/value pair in insertion order.
func (m *Map) Range(fn func(key string, value any)) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		fn(k, m.values[i])
	}
}

// MapOf builds a Map from a plain Go map. Key iteration order of the source
// map is undefined, as is the resulting Map's order — use for decoded server
// metadata, never for requests that must round-trip a specific key order.
func MapOf(src map[string]any) *Map {
	m := &Map{}
	for k, v := range src {
		m.Set(k, v)
	}
	return m
}

// ToGoMap converts to a plain Go map, discarding order.
func (m *Map) ToGoMap() map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(k string, v any) { out[k] = v })
	return out
}
