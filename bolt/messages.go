package bolt

import "github.com/atsika/graphbolt/packstream"

// Request message signatures (spec.md §3).
const (
	sigHello     byte = 0x01
	sigLogon     byte = 0x6A
	sigLogoff    byte = 0x6B
	sigGoodbye   byte = 0x02
	sigReset     byte = 0x0F
	sigRun       byte = 0x10
	sigDiscard   byte = 0x2F
	sigPull      byte = 0x3F
	sigBegin     byte = 0x11
	sigCommit    byte = 0x12
	sigRollback  byte = 0x13
	sigRoute     byte = 0x66
	sigTelemetry byte = 0x54
)

// Response message signatures (spec.md §3).
const (
	sigSuccess byte = 0x70
	sigRecord  byte = 0x71
	sigFailure byte = 0x7F
	sigIgnored byte = 0x7E
)

// Request is anything that can render itself as a single PackStream Struct
// to be chunked and sent.
type Request struct {
	Signature byte
	Fields    []any
}

// Encode renders the request as a single PackStream struct payload, ready
// for chunked framing.
func (r Request) Encode() ([]byte, error) {
	enc := packstream.NewEncoder(128)
	if err := enc.WriteValue(packstream.Struct{Signature: r.Signature, Fields: r.Fields}); err != nil {
		return nil, err
	}
	out := make([]byte, len(enc.Bytes()))
	copy(out, enc.Bytes())
	return out, nil
}

// NewHello builds a HELLO request. auth is folded into extra per protocol
// version: Bolt 5.1+ servers expect auth via a separate LOGON and HELLO
// carries no credentials; callers targeting <5.1 pass auth merged into
// extra instead. This package only builds the message; version-dependent
// field placement is the Connection's responsibility (conn.go).
func NewHello(extra map[string]any) Request {
	return Request{Signature: sigHello, Fields: []any{extra}}
}

// NewLogon builds a LOGON request carrying an auth token map.
func NewLogon(auth map[string]any) Request {
	return Request{Signature: sigLogon, Fields: []any{auth}}
}

// NewLogoff builds a LOGOFF request.
func NewLogoff() Request { return Request{Signature: sigLogoff} }

// NewGoodbye builds a GOODBYE request.
func NewGoodbye() Request { return Request{Signature: sigGoodbye} }

// NewReset builds a RESET request.
func NewReset() Request { return Request{Signature: sigReset} }

// NewRun builds a RUN request.
func NewRun(query string, params map[string]any, extra map[string]any) Request {
	return Request{Signature: sigRun, Fields: []any{query, params, extra}}
}

// NewDiscard builds a DISCARD request. extra carries n (record count, -1 for
// all) and optionally qid for multi-statement transactions.
func NewDiscard(extra map[string]any) Request {
	return Request{Signature: sigDiscard, Fields: []any{extra}}
}

// NewPull builds a PULL request. extra carries n and optionally qid.
func NewPull(extra map[string]any) Request {
	return Request{Signature: sigPull, Fields: []any{extra}}
}

// NewBegin builds a BEGIN request.
func NewBegin(extra map[string]any) Request {
	return Request{Signature: sigBegin, Fields: []any{extra}}
}

// NewCommit builds a COMMIT request.
func NewCommit() Request { return Request{Signature: sigCommit} }

// NewRollback builds a ROLLBACK request.
func NewRollback() Request { return Request{Signature: sigRollback} }

// NewRoute builds a ROUTE request: routing context, bookmarks, and an
// optional database name / impersonated user extra map (version dependent).
func NewRoute(routingContext map[string]any, bookmarks []string, dbExtra map[string]any) Request {
	bms := make([]any, len(bookmarks))
	for i, b := range bookmarks {
		bms[i] = b
	}
	return Request{Signature: sigRoute, Fields: []any{routingContext, bms, dbExtra}}
}

// NewTelemetry builds a TELEMETRY request reporting an API-usage category.
func NewTelemetry(apiType int64) Request {
	return Request{Signature: sigTelemetry, Fields: []any{map[string]any{"api": apiType}}}
}

// Response is a decoded server response message.
type Response struct {
	Signature byte
	Fields    []any
}

// Kind constants for Response.Signature, for readable switch statements at
// call sites.
const (
	RespSuccess = sigSuccess
	RespRecord  = sigRecord
	RespFailure = sigFailure
	RespIgnored = sigIgnored
)

// DecodeResponse parses one complete, dechunked message payload into a
// Response.
func DecodeResponse(payload []byte) (Response, error) {
	d := packstream.NewDecoder(payload)
	sig, n, err := d.ReadStructHeader()
	if err != nil {
		return Response{}, err
	}
	fields := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := d.ReadValue()
		if err != nil {
			return Response{}, err
		}
		fields[i] = v
	}
	return Response{Signature: sig, Fields: fields}, nil
}

// Metadata returns the SUCCESS/FAILURE metadata map as a *packstream.Map,
// or nil if the response carries none.
func (r Response) Metadata() *packstream.Map {
	if len(r.Fields) == 0 {
		return nil
	}
	m, _ := r.Fields[0].(*packstream.Map)
	return m
}
