package packstream

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding is returned when a value cannot be represented in PackStream
	// (a non-string map key, an integer out of i64 range, a struct writer
	// given the wrong field count).
	ErrEncoding = errors.New("packstream: encoding error")
	// ErrProtocol is returned when the decoder encounters an unknown marker,
	// truncated input, or invalid UTF-8 in a string.
	ErrProtocol = errors.New("packstream: protocol error")
)

// EncodingError wraps ErrEncoding with a specific reason.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string        { return fmt.Sprintf("packstream: encoding error: %s", e.Reason) }
func (e *EncodingError) Unwrap() error         { return ErrEncoding }
func newEncodingError(reason string) error     { return &EncodingError{Reason: reason} }
func newEncodingErrorf(f string, a ...any) error {
	return &EncodingError{Reason: fmt.Sprintf(f, a...)}
}

// ProtocolError wraps ErrProtocol with a specific reason.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string    { return fmt.Sprintf("packstream: protocol error: %s", e.Reason) }
func (e *ProtocolError) Unwrap() error     { return ErrProtocol }
func newProtocolError(reason string) error { return &ProtocolError{Reason: reason} }
func newProtocolErrorf(f string, a ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(f, a...)}
}
