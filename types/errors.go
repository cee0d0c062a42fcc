package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity ID is not present in the store.
var ErrNotFound = errors.New("entity not found")

// ErrClosed is returned by operations on a closed store or engine.
var ErrClosed = errors.New("store is closed")

// DecodeErrorKind classifies document decode failures.
type DecodeErrorKind int

const (
	// MalformedHeader: the header block could not be parsed as key/value
	// lines at all.
	MalformedHeader DecodeErrorKind = iota
	// MissingRequiredField: a required header field is absent.
	MissingRequiredField
	// AmbiguousDate: a date field was not in the canonical format.
	// Decoding rejects rather than guesses.
	AmbiguousDate
	// BadFieldValue: a recognized field carried a value outside its
	// closed set (status, priority, layout) or of the wrong shape.
	BadFieldValue
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MalformedHeader:
		return "malformed header"
	case MissingRequiredField:
		return "missing required field"
	case AmbiguousDate:
		return "ambiguous date"
	case BadFieldValue:
		return "bad field value"
	}
	return "decode error"
}

// DecodeError is the typed failure returned by the document codec.
// Decoding never panics; every malformed document maps to one of these.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string // offending field name, when known
	Line  int    // 1-based header line, when known
	Err   error  // underlying cause, may be nil
}

func (e *DecodeError) Error() string {
	msg := e.Kind.String()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Field)
	}
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
