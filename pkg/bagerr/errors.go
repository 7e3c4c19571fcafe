// Package bagerr defines the error kinds reported while reading bag files.
//
// Every error produced by the reader carries a Kind. Callers classify errors
// with errors.Is against the sentinel values below; the sentinels match any
// *Error of the same Kind regardless of offset or message.
package bagerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a reader error.
type Kind int

const (
	// KindIO means the byte source could not be read.
	KindIO Kind = iota + 1
	// KindInvalidFormat means the version line is missing or unsupported.
	KindInvalidFormat
	// KindMalformedRecord means a record header or length is inconsistent.
	KindMalformedRecord
	// KindUnsupportedCompression means a chunk uses an unknown codec.
	KindUnsupportedCompression
	// KindDecompression means a compressed chunk payload is corrupt.
	KindDecompression
	// KindMissingIndex means the trailing index is absent or incomplete.
	// It is soft: catalog construction falls back to a full scan.
	KindMissingIndex
	// KindNoChunks means the bag holds no chunks, so it has no time bounds.
	KindNoChunks
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindInvalidFormat:
		return "invalid format"
	case KindMalformedRecord:
		return "malformed record"
	case KindUnsupportedCompression:
		return "unsupported compression"
	case KindDecompression:
		return "decompression error"
	case KindMissingIndex:
		return "missing index"
	case KindNoChunks:
		return "no chunks"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified reader error.
type Error struct {
	Kind Kind
	// Offset is the byte offset the error relates to, or -1 if unknown.
	Offset int64
	// Codec is the compression codec name for compression errors.
	Codec   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Codec != "" {
		msg += " (" + e.Codec + ")"
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrIO                     = &Error{Kind: KindIO, Offset: -1}
	ErrInvalidFormat          = &Error{Kind: KindInvalidFormat, Offset: -1}
	ErrMalformedRecord        = &Error{Kind: KindMalformedRecord, Offset: -1}
	ErrUnsupportedCompression = &Error{Kind: KindUnsupportedCompression, Offset: -1}
	ErrDecompression          = &Error{Kind: KindDecompression, Offset: -1}
	ErrMissingIndex           = &Error{Kind: KindMissingIndex, Offset: -1}
	ErrNoChunks               = &Error{Kind: KindNoChunks, Offset: -1}
)

// IO wraps a read failure on the byte source.
func IO(err error, offset int64, msg string) error {
	return &Error{Kind: KindIO, Offset: offset, Message: msg, Err: err}
}

// InvalidFormat reports a bad version line.
func InvalidFormat(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidFormat, Offset: 0, Message: fmt.Sprintf(format, args...)}
}

// Malformed reports a record inconsistency at offset.
func Malformed(offset int64, format string, args ...interface{}) error {
	return &Error{Kind: KindMalformedRecord, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedCompression reports an unknown codec name.
func UnsupportedCompression(name string) error {
	return &Error{Kind: KindUnsupportedCompression, Offset: -1, Codec: name}
}

// Decompression reports a corrupt compressed stream.
func Decompression(name string, err error) error {
	return &Error{Kind: KindDecompression, Offset: -1, Codec: name, Err: err}
}

// MissingIndex reports an absent or incomplete trailing index.
func MissingIndex(format string, args ...interface{}) error {
	return &Error{Kind: KindMissingIndex, Offset: -1, Message: fmt.Sprintf(format, args...)}
}

// AtOffset returns err annotated with a chunk or record offset when err is an
// *Error that does not carry one yet.
func AtOffset(err error, offset int64) error {
	var e *Error
	if errors.As(err, &e) && e.Offset < 0 {
		c := *e
		c.Offset = offset
		return &c
	}
	return err
}

// KindOf returns the Kind of err, or 0 if err is not a classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
