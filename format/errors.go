package format

import (
	"errors"
	"fmt"
	"io"
)

// Kind classifies import and export failures.
type Kind int

const (
	KindUnknown Kind = iota
	UnrecognizedFormat
	MalformedInput
	UnsupportedFeature
	ValidationFailure
	IOFailure
)

var (
	ErrUnrecognizedFormat = errors.New("unrecognized format")
	ErrMalformedInput     = errors.New("malformed input")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrValidationFailure  = errors.New("validation failure")
	ErrIOFailure          = errors.New("i/o failure")
)

var kindErrors = map[Kind]error{
	UnrecognizedFormat: ErrUnrecognizedFormat,
	MalformedInput:     ErrMalformedInput,
	UnsupportedFeature: ErrUnsupportedFeature,
	ValidationFailure:  ErrValidationFailure,
	IOFailure:          ErrIOFailure,
}

func (k Kind) String() string {
	if err, ok := kindErrors[k]; ok {
		return err.Error()
	}
	return "unknown error"
}

// Error is returned by readers, writers and post-process steps.
type Error struct {
	Kind Kind
	// Format is the reader, writer or step that failed.
	Format string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Format != "" {
		s = e.Format + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind.
func (e *Error) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, format, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Format: format, Msg: fmt.Sprintf(msg, args...)}
}

func Malformed(format, msg string, args ...interface{}) *Error {
	return newError(MalformedInput, format, msg, args...)
}

func Unsupported(format, msg string, args ...interface{}) *Error {
	return newError(UnsupportedFeature, format, msg, args...)
}

func Unrecognized(format, msg string, args ...interface{}) *Error {
	return newError(UnrecognizedFormat, format, msg, args...)
}

func Validation(format, msg string, args ...interface{}) *Error {
	return newError(ValidationFailure, format, msg, args...)
}

// WrapIO converts a stream error. Unexpected EOF means truncated input.
// Errors that already carry a Kind are returned unchanged.
func WrapIO(format string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &Error{Kind: MalformedInput, Format: format, Msg: "unexpected end of data", Err: err}
	}
	return &Error{Kind: IOFailure, Format: format, Err: err}
}
