package service

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/capture"
	"github.com/nerrad567/gray-logic-backlightd/internal/device"
)

// Kind classifies an error reply. The set is closed; transports translate
// each kind to their own error names in one place.
type Kind int

const (
	// KindInternal is any failure not attributable to the caller or the
	// device selector (capture helper crashed, shutting down, ...).
	KindInternal Kind = iota

	// KindInvalidArgument is a bad or out-of-range argument.
	KindInvalidArgument

	// KindNotFound means no device matched the selector.
	KindNotFound

	// KindAccessDenied means the OS rejected the write.
	KindAccessDenied

	// KindAttributeUnavailable means the device node is malformed: an
	// attribute is missing or not an integer.
	KindAttributeUnavailable
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindAttributeUnavailable:
		return "attribute_unavailable"
	default:
		return "internal"
	}
}

// Package errors.
var (
	// ErrShuttingDown is returned for calls that arrive or are still queued
	// when the loop stops.
	ErrShuttingDown = errors.New("service: shutting down")

	// ErrUnknownMethod is returned when a call names no registered method.
	ErrUnknownMethod = errors.New("service: unknown method")

	// ErrBadArguments is returned when a call's arguments do not match the
	// method signature.
	ErrBadArguments = errors.New("service: bad arguments")
)

// Error is a classified error reply.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err. A nil error has no kind and reports
// KindInternal.
func KindOf(err error) Kind {
	return Classify(err).Kind
}

// Classify maps any error from the handler chain onto the closed taxonomy
// and a caller-facing message. It returns nil for a nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var already *Error
	if errors.As(err, &already) {
		return already
	}

	switch {
	case errors.Is(err, brightness.ErrInvalidValue),
		errors.Is(err, capture.ErrInvalidFrames),
		errors.Is(err, ErrBadArguments):
		return &Error{Kind: KindInvalidArgument, Message: err.Error(), Err: err}

	case errors.Is(err, device.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "device does not exist", Err: err}

	case errors.Is(err, brightness.ErrAccessDenied):
		return &Error{Kind: KindAccessDenied, Message: "not authorized to write brightness", Err: err}

	case errors.Is(err, brightness.ErrAttributeUnavailable):
		return &Error{Kind: KindAttributeUnavailable, Message: err.Error(), Err: err}

	case errors.Is(err, capture.ErrBusy):
		return &Error{Kind: KindInternal, Message: "frame capture already in progress, retry later", Err: err}

	default:
		return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
	}
}

// invalidArgs builds a KindInvalidArgument error for a malformed call.
func invalidArgs(method, format string, args ...any) error {
	return &Error{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf("%s: %s", method, fmt.Sprintf(format, args...)),
		Err:     ErrBadArguments,
	}
}
