package iostate

import (
	"errors"
	"fmt"
	"strings"

	"lttng_iostate/internal/statesystem"
	"lttng_iostate/internal/trace"
)

// ErrorCode is the class of a handler failure.
type ErrorCode string

const (
	// ErrCodePrecondition means an attribute that earlier writes guarantee
	// was missing. It points at a logic defect in the provider.
	ErrCodePrecondition ErrorCode = "precondition"
	// ErrCodeTimeRange means the store rejected a write as older than the
	// current state, which happens when the trace is not time-ordered.
	ErrCodeTimeRange ErrorCode = "time-range"
	// ErrCodeValueType means a value of the wrong type was read or written.
	ErrCodeValueType ErrorCode = "value-type"
	// ErrCodeDisposed means the store was closed. It ends the pass.
	ErrCodeDisposed ErrorCode = "disposed"
	// ErrCodeMalformed means a required field was missing or mistyped.
	ErrCodeMalformed ErrorCode = "malformed"
)

// ErrorCodes lists every code, for metric initialisation.
var ErrorCodes = []ErrorCode{
	ErrCodePrecondition,
	ErrCodeTimeRange,
	ErrCodeValueType,
	ErrCodeDisposed,
	ErrCodeMalformed,
}

// Error is returned by Provider.HandleEvent when an event could not be
// applied.
type Error struct {
	Op    string     // handler that failed, e.g. "rq_issue"
	Kind  trace.Kind // kind of the event being handled
	Ts    int64      // event timestamp
	Code  ErrorCode
	Inner error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("iostate: %s at ts=%d: %s", e.Op, e.Ts, e.Code)
	if e.Inner != nil {
		msg += ": " + e.Inner.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Inner }

// Is matches another *Error by code, so callers can test for a class with
// errors.Is(err, &iostate.Error{Code: iostate.ErrCodeDisposed}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	return ok && e.Code == te.Code
}

// Fatal reports whether err ends the analysis pass.
func Fatal(err error) bool {
	return errors.Is(err, statesystem.ErrDisposed)
}

// CodeOf returns the class of err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// classify maps a store or field error to its code.
func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, statesystem.ErrDisposed):
		return ErrCodeDisposed
	case errors.Is(err, statesystem.ErrTimeRange):
		return ErrCodeTimeRange
	case errors.Is(err, statesystem.ErrValueType):
		return ErrCodeValueType
	case errors.Is(err, trace.ErrMissingField), errors.Is(err, trace.ErrFieldType):
		return ErrCodeMalformed
	default:
		return ErrCodePrecondition
	}
}

func wrapError(ev *trace.Event, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:    ev.Kind.String(),
		Kind:  ev.Kind,
		Ts:    ev.Timestamp,
		Code:  classify(err),
		Inner: err,
	}
}

func errMissingAttr(path ...string) error {
	return fmt.Errorf("%w: %s", statesystem.ErrAttributeNotFound, strings.Join(path, "/"))
}
