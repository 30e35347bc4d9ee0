// Package statesystem defines the time-indexed attribute store the analysis
// writes into, and provides an in-memory implementation of it.
//
// Attributes form a tree addressed by path segments ("Disks", "sda",
// "SectorsRead"). Each attribute is identified by an integer quark and holds a
// history of values over time. Writers only ever append: a modification at
// time T closes the ongoing interval and opens a new one at T.
package statesystem

import "errors"

// RootQuark is the parent of all top-level attributes.
const RootQuark = -1

var (
	// ErrAttributeNotFound is returned when a quark or path does not exist.
	ErrAttributeNotFound = errors.New("attribute not found")
	// ErrTimeRange is returned when a write or query falls outside the
	// history, usually because events were not time-ordered.
	ErrTimeRange = errors.New("timestamp out of range")
	// ErrValueType is returned when a value of the wrong type is written to or
	// read from an attribute.
	ErrValueType = errors.New("state value type mismatch")
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("state system disposed")
)

// Info identifies the producer of a state system and the layout version of
// the attribute tree, so readers can detect incompatible layouts.
type Info struct {
	ID      string
	Version int
}

// Builder is the write side of the store, used by a single writer.
type Builder interface {
	// QuarkAbsoluteAndAdd returns the quark of path, creating missing nodes.
	QuarkAbsoluteAndAdd(path ...string) int
	// QuarkRelativeAndAdd returns the quark of path under parent, creating
	// missing nodes.
	QuarkRelativeAndAdd(parent int, path ...string) int
	// QuarkRelative looks up path under parent without creating it.
	QuarkRelative(parent int, path ...string) (int, bool)
	SubAttributes(quark int) []int
	AttributeName(quark int) string
	// ModifyAttribute sets the value of quark starting at ts.
	ModifyAttribute(ts int64, v Value, quark int) error
	// QueryOngoing returns the value the attribute currently holds.
	QueryOngoing(quark int) (Value, error)
}

// Querier is the read side of the store. It is safe for use concurrently
// with a Builder.
type Querier interface {
	Info() Info
	QuarkAbsolute(path ...string) (int, bool)
	QuarkRelative(parent int, path ...string) (int, bool)
	SubAttributes(quark int) []int
	AttributeName(quark int) string
	FullPath(quark int) string
	// QuerySingle returns the interval of quark that contains t.
	QuerySingle(t int64, quark int) (Interval, error)
	StartTime() int64
	CurrentEndTime() int64
}

// Listener is notified after every successful modification. Implementations
// must not block and must not call back into the store.
type Listener interface {
	AttributeModified(ts int64, path string, v Value)
}
