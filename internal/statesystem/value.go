package statesystem

import (
	"fmt"
	"strconv"
)

// ValueKind is the type tag of a state value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInt
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is an immutable state value: null, a 64-bit integer or a string.
// The zero Value is null.
type Value struct {
	kind ValueKind
	i    int64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// AsInt unboxes an integer value. A non-integer value returns ErrValueType.
func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, fmt.Errorf("%w: want int, have %s", ErrValueType, v.kind)
	}
	return v.i, nil
}

// AsString unboxes a string value. A non-string value returns ErrValueType.
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: want string, have %s", ErrValueType, v.kind)
	}
	return v.s, nil
}

// Interface returns the value as nil, int64 or string, for encoders.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindString:
		return v.s
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "null"
	}
}

// Interval is one stretch of history of an attribute: Value held over
// [Start, End). The ongoing interval of an attribute has Ongoing set and End
// equal to the current end time of the store.
type Interval struct {
	Start   int64
	End     int64
	Value   Value
	Ongoing bool
}
