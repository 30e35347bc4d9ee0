package trace

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMissingField is returned when an event lacks a required field.
	ErrMissingField = errors.New("missing field")
	// ErrFieldType is returned when a field holds a value of the wrong type.
	ErrFieldType = errors.New("wrong field type")
)

// Event is one trace record. Kind is decided when the event is read.
type Event struct {
	Name      string
	Kind      Kind
	Timestamp int64
	Fields    Fields
}

// Fields is the payload of an event, keyed by tracer field name.
type Fields map[string]any

// Int returns the named field as an integer.
func (f Fields) Int(name string) (int64, error) {
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %s overflows int64", ErrFieldType, name)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %s overflows int64", ErrFieldType, name)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %s is not an integer", ErrFieldType, name)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrFieldType, name, v)
	}
}

// Str returns the named field as a string.
func (f Fields) Str(name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T", ErrFieldType, name, v)
	}
	return s, nil
}
