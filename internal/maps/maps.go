// Package maps provides a generic concurrent map for integer keys with
// interchangeable backends.
package maps

import "fmt"

// Backend names accepted by New.
const (
	BackendXSync   = "xsync"
	BackendCornelk = "cornelk"
	BackendSync    = "sync"
)

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap is a thread-safe map keyed by integers. The metrics
// collector reads it from scrape goroutines while the analysis pass writes.
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadAndDelete(key K) (V, bool)
	// LoadOrStore returns the existing value for key, or stores and returns
	// the factory's result. loaded reports whether the value already existed.
	LoadOrStore(key K, valueFactory func() V) (actual V, loaded bool)
	Update(key K, updateFunc func(value V, exists bool) (newValue V, keep bool))
	Range(f func(key K, value V) bool)
	Len() int
}

// New returns a map using the named backend.
func New[K Integer, V any](backend string) (ConcurrentMap[K, V], error) {
	switch backend {
	case BackendXSync, "":
		return NewXSyncMap[K, V](), nil
	case BackendCornelk:
		return NewCornelkMap[K, V](), nil
	case BackendSync:
		return NewStdSyncMap[K, V](), nil
	default:
		return nil, fmt.Errorf("unknown map backend %q", backend)
	}
}

// NewConcurrentMap returns the default backend.
func NewConcurrentMap[K Integer, V any]() ConcurrentMap[K, V] {
	return NewXSyncMap[K, V]()
}
