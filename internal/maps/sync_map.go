package maps

import (
	"sync"
	"sync/atomic"
)

// StdSyncMap implements ConcurrentMap on top of sync.Map.
type StdSyncMap[K Integer, V any] struct {
	mu   sync.Mutex // serialises Update
	m    sync.Map
	size atomic.Int64
}

// NewStdSyncMap creates a new StdSyncMap.
func NewStdSyncMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &StdSyncMap[K, V]{}
}

func (m *StdSyncMap[K, V]) Load(key K) (V, bool) {
	val, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return val.(V), true
}

func (m *StdSyncMap[K, V]) Store(key K, value V) {
	if _, loaded := m.m.Swap(key, value); !loaded {
		m.size.Add(1)
	}
}

func (m *StdSyncMap[K, V]) Delete(key K) {
	m.LoadAndDelete(key)
}

func (m *StdSyncMap[K, V]) LoadAndDelete(key K) (V, bool) {
	val, loaded := m.m.LoadAndDelete(key)
	if !loaded {
		var zero V
		return zero, false
	}
	m.size.Add(-1)
	return val.(V), true
}

func (m *StdSyncMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	if val, ok := m.m.Load(key); ok {
		return val.(V), true
	}
	val, loaded := m.m.LoadOrStore(key, valueFactory())
	if !loaded {
		m.size.Add(1)
	}
	return val.(V), loaded
}

func (m *StdSyncMap[K, V]) Update(key K, updateFunc func(value V, exists bool) (newValue V, keep bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, exists := m.Load(key)
	newVal, keep := updateFunc(old, exists)
	switch {
	case keep:
		m.Store(key, newVal)
	case exists:
		m.LoadAndDelete(key)
	}
}

func (m *StdSyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

func (m *StdSyncMap[K, V]) Len() int { return int(m.size.Load()) }
