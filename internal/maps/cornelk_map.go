package maps

import (
	"sync"

	"github.com/cornelk/hashmap"
)

// CornelkMap implements ConcurrentMap on top of cornelk/hashmap. The library
// has no compute primitive, so Update and LoadAndDelete serialise on a
// writer lock; reads stay lock-free.
type CornelkMap[K Integer, V any] struct {
	wmu sync.Mutex
	m   *hashmap.Map[K, V]
}

// NewCornelkMap creates a new CornelkMap.
func NewCornelkMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &CornelkMap[K, V]{m: hashmap.New[K, V]()}
}

func (m *CornelkMap[K, V]) Load(key K) (V, bool) { return m.m.Get(key) }
func (m *CornelkMap[K, V]) Len() int             { return m.m.Len() }

func (m *CornelkMap[K, V]) Store(key K, value V) {
	m.wmu.Lock()
	m.m.Set(key, value)
	m.wmu.Unlock()
}

func (m *CornelkMap[K, V]) Delete(key K) {
	m.wmu.Lock()
	m.m.Del(key)
	m.wmu.Unlock()
}

func (m *CornelkMap[K, V]) LoadAndDelete(key K) (V, bool) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	val, ok := m.m.Get(key)
	if ok {
		m.m.Del(key)
	}
	return val, ok
}

func (m *CornelkMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	if val, ok := m.m.Get(key); ok {
		return val, true
	}
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return m.m.GetOrInsert(key, valueFactory())
}

func (m *CornelkMap[K, V]) Update(key K, updateFunc func(value V, exists bool) (newValue V, keep bool)) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	val, exists := m.m.Get(key)
	newVal, keep := updateFunc(val, exists)
	if keep {
		m.m.Set(key, newVal)
	} else if exists {
		m.m.Del(key)
	}
}

func (m *CornelkMap[K, V]) Range(f func(key K, value V) bool) { m.m.Range(f) }
