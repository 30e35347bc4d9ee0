package statesystem

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// attribute is one node of the tree with its full history.
type attribute struct {
	name     string
	parent   int
	children []int
	childIdx map[string]int

	// kind is fixed by the first non-null write.
	kind ValueKind

	history      []Interval // closed intervals, ordered by Start
	ongoing      Value
	ongoingStart int64
}

// Memory is an in-memory Builder and Querier. Writes come from one goroutine;
// queries may come from any number of others.
type Memory struct {
	mu sync.RWMutex

	info      Info
	attrs     []*attribute
	roots     map[string]int
	start     int64
	end       int64
	disposed  bool
	listeners []Listener
}

// NewMemory creates an empty store whose history begins at startTime.
func NewMemory(info Info, startTime int64) *Memory {
	return &Memory{
		info:  info,
		roots: make(map[string]int),
		start: startTime,
		end:   startTime,
	}
}

// AddListener registers l for modification notifications.
func (m *Memory) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Memory) Info() Info { return m.info }

func (m *Memory) StartTime() int64 { return m.start }

func (m *Memory) CurrentEndTime() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.end
}

// Dispose closes the store. Every later modification returns ErrDisposed.
func (m *Memory) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
}

func (m *Memory) QuarkAbsoluteAndAdd(path ...string) int {
	return m.QuarkRelativeAndAdd(RootQuark, path...)
}

func (m *Memory) QuarkRelativeAndAdd(parent int, path ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := parent
	for _, name := range path {
		if child, ok := m.childLocked(q, name); ok {
			q = child
			continue
		}
		q = m.addLocked(q, name)
	}
	return q
}

func (m *Memory) QuarkAbsolute(path ...string) (int, bool) {
	return m.QuarkRelative(RootQuark, path...)
}

func (m *Memory) QuarkRelative(parent int, path ...string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := parent
	for _, name := range path {
		child, ok := m.childLocked(q, name)
		if !ok {
			return 0, false
		}
		q = child
	}
	return q, true
}

// SubAttributes returns the direct children of quark in creation order.
func (m *Memory) SubAttributes(quark int) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var children []int
	if quark == RootQuark {
		children = make([]int, 0, len(m.roots))
		for i, a := range m.attrs {
			if a.parent == RootQuark {
				children = append(children, i)
			}
		}
		return children
	}
	if !m.validLocked(quark) {
		return nil
	}
	children = make([]int, len(m.attrs[quark].children))
	copy(children, m.attrs[quark].children)
	return children
}

func (m *Memory) AttributeName(quark int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.validLocked(quark) {
		return ""
	}
	return m.attrs[quark].name
}

// FullPath returns the slash-separated path of quark.
func (m *Memory) FullPath(quark int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathLocked(quark)
}

func (m *Memory) ModifyAttribute(ts int64, v Value, quark int) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if !m.validLocked(quark) {
		m.mu.Unlock()
		return fmt.Errorf("%w: quark %d", ErrAttributeNotFound, quark)
	}
	a := m.attrs[quark]
	if !v.IsNull() && a.kind != KindNull && a.kind != v.kind {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s, got %s", ErrValueType, m.pathLocked(quark), a.kind, v.kind)
	}
	if ts < a.ongoingStart {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s modified at %d, ongoing since %d", ErrTimeRange, m.pathLocked(quark), ts, a.ongoingStart)
	}
	if !v.IsNull() {
		a.kind = v.kind
	}

	if ts > a.ongoingStart {
		a.history = append(a.history, Interval{Start: a.ongoingStart, End: ts, Value: a.ongoing})
	}
	a.ongoing = v
	a.ongoingStart = ts
	if ts > m.end {
		m.end = ts
	}

	var path string
	listeners := m.listeners
	if len(listeners) > 0 {
		path = m.pathLocked(quark)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l.AttributeModified(ts, path, v)
	}
	return nil
}

func (m *Memory) QueryOngoing(quark int) (Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disposed {
		return Value{}, ErrDisposed
	}
	if !m.validLocked(quark) {
		return Value{}, fmt.Errorf("%w: quark %d", ErrAttributeNotFound, quark)
	}
	return m.attrs[quark].ongoing, nil
}

func (m *Memory) QuerySingle(t int64, quark int) (Interval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.validLocked(quark) {
		return Interval{}, fmt.Errorf("%w: quark %d", ErrAttributeNotFound, quark)
	}
	if t < m.start || t > m.end {
		return Interval{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrTimeRange, t, m.start, m.end)
	}

	a := m.attrs[quark]
	if t >= a.ongoingStart {
		return Interval{Start: a.ongoingStart, End: m.end, Value: a.ongoing, Ongoing: true}, nil
	}
	i := sort.Search(len(a.history), func(i int) bool { return a.history[i].End > t })
	if i < len(a.history) && a.history[i].Start <= t {
		return a.history[i], nil
	}
	// Before the attribute existed.
	end := a.ongoingStart
	if len(a.history) > 0 {
		end = a.history[0].Start
	}
	return Interval{Start: m.start, End: end}, nil
}

// Walk calls fn for every attribute in depth-first creation order.
func (m *Memory) Walk(fn func(quark int, path string)) {
	var visit func(q int)
	visit = func(q int) {
		fn(q, m.FullPath(q))
		for _, c := range m.SubAttributes(q) {
			visit(c)
		}
	}
	for _, q := range m.SubAttributes(RootQuark) {
		visit(q)
	}
}

func (m *Memory) validLocked(quark int) bool {
	return quark >= 0 && quark < len(m.attrs)
}

func (m *Memory) childLocked(parent int, name string) (int, bool) {
	if parent == RootQuark {
		q, ok := m.roots[name]
		return q, ok
	}
	if !m.validLocked(parent) {
		return 0, false
	}
	q, ok := m.attrs[parent].childIdx[name]
	return q, ok
}

func (m *Memory) addLocked(parent int, name string) int {
	q := len(m.attrs)
	m.attrs = append(m.attrs, &attribute{
		name:         name,
		parent:       parent,
		childIdx:     make(map[string]int),
		ongoingStart: m.start,
	})
	if parent == RootQuark {
		m.roots[name] = q
	} else {
		p := m.attrs[parent]
		p.children = append(p.children, q)
		p.childIdx[name] = q
	}
	return q
}

func (m *Memory) pathLocked(quark int) string {
	var parts []string
	for q := quark; q != RootQuark && m.validLocked(q); q = m.attrs[q].parent {
		parts = append(parts, m.attrs[q].name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}
