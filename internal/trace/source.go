package trace

import "io"

// Source yields events in timestamp order. Next returns io.EOF after the
// last event.
type Source interface {
	Next() (*Event, error)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []*Event
	pos    int
}

// NewSliceSource classifies events with layout and returns a source over
// them. Events that already carry a kind keep it.
func NewSliceSource(layout *Layout, events ...*Event) *SliceSource {
	for _, ev := range events {
		if ev.Kind == KindUnknown {
			ev.Kind = layout.Classify(ev.Name)
		}
	}
	return &SliceSource{events: events}
}

func (s *SliceSource) Next() (*Event, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}
