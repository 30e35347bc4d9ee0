package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-yaml/yaml"
)

// ErrInputTooLarge is returned once a reader has consumed more than its limit.
var ErrInputTooLarge = errors.New("trace input exceeds size limit")

// YAMLReader reads events from a YAML stream. Each document is either a
// single event mapping or a list of them:
//
//	- {name: block_getrq, ts: 10, fields: {dev: 8, sector: 100, nr_sector: 8, rwbs: 0}}
type YAMLReader struct {
	layout  *Layout
	dec     *yaml.Decoder
	counter *limitedReader
	pending []any
	index   int // events returned so far, for error messages
}

// NewYAMLReader returns a reader over r. A positive limit caps the number of
// bytes read.
func NewYAMLReader(r io.Reader, layout *Layout, limit int64) *YAMLReader {
	lr := &limitedReader{r: r, limit: limit}
	return &YAMLReader{
		layout:  layout,
		dec:     yaml.NewDecoder(lr),
		counter: lr,
	}
}

// BytesRead returns the number of input bytes consumed.
func (y *YAMLReader) BytesRead() int64 { return y.counter.n }

func (y *YAMLReader) Next() (*Event, error) {
	for len(y.pending) == 0 {
		var doc any
		if err := y.dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if y.counter.exceeded {
				return nil, fmt.Errorf("%w (%d bytes)", ErrInputTooLarge, y.counter.limit)
			}
			return nil, fmt.Errorf("decoding trace after event %d: %w", y.index, err)
		}
		switch d := doc.(type) {
		case nil:
		case []any:
			y.pending = d
		default:
			y.pending = []any{d}
		}
	}

	raw := y.pending[0]
	y.pending = y.pending[1:]
	y.index++

	ev, err := y.toEvent(raw)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", y.index, err)
	}
	return ev, nil
}

func (y *YAMLReader) toEvent(raw any) (*Event, error) {
	m, ok := raw.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", raw)
	}
	ev := &Event{Fields: Fields{}}

	name, ok := m["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	ev.Name = name
	ev.Kind = y.layout.Classify(name)

	ts, err := Fields{"ts": m["ts"]}.Int("ts")
	if err != nil {
		if m["ts"] == nil {
			return nil, fmt.Errorf("%w: ts", ErrMissingField)
		}
		return nil, err
	}
	ev.Timestamp = ts

	if f, ok := m["fields"]; ok && f != nil {
		fm, ok := f.(map[any]any)
		if !ok {
			return nil, fmt.Errorf("%w: fields is %T", ErrFieldType, f)
		}
		for k, v := range fm {
			ev.Fields[fmt.Sprint(k)] = v
		}
	}
	return ev, nil
}

// limitedReader counts bytes and fails once more than limit have been read.
type limitedReader struct {
	r        io.Reader
	n        int64
	limit    int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.limit > 0 && l.n >= l.limit {
		// Probe for one more byte to tell a full read from an oversize one.
		var one [1]byte
		k, err := l.r.Read(one[:])
		if k > 0 {
			l.exceeded = true
			return 0, ErrInputTooLarge
		}
		return 0, err
	}
	if l.limit > 0 && int64(len(p)) > l.limit-l.n {
		p = p[:l.limit-l.n]
	}
	k, err := l.r.Read(p)
	l.n += int64(k)
	return k, err
}
