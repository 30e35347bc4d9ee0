package iostate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"lttng_iostate/internal/trace"
)

// KindStats counts events of one kind.
type KindStats struct {
	Events  uint64
	Applied uint64
}

// PassStats summarises one pass over a trace.
type PassStats struct {
	Events  uint64
	Applied uint64
	ByKind  [trace.NumKinds]KindStats
	Errors  map[ErrorCode]uint64
	FirstTs int64
	LastTs  int64
	Elapsed time.Duration
}

// Ignored returns the number of events that changed nothing.
func (s *PassStats) Ignored() uint64 { return s.Events - s.Applied - s.ErrorCount() }

// ErrorCount returns the number of events that failed.
func (s *PassStats) ErrorCount() uint64 {
	var n uint64
	for _, c := range s.Errors {
		n += c
	}
	return n
}

// Run feeds every event of src to p until src is exhausted. Cancellation is
// checked between events. Handler errors are logged and counted and the
// pass goes on, except when the store has been disposed.
func Run(ctx context.Context, p *Provider, src trace.Source) (PassStats, error) {
	stats := PassStats{Errors: make(map[ErrorCode]uint64)}
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, err
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("reading trace: %w", err)
		}

		if stats.Events == 0 {
			stats.FirstTs = ev.Timestamp
		}
		stats.LastTs = ev.Timestamp
		stats.Events++
		kind := ev.Kind
		if int(kind) >= trace.NumKinds {
			kind = trace.KindUnknown
		}
		stats.ByKind[kind].Events++

		before := p.AppliedCount(kind)
		err = p.HandleEvent(ev)
		if p.AppliedCount(kind) > before {
			stats.Applied++
			stats.ByKind[kind].Applied++
		}
		if err == nil {
			continue
		}

		code := CodeOf(err)
		stats.Errors[code]++
		if Fatal(err) {
			p.log.Error().Err(err).Msg("State system disposed, aborting pass")
			stats.Elapsed = time.Since(start)
			return stats, err
		}
		p.log.SampledError(string(code)).Err(err).
			Str("event", ev.Name).
			Int64("ts", ev.Timestamp).
			Msg(errorHint(code))
	}

	stats.Elapsed = time.Since(start)
	p.log.Info().
		Uint64("events", stats.Events).
		Uint64("applied", stats.Applied).
		Uint64("errors", stats.ErrorCount()).
		Dur("elapsed", stats.Elapsed).
		Msg("Analysis pass complete")
	return stats, nil
}

func errorHint(code ErrorCode) string {
	switch code {
	case ErrCodeTimeRange:
		return "Event rejected by the state system, are the events correctly ordered?"
	case ErrCodeMalformed:
		return "Event skipped, a required field is missing or has the wrong type"
	case ErrCodeValueType:
		return "State value type mismatch"
	default:
		return "Attribute expected by the analysis is missing"
	}
}
