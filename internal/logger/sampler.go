package logger

import (
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/puzpuzpuz/xsync/v4"
)

// BackoffConfig controls how often a repeated log key is let through.
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Factor          float64
	// A key quiet for longer than ResetInterval starts again at InitialInterval.
	ResetInterval time.Duration
}

// DefaultBackoff matches the [logging.sampling] defaults and applies until
// ConfigureLogging installs the configured one.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     1 * time.Hour,
		Factor:          1.5,
		ResetInterval:   10 * time.Minute,
	}
}

type sampleState struct {
	mu         sync.Mutex
	interval   time.Duration
	next       time.Time
	lastSeen   time.Time
	suppressed int64
}

// Sampler lets the first occurrence of a key through, then backs off
// exponentially, counting what it drops.
type Sampler struct {
	cfg   BackoffConfig
	now   func() time.Time
	state *xsync.Map[string, *sampleState]
}

// NewSampler creates a sampler with the given backoff.
func NewSampler(cfg BackoffConfig) *Sampler {
	if cfg.Factor < 1 {
		cfg.Factor = 1
	}
	return &Sampler{
		cfg:   cfg,
		now:   time.Now,
		state: xsync.NewMap[string, *sampleState](),
	}
}

// Allow reports whether an entry for key should be written and how many
// entries for it were dropped since the last one written.
func (s *Sampler) Allow(key string) (bool, int64) {
	st, _ := s.state.LoadOrCompute(key, func() (*sampleState, bool) {
		return &sampleState{interval: s.cfg.InitialInterval}, false
	})

	now := s.now()
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.lastSeen.IsZero() && now.Sub(st.lastSeen) > s.cfg.ResetInterval {
		st.interval = s.cfg.InitialInterval
		st.next = time.Time{}
	}
	st.lastSeen = now

	if now.Before(st.next) {
		st.suppressed++
		return false, 0
	}

	dropped := st.suppressed
	st.suppressed = 0
	st.next = now.Add(st.interval)
	st.interval = time.Duration(float64(st.interval) * s.cfg.Factor)
	if st.interval > s.cfg.MaxInterval {
		st.interval = s.cfg.MaxInterval
	}
	return true, dropped
}

// SampledLogger is a component logger whose Sampled* entries go through a
// Sampler. The plain level methods of the embedded logger are unsampled.
type SampledLogger struct {
	*log.Logger
	sampler *Sampler
}

// SampledError returns an error entry for key, or nil when sampled out.
// phuslu/log entries are nil-safe, so callers chain unconditionally.
func (l *SampledLogger) SampledError(key string) *log.Entry {
	return l.sampled(key, l.Error())
}

// SampledWarn returns a warn entry for key, or nil when sampled out.
func (l *SampledLogger) SampledWarn(key string) *log.Entry {
	return l.sampled(key, l.Warn())
}

func (l *SampledLogger) sampled(key string, e *log.Entry) *log.Entry {
	if e == nil {
		return nil
	}
	ok, dropped := l.sampler.Allow(key)
	if !ok {
		// Entries come from a pool; discard without writing.
		e.Discard()
		return nil
	}
	if dropped > 0 {
		e = e.Int64("suppressed", dropped)
	}
	return e.Str("sample_key", key)
}
