package trace

import (
	"strings"

	"lttng_iostate/internal/config"
)

// Layout maps tracer event names to kinds and holds the tracer field names.
// It is immutable once built and may be shared between passes.
type Layout struct {
	Fields config.FieldNamesConfig

	kinds       map[string]Kind
	entryPrefix string
	exitPrefix  string
}

// NewLayout builds a Layout from configuration.
func NewLayout(cfg config.LayoutConfig) *Layout {
	ev := cfg.Events
	l := &Layout{
		Fields:      cfg.Fields,
		entryPrefix: cfg.SyscallEntryPrefix,
		exitPrefix:  cfg.SyscallExitPrefix,
		kinds:       make(map[string]Kind, 9),
	}
	for name, kind := range map[string]Kind{
		ev.StatedumpBlockDevice: KindStatedumpBlockDevice,
		ev.BioQueue:             KindBioQueue,
		ev.GetRq:                KindGetRq,
		ev.RqInsert:             KindRqInsert,
		ev.ElvMergeRequests:     KindElvMergeRequests,
		ev.BioFrontMerge:        KindBioFrontMerge,
		ev.BioBackMerge:         KindBioBackMerge,
		ev.RqIssue:              KindRqIssue,
		ev.RqComplete:           KindRqComplete,
	} {
		if name != "" {
			l.kinds[name] = kind
		}
	}
	return l
}

// DefaultLayout returns the layout of the LTTng kernel tracer.
func DefaultLayout() *Layout {
	return NewLayout(config.DefaultLayoutConfig())
}

// Classify returns the kind of an event name. Block events are matched
// exactly; anything else starting with the syscall entry or exit prefix is
// a syscall event.
func (l *Layout) Classify(name string) Kind {
	if k, ok := l.kinds[name]; ok {
		return k
	}
	switch {
	case l.entryPrefix != "" && strings.HasPrefix(name, l.entryPrefix):
		return KindSyscallEntry
	case l.exitPrefix != "" && strings.HasPrefix(name, l.exitPrefix):
		return KindSyscallExit
	}
	return KindUnknown
}
