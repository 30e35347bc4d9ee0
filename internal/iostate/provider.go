// Package iostate turns a time-ordered stream of kernel block and syscall
// events into a history of disk queue, request and throughput attributes.
//
// A Provider is bound to one store for one pass over a trace. It is not safe
// for concurrent use; events must be handed to it one at a time in
// timestamp order.
package iostate

import (
	"sync/atomic"

	"lttng_iostate/internal/config"
	"lttng_iostate/internal/logger"
	"lttng_iostate/internal/statesystem"
	"lttng_iostate/internal/trace"
)

// Recorder receives what the provider does, for metrics. All methods are
// called from the goroutine running the pass.
type Recorder interface {
	RecordEvent(kind trace.Kind, applied bool)
	RecordError(code ErrorCode)
	RecordSectors(disk string, write bool, sectors int64)
	RecordQueueLengths(disk string, waiting, driver int)
	RecordThreadBytes(tid int64, write bool, bytes int64)
	RecordMerge(disk string, kind trace.Kind)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(trace.Kind, bool)         {}
func (nopRecorder) RecordError(ErrorCode)                {}
func (nopRecorder) RecordSectors(string, bool, int64)    {}
func (nopRecorder) RecordQueueLengths(string, int, int)  {}
func (nopRecorder) RecordThreadBytes(int64, bool, int64) {}
func (nopRecorder) RecordMerge(string, trace.Kind)       {}

// Options is the static configuration of a provider. It is copied into
// every new instance.
type Options struct {
	Layout   *trace.Layout
	Syscalls config.SyscallConfig
	Recorder Recorder
}

// Provider holds the per-pass analysis state.
type Provider struct {
	opts Options
	ss   statesystem.Builder

	fields     config.FieldNamesConfig
	readCalls  map[string]struct{}
	writeCalls map[string]struct{}

	disks    *registry
	inFlight map[int64]string // tid -> syscall entry event name

	log *logger.SampledLogger

	eventCounts   [trace.NumKinds]atomic.Uint64
	appliedCounts [trace.NumKinds]atomic.Uint64
}

// NewProvider creates a provider writing into ss.
func NewProvider(ss statesystem.Builder, opts Options) *Provider {
	if opts.Layout == nil {
		opts.Layout = trace.DefaultLayout()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Syscalls.Read == nil && opts.Syscalls.Write == nil {
		opts.Syscalls = config.DefaultSyscallConfig()
	}

	p := &Provider{
		opts:       opts,
		ss:         ss,
		fields:     opts.Layout.Fields,
		readCalls:  make(map[string]struct{}, len(opts.Syscalls.Read)),
		writeCalls: make(map[string]struct{}, len(opts.Syscalls.Write)),
		disks:      newRegistry(),
		inFlight:   make(map[int64]string),
		log:        logger.NewSampledLoggerCtx("iostate"),
	}
	for _, name := range opts.Syscalls.Read {
		p.readCalls[name] = struct{}{}
	}
	for _, name := range opts.Syscalls.Write {
		p.writeCalls[name] = struct{}{}
	}
	return p
}

// NewInstance returns a fresh provider with the same configuration writing
// into ss. None of the receiver's disks, requests or syscalls carry over.
func (p *Provider) NewInstance(ss statesystem.Builder) *Provider {
	return NewProvider(ss, p.opts)
}

// Version returns the attribute layout version.
func (p *Provider) Version() int { return Version }

// Layout returns the event layout the provider reads fields with.
func (p *Provider) Layout() *trace.Layout { return p.opts.Layout }

// Disk returns the disk registered under dev.
func (p *Provider) Disk(dev int64) (*Disk, bool) { return p.disks.lookup(dev) }

// EachDisk calls fn for every registered disk in registration order.
func (p *Provider) EachDisk(fn func(*Disk)) { p.disks.each(fn) }

// EventCount returns how many events of kind were handed to the provider.
func (p *Provider) EventCount(kind trace.Kind) uint64 {
	if int(kind) >= trace.NumKinds {
		return 0
	}
	return p.eventCounts[kind].Load()
}

// AppliedCount returns how many events of kind changed the analysis state.
func (p *Provider) AppliedCount(kind trace.Kind) uint64 {
	if int(kind) >= trace.NumKinds {
		return 0
	}
	return p.appliedCounts[kind].Load()
}

// LogHandlerCounts logs the per-kind event counters.
func (p *Provider) LogHandlerCounts() {
	e := p.log.Info()
	for _, k := range trace.Kinds() {
		if n := p.eventCounts[k].Load(); n > 0 {
			e = e.Uint64(k.String(), n)
		}
	}
	e.Msg("Events handled")
}

// HandleEvent applies one event. Events whose device, request or thread is
// unknown are ignored without error. A returned *Error leaves the provider
// usable for the next event, unless Fatal reports true for it.
func (p *Provider) HandleEvent(ev *trace.Event) error {
	kind := ev.Kind
	if int(kind) >= trace.NumKinds {
		kind = trace.KindUnknown
	}
	p.eventCounts[kind].Add(1)

	var (
		applied bool
		err     error
	)
	switch kind {
	case trace.KindStatedumpBlockDevice:
		applied, err = p.handleStatedumpBlockDevice(ev)
	case trace.KindBioQueue:
		applied, err = p.handleBioQueue(ev)
	case trace.KindGetRq:
		applied, err = p.handleGetRq(ev)
	case trace.KindRqInsert:
		applied, err = p.handleRqInsert(ev)
	case trace.KindElvMergeRequests:
		applied, err = p.handleElvMergeRequests(ev)
	case trace.KindBioFrontMerge:
		applied, err = p.handleBioFrontMerge(ev)
	case trace.KindBioBackMerge:
		applied, err = p.handleBioBackMerge(ev)
	case trace.KindRqIssue:
		applied, err = p.handleRqIssue(ev)
	case trace.KindRqComplete:
		applied, err = p.handleRqComplete(ev)
	case trace.KindSyscallEntry:
		applied, err = p.handleSyscallEntry(ev)
	case trace.KindSyscallExit:
		applied, err = p.handleSyscallExit(ev)
	case trace.KindUnknown:
	}

	if applied && err == nil {
		p.appliedCounts[kind].Add(1)
	}
	p.opts.Recorder.RecordEvent(kind, applied && err == nil)

	if err != nil {
		e := wrapError(ev, err)
		p.opts.Recorder.RecordError(e.Code)
		return e
	}
	return nil
}

func (p *Provider) writer(ts int64) *stateWriter {
	return &stateWriter{ss: p.ss, ts: ts}
}
