package iostate

import (
	"strconv"

	"lttng_iostate/internal/statesystem"
	"lttng_iostate/internal/trace"
)

// handleSyscallEntry records the syscall a thread entered.
//
// Trace Event Details:
//   - Event Name: syscall_entry_* (any)
//   - Fields: context._tid
//
// Only one syscall is in flight per thread; a new entry replaces the last.
func (p *Provider) handleSyscallEntry(ev *trace.Event) (bool, error) {
	tid, err := ev.Fields.Int(p.fields.Tid)
	if err != nil {
		return false, err
	}
	p.inFlight[tid] = ev.Name

	w := p.writer(ev.Timestamp)
	quark := w.ss.QuarkAbsoluteAndAdd(AttrSyscalls, strconv.FormatInt(tid, 10), AttrSystemCall)
	w.set(quark, statesystem.String(ev.Name))
	return true, w.err
}

// handleSyscallExit credits the bytes a read or write syscall returned to
// its thread, then clears the thread's in-flight syscall. An exit without a
// usable return value still ends the syscall.
//
// Trace Event Details:
//   - Event Name: syscall_exit_* (any)
//   - Fields: context._tid, ret (bytes transferred, negative on error)
func (p *Provider) handleSyscallExit(ev *trace.Event) (bool, error) {
	tid, err := ev.Fields.Int(p.fields.Tid)
	if err != nil {
		return false, err
	}
	name, ok := p.inFlight[tid]
	if !ok {
		return false, nil
	}
	// The thread has left the syscall even when the exit cannot be used.
	delete(p.inFlight, tid)
	w := p.writer(ev.Timestamp)
	tidName := strconv.FormatInt(tid, 10)

	ret, err := ev.Fields.Int(p.fields.Ret)
	if err != nil {
		if syscall, ok := w.ss.QuarkRelative(statesystem.RootQuark, AttrSyscalls, tidName, AttrSystemCall); ok {
			w.clear(syscall)
		}
		return false, err
	}

	if ret >= 0 {
		_, isRead := p.readCalls[name]
		_, isWrite := p.writeCalls[name]
		if isRead || isWrite {
			thread := w.ss.QuarkAbsoluteAndAdd(AttrThreads, tidName)
			read := w.ss.QuarkRelativeAndAdd(thread, AttrBytesRead)
			written := w.ss.QuarkRelativeAndAdd(thread, AttrBytesWritten)
			counter := read
			if isWrite {
				counter = written
			}
			if _, err := w.increment(counter, ret); err != nil {
				return false, err
			}
			p.opts.Recorder.RecordThreadBytes(tid, isWrite, ret)
		}
	}

	syscall, ok := w.ss.QuarkRelative(statesystem.RootQuark, AttrSyscalls, tidName, AttrSystemCall)
	if !ok {
		return false, errMissingAttr(AttrSyscalls, tidName, AttrSystemCall)
	}
	w.clear(syscall)
	return true, w.err
}

// InFlight returns the syscall thread tid is in, if any.
func (p *Provider) InFlight(tid int64) (string, bool) {
	name, ok := p.inFlight[tid]
	return name, ok
}
