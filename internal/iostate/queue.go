package iostate

import (
	"fmt"
	"sort"
	"strconv"

	"lttng_iostate/internal/statesystem"
)

// stateWriter issues writes at one timestamp and keeps the first error,
// so a handler can perform a sequence of writes and check once.
type stateWriter struct {
	ss  statesystem.Builder
	ts  int64
	err error
}

func (w *stateWriter) set(quark int, v statesystem.Value) {
	if w.err != nil {
		return
	}
	w.err = w.ss.ModifyAttribute(w.ts, v, quark)
}

func (w *stateWriter) setInt(quark int, v int64) { w.set(quark, statesystem.Int(v)) }
func (w *stateWriter) clear(quark int)           { w.set(quark, statesystem.Null()) }

func (w *stateWriter) diskQuark(name string) int {
	return w.ss.QuarkAbsoluteAndAdd(AttrDisks, name)
}

// slotNumber returns the numeric name of a slot node.
func (w *stateWriter) slotNumber(slot int) (int64, error) {
	name := w.ss.AttributeName(slot)
	n, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: slot %q is not numbered", statesystem.ErrAttributeNotFound, name)
	}
	return n, nil
}

// sortedSlots returns the slot nodes of queue in ascending slot number.
func (w *stateWriter) sortedSlots(queue int) []int {
	slots := w.ss.SubAttributes(queue)
	numbers := make(map[int]int64, len(slots))
	for _, s := range slots {
		n, err := w.slotNumber(s)
		if err != nil {
			n = int64(len(slots) + 1) // unnumbered children sort last
		}
		numbers[s] = n
	}
	sort.SliceStable(slots, func(i, j int) bool { return numbers[slots[i]] < numbers[slots[j]] })
	return slots
}

// insertInQueue shows rq in the given queue of disk: it takes the first
// free slot, or opens slot count+1, and refreshes the request's node.
func (w *stateWriter) insertInQueue(rq *Request, disk string, q queueKind) error {
	if w.err != nil {
		return w.err
	}
	status := requestStatus(rq.Write)

	diskQ := w.diskQuark(disk)
	queueQ := w.ss.QuarkRelativeAndAdd(diskQ, q.attr())
	slots := w.sortedSlots(queueQ)

	slot := noQuark
	for _, s := range slots {
		statusQ, ok := w.ss.QuarkRelative(s, AttrStatus)
		if !ok {
			return fmt.Errorf("%w: %s slot %s has no %s", statesystem.ErrAttributeNotFound,
				q.attr(), w.ss.AttributeName(s), AttrStatus)
		}
		v, err := w.ss.QueryOngoing(statusQ)
		if err != nil {
			return err
		}
		if v.IsNull() {
			slot = s
			break
		}
	}
	if slot == noQuark {
		slot = w.ss.QuarkRelativeAndAdd(queueQ, strconv.Itoa(len(slots)+1))
	}

	w.setInt(w.ss.QuarkRelativeAndAdd(slot, AttrStatus), status)
	w.setInt(w.ss.QuarkRelativeAndAdd(slot, AttrCurrentRequest), rq.Sector)
	w.setInt(w.ss.QuarkRelativeAndAdd(slot, AttrRequestSize), rq.NrSector)
	rq.slotQuark = slot

	position, err := w.slotNumber(slot)
	if err != nil {
		return err
	}
	node := w.ss.QuarkRelativeAndAdd(diskQ, AttrRequests, strconv.FormatInt(rq.Sector, 10))
	rq.requestQuark = node
	w.setInt(w.ss.QuarkRelativeAndAdd(node, AttrStatus), status)
	w.setInt(w.ss.QuarkRelativeAndAdd(node, AttrQueue), q.value())
	w.setInt(w.ss.QuarkRelativeAndAdd(node, AttrPositionInQueue), position)
	w.clear(w.ss.QuarkRelativeAndAdd(node, AttrMergedIn))
	return w.err
}

// removeFromQueue frees rq's slot and ends its request node. With a
// non-nil redirect, MergedIn points at the redirect's sector. It does
// nothing for a request that is not in a queue. rq keeps its queue handles
// if a write fails.
func (w *stateWriter) removeFromQueue(rq *Request, redirect *Request) error {
	if w.err != nil {
		return w.err
	}
	if !rq.InQueue() {
		return nil
	}

	slot, node := rq.slotQuark, rq.requestQuark
	w.clear(w.ss.QuarkRelativeAndAdd(slot, AttrStatus))
	w.clear(w.ss.QuarkRelativeAndAdd(slot, AttrCurrentRequest))
	w.clear(w.ss.QuarkRelativeAndAdd(slot, AttrRequestSize))

	w.clear(w.ss.QuarkRelativeAndAdd(node, AttrStatus))
	w.clear(w.ss.QuarkRelativeAndAdd(node, AttrQueue))
	w.clear(w.ss.QuarkRelativeAndAdd(node, AttrPositionInQueue))
	mergedIn := w.ss.QuarkRelativeAndAdd(node, AttrMergedIn)
	if redirect != nil {
		w.setInt(mergedIn, redirect.Sector)
	} else {
		w.clear(mergedIn)
	}
	if w.err != nil {
		return w.err
	}
	rq.slotQuark, rq.requestQuark = noQuark, noQuark
	return nil
}

// updateQueuesLength writes both queue sizes of d.
func (w *stateWriter) updateQueuesLength(d *Disk) error {
	diskQ := w.diskQuark(d.Name)
	w.setInt(w.ss.QuarkRelativeAndAdd(diskQ, AttrDriverQueueLength), int64(d.DriverLen()))
	w.setInt(w.ss.QuarkRelativeAndAdd(diskQ, AttrWaitingQueueLength), int64(d.WaitingLen()))
	return w.err
}

// increment adds delta to the integer counter at quark, treating null as
// zero, and returns the new total.
func (w *stateWriter) increment(quark int, delta int64) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	v, err := w.ss.QueryOngoing(quark)
	if err != nil {
		return 0, err
	}
	var total int64
	if !v.IsNull() {
		if total, err = v.AsInt(); err != nil {
			return 0, err
		}
	}
	total += delta
	w.setInt(quark, total)
	return total, w.err
}
