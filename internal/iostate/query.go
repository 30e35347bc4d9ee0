package iostate

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"lttng_iostate/internal/statesystem"
)

const (
	sectorsPerMiB = 2 * 1024
	nsPerSecond   = 1e9
)

// Throughput is the disk activity between two timestamps.
type Throughput struct {
	Start, End     int64
	SectorsRead    int64
	SectorsWritten int64
	ReadMiBps      float64
	WriteMiBps     float64
}

// DiskThroughput returns the sectors a disk completed between t0 and t1
// (clamped to the history of q) and the matching rate in MiB/s, with
// timestamps in nanoseconds.
func DiskThroughput(q statesystem.Querier, disk string, t0, t1 int64) (Throughput, error) {
	diskQ, ok := q.QuarkAbsolute(AttrDisks, disk)
	if !ok {
		return Throughput{}, errMissingAttr(AttrDisks, disk)
	}
	t0 = clamp(t0, q.StartTime(), q.CurrentEndTime())
	t1 = clamp(t1, q.StartTime(), q.CurrentEndTime())
	if t1 <= t0 {
		return Throughput{}, fmt.Errorf("%w: empty range [%d, %d]", statesystem.ErrTimeRange, t0, t1)
	}

	tp := Throughput{Start: t0, End: t1}
	var err error
	if tp.SectorsRead, err = counterDelta(q, diskQ, AttrSectorsRead, t0, t1); err != nil {
		return Throughput{}, err
	}
	if tp.SectorsWritten, err = counterDelta(q, diskQ, AttrSectorsWritten, t0, t1); err != nil {
		return Throughput{}, err
	}
	scale := nsPerSecond / float64(t1-t0) / sectorsPerMiB
	tp.ReadMiBps = float64(tp.SectorsRead) * scale
	tp.WriteMiBps = float64(tp.SectorsWritten) * scale
	return tp, nil
}

// DiskThroughputSeries splits [t0, t1] into n equal buckets and returns the
// throughput of each.
func DiskThroughputSeries(q statesystem.Querier, disk string, t0, t1 int64, n int) ([]Throughput, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bucket count must be positive, got %d", n)
	}
	t0 = clamp(t0, q.StartTime(), q.CurrentEndTime())
	t1 = clamp(t1, q.StartTime(), q.CurrentEndTime())
	step := (t1 - t0) / int64(n)
	if step <= 0 {
		return nil, fmt.Errorf("%w: range [%d, %d] too small for %d buckets", statesystem.ErrTimeRange, t0, t1, n)
	}
	series := make([]Throughput, 0, n)
	for i := 0; i < n; i++ {
		start := t0 + int64(i)*step
		end := start + step
		if i == n-1 {
			end = t1
		}
		tp, err := DiskThroughput(q, disk, start, end)
		if err != nil {
			return nil, err
		}
		series = append(series, tp)
	}
	return series, nil
}

// counterDelta returns how much a cumulative counter grew over [t0, t1].
// A counter that was never written is zero.
func counterDelta(q statesystem.Querier, parent int, name string, t0, t1 int64) (int64, error) {
	quark, ok := q.QuarkRelative(parent, name)
	if !ok {
		return 0, nil
	}
	v0, err := intAt(q, quark, t0)
	if err != nil {
		return 0, err
	}
	v1, err := intAt(q, quark, t1)
	if err != nil {
		return 0, err
	}
	return v1 - v0, nil
}

func intAt(q statesystem.Querier, quark int, t int64) (int64, error) {
	iv, err := q.QuerySingle(t, quark)
	if err != nil {
		return 0, err
	}
	if iv.Value.IsNull() {
		return 0, nil
	}
	return iv.Value.AsInt()
}

func clamp(t, lo, hi int64) int64 {
	return max(lo, min(t, hi))
}

// SlotState is the content of one queue slot at a point in time.
type SlotState struct {
	Slot   int
	Busy   bool
	Write  bool
	Sector int64
	Size   int64
}

// QueueOccupancy returns every slot of a disk queue (AttrWaitingQueue or
// AttrDriverQueue) at time t, in slot order.
func QueueOccupancy(q statesystem.Querier, disk, queue string, t int64) ([]SlotState, error) {
	if queue != AttrWaitingQueue && queue != AttrDriverQueue {
		return nil, fmt.Errorf("unknown queue %q", queue)
	}
	queueQ, ok := q.QuarkAbsolute(AttrDisks, disk, queue)
	if !ok {
		return nil, nil
	}

	var slots []SlotState
	for _, slotQ := range q.SubAttributes(queueQ) {
		n, err := strconv.Atoi(q.AttributeName(slotQ))
		if err != nil {
			continue
		}
		st := SlotState{Slot: n}
		status, err := optionalIntAt(q, slotQ, AttrStatus, t)
		if err != nil {
			return nil, err
		}
		if status != nil {
			st.Busy = true
			st.Write = *status == StatusWritingRequest
			if st.Sector, err = valueOrZero(optionalIntAt(q, slotQ, AttrCurrentRequest, t)); err != nil {
				return nil, err
			}
			if st.Size, err = valueOrZero(optionalIntAt(q, slotQ, AttrRequestSize, t)); err != nil {
				return nil, err
			}
		}
		slots = append(slots, st)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })
	return slots, nil
}

func optionalIntAt(q statesystem.Querier, parent int, name string, t int64) (*int64, error) {
	quark, ok := q.QuarkRelative(parent, name)
	if !ok {
		return nil, nil
	}
	iv, err := q.QuerySingle(t, quark)
	if err != nil {
		return nil, err
	}
	if iv.Value.IsNull() {
		return nil, nil
	}
	v, err := iv.Value.AsInt()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func valueOrZero(v *int64, err error) (int64, error) {
	if err != nil || v == nil {
		return 0, err
	}
	return *v, nil
}

// Disks returns the names of the disks with recorded activity.
func Disks(q statesystem.Querier) []string {
	return childNames(q, AttrDisks)
}

// ThreadIO is the cumulative syscall I/O of one thread.
type ThreadIO struct {
	Tid          int64
	BytesRead    int64
	BytesWritten int64
}

// Threads returns the byte counters of every thread at the end of the
// history, ordered by tid.
func Threads(q statesystem.Querier) ([]ThreadIO, error) {
	root, ok := q.QuarkAbsolute(AttrThreads)
	if !ok {
		return nil, nil
	}
	end := q.CurrentEndTime()

	var threads []ThreadIO
	for _, thread := range q.SubAttributes(root) {
		tid, err := strconv.ParseInt(q.AttributeName(thread), 10, 64)
		if err != nil {
			continue
		}
		tio := ThreadIO{Tid: tid}
		if tio.BytesRead, err = valueOrZero(optionalIntAt(q, thread, AttrBytesRead, end)); err != nil {
			return nil, err
		}
		if tio.BytesWritten, err = valueOrZero(optionalIntAt(q, thread, AttrBytesWritten, end)); err != nil {
			return nil, err
		}
		threads = append(threads, tio)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].Tid < threads[j].Tid })
	return threads, nil
}

func childNames(q statesystem.Querier, root string) []string {
	quark, ok := q.QuarkAbsolute(root)
	if !ok {
		return nil
	}
	children := q.SubAttributes(quark)
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, q.AttributeName(c))
	}
	return names
}

// IsNotFound reports whether err is a missing attribute.
func IsNotFound(err error) bool {
	return errors.Is(err, statesystem.ErrAttributeNotFound)
}
