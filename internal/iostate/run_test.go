package iostate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lttng_iostate/internal/statesystem"
	"lttng_iostate/internal/trace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventList(kv ...[]any) []*trace.Event {
	layout := trace.DefaultLayout()
	events := make([]*trace.Event, 0, len(kv))
	for _, e := range kv {
		events = append(events, makeEvent(layout, e[0].(string), e[1].(int64), e[2:]...))
	}
	return events
}

func rec(name string, ts int64, kv ...any) []any {
	return append([]any{name, ts}, kv...)
}

func TestRunPass(t *testing.T) {
	ss := statesystem.NewMemory(StoreInfo(), 0)
	p := NewProvider(ss, Options{})
	src := trace.NewSliceSource(trace.DefaultLayout(), eventList(
		rec("lttng_statedump_block_device", 1, "dev", int64(8), "diskname", "sda"),
		rec("block_getrq", 10, "dev", int64(8), "sector", int64(100), "nr_sector", int64(8), "rwbs", int64(0)),
		rec("block_rq_insert", 11, "dev", int64(8), "sector", int64(100)),
		rec("block_rq_issue", 12, "dev", int64(8), "sector", int64(100), "nr_sector", int64(8)),
		rec("block_rq_complete", 13, "dev", int64(8), "sector", int64(100), "nr_sector", int64(8), "rwbs", int64(0)),
		rec("block_rq_insert", 14, "dev", int64(8), "sector", int64(999)),
		rec("sched_switch", 15),
	)...)

	stats, err := Run(context.Background(), p, src)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), stats.Events)
	assert.Equal(t, uint64(5), stats.Applied)
	assert.Equal(t, uint64(2), stats.Ignored())
	assert.Zero(t, stats.ErrorCount())
	assert.Equal(t, int64(1), stats.FirstTs)
	assert.Equal(t, int64(15), stats.LastTs)
	assert.Equal(t, KindStats{Events: 2, Applied: 1}, stats.ByKind[trace.KindRqInsert])
	assert.Equal(t, uint64(1), stats.ByKind[trace.KindUnknown].Events)
}

func TestRunOutOfOrderContinues(t *testing.T) {
	ss := statesystem.NewMemory(StoreInfo(), 0)
	p := NewProvider(ss, Options{})
	complete := func(ts int64) []any {
		return rec("block_rq_complete", ts, "dev", int64(8), "sector", int64(1), "nr_sector", int64(8), "rwbs", int64(0))
	}
	src := trace.NewSliceSource(trace.DefaultLayout(), eventList(
		rec("lttng_statedump_block_device", 1, "dev", int64(8), "diskname", "sda"),
		complete(100),
		complete(50),
		rec("block_getrq", 150, "dev", int64(8), "sector", "bad", "nr_sector", int64(8), "rwbs", int64(0)),
		complete(200),
	)...)

	stats, err := Run(context.Background(), p, src)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.Events)
	assert.Equal(t, uint64(1), stats.Errors[ErrCodeTimeRange])
	assert.Equal(t, uint64(1), stats.Errors[ErrCodeMalformed])
	assert.Equal(t, uint64(3), stats.Applied)

	q, ok := ss.QuarkAbsolute(AttrDisks, "sda", AttrSectorsRead)
	require.True(t, ok)
	v, err := ss.QueryOngoing(q)
	require.NoError(t, err)
	assert.Equal(t, statesystem.Int(16), v, "the rejected completion is not counted")
}

func TestRunDisposedAborts(t *testing.T) {
	ss := statesystem.NewMemory(StoreInfo(), 0)
	p := NewProvider(ss, Options{})
	ss.Dispose()

	src := trace.NewSliceSource(trace.DefaultLayout(), eventList(
		rec("lttng_statedump_block_device", 1, "dev", int64(8), "diskname", "sda"),
		rec("block_getrq", 10, "dev", int64(8), "sector", int64(100), "nr_sector", int64(8), "rwbs", int64(0)),
		rec("block_rq_insert", 11, "dev", int64(8), "sector", int64(100)),
		rec("block_rq_issue", 12, "dev", int64(8), "sector", int64(100), "nr_sector", int64(8)),
	)...)

	stats, err := Run(context.Background(), p, src)
	require.Error(t, err)
	assert.True(t, Fatal(err))
	assert.ErrorIs(t, err, statesystem.ErrDisposed)
	assert.ErrorIs(t, err, &Error{Code: ErrCodeDisposed})
	assert.Equal(t, uint64(3), stats.Events, "no event is read after the failure")
	assert.Equal(t, uint64(1), stats.Errors[ErrCodeDisposed])
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProvider(statesystem.NewMemory(StoreInfo(), 0), Options{})
	src := trace.NewSliceSource(trace.DefaultLayout(), eventList(rec("sched_switch", 1))...)
	stats, err := Run(ctx, p, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Events)
}

type failingSource struct{ err error }

func (s failingSource) Next() (*trace.Event, error) { return nil, s.err }

func TestRunSourceError(t *testing.T) {
	boom := errors.New("boom")
	p := NewProvider(statesystem.NewMemory(StoreInfo(), 0), Options{})
	_, err := Run(context.Background(), p, failingSource{err: boom})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "reading trace")
}

func TestRunYAMLTrace(t *testing.T) {
	const input = `
- {name: lttng_statedump_block_device, ts: 1, fields: {dev: 259, diskname: nvme0n1}}
- {name: block_bio_queue, ts: 5, fields: {dev: 259, sector: 2048, nr_sector: 8, rwbs: 1}}
- {name: block_getrq, ts: 6, fields: {dev: 259, sector: 2048, nr_sector: 8, rwbs: 1}}
- {name: block_rq_insert, ts: 7, fields: {dev: 259, sector: 2048}}
- {name: block_bio_backmerge, ts: 8, fields: {dev: 259, sector: 2056, nr_sector: 8, rwbs: 1}}
- {name: block_rq_issue, ts: 9, fields: {dev: 259, sector: 2048, nr_sector: 16}}
- {name: block_rq_complete, ts: 20, fields: {dev: 259, sector: 2048, nr_sector: 16, rwbs: 1}}
- {name: syscall_entry_pwrite64, ts: 21, fields: {context._tid: 1234}}
- {name: syscall_exit_pwrite64, ts: 22, fields: {context._tid: 1234, ret: 8192}}
`
	layout := trace.DefaultLayout()
	ss := statesystem.NewMemory(StoreInfo(), 0)
	p := NewProvider(ss, Options{Layout: layout})

	stats, err := Run(context.Background(), p, trace.NewYAMLReader(strings.NewReader(input), layout, 0))
	require.NoError(t, err)
	assert.Equal(t, stats.Events, stats.Applied)

	assert.Equal(t, []string{"nvme0n1"}, Disks(ss))
	tp, err := DiskThroughput(ss, "nvme0n1", 0, 22)
	require.NoError(t, err)
	assert.Equal(t, int64(16), tp.SectorsWritten)
	assert.Zero(t, tp.SectorsRead)

	threads, err := Threads(ss)
	require.NoError(t, err)
	assert.Equal(t, []ThreadIO{{Tid: 1234, BytesWritten: 8192}}, threads)
}
