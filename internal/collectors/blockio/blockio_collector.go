package blockio

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"lttng_iostate/internal/iostate"
	"lttng_iostate/internal/logger"
	"lttng_iostate/internal/maps"
	"lttng_iostate/internal/trace"
)

// sectorSize is the unit of the block layer's sector counts.
const sectorSize = 512

// BlockIOCustomCollector implements prometheus.Collector for the block I/O
// analysis. It is also the iostate.Recorder of the pass, so the counters
// grow while the trace is being analysed and scrapes see live values.
//
// It provides:
//   - Events handled and applied per event kind, and handler errors per class
//   - Bytes completed, queue lengths and merges per disk
//   - Syscall bytes read and written per thread
type BlockIOCustomCollector struct {
	eventsTotal  [trace.NumKinds]atomic.Uint64
	appliedTotal [trace.NumKinds]atomic.Uint64
	errorsTotal  map[iostate.ErrorCode]*atomic.Uint64 // fixed at construction

	mu    sync.RWMutex
	disks map[string]*diskStats // disk name -> counters

	threads maps.ConcurrentMap[int64, *threadStats] // tid -> syscall bytes

	log *logger.SampledLogger

	// Metric Descriptors
	eventsDesc       *prometheus.Desc
	appliedDesc      *prometheus.Desc
	errorsDesc       *prometheus.Desc
	diskBytesDesc    *prometheus.Desc
	diskQueueDesc    *prometheus.Desc
	diskMergesDesc   *prometheus.Desc
	threadBytesDesc  *prometheus.Desc
	trackedDisksDesc *prometheus.Desc
}

type diskStats struct {
	sectorsRead    atomic.Int64
	sectorsWritten atomic.Int64
	waiting        atomic.Int64
	driver         atomic.Int64
	merges         [trace.NumKinds]atomic.Uint64
}

type threadStats struct {
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
}

var _ iostate.Recorder = (*BlockIOCustomCollector)(nil)

// mergeTypes labels the event kinds that merge I/O.
var mergeTypes = map[trace.Kind]string{
	trace.KindElvMergeRequests: "request",
	trace.KindBioFrontMerge:    "front",
	trace.KindBioBackMerge:     "back",
}

// NewBlockIOCustomCollector creates the collector. backend selects the map
// implementation holding per-thread counters.
func NewBlockIOCustomCollector(backend string) (*BlockIOCustomCollector, error) {
	threads, err := maps.New[int64, *threadStats](backend)
	if err != nil {
		return nil, err
	}
	c := &BlockIOCustomCollector{
		errorsTotal: make(map[iostate.ErrorCode]*atomic.Uint64, len(iostate.ErrorCodes)),
		disks:       make(map[string]*diskStats),
		threads:     threads,
		log:         logger.NewSampledLoggerCtx("blockio_collector"),

		eventsDesc: prometheus.NewDesc(
			"iostate_events_total",
			"Total number of trace events handed to the analysis, per event kind",
			[]string{"kind"}, nil,
		),
		appliedDesc: prometheus.NewDesc(
			"iostate_events_applied_total",
			"Total number of trace events that changed the analysis state, per event kind",
			[]string{"kind"}, nil,
		),
		errorsDesc: prometheus.NewDesc(
			"iostate_event_errors_total",
			"Total number of events the analysis failed to apply, per error class",
			[]string{"code"}, nil,
		),
		diskBytesDesc: prometheus.NewDesc(
			"iostate_disk_completed_bytes_total",
			"Total bytes of completed block requests per disk and operation",
			[]string{"disk", "operation"}, nil,
		),
		diskQueueDesc: prometheus.NewDesc(
			"iostate_disk_queue_length",
			"Current number of requests in a disk queue",
			[]string{"disk", "queue"}, nil,
		),
		diskMergesDesc: prometheus.NewDesc(
			"iostate_disk_merges_total",
			"Total number of I/O merges per disk and merge type",
			[]string{"disk", "type"}, nil,
		),
		threadBytesDesc: prometheus.NewDesc(
			"iostate_thread_syscall_bytes_total",
			"Total bytes returned by read and write syscalls per thread",
			[]string{"tid", "operation"}, nil,
		),
		trackedDisksDesc: prometheus.NewDesc(
			"iostate_tracked_disks",
			"Number of disks with recorded activity",
			nil, nil,
		),
	}
	for _, code := range iostate.ErrorCodes {
		c.errorsTotal[code] = new(atomic.Uint64)
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *BlockIOCustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsDesc
	ch <- c.appliedDesc
	ch <- c.errorsDesc
	ch <- c.diskBytesDesc
	ch <- c.diskQueueDesc
	ch <- c.diskMergesDesc
	ch <- c.threadBytesDesc
	ch <- c.trackedDisksDesc
}

// Collect implements prometheus.Collector. Kinds and codes that never
// occurred are not exported.
func (c *BlockIOCustomCollector) Collect(ch chan<- prometheus.Metric) {
	for _, kind := range trace.Kinds() {
		if n := c.eventsTotal[kind].Load(); n > 0 {
			ch <- prometheus.MustNewConstMetric(c.eventsDesc, prometheus.CounterValue, float64(n), kind.String())
		}
		if n := c.appliedTotal[kind].Load(); n > 0 {
			ch <- prometheus.MustNewConstMetric(c.appliedDesc, prometheus.CounterValue, float64(n), kind.String())
		}
	}
	for code, counter := range c.errorsTotal {
		if n := counter.Load(); n > 0 {
			ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(n), string(code))
		}
	}

	c.mu.RLock()
	names := make([]string, 0, len(c.disks))
	for name := range c.disks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := c.disks[name]
		ch <- prometheus.MustNewConstMetric(c.diskBytesDesc, prometheus.CounterValue,
			float64(d.sectorsRead.Load()*sectorSize), name, "read")
		ch <- prometheus.MustNewConstMetric(c.diskBytesDesc, prometheus.CounterValue,
			float64(d.sectorsWritten.Load()*sectorSize), name, "write")
		ch <- prometheus.MustNewConstMetric(c.diskQueueDesc, prometheus.GaugeValue,
			float64(d.waiting.Load()), name, "waiting")
		ch <- prometheus.MustNewConstMetric(c.diskQueueDesc, prometheus.GaugeValue,
			float64(d.driver.Load()), name, "driver")
		for kind, label := range mergeTypes {
			if n := d.merges[kind].Load(); n > 0 {
				ch <- prometheus.MustNewConstMetric(c.diskMergesDesc, prometheus.CounterValue, float64(n), name, label)
			}
		}
	}
	ch <- prometheus.MustNewConstMetric(c.trackedDisksDesc, prometheus.GaugeValue, float64(len(names)))
	c.mu.RUnlock()

	c.threads.Range(func(tid int64, t *threadStats) bool {
		label := strconv.FormatInt(tid, 10)
		ch <- prometheus.MustNewConstMetric(c.threadBytesDesc, prometheus.CounterValue,
			float64(t.bytesRead.Load()), label, "read")
		ch <- prometheus.MustNewConstMetric(c.threadBytesDesc, prometheus.CounterValue,
			float64(t.bytesWritten.Load()), label, "write")
		return true
	})
}

// disk returns the counters of a disk, creating them on first use.
func (c *BlockIOCustomCollector) disk(name string) *diskStats {
	c.mu.RLock()
	d, ok := c.disks[name]
	c.mu.RUnlock()
	if ok {
		return d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok = c.disks[name]; !ok {
		d = &diskStats{}
		c.disks[name] = d
	}
	return d
}

// RecordEvent implements iostate.Recorder.
func (c *BlockIOCustomCollector) RecordEvent(kind trace.Kind, applied bool) {
	if int(kind) >= trace.NumKinds {
		kind = trace.KindUnknown
	}
	c.eventsTotal[kind].Add(1)
	if applied {
		c.appliedTotal[kind].Add(1)
	}
}

// RecordError implements iostate.Recorder.
func (c *BlockIOCustomCollector) RecordError(code iostate.ErrorCode) {
	counter, ok := c.errorsTotal[code]
	if !ok {
		c.log.SampledWarn("unknown_error_code").Str("code", string(code)).Msg("Unknown error code not counted")
		return
	}
	counter.Add(1)
}

// RecordSectors implements iostate.Recorder.
func (c *BlockIOCustomCollector) RecordSectors(disk string, write bool, sectors int64) {
	d := c.disk(disk)
	if write {
		d.sectorsWritten.Add(sectors)
	} else {
		d.sectorsRead.Add(sectors)
	}
}

// RecordQueueLengths implements iostate.Recorder.
func (c *BlockIOCustomCollector) RecordQueueLengths(disk string, waiting, driver int) {
	d := c.disk(disk)
	d.waiting.Store(int64(waiting))
	d.driver.Store(int64(driver))
}

// RecordThreadBytes implements iostate.Recorder.
func (c *BlockIOCustomCollector) RecordThreadBytes(tid int64, write bool, bytes int64) {
	t, _ := c.threads.LoadOrStore(tid, func() *threadStats { return &threadStats{} })
	if write {
		t.bytesWritten.Add(bytes)
	} else {
		t.bytesRead.Add(bytes)
	}
}

// RecordMerge implements iostate.Recorder.
func (c *BlockIOCustomCollector) RecordMerge(disk string, kind trace.Kind) {
	if _, ok := mergeTypes[kind]; !ok {
		return
	}
	c.disk(disk).merges[kind].Add(1)
}

// ThreadCount returns the number of threads with syscall byte counters.
func (c *BlockIOCustomCollector) ThreadCount() int {
	return c.threads.Len()
}
