package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"

	"lttng_iostate/internal/iostate"
	"lttng_iostate/internal/statesystem"
)

const sectorBytes = 512

// printSummary writes the per-disk and per-thread totals of a pass.
func printSummary(w io.Writer, q statesystem.Querier, stats iostate.PassStats, inputBytes int64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Input:\t%s, %d events (%d applied, %d ignored, %d failed) in %s\n",
		units.HumanSize(float64(inputBytes)), stats.Events, stats.Applied, stats.Ignored(),
		stats.ErrorCount(), stats.Elapsed.Round(time.Millisecond))
	for _, code := range iostate.ErrorCodes {
		if n := stats.Errors[code]; n > 0 {
			fmt.Fprintf(tw, "  %s errors:\t%d\n", code, n)
		}
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "DISK\tREAD\tWRITTEN\tREAD MiB/s\tWRITE MiB/s")
	for _, disk := range iostate.Disks(q) {
		tp, err := iostate.DiskThroughput(q, disk, q.StartTime(), q.CurrentEndTime())
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", disk)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\n", disk,
			units.HumanSize(float64(tp.SectorsRead*sectorBytes)),
			units.HumanSize(float64(tp.SectorsWritten*sectorBytes)),
			tp.ReadMiBps, tp.WriteMiBps)
	}
	fmt.Fprintln(tw)

	threads, err := iostate.Threads(q)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "TID\tREAD\tWRITTEN")
	for _, t := range threads {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", t.Tid,
			units.HumanSize(float64(t.BytesRead)), units.HumanSize(float64(t.BytesWritten)))
	}
	return tw.Flush()
}
