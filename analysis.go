package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"lttng_iostate/internal/collectors/blockio"
	"lttng_iostate/internal/config"
	"lttng_iostate/internal/feed"
	"lttng_iostate/internal/iostate"
	"lttng_iostate/internal/statesystem"
	"lttng_iostate/internal/trace"
)

// analysis wires one pass: the trace reader feeds the provider, which
// writes the store; the collector and the feed observe it.
type analysis struct {
	cfg       *config.AppConfig
	input     io.ReadCloser
	reader    *trace.YAMLReader
	store     *statesystem.Memory
	provider  *iostate.Provider
	collector *blockio.BlockIOCustomCollector
	hub       *feed.Hub
}

func newAnalysis(cfg *config.AppConfig) (*analysis, error) {
	input, err := openTrace(cfg.Analysis.TracePath)
	if err != nil {
		return nil, err
	}
	a, err := newAnalysisFrom(cfg, input)
	if err != nil {
		input.Close()
		return nil, err
	}
	if err := prometheus.Register(a.collector); err != nil {
		input.Close()
		return nil, fmt.Errorf("registering collector: %w", err)
	}
	return a, nil
}

// newAnalysisFrom wires a pass reading input. The collector is not
// registered.
func newAnalysisFrom(cfg *config.AppConfig, input io.ReadCloser) (*analysis, error) {
	limit, err := cfg.Analysis.MaxInputBytes()
	if err != nil {
		return nil, err
	}
	collector, err := blockio.NewBlockIOCustomCollector(cfg.Analysis.MapBackend)
	if err != nil {
		return nil, err
	}

	layout := trace.NewLayout(cfg.Analysis.Layout)
	store := statesystem.NewMemory(iostate.StoreInfo(), 0)
	hub := feed.NewHub(cfg.Analysis.FeedBuffer)
	store.AddListener(hub)

	provider := iostate.NewProvider(store, iostate.Options{
		Layout:   layout,
		Syscalls: cfg.Analysis.Syscalls,
		Recorder: collector,
	})

	log.Debug().
		Str("trace", cfg.Analysis.TracePath).
		Int64("max_input_bytes", limit).
		Msg("Analysis set up")

	return &analysis{
		cfg:       cfg,
		input:     input,
		reader:    trace.NewYAMLReader(input, layout, limit),
		store:     store,
		provider:  provider,
		collector: collector,
		hub:       hub,
	}, nil
}

func (a *analysis) run(ctx context.Context) (iostate.PassStats, error) {
	defer a.input.Close()
	return iostate.Run(ctx, a.provider, a.reader)
}

// openTrace opens the event stream, "-" meaning stdin.
func openTrace(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	return f, nil
}
