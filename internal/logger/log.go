// log.go
package logger

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"lttng_iostate/internal/config"

	"github.com/phuslu/log"
)

// NOTE: use example: log = logger.NewSampledLoggerCtx("iostate")

// asyncChannelSize is the queue length of every async output.
const asyncChannelSize = 4096

// activeSampler backs the sampled loggers. ConfigureLogging replaces it;
// until then the default backoff applies.
var activeSampler atomic.Pointer[Sampler]

func init() {
	activeSampler.Store(NewSampler(DefaultBackoff()))
}

var levels = map[string]log.Level{
	"trace":   log.TraceLevel,
	"debug":   log.DebugLevel,
	"info":    log.InfoLevel,
	"warn":    log.WarnLevel,
	"warning": log.WarnLevel,
	"error":   log.ErrorLevel,
	"fatal":   log.FatalLevel,
}

// parseLogLevel maps a configured level name, defaulting to info.
func parseLogLevel(name string) log.Level {
	if lvl, ok := levels[name]; ok {
		return lvl
	}
	return log.InfoLevel
}

func parseTimeLocation(name string) *time.Location {
	if name == "UTC" {
		return time.UTC
	}
	if name != "" && name != "Local" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.Local
}

func mapTimeFormat(format string) string {
	switch format {
	case "Unix":
		return log.TimeFormatUnix
	case "UnixMs":
		return log.TimeFormatUnixMs
	}
	return format
}

// glogFormat renders "Lmmdd hh:mm:ss.uuuuuu goid caller] message".
func glogFormat(w io.Writer, a *log.FormatterArgs) (int, error) {
	level := byte('?')
	if a.Level != "" {
		level = a.Level[0] - 'a' + 'A'
	}
	b := make([]byte, 0, 64+len(a.Message))
	b = append(b, level)
	b = append(b, a.Time...)
	b = append(b, ' ')
	b = append(b, a.Goid...)
	b = append(b, ' ')
	b = append(b, a.Caller...)
	b = append(b, "] "...)
	b = append(b, a.Message...)
	b = append(b, '\n')
	return w.Write(b)
}

// withAsync puts w behind an AsyncWriter when async is set.
func withAsync(w log.Writer, async bool) log.Writer {
	if !async {
		return w
	}
	return &log.AsyncWriter{ChannelSize: asyncChannelSize, Writer: w}
}

// outputBuilders turns one [[logging.outputs]] entry into a writer, by type.
var outputBuilders = map[string]func(config.LogOutput) (log.Writer, error){
	"console": consoleOutput,
	"file":    fileOutput,
	"syslog":  syslogOutput,
}

func consoleOutput(out config.LogOutput) (log.Writer, error) {
	c := out.Console
	if c == nil {
		return nil, fmt.Errorf("console output missing console configuration")
	}
	var dst io.Writer = os.Stderr
	if c.Writer == "stdout" {
		dst = os.Stdout
	}
	if c.FastIO {
		return withAsync(&log.IOWriter{Writer: dst}, c.Async), nil
	}

	cw := &log.ConsoleWriter{
		ColorOutput:    c.ColorOutput,
		QuoteString:    c.QuoteString,
		EndWithMessage: true,
		Writer:         dst,
	}
	switch c.Format {
	case "logfmt":
		cw.Formatter = log.LogfmtFormatter{TimeField: "time"}.Formatter
	case "glog":
		cw.Formatter = glogFormat
	}
	return withAsync(cw, c.Async), nil
}

func fileOutput(out config.LogOutput) (log.Writer, error) {
	f := out.File
	if f == nil {
		return nil, fmt.Errorf("file output missing file configuration")
	}
	if f.Filename == "" {
		return nil, fmt.Errorf("file output requires a filename")
	}
	return withAsync(&log.FileWriter{
		Filename:     f.Filename,
		FileMode:     0644,
		MaxSize:      f.MaxSize << 20,
		MaxBackups:   f.MaxBackups,
		TimeFormat:   mapTimeFormat(f.TimeFormat),
		LocalTime:    f.LocalTime,
		HostName:     f.HostName,
		ProcessID:    f.ProcessID,
		EnsureFolder: f.EnsureFolder,
	}, f.Async), nil
}

func syslogOutput(out config.LogOutput) (log.Writer, error) {
	s := out.Syslog
	if s == nil {
		return nil, fmt.Errorf("syslog output missing syslog configuration")
	}
	return withAsync(&log.SyslogWriter{
		Network:  s.Network,
		Address:  s.Address,
		Hostname: s.Hostname,
		Tag:      s.Tag,
		Marker:   s.Marker,
	}, s.Async), nil
}

// buildWriter combines the enabled outputs. With none enabled, entries go to
// stderr unformatted.
func buildWriter(outputs []config.LogOutput) (log.Writer, error) {
	var writers log.MultiEntryWriter
	for _, out := range outputs {
		if !out.Enabled {
			continue
		}
		build, ok := outputBuilders[out.Type]
		if !ok {
			return nil, fmt.Errorf("unknown output type: %s", out.Type)
		}
		w, err := build(out)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return &log.IOWriter{Writer: os.Stderr}, nil
	case 1:
		return writers[0], nil
	}
	return &writers, nil
}

// samplerFromConfig builds the hot path sampler from [logging.sampling].
func samplerFromConfig(c config.LogSamplingConfig) (*Sampler, error) {
	initial, maxInterval, reset, err := c.Durations()
	if err != nil {
		return nil, err
	}
	return NewSampler(BackoffConfig{
		InitialInterval: initial,
		MaxInterval:     maxInterval,
		Factor:          c.Factor,
		ResetInterval:   reset,
	}), nil
}

// ConfigureLogging installs the configured writers and level on
// log.DefaultLogger and replaces the sampler. Loggers from
// NewLoggerWithContext and NewSampledLoggerCtx pick both up when created,
// so call it first.
func ConfigureLogging(cfg config.LoggingConfig) error {
	sampler, err := samplerFromConfig(cfg.Sampling)
	if err != nil {
		return err
	}
	w, err := buildWriter(cfg.Outputs)
	if err != nil {
		return err
	}

	log.DefaultLogger = log.Logger{
		Level:        parseLogLevel(cfg.Defaults.Level),
		Caller:       cfg.Defaults.Caller,
		TimeField:    cfg.Defaults.TimeField,
		TimeFormat:   mapTimeFormat(cfg.Defaults.TimeFormat),
		TimeLocation: parseTimeLocation(cfg.Defaults.TimeLocation),
		Writer:       w,
	}
	activeSampler.Store(sampler)

	log.Info().
		Str("level", cfg.Defaults.Level).
		Int("outputs", len(cfg.Outputs)).
		Dur("sample_initial", sampler.cfg.InitialInterval).
		Dur("sample_max", sampler.cfg.MaxInterval).
		Msg("Loggers configured")
	return nil
}

// NewLoggerWithContext copies log.DefaultLogger with a "component" field and
// no caller lookup.
func NewLoggerWithContext(component string) log.Logger {
	l := log.DefaultLogger
	l.Caller = 0
	l.Context = log.NewContext(l.Context).Str("component", component).Value()
	return l
}

// NewSampledLoggerCtx creates a component logger whose Sampled* entries go
// through the sampler installed by ConfigureLogging.
func NewSampledLoggerCtx(component string) *SampledLogger {
	l := NewLoggerWithContext(component)
	return &SampledLogger{Logger: &l, sampler: activeSampler.Load()}
}
