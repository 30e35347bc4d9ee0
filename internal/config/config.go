package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
)

// Configuration system:
// - config.example.toml can be generated with -generate-config
// - Use brief comments here for reference only

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Server configuration
	Server ServerConfig `toml:"server"`

	// Analysis pass configuration
	Analysis AnalysisConfig `toml:"analysis"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Serve metrics and the live feed while (and after) the pass runs (default: false)
	Enabled bool `toml:"enabled"`

	// Listen address (default: "localhost:9190")
	ListenAddress string `toml:"listen_address"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path"`

	// Websocket endpoint streaming attribute writes (default: "/feed")
	FeedPath string `toml:"feed_path"`

	// Enable pprof endpoint for debugging (default: false)
	PprofEnabled bool `toml:"pprof_enabled"`
}

// AnalysisConfig contains settings for one analysis pass
type AnalysisConfig struct {
	// Path of the YAML event stream, "-" for stdin
	TracePath string `toml:"trace_path"`

	// Largest input accepted, as a size string (default: "1GiB")
	MaxInputSize string `toml:"max_input_size"`

	// Concurrent map implementation used by the metrics collector:
	// "xsync", "cornelk" or "sync" (default: "xsync")
	MapBackend string `toml:"map_backend"`

	// Per-client buffered messages in the live feed (default: 1024)
	FeedBuffer int `toml:"feed_buffer"`

	// Print the per-disk and per-thread summary after the pass (default: true)
	PrintSummary bool `toml:"print_summary"`

	// Event and field names of the trace
	Layout LayoutConfig `toml:"layout"`

	// Syscall families attributed to thread byte counters
	Syscalls SyscallConfig `toml:"syscalls"`
}

// LayoutConfig maps the analysis' logical event and field names to the
// names the tracer emits.
type LayoutConfig struct {
	Events EventNamesConfig `toml:"events"`
	Fields FieldNamesConfig `toml:"fields"`

	// Prefix of syscall entry events (default: "syscall_entry")
	SyscallEntryPrefix string `toml:"syscall_entry_prefix"`

	// Prefix of syscall exit events (default: "syscall_exit")
	SyscallExitPrefix string `toml:"syscall_exit_prefix"`
}

// EventNamesConfig holds the tracer event names
type EventNamesConfig struct {
	StatedumpBlockDevice string `toml:"statedump_block_device"`
	BioQueue             string `toml:"bio_queue"`
	GetRq                string `toml:"getrq"`
	RqInsert             string `toml:"rq_insert"`
	ElvMergeRequests     string `toml:"elv_merge_requests"`
	BioFrontMerge        string `toml:"bio_frontmerge"`
	BioBackMerge         string `toml:"bio_backmerge"`
	RqIssue              string `toml:"rq_issue"`
	RqComplete           string `toml:"rq_complete"`
}

// FieldNamesConfig holds the tracer field names
type FieldNamesConfig struct {
	Dev          string `toml:"dev"`
	Sector       string `toml:"sector"`
	NrSector     string `toml:"nr_sector"`
	Rwbs         string `toml:"rwbs"`
	DiskName     string `toml:"diskname"`
	RqSector     string `toml:"rq_sector"`
	NextRqSector string `toml:"nextrq_sector"`
	Tid          string `toml:"tid"`
	Pid          string `toml:"pid"`
	Ret          string `toml:"ret"`
}

// SyscallConfig lists the syscall entry event names counted as reads and writes
type SyscallConfig struct {
	Read  []string `toml:"read"`
	Write []string `toml:"write"`
}

// LoggingConfig contains the complete logging configuration
type LoggingConfig struct {
	// Default logging settings applied to all loggers
	Defaults LogDefaults `toml:"defaults"`

	// Output configurations - can have multiple outputs
	Outputs []LogOutput `toml:"outputs"`

	// Backoff of the sampled loggers used on the per-event hot path
	Sampling LogSamplingConfig `toml:"sampling"`
}

// LogSamplingConfig controls how often a repeated sampled log line is written.
// Durations use Go syntax ("500ms", "1m").
type LogSamplingConfig struct {
	// First wait after a line is written (default: "1s")
	InitialInterval string `toml:"initial_interval"`

	// Longest wait between two writes of the same line (default: "1h")
	MaxInterval string `toml:"max_interval"`

	// Growth of the wait after each write, at least 1 (default: 1.5)
	Factor float64 `toml:"factor"`

	// Quiet time after which a line starts again at initial_interval (default: "10m")
	ResetInterval string `toml:"reset_interval"`
}

// Durations parses the three intervals.
func (s LogSamplingConfig) Durations() (initial, maxInterval, reset time.Duration, err error) {
	if initial, err = time.ParseDuration(s.InitialInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("logging.sampling.initial_interval: %w", err)
	}
	if maxInterval, err = time.ParseDuration(s.MaxInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("logging.sampling.max_interval: %w", err)
	}
	if reset, err = time.ParseDuration(s.ResetInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("logging.sampling.reset_interval: %w", err)
	}
	return initial, maxInterval, reset, nil
}

// LogDefaults contains default logger settings
type LogDefaults struct {
	// Log level (default: "info")
	Level string `toml:"level"`

	// Include caller information (default: 0)
	Caller int `toml:"caller"`

	// Time field name (default: "time")
	TimeField string `toml:"time_field"`

	// Time format (default: "" = RFC3339 with milliseconds)
	TimeFormat string `toml:"time_format"`

	// Time zone (default: "Local")
	TimeLocation string `toml:"time_location"`
}

// LogOutput represents a single output configuration
type LogOutput struct {
	// Output type: "console", "file", "syslog"
	Type string `toml:"type"`

	// Enable this output (default: true)
	Enabled bool `toml:"enabled"`

	// Configuration specific to the output type
	Console *ConsoleConfig `toml:"console,omitempty"`
	File    *FileConfig    `toml:"file,omitempty"`
	Syslog  *SyslogConfig  `toml:"syslog,omitempty"`
}

// ConsoleConfig contains console/terminal output settings
type ConsoleConfig struct {
	// Use fast JSON output (default: false)
	FastIO bool `toml:"fast_io"`

	// Output format when fast_io=false: "auto", "logfmt", "glog" (default: "auto")
	Format string `toml:"format"`

	// Enable colored output (default: true)
	ColorOutput bool `toml:"color_output"`

	// Quote string values (default: true)
	QuoteString bool `toml:"quote_string"`

	// Output destination (default: "stderr")
	Writer string `toml:"writer"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// FileConfig contains file output settings
type FileConfig struct {
	// Log file path (required)
	Filename string `toml:"filename"`

	// Maximum file size in megabytes (default: 10)
	MaxSize int64 `toml:"max_size"`

	// Maximum number of old log files to keep (default: 7)
	MaxBackups int `toml:"max_backups"`

	// Time format for rotated filenames (default: "2006-01-02T15-04-05")
	TimeFormat string `toml:"time_format"`

	// Use local time for rotation timestamps (default: true)
	LocalTime bool `toml:"local_time"`

	// Include hostname in filename (default: true)
	HostName bool `toml:"host_name"`

	// Include process ID in filename (default: true)
	ProcessID bool `toml:"process_id"`

	// Create directory if it doesn't exist (default: true)
	EnsureFolder bool `toml:"ensure_folder"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// SyslogConfig contains syslog output settings
type SyslogConfig struct {
	// Network protocol (default: "udp")
	Network string `toml:"network"`

	// Syslog server address (default: "localhost:514")
	Address string `toml:"address"`

	// Hostname for syslog messages (default: system hostname)
	Hostname string `toml:"hostname"`

	// Syslog tag/program name (default: "lttng_iostate")
	Tag string `toml:"tag"`

	// Message prefix marker (default: "@cee:")
	Marker string `toml:"marker"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// DefaultLayoutConfig returns the LTTng 2.x kernel tracer names.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		Events: EventNamesConfig{
			StatedumpBlockDevice: "lttng_statedump_block_device",
			BioQueue:             "block_bio_queue",
			GetRq:                "block_getrq",
			RqInsert:             "block_rq_insert",
			ElvMergeRequests:     "elv_merge_requests",
			BioFrontMerge:        "block_bio_frontmerge",
			BioBackMerge:         "block_bio_backmerge",
			RqIssue:              "block_rq_issue",
			RqComplete:           "block_rq_complete",
		},
		Fields: FieldNamesConfig{
			Dev:          "dev",
			Sector:       "sector",
			NrSector:     "nr_sector",
			Rwbs:         "rwbs",
			DiskName:     "diskname",
			RqSector:     "rq_sector",
			NextRqSector: "nextrq_sector",
			Tid:          "context._tid",
			Pid:          "context._pid",
			Ret:          "ret",
		},
		SyscallEntryPrefix: "syscall_entry",
		SyscallExitPrefix:  "syscall_exit",
	}
}

// DefaultSyscallConfig returns the read and write syscall families.
func DefaultSyscallConfig() SyscallConfig {
	return SyscallConfig{
		Read: []string{
			"syscall_entry_read",
			"syscall_entry_readv",
			"syscall_entry_pread",
			"syscall_entry_pread64",
			"syscall_entry_preadv",
		},
		Write: []string{
			"syscall_entry_write",
			"syscall_entry_writev",
			"syscall_entry_pwrite",
			"syscall_entry_pwrite64",
			"syscall_entry_pwritev",
		},
	}
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Enabled:       false,
			ListenAddress: "localhost:9190",
			MetricsPath:   "/metrics",
			FeedPath:      "/feed",
			PprofEnabled:  false,
		},
		Analysis: AnalysisConfig{
			TracePath:    "",
			MaxInputSize: "1GiB",
			MapBackend:   "xsync",
			FeedBuffer:   1024,
			PrintSummary: true,
			Layout:       DefaultLayoutConfig(),
			Syscalls:     DefaultSyscallConfig(),
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				Caller:       0,
				TimeField:    "time",
				TimeFormat:   "",
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						FastIO:      false,
						Format:      "auto",
						ColorOutput: true,
						QuoteString: true,
						Writer:      "stderr",
						Async:       false,
					},
				},
				{
					Type:    "file",
					Enabled: false,
					File: &FileConfig{
						Filename:     "logs/iostate.log",
						MaxSize:      10, // 10MB
						MaxBackups:   7,
						TimeFormat:   "2006-01-02T15-04-05",
						LocalTime:    true,
						HostName:     true,
						ProcessID:    true,
						EnsureFolder: true,
						Async:        true,
					},
				},
				{
					Type:    "syslog",
					Enabled: false,
					Syslog: &SyslogConfig{
						Network:  "udp",
						Address:  "localhost:514",
						Tag:      "lttng_iostate",
						Hostname: "", // Uses system hostname by default
						Marker:   "@cee:",
						Async:    true,
					},
				},
			},
			Sampling: LogSamplingConfig{
				InitialInterval: "1s",
				MaxInterval:     "1h",
				Factor:          1.5,
				ResetInterval:   "10m",
			},
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If no config file specified or doesn't exist, use defaults
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	// Parse TOML file
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a TOML file
func SaveConfig(configPath string, config *AppConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates a TOML configuration file with default values
func GenerateExampleConfig(outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	header := `# lttng_iostate example configuration
# This file is auto-generated and serves as an example configuration.
# Copy this file to create your own configuration and modify as needed.
#
# Format: TOML (Tom's Obvious, Minimal Language)

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// MaxInputBytes parses MaxInputSize. Zero means no limit.
func (a *AnalysisConfig) MaxInputBytes() (int64, error) {
	if a.MaxInputSize == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(a.MaxInputSize)
	if err != nil {
		return 0, fmt.Errorf("analysis.max_input_size: %w", err)
	}
	return n, nil
}

// Validate checks the configuration for errors
func (c *AppConfig) Validate() error {
	if c.Server.Enabled {
		if c.Server.ListenAddress == "" {
			return fmt.Errorf("server.listen_address cannot be empty")
		}
		if c.Server.MetricsPath == "" {
			return fmt.Errorf("server.metrics_path cannot be empty")
		}
		if c.Server.FeedPath == "" {
			return fmt.Errorf("server.feed_path cannot be empty")
		}
		if c.Server.FeedPath == c.Server.MetricsPath {
			return fmt.Errorf("server.feed_path and server.metrics_path must differ")
		}
	}

	if _, err := c.Analysis.MaxInputBytes(); err != nil {
		return err
	}

	switch c.Analysis.MapBackend {
	case "xsync", "cornelk", "sync":
	default:
		return fmt.Errorf("analysis.map_backend: unknown backend %q", c.Analysis.MapBackend)
	}

	if c.Analysis.FeedBuffer <= 0 {
		return fmt.Errorf("analysis.feed_buffer must be positive")
	}

	fields := c.Analysis.Layout.Fields
	for name, value := range map[string]string{
		"dev":       fields.Dev,
		"sector":    fields.Sector,
		"nr_sector": fields.NrSector,
		"rwbs":      fields.Rwbs,
		"tid":       fields.Tid,
		"ret":       fields.Ret,
	} {
		if value == "" {
			return fmt.Errorf("analysis.layout.fields.%s cannot be empty", name)
		}
	}
	if c.Analysis.Layout.SyscallEntryPrefix == "" || c.Analysis.Layout.SyscallExitPrefix == "" {
		return fmt.Errorf("analysis.layout syscall prefixes cannot be empty")
	}

	// Validate that at least one output is enabled
	hasEnabledOutput := false
	for _, output := range c.Logging.Outputs {
		if output.Enabled {
			hasEnabledOutput = true
			break
		}
	}
	if !hasEnabledOutput {
		return fmt.Errorf("at least one logging output must be enabled")
	}

	initial, maxInterval, _, err := c.Logging.Sampling.Durations()
	if err != nil {
		return err
	}
	if initial <= 0 || maxInterval < initial {
		return fmt.Errorf("logging.sampling: need 0 < initial_interval <= max_interval")
	}
	if c.Logging.Sampling.Factor < 1 {
		return fmt.Errorf("logging.sampling.factor must be at least 1")
	}

	return nil
}

// Flags holds the command-line flags
type Flags struct {
	ListenAddress  string
	MetricsPath    string
	ConfigPath     string
	TracePath      string
	Serve          bool
	GenerateConfig string
}

// NewConfig creates a new configuration by parsing flags and loading the config file.
// A nil config with a nil error means the program should exit cleanly.
func NewConfig() (*AppConfig, error) {
	flags := &Flags{}

	flag.StringVar(&flags.ListenAddress,
		"web.listen-address",
		"localhost:9190",
		"Address to listen on for metrics and the live feed.")
	flag.StringVar(&flags.MetricsPath,
		"web.telemetry-path",
		"/metrics",
		"Path under which to expose metrics.")
	flag.StringVar(&flags.ConfigPath,
		"config",
		"",
		"Path to configuration file (optional).")
	flag.StringVar(&flags.TracePath,
		"trace",
		"",
		"Path of the YAML event stream to analyse, \"-\" for stdin.")
	flag.BoolVar(&flags.Serve,
		"serve",
		false,
		"Serve metrics and the live feed, and keep serving after the pass.")
	flag.StringVar(&flags.GenerateConfig,
		"generate-config",
		"",
		"Generate example config file to specified path and exit.")
	flag.Parse()

	if flags.GenerateConfig != "" {
		if err := GenerateExampleConfig(flags.GenerateConfig); err != nil {
			return nil, fmt.Errorf("error generating example config: %w", err)
		}
		fmt.Printf("Generated %s successfully\n", flags.GenerateConfig)
		return nil, nil
	}

	config := DefaultConfig()

	if flags.ConfigPath != "" {
		var err error
		config, err = LoadConfig(flags.ConfigPath)
		if err != nil {
			return nil, err
		}
	}

	// Override config with command-line flags if they were set by the user
	if isFlagPassed("web.listen-address") {
		config.Server.ListenAddress = flags.ListenAddress
	}
	if isFlagPassed("web.telemetry-path") {
		config.Server.MetricsPath = flags.MetricsPath
	}
	if isFlagPassed("trace") {
		config.Analysis.TracePath = flags.TracePath
	}
	if isFlagPassed("serve") {
		config.Server.Enabled = flags.Serve
	}

	if config.Analysis.TracePath == "" {
		return nil, fmt.Errorf("no trace given: use -trace or analysis.trace_path")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// isFlagPassed checks if a flag was explicitly set on the command line.
func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
