package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestConfigData tests configuration data, defaults, edge cases, and validation
func TestConfigData(t *testing.T) {
	tests := []struct {
		name       string
		config     *AppConfig
		configTOML string
		setupFunc  func(*AppConfig)
		expectErr  bool
		validate   func(*testing.T, *AppConfig)
	}{
		{
			name:   "default config",
			config: DefaultConfig(),
			validate: func(t *testing.T, c *AppConfig) {
				if c.Server.ListenAddress != "localhost:9190" {
					t.Errorf("Expected ListenAddress 'localhost:9190', got %s", c.Server.ListenAddress)
				}
				if c.Logging.Defaults.Level != "info" {
					t.Errorf("Expected default log level 'info', got %s", c.Logging.Defaults.Level)
				}
				if len(c.Logging.Outputs) != 3 {
					t.Errorf("Expected 3 outputs, got %d", len(c.Logging.Outputs))
				}
				if c.Analysis.Layout.Fields.Tid != "context._tid" {
					t.Errorf("Expected tid field 'context._tid', got %s", c.Analysis.Layout.Fields.Tid)
				}
				if len(c.Analysis.Syscalls.Read) != 5 || len(c.Analysis.Syscalls.Write) != 5 {
					t.Errorf("Expected 5 read and 5 write syscalls, got %d and %d",
						len(c.Analysis.Syscalls.Read), len(c.Analysis.Syscalls.Write))
				}
			},
		},
		{
			name: "custom layout",
			configTOML: `
[analysis.layout.fields]
tid = "tid"
rwbs = "rw"

[analysis.layout.events]
rq_issue = "block_rq_dispatch"
`,
			validate: func(t *testing.T, c *AppConfig) {
				if c.Analysis.Layout.Fields.Tid != "tid" {
					t.Errorf("Expected tid field 'tid', got %s", c.Analysis.Layout.Fields.Tid)
				}
				if c.Analysis.Layout.Fields.Rwbs != "rw" {
					t.Errorf("Expected rwbs field 'rw', got %s", c.Analysis.Layout.Fields.Rwbs)
				}
				if c.Analysis.Layout.Fields.Sector != "sector" {
					t.Errorf("Unset fields keep their default, got %s", c.Analysis.Layout.Fields.Sector)
				}
				if c.Analysis.Layout.Events.RqIssue != "block_rq_dispatch" {
					t.Errorf("Expected rq_issue override, got %s", c.Analysis.Layout.Events.RqIssue)
				}
			},
		},
		{
			name: "custom logging config",
			configTOML: `
[logging.defaults]
level = "debug"

[[logging.outputs]]
type = "console"
enabled = true

[[logging.outputs]]
type = "file"
enabled = true
[logging.outputs.file]
filename = "app.log"
`,
			validate: func(t *testing.T, c *AppConfig) {
				if c.Logging.Defaults.Level != "debug" {
					t.Errorf("Expected debug level, got %s", c.Logging.Defaults.Level)
				}
				if len(c.Logging.Outputs) != 2 {
					t.Errorf("Expected 2 outputs, got %d", len(c.Logging.Outputs))
				}
				if c.Logging.Outputs[0].Type != "console" {
					t.Errorf("Expected first output 'console', got %s", c.Logging.Outputs[0].Type)
				}
			},
		},
		{
			name:   "invalid empty listen address",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Server.Enabled = true
				c.Server.ListenAddress = ""
			},
			expectErr: true,
		},
		{
			name:   "empty listen address ignored when not serving",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Server.ListenAddress = ""
			},
		},
		{
			name:   "invalid feed path equals metrics path",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Server.Enabled = true
				c.Server.FeedPath = c.Server.MetricsPath
			},
			expectErr: true,
		},
		{
			name:   "invalid map backend",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Analysis.MapBackend = "btree"
			},
			expectErr: true,
		},
		{
			name:   "invalid max input size",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Analysis.MaxInputSize = "lots"
			},
			expectErr: true,
		},
		{
			name:   "invalid empty sector field",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Analysis.Layout.Fields.Sector = ""
			},
			expectErr: true,
		},
		{
			name:   "invalid feed buffer",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Analysis.FeedBuffer = 0
			},
			expectErr: true,
		},
		{
			name:   "invalid no outputs enabled",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				for i := range c.Logging.Outputs {
					c.Logging.Outputs[i].Enabled = false
				}
			},
			expectErr: true,
		},
		{
			name:   "invalid sampling interval",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Logging.Sampling.MaxInterval = "an hour"
			},
			expectErr: true,
		},
		{
			name:   "invalid sampling initial above max",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Logging.Sampling.InitialInterval = "2h"
			},
			expectErr: true,
		},
		{
			name:   "invalid sampling factor",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Logging.Sampling.Factor = 0.5
			},
			expectErr: true,
		},
		{
			name: "custom sampling keeps other defaults",
			configTOML: `
[logging.sampling]
initial_interval = "250ms"
factor = 2.0
`,
			validate: func(t *testing.T, c *AppConfig) {
				initial, maxInterval, reset, err := c.Logging.Sampling.Durations()
				if err != nil {
					t.Fatalf("Unexpected sampling error: %v", err)
				}
				if initial != 250*time.Millisecond || c.Logging.Sampling.Factor != 2 {
					t.Errorf("Expected 250ms x2, got %s x%v", initial, c.Logging.Sampling.Factor)
				}
				if maxInterval != time.Hour || reset != 10*time.Minute {
					t.Errorf("Expected default 1h/10m, got %s/%s", maxInterval, reset)
				}
			},
		},
		{
			name: "valid custom server config",
			configTOML: `
[server]
enabled = true
listen_address = ":8080"
metrics_path = "/custom"

[analysis]
map_backend = "cornelk"
max_input_size = "64m"
`,
			validate: func(t *testing.T, c *AppConfig) {
				if c.Server.ListenAddress != ":8080" {
					t.Errorf("Expected :8080, got %s", c.Server.ListenAddress)
				}
				if c.Server.MetricsPath != "/custom" {
					t.Errorf("Expected /custom, got %s", c.Server.MetricsPath)
				}
				if c.Analysis.MapBackend != "cornelk" {
					t.Errorf("Expected cornelk backend, got %s", c.Analysis.MapBackend)
				}
				n, err := c.Analysis.MaxInputBytes()
				if err != nil || n != 64<<20 {
					t.Errorf("Expected 64MiB input limit, got %d (%v)", n, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *AppConfig

			// Get config from direct config, TOML, or setup function
			if tt.config != nil {
				cfg = tt.config
				if tt.setupFunc != nil {
					tt.setupFunc(cfg)
				}
			} else {
				tmpDir := t.TempDir()
				path := filepath.Join(tmpDir, "test.toml")
				if err := os.WriteFile(path, []byte(tt.configTOML), 0644); err != nil {
					t.Fatalf("Failed to write config: %v", err)
				}
				var err error
				cfg, err = LoadConfig(path)
				if err != nil {
					t.Fatalf("Failed to load config: %v", err)
				}
			}

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected validation error but got none")
			} else if !tt.expectErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}

			if !tt.expectErr && tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

// TestLoadConfig tests loading configurations with fallbacks and validation
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name       string
		configTOML string
		configPath string
		expectErr  bool
		expectCfg  bool
	}{
		{
			name:       "non-existent file returns defaults and an error",
			configPath: "nonexistent.toml",
			expectErr:  true,
			expectCfg:  true,
		},
		{
			name:      "empty path returns defaults",
			expectCfg: true,
		},
		{
			name: "valid config loads correctly",
			configTOML: `
[server]
listen_address = ":8080"
metrics_path = "/test"

[analysis]
trace_path = "trace.yaml"

[logging.defaults]
level = "debug"

[[logging.outputs]]
type = "console"
enabled = true
`,
			expectCfg: true,
		},
		{
			name: "invalid TOML returns error",
			configTOML: `
[server]
listen_address = ":8080"
invalid_syntax [
`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := tt.configPath
			if tt.configTOML != "" {
				configPath = filepath.Join(t.TempDir(), "test.toml")
				if err := os.WriteFile(configPath, []byte(tt.configTOML), 0644); err != nil {
					t.Fatalf("Failed to create test config: %v", err)
				}
			}

			config, err := LoadConfig(configPath)

			if tt.expectErr && err == nil {
				t.Fatal("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !tt.expectCfg {
				return
			}
			if config == nil {
				t.Fatal("Expected a configuration")
			}

			if tt.name == "valid config loads correctly" {
				if config.Server.ListenAddress != ":8080" {
					t.Errorf("Expected :8080, got %s", config.Server.ListenAddress)
				}
				if config.Analysis.TracePath != "trace.yaml" {
					t.Errorf("Expected trace.yaml, got %s", config.Analysis.TracePath)
				}
				if config.Logging.Defaults.Level != "debug" {
					t.Errorf("Expected debug level, got %s", config.Logging.Defaults.Level)
				}
			}

			if err := config.Validate(); err != nil {
				t.Errorf("Config validation failed: %v", err)
			}
		})
	}
}

// TestSaveConfig tests saving configurations
func TestSaveConfig(t *testing.T) {
	t.Run("save and load roundtrip", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "subdir", "test.toml")

		original := DefaultConfig()
		original.Server.ListenAddress = ":7777"
		original.Analysis.Syscalls.Read = []string{"syscall_entry_read"}

		if err := SaveConfig(configPath, original); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to load: %v", err)
		}

		if loaded.Server.ListenAddress != ":7777" {
			t.Errorf("Expected :7777, got %s", loaded.Server.ListenAddress)
		}
		if len(loaded.Analysis.Syscalls.Read) != 1 {
			t.Errorf("Expected 1 read syscall, got %v", loaded.Analysis.Syscalls.Read)
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		if err := SaveConfig("\x00invalid", DefaultConfig()); err == nil {
			t.Error("Expected error for invalid path")
		}
	})
}

// TestConfigGenerator tests configuration generation
func TestConfigGenerator(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "example.toml")

	if err := GenerateExampleConfig(configPath); err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Generated config is invalid: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Generated config validation failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}
	if !strings.Contains(string(content), "lttng_iostate example configuration") {
		t.Error("Generated config missing expected header")
	}
}
