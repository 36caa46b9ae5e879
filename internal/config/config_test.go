// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
command:
  addr: "ws://10.0.0.5:9222"
  call_timeout: "45s"

ui:
  addr: "tcp://10.0.0.5:9223"
  call_timeout: "15s"
  input_timeout: "10m"

transcript:
  enabled: true
  path: "./bridge.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Command.Addr != "ws://10.0.0.5:9222" {
		t.Errorf("Command.Addr = %q, want %q", cfg.Command.Addr, "ws://10.0.0.5:9222")
	}
	if cfg.Command.CallTimeout != 45*time.Second {
		t.Errorf("Command.CallTimeout = %v, want %v", cfg.Command.CallTimeout, 45*time.Second)
	}

	if cfg.UI.Addr != "tcp://10.0.0.5:9223" {
		t.Errorf("UI.Addr = %q, want %q", cfg.UI.Addr, "tcp://10.0.0.5:9223")
	}
	if cfg.UI.CallTimeout != 15*time.Second {
		t.Errorf("UI.CallTimeout = %v, want %v", cfg.UI.CallTimeout, 15*time.Second)
	}
	if cfg.UI.InputTimeout != 10*time.Minute {
		t.Errorf("UI.InputTimeout = %v, want %v", cfg.UI.InputTimeout, 10*time.Minute)
	}

	if !cfg.Transcript.Enabled {
		t.Error("Transcript.Enabled = false, want true")
	}
	if cfg.Transcript.Path != "./bridge.db" {
		t.Errorf("Transcript.Path = %q, want %q", cfg.Transcript.Path, "./bridge.db")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	configPath := writeConfig(t, `
command:
  addr: "ws://192.168.1.20:9222"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Command.Addr != "ws://192.168.1.20:9222" {
		t.Errorf("Command.Addr = %q, want the file's value", cfg.Command.Addr)
	}

	def := Default()
	if cfg.UI.Addr != def.UI.Addr {
		t.Errorf("UI.Addr = %q, want default %q", cfg.UI.Addr, def.UI.Addr)
	}
	if cfg.Command.CallTimeout != def.Command.CallTimeout {
		t.Errorf("Command.CallTimeout = %v, want default %v", cfg.Command.CallTimeout, def.Command.CallTimeout)
	}
	if cfg.UI.InputTimeout != def.UI.InputTimeout {
		t.Errorf("UI.InputTimeout = %v, want default %v", cfg.UI.InputTimeout, def.UI.InputTimeout)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SHELL_HOST", "shellbox")
	t.Setenv("TEST_TRANSCRIPT_PATH", "/var/lib/autai/bridge.db")

	configPath := writeConfig(t, `
command:
  addr: "ws://${TEST_SHELL_HOST}:9222"

transcript:
  enabled: true
  path: "${TEST_TRANSCRIPT_PATH}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Command.Addr != "ws://shellbox:9222" {
		t.Errorf("Command.Addr = %q, want expanded host", cfg.Command.Addr)
	}
	if cfg.Transcript.Path != "/var/lib/autai/bridge.db" {
		t.Errorf("Transcript.Path = %q, want expanded path", cfg.Transcript.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Command.Addr != Default().Command.Addr {
		t.Errorf("missing file should yield defaults, got addr %q", cfg.Command.Addr)
	}

	cfg, err = LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault(\"\") error = %v", err)
	}
	if cfg.UI.Addr != Default().UI.Addr {
		t.Errorf("empty path should yield defaults, got addr %q", cfg.UI.Addr)
	}

	// A file that exists but fails validation is still an error.
	configPath := writeConfig(t, `
logging:
  level: "chatty"
`)
	if _, err := LoadOrDefault(configPath); err == nil {
		t.Error("LoadOrDefault() expected error for invalid existing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
command:
  addr "missing colon"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
ui:
  input_timeout: "three minutes"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		wantErrSubstr string
	}{
		{
			name:          "empty command addr",
			mutate:        func(c *Config) { c.Command.Addr = "" },
			wantErrSubstr: "command.addr is required",
		},
		{
			name:          "bad scheme",
			mutate:        func(c *Config) { c.UI.Addr = "http://127.0.0.1:9223" },
			wantErrSubstr: "unsupported scheme",
		},
		{
			name:          "bare host without port",
			mutate:        func(c *Config) { c.Command.Addr = "localhost" },
			wantErrSubstr: "host:port",
		},
		{
			name:          "zero call timeout",
			mutate:        func(c *Config) { c.Command.CallTimeout = 0 },
			wantErrSubstr: "command.call_timeout must be positive",
		},
		{
			name:          "negative input timeout",
			mutate:        func(c *Config) { c.UI.InputTimeout = -time.Second },
			wantErrSubstr: "ui.input_timeout must be positive",
		},
		{
			name:          "unknown log level",
			mutate:        func(c *Config) { c.Logging.Level = "loud" },
			wantErrSubstr: "logging.level",
		},
		{
			name:          "unknown log format",
			mutate:        func(c *Config) { c.Logging.Format = "xml" },
			wantErrSubstr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErrSubstr)
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Validate() on defaults should pass, got %v", err)
	}

	bare := Default()
	bare.Command.Addr = "127.0.0.1:9222"
	if err := bare.Validate(); err != nil {
		t.Errorf("Validate() should accept bare host:port, got %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
