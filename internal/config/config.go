// ABOUTME: Configuration loading and parsing for the agent bridge
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bridge configuration
type Config struct {
	Command    CommandConfig    `yaml:"command"`
	UI         UIConfig         `yaml:"ui"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CommandConfig points at the shell's command endpoint
type CommandConfig struct {
	Addr string `yaml:"addr"`

	CallTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CallTimeoutRaw string `yaml:"call_timeout"`
}

// UIConfig points at the shell's UI endpoint
type UIConfig struct {
	Addr string `yaml:"addr"`

	CallTimeout  time.Duration `yaml:"-"`
	InputTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CallTimeoutRaw  string `yaml:"call_timeout"`
	InputTimeoutRaw string `yaml:"input_timeout"`
}

// TranscriptConfig controls the SQLite ledger of UI traffic
type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration for a stock local shell.
func Default() *Config {
	return &Config{
		Command: CommandConfig{
			Addr:        "ws://127.0.0.1:9222",
			CallTimeout: 30 * time.Second,
		},
		UI: UIConfig{
			Addr:         "ws://127.0.0.1:9223",
			CallTimeout:  10 * time.Second,
			InputTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields the file leaves out keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to the defaults when
// it does not. Any other read or parse failure is still an error.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validateAddr(c.Command.Addr); err != nil {
		return fmt.Errorf("command.addr %w", err)
	}
	if err := validateAddr(c.UI.Addr); err != nil {
		return fmt.Errorf("ui.addr %w", err)
	}

	if c.Command.CallTimeout <= 0 {
		return fmt.Errorf("command.call_timeout must be positive")
	}
	if c.UI.CallTimeout <= 0 {
		return fmt.Errorf("ui.call_timeout must be positive")
	}
	if c.UI.InputTimeout <= 0 {
		return fmt.Errorf("ui.input_timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}

// validateAddr accepts ws://, wss://, tcp:// URLs and bare host:port addresses
func validateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("is required")
	}

	if !strings.Contains(addr, "://") {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%q is not a valid host:port: %w", addr, err)
		}
		return nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid url: %w", addr, err)
	}
	switch u.Scheme {
	case "ws", "wss", "tcp":
	default:
		return fmt.Errorf("has unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%q is missing a host", addr)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Command.CallTimeoutRaw != "" {
		cfg.Command.CallTimeout, err = time.ParseDuration(cfg.Command.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing command.call_timeout %q: %w", cfg.Command.CallTimeoutRaw, err)
		}
	}

	if cfg.UI.CallTimeoutRaw != "" {
		cfg.UI.CallTimeout, err = time.ParseDuration(cfg.UI.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ui.call_timeout %q: %w", cfg.UI.CallTimeoutRaw, err)
		}
	}

	if cfg.UI.InputTimeoutRaw != "" {
		cfg.UI.InputTimeout, err = time.ParseDuration(cfg.UI.InputTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ui.input_timeout %q: %w", cfg.UI.InputTimeoutRaw, err)
		}
	}

	return nil
}
