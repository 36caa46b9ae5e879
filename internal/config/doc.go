// Package config handles configuration loading for the agent bridge.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults, so a missing file
// still yields a working local setup.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from AUTAI_BRIDGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/autai/bridge.yaml
//  3. ~/.config/autai/bridge.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	command:
//	  addr: "ws://${AUTAI_SHELL_HOST}:9222"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	command:
//	  call_timeout: "30s"
//	ui:
//	  call_timeout: "10s"
//	  input_timeout: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Endpoints:
//
//	command:
//	  addr: "ws://127.0.0.1:9222"  # Browser command channel
//	ui:
//	  addr: "ws://127.0.0.1:9223"  # UI event channel
//
// Transcript:
//
//	transcript:
//	  enabled: false
//	  path: "~/.local/share/autai/bridge.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from an explicit path:
//
//	cfg, err := config.Load("/etc/autai/bridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or fall back to defaults when the standard file is absent:
//
//	cfg, err := config.LoadOrDefault(path)
package config
