// ABOUTME: Entry point for autai-probe, the bridge diagnostics CLI
// ABOUTME: Exercises the shell's command and UI channels and inspects transcripts

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/autai/agent-bridge/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
              _         _                       _
  __ _ _   _ | |_  __ _(_)      _ __  _ __ ___ | |__   ___
 / _' | | | || __|/ _' | |_____| '_ \| '__/ _ \| '_ \ / _ \
| (_| | |_| || |_| (_| | |_____| |_) | | | (_) | |_) |  __/
 \__,_|\__,_| \__|\__,_|_|     | .__/|_|  \___/|_.__/ \___|
                               |_|
`

// getConfigPath returns the path to the bridge config file.
// Priority: AUTAI_BRIDGE_CONFIG env var > XDG_CONFIG_HOME/autai/bridge.yaml > ~/.config/autai/bridge.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AUTAI_BRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bridge.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "autai", "bridge.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: autai-probe <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  check       Exercise both shell channels end to end")
		fmt.Println("  browser     Drive the command channel: navigate, evaluate, screenshot")
		fmt.Println("  ui          Drive the UI channel: notify and request input")
		fmt.Println("  watch       Stream inbound UI frames until interrupted")
		fmt.Println("  transcript  Show recent entries from the transcript ledger")
		fmt.Println("  version     Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "check":
		err = runCheck(ctx, os.Args[2:])
	case "browser":
		err = runBrowser(ctx, os.Args[2:])
	case "ui":
		err = runUI(ctx, os.Args[2:])
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "transcript":
		err = runTranscript(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config path and loads it, falling back to the
// defaults when no file exists.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = getConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = newColorHandler(os.Stdout, level)
	}

	return slog.New(handler)
}

// colorHandler renders one human-oriented line per record: gray timestamp,
// colored level tag, message, then attrs as gray key= pairs. Group names
// qualify the keys of attrs added after them, dot-joined.
type colorHandler struct {
	mu     *sync.Mutex // shared by clones so their writes stay serialized
	out    io.Writer
	level  slog.Level
	prefix string
	attrs  []slog.Attr // keys already qualified
}

func newColorHandler(out io.Writer, level slog.Level) *colorHandler {
	return &colorHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return color.New(color.FgRed, color.Bold).Sprint("ERR")
	case l >= slog.LevelWarn:
		return color.YellowString("WRN")
	case l >= slog.LevelInfo:
		return color.CyanString("INF")
	default:
		return color.MagentaString("DBG")
	}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	b.WriteString(color.HiBlackString(" " + key + "="))
	b.WriteString(a.Value.Resolve().String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.prefix == "" {
		c.prefix = name
	} else {
		c.prefix += "." + name
	}
	return &c
}
