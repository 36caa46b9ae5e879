// ABOUTME: The check, browser, and ui subcommands with their ✓/✗ reporting
// ABOUTME: Each step runs under its own timeout and failures set the exit code

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/autai/agent-bridge/internal/actions"
	"github.com/autai/agent-bridge/internal/browser"
	"github.com/autai/agent-bridge/internal/config"
	"github.com/autai/agent-bridge/internal/transcript"
	"github.com/autai/agent-bridge/internal/uibridge"
)

// report tallies check verdicts for the exit code.
type report struct {
	total    int
	failures int
}

func (r *report) pass(format string, args ...any) {
	r.total++
	color.New(color.FgGreen).Print("  ✓ ")
	fmt.Printf(format+"\n", args...)
}

func (r *report) fail(format string, args ...any) {
	r.total++
	r.failures++
	color.New(color.FgRed).Print("  ✗ ")
	fmt.Printf(format+"\n", args...)
}

// step runs one named check under its own timeout. The detail string, when
// non-empty, is shown next to the verdict.
func (r *report) step(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (string, error)) bool {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	detail, err := fn(stepCtx)
	if err != nil {
		r.fail("%s: %v", name, err)
		return false
	}
	if detail != "" {
		r.pass("%s: %s", name, detail)
	} else {
		r.pass("%s", name)
	}
	return true
}

func (r *report) summary() error {
	if r.failures > 0 {
		return fmt.Errorf("%d of %d checks failed", r.failures, r.total)
	}
	color.New(color.FgGreen).Printf("  All %d checks passed\n", r.total)
	return nil
}

// openTranscript opens the configured transcript store, or returns nil when
// transcripting is disabled.
func openTranscript(cfg *config.Config) (transcript.Store, error) {
	if !cfg.Transcript.Enabled || cfg.Transcript.Path == "" {
		return nil, nil
	}
	return transcript.NewSQLiteStore(cfg.Transcript.Path)
}

func runCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	commandAddr := fs.String("command-addr", "", "override the command endpoint")
	uiAddr := fs.String("ui-addr", "", "override the UI endpoint")
	timeout := fs.Duration("timeout", 10*time.Second, "per-step timeout")
	askInput := fs.Bool("input", false, "also round-trip an interactive input request")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *commandAddr != "" {
		cfg.Command.Addr = *commandAddr
	}
	if *uiAddr != "" {
		cfg.UI.Addr = *uiAddr
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("Command: %s\n", cfg.Command.Addr)
	green.Print("    ▶ ")
	fmt.Printf("UI:      %s\n\n", cfg.UI.Addr)

	logger := setupLogger(cfg.Logging)

	r := &report{}
	checkCommandChannel(ctx, cfg, logger, *timeout, r)
	fmt.Println()
	checkUIChannel(ctx, cfg, logger, *timeout, *askInput, r)
	fmt.Println()

	return r.summary()
}

func checkCommandChannel(ctx context.Context, cfg *config.Config, logger *slog.Logger, timeout time.Duration, r *report) {
	color.New(color.FgCyan).Println("  Command channel")

	var sess *browser.Session
	ok := r.step(ctx, timeout, "connect", func(ctx context.Context) (string, error) {
		var err error
		sess, err = browser.Connect(ctx, cfg.Command.Addr, browser.Options{
			Logger:      logger,
			CallTimeout: cfg.Command.CallTimeout,
		})
		if err != nil {
			return "", err
		}
		return cfg.Command.Addr, nil
	})
	if !ok {
		return
	}
	defer sess.Close()

	r.step(ctx, timeout, "ping", func(ctx context.Context) (string, error) {
		return "", sess.Ping(ctx)
	})

	var page *browser.Page
	if r.step(ctx, timeout, "navigate", func(ctx context.Context) (string, error) {
		var err error
		page, err = sess.Navigate(ctx, "https://example.com")
		if err != nil {
			return "", err
		}
		return page.URL(), nil
	}) {
		r.step(ctx, timeout, "title", func(ctx context.Context) (string, error) {
			return page.Title(ctx)
		})
	}

	r.step(ctx, timeout, "screenshot", func(ctx context.Context) (string, error) {
		data, err := sess.Screenshot(ctx, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d bytes", len(data)), nil
	})

	r.step(ctx, timeout, "state summary", func(ctx context.Context) (string, error) {
		summary, err := sess.StateSummary(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%q, %d tabs", summary.Title, len(summary.Tabs)), nil
	})
}

func checkUIChannel(ctx context.Context, cfg *config.Config, logger *slog.Logger, timeout time.Duration, askInput bool, r *report) {
	color.New(color.FgCyan).Println("  UI channel")

	store, err := openTranscript(cfg)
	if err != nil {
		r.fail("transcript store: %v", err)
		return
	}
	if store != nil {
		defer store.Close()
	}

	var bridge *uibridge.Bridge
	ok := r.step(ctx, timeout, "connect", func(ctx context.Context) (string, error) {
		var err error
		bridge, err = uibridge.Connect(ctx, cfg.UI.Addr, uibridge.Options{
			Logger:       logger,
			CallTimeout:  cfg.UI.CallTimeout,
			InputTimeout: cfg.UI.InputTimeout,
			Transcript:   store,
		})
		if err != nil {
			return "", err
		}
		return cfg.UI.Addr, nil
	})
	if !ok {
		return
	}
	defer bridge.Close()

	r.step(ctx, timeout, "notify", func(ctx context.Context) (string, error) {
		return "", bridge.Notify("autai-probe", "The probe says hello", uibridge.LevelInfo)
	})

	r.step(ctx, timeout, "forward event", func(ctx context.Context) (string, error) {
		return "", bridge.ForwardEvent("probe_heartbeat", map[string]any{"version": version})
	})

	if askInput {
		tools := actions.New(bridge, logger)
		r.step(ctx, cfg.UI.InputTimeout, "confirm action", func(ctx context.Context) (string, error) {
			_, res, err := tools.ConfirmAction(ctx, "finish the interactive check", "Answer Yes in the shell UI")
			if err != nil {
				return "", err
			}
			return res.Content, nil
		})
	}
}

func runBrowser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("browser", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	addr := fs.String("addr", "", "override the command endpoint")
	timeout := fs.Duration("timeout", 10*time.Second, "per-step timeout")
	pageURL := fs.String("url", "https://example.com", "page to open")
	script := fs.String("js", "document.title", "expression for execute_js")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Command.Addr = *addr
	}
	logger := setupLogger(cfg.Logging)

	r := &report{}
	var sess *browser.Session
	ok := r.step(ctx, *timeout, "connect", func(ctx context.Context) (string, error) {
		var err error
		sess, err = browser.Connect(ctx, cfg.Command.Addr, browser.Options{
			Logger:      logger,
			CallTimeout: cfg.Command.CallTimeout,
		})
		if err != nil {
			return "", err
		}
		return cfg.Command.Addr, nil
	})
	if !ok {
		return r.summary()
	}
	defer sess.Close()

	r.step(ctx, *timeout, "navigate", func(ctx context.Context) (string, error) {
		page, err := sess.Navigate(ctx, *pageURL)
		if err != nil {
			return "", err
		}
		return page.URL(), nil
	})

	var second *browser.Page
	if r.step(ctx, *timeout, "new tab", func(ctx context.Context) (string, error) {
		var err error
		second, err = sess.NewTab(ctx, "https://example.org")
		if err != nil {
			return "", err
		}
		return second.WindowID(), nil
	}) {
		for i, tab := range sess.Tabs() {
			fmt.Printf("      [%d] %s  %s\n", i, tab.WindowID(), tab.URL())
		}
	}

	r.step(ctx, *timeout, "switch tab", func(ctx context.Context) (string, error) {
		page, err := sess.SwitchTab(ctx, 0)
		if err != nil {
			return "", err
		}
		return page.URL(), nil
	})

	r.step(ctx, *timeout, "execute_js", func(ctx context.Context) (string, error) {
		result, err := sess.ExecuteJS(ctx, *script)
		if err != nil {
			return "", err
		}
		return truncate(string(result), 80), nil
	})

	r.step(ctx, *timeout, "screenshot", func(ctx context.Context) (string, error) {
		data, err := sess.Screenshot(ctx, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d bytes", len(data)), nil
	})

	r.step(ctx, *timeout, "state summary", func(ctx context.Context) (string, error) {
		summary, err := sess.StateSummary(ctx)
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("%q, %d tabs", summary.Title, len(summary.Tabs))
		if summary.DOMTree == nil {
			detail += ", no DOM tree"
		}
		return detail, nil
	})

	if second != nil {
		r.step(ctx, *timeout, "close tab", func(ctx context.Context) (string, error) {
			if err := second.Close(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d left", len(sess.Tabs())), nil
		})
	}

	return r.summary()
}

func runUI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ui", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	addr := fs.String("addr", "", "override the UI endpoint")
	timeout := fs.Duration("timeout", 10*time.Second, "per-step timeout")
	askInput := fs.Bool("input", true, "round-trip an input request")
	prompt := fs.String("prompt", "What should the agent do next?", "question for the input request")
	options := fs.String("options", "", "comma-separated choices for the input request")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.UI.Addr = *addr
	}
	logger := setupLogger(cfg.Logging)

	store, err := openTranscript(cfg)
	if err != nil {
		return fmt.Errorf("opening transcript store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	r := &report{}
	var bridge *uibridge.Bridge
	ok := r.step(ctx, *timeout, "connect", func(ctx context.Context) (string, error) {
		var err error
		bridge, err = uibridge.Connect(ctx, cfg.UI.Addr, uibridge.Options{
			Logger:       logger,
			CallTimeout:  cfg.UI.CallTimeout,
			InputTimeout: cfg.UI.InputTimeout,
			Transcript:   store,
		})
		if err != nil {
			return "", err
		}
		return cfg.UI.Addr, nil
	})
	if !ok {
		return r.summary()
	}
	defer bridge.Close()

	r.step(ctx, *timeout, "notify", func(ctx context.Context) (string, error) {
		return "", bridge.Notify("autai-probe", "UI channel check", uibridge.LevelInfo)
	})

	r.step(ctx, *timeout, "forward event", func(ctx context.Context) (string, error) {
		return "", bridge.ForwardEvent("probe_heartbeat", map[string]any{"version": version})
	})

	if *askInput {
		tools := actions.New(bridge, logger)
		r.step(ctx, cfg.UI.InputTimeout, "request input", func(ctx context.Context) (string, error) {
			var res actions.Result
			var err error
			if *options != "" {
				res, err = tools.SelectOption(ctx, *prompt, strings.Split(*options, ","))
			} else {
				res, err = tools.AskUser(ctx, *prompt)
			}
			if err != nil {
				return "", err
			}
			return res.Content, nil
		})
	}

	return r.summary()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
