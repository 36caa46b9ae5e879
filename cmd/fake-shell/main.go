// ABOUTME: Entry point for fake-shell, a local emulator of the desktop shell
// ABOUTME: Serves the command and UI channels over WebSocket for agent development

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	var (
		commandAddr = flag.String("command-addr", "127.0.0.1:9222", "listen address for the command channel")
		uiAddr      = flag.String("ui-addr", "127.0.0.1:9223", "listen address for the UI channel")
		latency     = flag.Duration("latency", 0, "artificial delay before answering each command")
		autoAnswer  = flag.String("auto-answer", "", "canned answer for input requests (default: first option, or \"ok\")")
		answerDelay = flag.Duration("answer-delay", 500*time.Millisecond, "delay before answering an input request")
		emitEvery   = flag.Duration("emit-commands", 0, "interval for emitting pause/resume commands (0 disables)")
		level       = flag.String("level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*level),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shellConfig{
		latency:     *latency,
		autoAnswer:  *autoAnswer,
		answerDelay: *answerDelay,
		emitEvery:   *emitEvery,
	}
	if err := run(ctx, logger, *commandAddr, *uiAddr, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run serves both channels until the context is canceled or a server
// fails.
func run(ctx context.Context, logger *slog.Logger, commandAddr, uiAddr string, cfg shellConfig) error {
	sh := newShell(logger, cfg)

	commandMux := http.NewServeMux()
	commandMux.HandleFunc("/", sh.handleCommand)
	commandSrv := &http.Server{Addr: commandAddr, Handler: commandMux}

	uiMux := http.NewServeMux()
	uiMux.HandleFunc("/", sh.handleUI)
	uiSrv := &http.Server{Addr: uiAddr, Handler: uiMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("command channel listening", "addr", commandAddr)
		if err := commandSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("command server: %w", err)
		}
	}()
	go func() {
		logger.Info("ui channel listening", "addr", uiAddr)
		if err := uiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ui server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := commandSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("command server shutdown", "error", err)
	}
	if err := uiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ui server shutdown", "error", err)
	}

	logger.Info("fake-shell stopped")
	return serveErr
}
