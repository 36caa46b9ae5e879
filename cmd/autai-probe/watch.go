// ABOUTME: The watch and transcript subcommands for observing UI traffic
// ABOUTME: watch streams live inbound frames, transcript reads the SQLite ledger

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/autai/agent-bridge/internal/rpc"
	"github.com/autai/agent-bridge/internal/transcript"
	"github.com/autai/agent-bridge/internal/wire"
)

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	addr := fs.String("addr", "", "override the UI endpoint")
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

	conn, err := rpc.Dial(ctx, cfg.UI.Addr, rpc.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.UI.Addr, err)
	}
	defer conn.Close()

	fmt.Printf("watching %s (interrupt to stop)\n", cfg.UI.Addr)

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)

	lost := make(chan string, 1)
	conn.On(wire.EventConnectionLost, func(ev wire.Event) {
		var frame wire.ConnectionLost
		if err := ev.Decode(&frame); err != nil {
			frame.Reason = "unknown"
		}
		select {
		case lost <- frame.Reason:
		default:
		}
	})

	for _, name := range []string{wire.EventCommand, wire.EventUserInput, wire.EventProtocolError} {
		conn.On(name, func(ev wire.Event) {
			gray.Printf("%s ", time.Now().Format("15:04:05"))
			cyan.Printf("%-14s ", ev.Type)
			fmt.Println(truncate(string(ev.Raw), 120))
		})
	}

	select {
	case <-ctx.Done():
		fmt.Println()
		return nil
	case reason := <-lost:
		return fmt.Errorf("connection lost: %s", reason)
	}
}

func runTranscript(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transcript", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	dbPath := fs.String("db", "", "override the transcript database path")
	limit := fs.Int("n", 20, "number of entries to show")
	channel := fs.String("channel", "", "filter by channel (command or ui)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch *channel {
	case "", string(transcript.ChannelCommand), string(transcript.ChannelUI):
	default:
		return fmt.Errorf("unknown channel %q (want command or ui)", *channel)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	path := cfg.Transcript.Path
	if *dbPath != "" {
		path = *dbPath
	}
	if path == "" {
		return fmt.Errorf("no transcript database: enable transcript in the config or pass -db")
	}

	store, err := transcript.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("opening transcript store: %w", err)
	}
	defer store.Close()

	var entries []*transcript.Entry
	if *channel != "" {
		entries, err = store.RecentByChannel(ctx, transcript.Channel(*channel), *limit)
	} else {
		entries, err = store.Recent(ctx, *limit)
	}
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("transcript is empty")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)

	// The store returns newest first; print oldest first for reading.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		dir := "→"
		if e.Direction == transcript.DirectionInbound {
			dir = "←"
		}
		gray.Printf("%s ", e.Timestamp.Local().Format("15:04:05.000"))
		fmt.Printf("%s %-7s ", dir, e.Channel)
		cyan.Printf("%-14s ", e.Kind)
		fmt.Println(truncate(string(e.Payload), 100))
	}
	return nil
}
