// ABOUTME: Bridge to the shell's UI channel for events, notifications, and input requests
// ABOUTME: Wires the resolver that lets user_input frames complete pending requests

package uibridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autai/agent-bridge/internal/rpc"
	"github.com/autai/agent-bridge/internal/transcript"
	"github.com/autai/agent-bridge/internal/wire"
)

// DefaultInputTimeout bounds how long RequestInput waits for a person to
// answer. Humans are slower than shells.
const DefaultInputTimeout = 5 * time.Minute

// Notification levels understood by the shell's UI.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Control commands the UI sends at the agent.
const (
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandStop   = "stop"
)

// Options configures a Bridge.
type Options struct {
	Logger       *slog.Logger
	CallTimeout  time.Duration
	InputTimeout time.Duration
	QueueSize    int
	// Transcript, when set, records every frame crossing the UI channel.
	// The store belongs to the caller; Close leaves it open.
	Transcript transcript.Store
}

// uiConn is the slice of rpc.Conn the bridge drives. Tests substitute a
// scripted peer.
type uiConn interface {
	CallEnvelope(ctx context.Context, id string, frame any) (json.RawMessage, error)
	Send(frame any) error
	On(event string, fn rpc.Handler) string
	Off(event, id string)
	State() rpc.State
	Close() error
}

// Bridge speaks the UI half of the shell protocol: agent progress events
// and notifications go out, control commands and input answers come in.
//
// Input requests use the protocol's second resolution path: the request
// goes out as an envelope frame rather than a method call, and the answer
// arrives as a user_input event whose input_id names the request it
// completes.
type Bridge struct {
	logger *slog.Logger
	opts   Options
	store  transcript.Store
	conn   uiConn

	mu   sync.Mutex
	subs map[string]string // subscription id -> event name
}

// Connect dials the UI endpoint and starts listening for commands.
func Connect(ctx context.Context, addr string, opts Options) (*Bridge, error) {
	conn, err := rpc.Dial(ctx, addr, rpc.Options{
		Logger:         opts.Logger,
		CallTimeout:    opts.CallTimeout,
		EventQueueSize: opts.QueueSize,
		EventResolver:  resolveUserInput,
	})
	if err != nil {
		return nil, err
	}
	return newBridge(conn, opts), nil
}

func newBridge(conn uiConn, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InputTimeout <= 0 {
		opts.InputTimeout = DefaultInputTimeout
	}

	b := &Bridge{
		logger: logger.With("component", "uibridge"),
		opts:   opts,
		store:  opts.Transcript,
		conn:   conn,
		subs:   make(map[string]string),
	}
	if b.store != nil {
		// Answers that matched a pending request are consumed by the
		// resolver and recorded in RequestInput; these catch the rest.
		conn.On(wire.EventCommand, func(ev wire.Event) {
			b.record(transcript.DirectionInbound, ev.Type, ev.Raw)
		})
		conn.On(wire.EventUserInput, func(ev wire.Event) {
			b.record(transcript.DirectionInbound, ev.Type, ev.Raw)
		})
	}
	return b
}

// resolveUserInput completes the pending input request named by a
// user_input frame's input_id. Frames without one fall through to the
// event sink.
func resolveUserInput(ev wire.Event) (string, json.RawMessage, bool) {
	if ev.Type != wire.EventUserInput {
		return "", nil, false
	}
	var in wire.UserInput
	if err := ev.Decode(&in); err != nil || in.InputID == "" {
		return "", nil, false
	}
	return in.InputID, in.Value, true
}

// ForwardEvent pushes one agent progress event to the UI.
func (b *Bridge) ForwardEvent(event string, data any) error {
	frame := wire.AgentEvent{
		Type:      wire.EventAgentEvent,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := b.conn.Send(frame); err != nil {
		return fmt.Errorf("forward %s: %w", event, err)
	}
	b.recordOutbound(wire.EventAgentEvent, frame)
	return nil
}

// Notify shows a transient message in the UI. An empty level means info.
func (b *Bridge) Notify(title, message, level string) error {
	if level == "" {
		level = LevelInfo
	}
	switch level {
	case LevelInfo, LevelWarning, LevelError:
	default:
		return fmt.Errorf("unknown notification level %q", level)
	}

	frame := wire.Notification{
		Type:    wire.EventNotification,
		Title:   title,
		Message: message,
		Level:   level,
	}
	if err := b.conn.Send(frame); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	b.recordOutbound(wire.EventNotification, frame)
	return nil
}

// RequestInput asks the person at the UI a question and blocks until they
// answer, the context ends, or the input timeout passes. Options, when
// given, constrain the choices the UI offers.
func (b *Bridge) RequestInput(ctx context.Context, prompt string, options []string) (string, error) {
	id := uuid.New().String()
	frame := wire.InputRequest{
		Type:    wire.EventInputRequest,
		InputID: id,
		Prompt:  prompt,
		Options: options,
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.InputTimeout)
		defer cancel()
	}

	b.recordOutbound(wire.EventInputRequest, frame)
	result, err := b.conn.CallEnvelope(ctx, id, frame)
	if err != nil {
		return "", fmt.Errorf("input request: %w", err)
	}

	if b.store != nil {
		if payload, err := json.Marshal(wire.UserInput{
			Type:    wire.EventUserInput,
			InputID: id,
			Value:   result,
		}); err == nil {
			b.record(transcript.DirectionInbound, wire.EventUserInput, payload)
		}
	}
	return decodeAnswer(result), nil
}

// decodeAnswer unwraps a JSON string answer; anything else comes back as
// its raw JSON text.
func decodeAnswer(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// OnCommand subscribes a handler to one named UI command. The handler runs
// on the connection's dispatch goroutine and must not block. Returns a
// subscription id for Off.
func (b *Bridge) OnCommand(command string, handler func(params json.RawMessage)) string {
	id := b.conn.On(wire.EventCommand, func(ev wire.Event) {
		var cmd wire.UICommand
		if err := ev.Decode(&cmd); err != nil {
			b.logger.Warn("malformed command frame", "error", err)
			return
		}
		if cmd.Command != command {
			return
		}
		handler(cmd.Params)
	})

	b.mu.Lock()
	b.subs[id] = wire.EventCommand
	b.mu.Unlock()
	return id
}

// OnPause runs fn when the UI asks the agent to pause.
func (b *Bridge) OnPause(fn func()) string {
	return b.OnCommand(CommandPause, func(json.RawMessage) { fn() })
}

// OnResume runs fn when the UI asks the agent to resume.
func (b *Bridge) OnResume(fn func()) string {
	return b.OnCommand(CommandResume, func(json.RawMessage) { fn() })
}

// OnStop runs fn when the UI asks the agent to stop.
func (b *Bridge) OnStop(fn func()) string {
	return b.OnCommand(CommandStop, func(json.RawMessage) { fn() })
}

// OnConnectionLost runs fn when the UI socket dies without a local Close.
func (b *Bridge) OnConnectionLost(fn func(reason string)) string {
	id := b.conn.On(wire.EventConnectionLost, func(ev wire.Event) {
		var lost wire.ConnectionLost
		if err := ev.Decode(&lost); err != nil {
			b.logger.Warn("malformed connection_lost frame", "error", err)
			return
		}
		fn(lost.Reason)
	})

	b.mu.Lock()
	b.subs[id] = wire.EventConnectionLost
	b.mu.Unlock()
	return id
}

// Off removes a subscription made by any of the On methods.
func (b *Bridge) Off(id string) {
	b.mu.Lock()
	event, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		b.conn.Off(event, id)
	}
}

// State reports the underlying connection's lifecycle state.
func (b *Bridge) State() rpc.State {
	return b.conn.State()
}

// Close tears down the UI connection. Blocked RequestInput calls fail with
// the rpc layer's close error. The transcript store stays open.
func (b *Bridge) Close() error {
	return b.conn.Close()
}

func (b *Bridge) recordOutbound(kind string, frame any) {
	if b.store == nil {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		b.logger.Warn("transcript marshal failed", "kind", kind, "error", err)
		return
	}
	b.record(transcript.DirectionOutbound, kind, payload)
}

func (b *Bridge) record(direction transcript.Direction, kind string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := &transcript.Entry{
		Channel:   transcript.ChannelUI,
		Direction: direction,
		Kind:      kind,
		Payload:   append(json.RawMessage(nil), payload...),
	}
	if err := b.store.Append(ctx, entry); err != nil {
		b.logger.Warn("transcript append failed", "kind", kind, "error", err)
	}
}
