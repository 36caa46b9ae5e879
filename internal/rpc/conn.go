// ABOUTME: Conn owns one socket to a shell endpoint
// ABOUTME: Writes correlated requests, reads frames, resolves calls, fans out events

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/autai/agent-bridge/internal/wire"
)

// Default deadlines. Call deadlines come from the caller's context when it
// has one; CallTimeout only fills the gap.
const (
	DefaultCallTimeout  = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// State is the lifecycle phase of a Conn.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// EventResolver maps a push event to the pending call it resolves. It lets a
// channel answer a call with an event instead of a response frame, as the UI
// does when a user_input event answers an input_request. Returning ok=false
// leaves the event on the normal delivery path.
type EventResolver func(ev wire.Event) (id string, result json.RawMessage, ok bool)

// Options configures a Conn. Zero values pick the defaults.
type Options struct {
	Logger         *slog.Logger
	CallTimeout    time.Duration
	WriteTimeout   time.Duration
	EventQueueSize int
	EventResolver  EventResolver
}

// Conn is one connection to a shell endpoint. A single reader goroutine owns
// the inbound side; writers are serialized separately so a blocked handler
// can never stall a read and a burst of writers can never interleave frames.
//
// Conn never reconnects. When the socket drops, pending calls resolve with
// ErrClosed and a connection_lost event fires; redial policy belongs to the
// caller.
type Conn struct {
	addr   string
	opts   Options
	logger *slog.Logger

	framer  framer
	writeMu sync.Mutex

	pending *pendingTable
	expired *expiryLog
	sink    *EventSink

	state      atomic.Int32
	closeOnce  sync.Once
	readerDone chan struct{}
}

// Dial connects to addr and starts the reader loop. Supported address forms
// are ws://host:port/path, wss://, tcp://host:port, and bare host:port.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	c := newConn(addr, opts)
	c.state.Store(int32(StateConnecting))

	f, err := dialFramer(ctx, addr, c.opts.WriteTimeout)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, addr, err)
	}

	c.start(f)
	c.logger.Info("connected")
	return c, nil
}

func newConn(addr string, opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	return &Conn{
		addr:       addr,
		opts:       opts,
		logger:     logger.With("peer", addr),
		pending:    newPendingTable(),
		expired:    newExpiryLog(expiryLogTTL),
		sink:       NewEventSink(logger.With("peer", addr), opts.EventQueueSize),
		readerDone: make(chan struct{}),
	}
}

// start attaches the framer and launches the reader loop.
func (c *Conn) start(f framer) {
	c.framer = f
	c.state.Store(int32(StateConnected))
	go c.readLoop()
}

// State reports the connection lifecycle phase.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Call sends a request with a fresh correlation id and suspends until a
// response, the deadline, or connection teardown resolves it. A nil params
// goes out as an empty object.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = struct{}{}
	}
	id := uuid.New().String()
	result, err := c.CallEnvelope(ctx, id, wire.Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return result, nil
}

// CallEnvelope runs the call mechanism for an arbitrary outbound frame whose
// correlation token is id. The UI bridge uses this for input requests, where
// the answer arrives as a user_input event rather than a response frame.
//
// The pending entry is registered before the frame is written, so a response
// racing the write cannot be missed. If the write fails the entry is removed
// again and ErrSendFailed comes back.
func (c *Conn) CallEnvelope(ctx context.Context, id string, frame any) (json.RawMessage, error) {
	if c.State() != StateConnected {
		return nil, ErrClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	call, err := c.pending.register(id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(frame)
	if err != nil {
		c.pending.take(id)
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	if err := c.writeFrame(data); err != nil {
		c.pending.take(id)
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	select {
	case <-call.done:
		return call.result, call.err
	case <-ctx.Done():
		cause := ctx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = fmt.Errorf("%w after %s", ErrTimeout, time.Since(call.createdAt).Round(time.Millisecond))
		}
		if c.pending.expire(id, cause) {
			c.expired.record(id)
			return nil, cause
		}
		// A resolution beat the cancellation; hand back its outcome.
		<-call.done
		return call.result, call.err
	}
}

// Send writes one frame with no pending entry and no response expected.
func (c *Conn) Send(frame any) error {
	if c.State() != StateConnected {
		return ErrClosed
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := c.writeFrame(data); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// On registers an event handler. Delivery follows EventSink ordering rules.
func (c *Conn) On(event string, fn Handler) string {
	return c.sink.On(event, fn)
}

// Off removes a handler registered with On.
func (c *Conn) Off(event, id string) {
	c.sink.Off(event, id)
}

// Close tears the connection down: the socket closes, the reader loop exits,
// and every pending call resolves with ErrClosed. Idempotent and safe to
// call with calls in flight, including from an event handler.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.CompareAndSwap(int32(StateConnected), int32(StateClosing))
		if err := c.framer.Close(); err != nil {
			c.logger.Debug("closing socket", "error", err)
		}
	})
	<-c.readerDone
	return nil
}

func (c *Conn) writeFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteFrame(data)
}

// readLoop is the single reader. Every inbound frame passes through it, and
// its exit runs teardown no matter why the connection ended.
func (c *Conn) readLoop() {
	defer close(c.readerDone)

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			c.teardown(err)
			return
		}
		c.dispatchFrame(data)
	}
}

// dispatchFrame classifies one frame: response, event, or junk. Junk is
// logged and surfaced as a protocol_error event; the connection stays up.
func (c *Conn) dispatchFrame(data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		c.logger.Warn("malformed frame", "error", err, "bytes", len(data))
		c.sink.Dispatch(wire.MustEvent(wire.EventProtocolError, wire.ProtocolError{
			Type:   wire.EventProtocolError,
			Reason: err.Error(),
		}))
		return
	}

	switch frame.Kind() {
	case wire.KindResponse:
		c.resolveResponse(frame)
	case wire.KindEvent:
		c.dispatchEvent(wire.Event{Type: frame.Type, Raw: frame.Raw})
	default:
		c.logger.Warn("frame has neither id nor type", "bytes", len(data))
		c.sink.Dispatch(wire.MustEvent(wire.EventProtocolError, wire.ProtocolError{
			Type:   wire.EventProtocolError,
			Reason: "frame has neither id nor type",
		}))
	}
}

func (c *Conn) resolveResponse(frame wire.Frame) {
	call := c.pending.take(frame.ID)
	if call == nil {
		if age, ok := c.expired.lookup(frame.ID); ok {
			c.logger.Warn("late response for expired call", "id", frame.ID, "expired_ago", age.Round(time.Millisecond).String())
		} else {
			c.logger.Warn("response for unknown request", "id", frame.ID)
		}
		return
	}

	if frame.Err != nil {
		call.fail(&RemoteError{Message: frame.Err.Message})
		return
	}
	call.succeed(frame.Result)
}

func (c *Conn) dispatchEvent(ev wire.Event) {
	if resolve := c.opts.EventResolver; resolve != nil {
		if id, result, ok := resolve(ev); ok {
			if call := c.pending.take(id); call != nil {
				call.succeed(result)
				return
			}
			c.logger.Debug("event token matches no pending call", "event", ev.Type, "id", id)
		}
	}
	c.sink.Dispatch(ev)
}

// teardown runs once, on the reader goroutine, after the last frame. Pending
// calls drain first so no caller suspends past this point, then the loss is
// announced unless Close asked for it.
func (c *Conn) teardown(readErr error) {
	local := c.State() == StateClosing

	if n := c.pending.drainAll(ErrClosed); n > 0 {
		c.logger.Info("drained pending calls", "count", n)
	}

	if local {
		c.logger.Debug("reader loop stopped")
	} else {
		c.logger.Warn("connection lost", "error", readErr)
		c.sink.DispatchFinal(wire.MustEvent(wire.EventConnectionLost, wire.ConnectionLost{
			Type:   wire.EventConnectionLost,
			Reason: readErr.Error(),
		}))
	}

	c.state.Store(int32(StateDisconnected))
	c.sink.Close()
	c.expired.Close()
}
