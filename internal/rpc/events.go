// ABOUTME: Ordered fan-out of push events to registered handlers
// ABOUTME: One dispatch goroutine preserves arrival order without blocking the reader

package rpc

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/autai/agent-bridge/internal/wire"
)

const defaultEventQueueSize = 64

// Handler receives one push event. Handlers run on the sink's dispatch
// goroutine, so a slow handler delays later events but never the reader; a
// panicking handler is logged and skipped.
type Handler func(ev wire.Event)

type subscription struct {
	id string
	fn Handler
}

// EventSink delivers push events to handlers registered by exact event name.
// Events are delivered in arrival order, and handlers for one name run in
// registration order.
type EventSink struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	queue    chan wire.Event
	capacity int
	done     chan struct{}
	closed   bool
	logger   *slog.Logger
}

// NewEventSink creates a sink and starts its dispatch goroutine. queueSize
// bounds how many undelivered events may pile up before Dispatch starts
// dropping; zero means the default of 64.
func NewEventSink(logger *slog.Logger, queueSize int) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultEventQueueSize
	}
	s := &EventSink{
		handlers: make(map[string][]subscription),
		queue:    make(chan wire.Event, queueSize+1), // last slot reserved for DispatchFinal
		capacity: queueSize,
		done:     make(chan struct{}),
		logger:   logger.With("component", "eventsink"),
	}
	go s.run()
	return s
}

// On registers a handler for event and returns a subscription id for Off.
func (s *EventSink) On(event string, fn Handler) string {
	id := uuid.New().String()

	s.mu.Lock()
	s.handlers[event] = append(s.handlers[event], subscription{id: id, fn: fn})
	s.mu.Unlock()

	s.logger.Debug("handler registered", "event", event, "sub_id", id)
	return id
}

// Off removes one subscription. Unknown ids are ignored.
func (s *EventSink) Off(event, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			s.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.handlers[event]) == 0 {
		delete(s.handlers, event)
	}
}

// Dispatch enqueues one event for ordered delivery. It never blocks: when
// the queue is full the event is dropped with a warning, so a slow handler
// can stall other handlers but not the connection's reader.
func (s *EventSink) Dispatch(ev wire.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("event after close", "event", ev.Type)
		return
	}
	if len(s.queue) >= s.capacity {
		s.logger.Warn("event queue full, dropping event", "event", ev.Type, "queue_size", s.capacity)
		return
	}
	s.queue <- ev
}

// DispatchFinal enqueues a connection's terminal event. One queue slot is
// held back from Dispatch for it, so a full backlog cannot shed the event
// that tells handlers the connection is gone. Delivery order is unchanged:
// the terminal event drains after everything queued before it.
func (s *EventSink) DispatchFinal(ev wire.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("event after close", "event", ev.Type)
		return
	}
	select {
	case s.queue <- ev:
	default:
		// Only a second terminal event lands here; the slot holds one.
		s.logger.Error("reserved slot occupied, dropping event", "event", ev.Type)
	}
}

// Close stops intake. Events already queued still drain to handlers; Done
// reports when the dispatch goroutine has finished. Safe to call twice.
func (s *EventSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Done is closed once the sink has drained after Close.
func (s *EventSink) Done() <-chan struct{} {
	return s.done
}

func (s *EventSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		s.deliver(ev)
	}
}

func (s *EventSink) deliver(ev wire.Event) {
	s.mu.RLock()
	subs := s.handlers[ev.Type]
	targets := make([]subscription, len(subs))
	copy(targets, subs)
	s.mu.RUnlock()

	for _, sub := range targets {
		s.invoke(ev, sub)
	}
}

func (s *EventSink) invoke(ev wire.Event, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked", "event", ev.Type, "sub_id", sub.id, "panic", r)
		}
	}()
	sub.fn(ev)
}
