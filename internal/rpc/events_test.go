// ABOUTME: Tests for the ordered event sink
// ABOUTME: Covers ordering, unsubscribe, panic isolation, overflow, and drain on close

package rpc

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autai/agent-bridge/internal/wire"
)

func testEvent(eventType, payload string) wire.Event {
	return wire.MustEvent(eventType, map[string]string{"type": eventType, "payload": payload})
}

func TestEventSink_DeliversToHandler(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	got := make(chan wire.Event, 1)
	s.On("notification", func(ev wire.Event) { got <- ev })

	s.Dispatch(testEvent("notification", "hello"))

	select {
	case ev := <-got:
		assert.Equal(t, "notification", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventSink_ExactNameMatchOnly(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	got := make(chan wire.Event, 1)
	s.On("command", func(ev wire.Event) { got <- ev })

	s.Dispatch(testEvent("notification", "not for you"))

	select {
	case <-got:
		t.Fatal("handler for command should not see a notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventSink_HandlersRunInRegistrationOrder(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := range 3 {
		s.On("tick", func(wire.Event) {
			mu.Lock()
			order = append(order, i)
			if len(order) == 3 {
				close(done)
			}
			mu.Unlock()
		})
	}

	s.Dispatch(testEvent("tick", "once"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handlers")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestEventSink_EventsArriveInDispatchOrder(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	s.On("tick", func(ev wire.Event) {
		var p struct {
			Payload string `json:"payload"`
		}
		if err := ev.Decode(&p); err != nil {
			return
		}
		mu.Lock()
		got = append(got, p.Payload)
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
	})

	var want []string
	for i := range 10 {
		payload := fmt.Sprintf("n%d", i)
		want = append(want, payload)
		s.Dispatch(testEvent("tick", payload))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for events")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestEventSink_OffStopsDelivery(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	kept := make(chan wire.Event, 4)
	removed := make(chan wire.Event, 4)
	s.On("tick", func(ev wire.Event) { kept <- ev })
	id := s.On("tick", func(ev wire.Event) { removed <- ev })

	s.Off("tick", id)
	s.Dispatch(testEvent("tick", "after off"))

	select {
	case <-kept:
	case <-time.After(time.Second):
		t.Fatal("remaining handler should still fire")
	}
	select {
	case <-removed:
		t.Fatal("removed handler should not fire")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventSink_OffUnknownIDIsNoOp(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	s.Off("tick", "no-such-subscription")
	s.Dispatch(testEvent("tick", "still fine"))
}

func TestEventSink_PanickingHandlerIsIsolated(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	got := make(chan string, 4)
	s.On("tick", func(wire.Event) { panic("handler bug") })
	s.On("tick", func(wire.Event) { got <- "second" })

	s.Dispatch(testEvent("tick", "one"))
	s.Dispatch(testEvent("tick", "two"))

	for range 2 {
		select {
		case v := <-got:
			assert.Equal(t, "second", v)
		case <-time.After(time.Second):
			t.Fatal("surviving handler should keep receiving")
		}
	}
}

func TestEventSink_DropsWhenQueueFull(t *testing.T) {
	s := NewEventSink(nil, 1)
	defer s.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	s.On("tick", func(ev wire.Event) {
		var p struct {
			Payload string `json:"payload"`
		}
		if err := ev.Decode(&p); err != nil {
			return
		}
		mu.Lock()
		got = append(got, p.Payload)
		mu.Unlock()
		if p.Payload == "first" {
			close(started)
			<-release
		}
	})

	// First event occupies the handler, second fills the queue, third drops.
	s.Dispatch(testEvent("tick", "first"))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}
	s.Dispatch(testEvent("tick", "second"))
	s.Dispatch(testEvent("tick", "third"))
	close(release)

	s.Close()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sink did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestEventSink_FinalEventSurvivesFullQueue(t *testing.T) {
	s := NewEventSink(nil, 1)
	defer s.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	s.On("tick", func(ev wire.Event) {
		var p struct {
			Payload string `json:"payload"`
		}
		if err := ev.Decode(&p); err != nil {
			return
		}
		if p.Payload == "first" {
			close(started)
			<-release
		}
	})
	lost := make(chan wire.Event, 1)
	s.On(wire.EventConnectionLost, func(ev wire.Event) { lost <- ev })

	// Stall the handler on the first event and fill the only ordinary slot.
	s.Dispatch(testEvent("tick", "first"))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}
	s.Dispatch(testEvent("tick", "second"))

	// An ordinary dispatch would be shed at this point; the terminal event
	// takes the reserved slot instead.
	s.DispatchFinal(wire.MustEvent(wire.EventConnectionLost, wire.ConnectionLost{
		Type:   wire.EventConnectionLost,
		Reason: "socket died",
	}))
	close(release)

	select {
	case ev := <-lost:
		assert.Equal(t, wire.EventConnectionLost, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("terminal event was shed")
	}
}

func TestEventSink_CloseDrainsQueuedEvents(t *testing.T) {
	s := NewEventSink(nil, 16)

	var mu sync.Mutex
	count := 0
	s.On("tick", func(wire.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for range 5 {
		s.Dispatch(testEvent("tick", "queued"))
	}
	s.Close()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sink did not drain")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)

	// Dispatch after close must not panic.
	s.Dispatch(testEvent("tick", "late"))
	s.Close()
}

func TestEventSink_ConcurrentOnOffDispatch(t *testing.T) {
	s := NewEventSink(nil, 0)
	defer s.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 20 {
				id := s.On("tick", func(wire.Event) {})
				s.Dispatch(testEvent("tick", "spin"))
				s.Off("tick", id)
			}
		})
	}
	wg.Wait()
	// No deadlock or panic means the locking holds up.
}
