// ABOUTME: Pending request table mapping correlation ids to in-flight calls
// ABOUTME: Removal under the lock is the linearization point; first resolution wins

package rpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// pendingCall is the completion handle for one in-flight call. Whoever takes
// it out of the table owns its resolution; done closes exactly once.
type pendingCall struct {
	id        string
	createdAt time.Time

	result json.RawMessage
	err    error
	done   chan struct{}
}

func (p *pendingCall) succeed(result json.RawMessage) {
	p.result = result
	close(p.done)
}

func (p *pendingCall) fail(err error) {
	p.err = err
	close(p.done)
}

// pendingTable is the id to completion handle map shared by callers, the
// reader loop, and teardown.
type pendingTable struct {
	mu       sync.Mutex
	calls    map[string]*pendingCall
	closeErr error
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

// register creates the completion handle for id. The entry must exist before
// the request frame hits the wire so a fast response cannot miss it.
func (t *pendingTable) register(id string) (*pendingCall, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closeErr != nil {
		return nil, t.closeErr
	}
	if _, ok := t.calls[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	call := &pendingCall{
		id:        id,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	t.calls[id] = call
	return call, nil
}

// take removes and returns the entry for id, or nil when no such call is
// live. At most one take per id ever succeeds.
func (t *pendingTable) take(id string) *pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()

	call, ok := t.calls[id]
	if !ok {
		return nil
	}
	delete(t.calls, id)
	return call
}

// expire removes id if still live and fails it with err. A no-op returning
// false when a response already won the race.
func (t *pendingTable) expire(id string, err error) bool {
	call := t.take(id)
	if call == nil {
		return false
	}
	call.fail(err)
	return true
}

// drainAll empties the table, failing every remaining call with err, and
// makes later registrations fail with the same error. Returns the number of
// calls drained.
func (t *pendingTable) drainAll(err error) int {
	t.mu.Lock()
	drained := make([]*pendingCall, 0, len(t.calls))
	for id, call := range t.calls {
		delete(t.calls, id)
		drained = append(drained, call)
	}
	t.closeErr = err
	t.mu.Unlock()

	for _, call := range drained {
		call.fail(err)
	}
	return len(drained)
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
