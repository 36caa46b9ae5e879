// ABOUTME: TTL log of recently expired correlation ids
// ABOUTME: Lets the reader loop tell a late response apart from a stray one

package rpc

import (
	"container/list"
	"sync"
	"time"
)

const (
	expiryLogTTL     = 5 * time.Minute
	expiryLogMaxSize = 1024
)

type expiryEntry struct {
	id        string
	expiredAt time.Time
	element   *list.Element
}

// expiryLog remembers, for a bounded time, the ids of calls that timed out
// or were cancelled. When a response arrives for one of them the reader can
// log its age instead of treating it as noise.
type expiryLog struct {
	mu      sync.Mutex
	entries map[string]*expiryEntry
	order   *list.List
	ttl     time.Duration

	done   chan struct{}
	closed bool
}

func newExpiryLog(ttl time.Duration) *expiryLog {
	if ttl <= 0 {
		ttl = expiryLogTTL
	}
	l := &expiryLog{
		entries: make(map[string]*expiryEntry),
		order:   list.New(),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// record notes that id expired just now. When the log is full the oldest
// entry is evicted.
func (l *expiryLog) record(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[id]; ok {
		entry.expiredAt = time.Now()
		l.order.MoveToBack(entry.element)
		return
	}

	if len(l.entries) >= expiryLogMaxSize {
		l.evictOldestLocked()
	}

	entry := &expiryEntry{id: id, expiredAt: time.Now()}
	entry.element = l.order.PushBack(entry)
	l.entries[id] = entry
}

// lookup reports how long ago id expired, if it is still in the log.
func (l *expiryLog) lookup(id string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	if !ok {
		return 0, false
	}
	age := time.Since(entry.expiredAt)
	if age > l.ttl {
		l.removeLocked(entry)
		return 0, false
	}
	return age, true
}

func (l *expiryLog) evictOldestLocked() {
	front := l.order.Front()
	if front == nil {
		return
	}
	l.removeLocked(front.Value.(*expiryEntry))
}

func (l *expiryLog) removeLocked(entry *expiryEntry) {
	l.order.Remove(entry.element)
	delete(l.entries, entry.id)
}

func (l *expiryLog) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeExpired()
		case <-l.done:
			return
		}
	}
}

func (l *expiryLog) removeExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for {
		front := l.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*expiryEntry)
		if now.Sub(entry.expiredAt) <= l.ttl {
			return
		}
		l.removeLocked(entry)
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (l *expiryLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}
