// Package window provides the shared capped ring buffer of recent security
// events that detection rules evaluate against.
package window

import (
	"sync"
	"time"

	"github.com/telhawk-systems/secmon/internal/models"
)

// Buffer is a fixed-capacity ring of events in arrival order. When full,
// appends overwrite the oldest entry. Entries older than the retention
// period are evicted lazily on read; there is no per-event timer.
type Buffer struct {
	mu        sync.Mutex
	events    []models.SecurityEvent
	head      int // index of oldest entry
	size      int
	retention time.Duration
	now       func() time.Time
}

// New creates a Buffer holding at most capacity events for at most the
// retention duration. now may be nil to use the wall clock.
func New(capacity int, retention time.Duration, now func() time.Time) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Buffer{
		events:    make([]models.SecurityEvent, capacity),
		retention: retention,
		now:       now,
	}
}

// Append adds an event, overwriting the oldest entry when full.
func (b *Buffer) Append(event models.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % len(b.events)
	b.events[tail] = event
	if b.size < len(b.events) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.events)
	}
}

// Snapshot evicts expired entries and returns a copy of the remaining
// events in arrival order. The copy is safe to read without locking.
func (b *Buffer) Snapshot() []models.SecurityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictLocked(b.now())

	out := make([]models.SecurityEvent, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.events[(b.head+i)%len(b.events)])
	}
	return out
}

// Len reports the number of retained events after eviction.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictLocked(b.now())
	return b.size
}

// evictLocked drops entries older than the retention period. Events arrive
// roughly in time order, so eviction walks from the oldest entry forward.
// Callers must hold the mutex.
func (b *Buffer) evictLocked(now time.Time) {
	if b.retention <= 0 {
		return
	}
	cutoff := now.Add(-b.retention)
	for b.size > 0 {
		oldest := b.events[b.head]
		if !oldest.Timestamp.Before(cutoff) {
			break
		}
		b.events[b.head] = models.SecurityEvent{}
		b.head = (b.head + 1) % len(b.events)
		b.size--
	}
}
