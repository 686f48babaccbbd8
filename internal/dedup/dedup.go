// Package dedup suppresses repeat alerts sharing a fingerprint within a
// suppression window.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/telhawk-systems/secmon/internal/metrics"
	"github.com/telhawk-systems/secmon/internal/models"
)

// Deduplicator admits novel alerts and suppresses duplicates. Admit returns
// true when the alert should proceed to routing. Implementations must never
// fail the caller: backend errors fail open.
type Deduplicator interface {
	Admit(ctx context.Context, alert *models.SecurityAlert) (bool, error)
	Close() error
}

// Memory is the in-process deduplicator: fingerprint to last-seen time
// under one mutex. Entries expire lazily on access; a periodic sweep bounds
// memory when fingerprints stop recurring.
type Memory struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewMemory creates a Memory deduplicator. A positive sweepInterval starts a
// background sweeper; pass 0 to rely on lazy expiry only (tests). now may be
// nil to use the wall clock.
func NewMemory(window, sweepInterval time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	m := &Memory{
		seen:     make(map[string]time.Time),
		window:   window,
		now:      now,
		stopChan: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.sweepLoop(sweepInterval)
	}
	return m
}

// Admit reports whether the alert's fingerprint is novel within the window.
// Suppressed duplicates increment the deduped counter.
func (m *Memory) Admit(_ context.Context, alert *models.SecurityAlert) (bool, error) {
	fingerprint := alert.Fingerprint()
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.seen[fingerprint]; ok && now.Sub(last) < m.window {
		metrics.AlertsDeduped.Inc()
		return false, nil
	}
	m.seen[fingerprint] = now
	return true, nil
}

// Close stops the background sweeper.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stopChan) })
	return nil
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for fingerprint, last := range m.seen {
		if now.Sub(last) >= m.window {
			delete(m.seen, fingerprint)
		}
	}
}

// size reports the number of tracked fingerprints, for tests.
func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
