package window

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/secmon/internal/models"
)

func eventAt(id string, ts time.Time) models.SecurityEvent {
	return models.SecurityEvent{
		ID:        id,
		EventType: models.EventLoginFailed,
		Timestamp: ts,
		SourceID:  "10.0.0.1",
	}
}

func TestAppendAndSnapshot_ArrivalOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New(10, time.Hour, func() time.Time { return base })

	for i := 0; i < 3; i++ {
		b.Append(eventAt(fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	snap := b.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, "e0", snap[0].ID)
	assert.Equal(t, "e2", snap[2].ID)
}

func TestAppend_OverwritesOldestWhenFull(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New(3, time.Hour, func() time.Time { return base })

	for i := 0; i < 5; i++ {
		b.Append(eventAt(fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	snap := b.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, "e2", snap[0].ID)
	assert.Equal(t, "e4", snap[2].ID)
}

func TestSnapshot_EvictsExpiredEntries(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	b := New(10, 5*time.Minute, func() time.Time { return now })

	b.Append(eventAt("old", base.Add(-10*time.Minute)))
	b.Append(eventAt("stale", base.Add(-6*time.Minute)))
	b.Append(eventAt("fresh", base.Add(-1*time.Minute)))

	snap := b.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "fresh", snap[0].ID)

	// Everything expires once time moves past retention.
	now = base.Add(10 * time.Minute)
	assert.Equal(t, 0, b.Len())
}

func TestSnapshot_CopyIsIndependent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New(4, time.Hour, func() time.Time { return base })

	b.Append(eventAt("e0", base))
	snap := b.Snapshot()
	snap[0].ID = "mutated"

	assert.Equal(t, "e0", b.Snapshot()[0].ID)
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New(128, time.Hour, func() time.Time { return base })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 16; j++ {
				b.Append(eventAt(fmt.Sprintf("g%d-e%d", n, j), base))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 128, b.Len())
}
