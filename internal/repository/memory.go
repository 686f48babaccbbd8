package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/models"
)

// MemoryRepository is the default in-process alert store.
type MemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*models.SecurityAlert
}

// NewMemoryRepository creates an empty in-memory alert store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		alerts: make(map[string]*models.SecurityAlert),
	}
}

func (r *MemoryRepository) Save(_ context.Context, alert *models.SecurityAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *alert
	r.alerts[alert.ID] = &stored
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.SecurityAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, ok := r.alerts[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "alert", ID: id}
	}
	out := *alert
	return &out, nil
}

func (r *MemoryRepository) List(_ context.Context, acknowledged *bool) ([]*models.SecurityAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.SecurityAlert, 0, len(r.alerts))
	for _, alert := range r.alerts {
		if acknowledged != nil && alert.Acknowledged != *acknowledged {
			continue
		}
		stored := *alert
		out = append(out, &stored)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) Acknowledge(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[id]
	if !ok {
		return false, &errs.NotFoundError{Kind: "alert", ID: id}
	}
	if alert.Acknowledged {
		return false, nil
	}
	alert.Acknowledged = true
	alert.AcknowledgedAt = &at
	return true, nil
}

func (r *MemoryRepository) Counts(_ context.Context) (Counts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := Counts{Active: len(r.alerts)}
	for _, alert := range r.alerts {
		if !alert.Acknowledged {
			counts.Unacknowledged++
		}
	}
	return counts, nil
}

func (r *MemoryRepository) Close() {}
