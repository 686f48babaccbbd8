// Package repository stores alerts for the active/unacknowledged gauges
// and the acknowledgment interface. The default backend is in-memory; a
// PostgreSQL archive can be enabled for durable retention.
package repository

import (
	"context"
	"time"

	"github.com/telhawk-systems/secmon/internal/models"
)

// Counts summarizes retained alerts.
type Counts struct {
	Active         int
	Unacknowledged int
}

// Repository is the alert store contract.
type Repository interface {
	// Save stores a newly created alert.
	Save(ctx context.Context, alert *models.SecurityAlert) error

	// Get returns the alert or a NotFoundError.
	Get(ctx context.Context, id string) (*models.SecurityAlert, error)

	// List returns alerts, optionally filtered by acknowledged state,
	// newest first.
	List(ctx context.Context, acknowledged *bool) ([]*models.SecurityAlert, error)

	// Acknowledge flips the acknowledged flag. It reports whether the call
	// changed state (false means the alert was already acknowledged) and
	// returns a NotFoundError for unknown ids.
	Acknowledge(ctx context.Context, id string, at time.Time) (bool, error)

	// Counts returns the active and unacknowledged totals.
	Counts(ctx context.Context) (Counts, error)

	// Close releases backend resources.
	Close()
}
