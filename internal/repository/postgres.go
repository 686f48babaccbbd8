package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL-backed alert store.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Save(ctx context.Context, alert *models.SecurityAlert) error {
	query := `
		INSERT INTO alerts (id, title, description, severity, event_type, source_id,
			recommended_action, created_at, acknowledged, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		alert.ID, alert.Title, alert.Description, alert.Severity, alert.EventType,
		alert.SourceID, alert.RecommendedAction, alert.CreatedAt,
		alert.Acknowledged, alert.AcknowledgedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.SecurityAlert, error) {
	query := `
		SELECT id, title, description, severity, event_type, source_id,
			recommended_action, created_at, acknowledged, acknowledged_at
		FROM alerts
		WHERE id = $1
	`

	alert := &models.SecurityAlert{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&alert.ID, &alert.Title, &alert.Description, &alert.Severity, &alert.EventType,
		&alert.SourceID, &alert.RecommendedAction, &alert.CreatedAt,
		&alert.Acknowledged, &alert.AcknowledgedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &errs.NotFoundError{Kind: "alert", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

func (r *PostgresRepository) List(ctx context.Context, acknowledged *bool) ([]*models.SecurityAlert, error) {
	query := `
		SELECT id, title, description, severity, event_type, source_id,
			recommended_action, created_at, acknowledged, acknowledged_at
		FROM alerts
		WHERE ($1::boolean IS NULL OR acknowledged = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, acknowledged)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.SecurityAlert
	for rows.Next() {
		alert := &models.SecurityAlert{}
		if err := rows.Scan(
			&alert.ID, &alert.Title, &alert.Description, &alert.Severity, &alert.EventType,
			&alert.SourceID, &alert.RecommendedAction, &alert.CreatedAt,
			&alert.Acknowledged, &alert.AcknowledgedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *PostgresRepository) Acknowledge(ctx context.Context, id string, at time.Time) (bool, error) {
	// Only flip unacknowledged alerts so double-acks are idempotent.
	tag, err := r.pool.Exec(ctx, `
		UPDATE alerts
		SET acknowledged = TRUE, acknowledged_at = $2
		WHERE id = $1 AND acknowledged = FALSE
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check alert: %w", err)
	}
	if !exists {
		return false, &errs.NotFoundError{Kind: "alert", ID: id}
	}
	return false, nil
}

func (r *PostgresRepository) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT acknowledged)
		FROM alerts
	`).Scan(&counts.Active, &counts.Unacknowledged)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count alerts: %w", err)
	}
	return counts, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}
