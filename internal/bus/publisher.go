// Package bus publishes alerts to NATS for downstream consumers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/secmon/internal/models"
)

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name identifies this client on the server.
	Name string

	// SubjectPrefix is prepended to the per-severity subject
	// (e.g., "secmon.alerts" publishes to "secmon.alerts.critical").
	SubjectPrefix string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// Timeout is the connection timeout.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "secmon",
		SubjectPrefix: "secmon.alerts",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Publisher fans alerts out to per-severity NATS subjects.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// NewPublisher connects to NATS and returns a ready publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

// PublishAlert publishes the alert as JSON to <prefix>.<severity>.
func (p *Publisher) PublishAlert(ctx context.Context, alert *models.SecurityAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bytes, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, alert.Severity)
	if err := p.conn.Publish(subject, bytes); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	_ = p.conn.Flush()
	p.conn.Close()
}
