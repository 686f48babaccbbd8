package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/secmon/internal/logging"
	"github.com/telhawk-systems/secmon/internal/metrics"
	"github.com/telhawk-systems/secmon/internal/models"
)

const redisKeyPrefix = "secmon:dedupe:"

// Redis deduplicates alerts across replicas using SET NX with a TTL equal
// to the suppression window. Redis errors fail open: the alert is admitted
// and the error logged, since dedup must never block the ingestion path.
type Redis struct {
	client *redis.Client
	window time.Duration
	logger *slog.Logger
}

// NewRedis connects to the Redis URL and verifies the connection.
func NewRedis(redisURL string, window time.Duration, logger *slog.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisWithClient(client, window, logger), nil
}

// NewRedisWithClient wraps an existing client, for tests.
func NewRedisWithClient(client *redis.Client, window time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		window: window,
		logger: logger.With(logging.Component("dedup")),
	}
}

// Admit sets the fingerprint key if absent. The TTL implements the
// suppression window without any sweeping.
func (r *Redis) Admit(ctx context.Context, alert *models.SecurityAlert) (bool, error) {
	key := redisKeyPrefix + alert.Fingerprint()

	novel, err := r.client.SetNX(ctx, key, 1, r.window).Result()
	if err != nil {
		r.logger.Warn("dedup check failed, admitting alert",
			logging.AlertID(alert.ID), logging.Error(err))
		return true, nil
	}
	if !novel {
		metrics.AlertsDeduped.Inc()
	}
	return novel, nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
