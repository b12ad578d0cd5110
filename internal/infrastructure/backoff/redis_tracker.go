package backoff

import (
	"context"
	"time"

	"donation-square-connect/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// retryNotBefore is how long a failing upstream operation class is skipped.
const retryNotBefore = time.Hour

// RedisFailureTracker implements FailureTracker with redis keys that expire
// on their own, so a marker clears itself once the deadline passes.
type RedisFailureTracker struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisFailureTracker creates a new redis-backed failure tracker.
func NewRedisFailureTracker(client *redis.Client, logger zerolog.Logger) ports.FailureTracker {
	return &RedisFailureTracker{
		client: client,
		logger: logger,
	}
}

func key(class string) string {
	return "square:backoff:" + class
}

// RecordFailure stores a not-before marker for the operation class.
func (t *RedisFailureTracker) RecordFailure(ctx context.Context, class string) error {
	deadline := time.Now().Add(retryNotBefore)
	if err := t.client.Set(ctx, key(class), deadline.Format(time.RFC3339), retryNotBefore).Err(); err != nil {
		t.logger.Warn().Err(err).Str("class", class).Msg("Failed to record backoff marker")
		return err
	}
	t.logger.Info().
		Str("class", class).
		Time("retryAfter", deadline).
		Msg("Recorded upstream failure, backing off")
	return nil
}

// ShouldSkip reports whether the class is still inside its backoff window.
// A redis error fails open: better one extra upstream attempt than a
// permanently wedged connection.
func (t *RedisFailureTracker) ShouldSkip(ctx context.Context, class string) bool {
	n, err := t.client.Exists(ctx, key(class)).Result()
	if err != nil {
		t.logger.Warn().Err(err).Str("class", class).Msg("Failed to check backoff marker")
		return false
	}
	return n > 0
}

// Clear removes the marker on explicit success.
func (t *RedisFailureTracker) Clear(ctx context.Context, class string) error {
	return t.client.Del(ctx, key(class)).Err()
}
