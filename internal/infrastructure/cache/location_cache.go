package cache

import (
	"context"
	"encoding/json"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// locationTTL is how long a resolved location set stays fresh.
const locationTTL = 24 * time.Hour

// RedisLocationCache implements LocationCache on redis with a one-day TTL.
// An empty location set is cached too, so a merchant with no usable
// locations is not re-polled on every request.
type RedisLocationCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisLocationCache creates a new redis-backed location cache.
func NewRedisLocationCache(client *redis.Client, logger zerolog.Logger) ports.LocationCache {
	return &RedisLocationCache{
		client: client,
		logger: logger,
	}
}

func key(mode domain.Mode) string {
	return "square:locations:" + string(mode)
}

// Get returns the cached location set, or (nil, false) on a miss.
func (c *RedisLocationCache) Get(ctx context.Context, mode domain.Mode) ([]domain.Location, bool) {
	raw, err := c.client.Get(ctx, key(mode)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("mode", string(mode)).Msg("Failed to read location cache")
		return nil, false
	}

	var locations []domain.Location
	if err := json.Unmarshal(raw, &locations); err != nil {
		c.logger.Warn().Err(err).Str("mode", string(mode)).Msg("Failed to decode cached locations")
		return nil, false
	}
	return locations, true
}

// Set caches the location set for the TTL.
func (c *RedisLocationCache) Set(ctx context.Context, mode domain.Mode, locations []domain.Location) error {
	if locations == nil {
		locations = []domain.Location{}
	}
	raw, err := json.Marshal(locations)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(mode), raw, locationTTL).Err()
}

// Purge drops the cached set for a mode, used on disconnect.
func (c *RedisLocationCache) Purge(ctx context.Context, mode domain.Mode) error {
	return c.client.Del(ctx, key(mode)).Err()
}
