// Package cache provides a Redis-backed read-optimization cache. It is a
// display cache only: misses and Redis outages are never errors, and no
// component treats cached values as a source of truth.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"stride-sync/internal/config"
)

const defaultTTL = 10 * time.Minute

// Cache wraps a Redis client with JSON helpers. A nil *Cache is valid and
// behaves as an always-miss cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis per config. Returns nil (cache disabled) when no
// address is configured; connection failures are logged, not fatal.
func New(ctx context.Context, cfg *config.RedisConfig) *Cache {
	if cfg == nil || cfg.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, display cache disabled")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// GetJSON loads the key into out. Returns false on miss, decode failure, or
// Redis being unreachable.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	if c == nil || c.client == nil {
		return false
	}
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return false
	}
	return true
}

// SetJSON stores v under key with the configured TTL, best effort.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if c == nil || c.client == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache set failed")
	}
}

// Close releases the underlying client.
func (c *Cache) Close() {
	if c != nil && c.client != nil {
		_ = c.client.Close()
	}
}
