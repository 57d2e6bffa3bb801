package core

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PatternCache remembers pattern keys that already produced a rule so
// later detection cycles can skip them. The analyzer treats cache errors
// as "not seen" (fail open toward generating rules).
type PatternCache interface {
	// Seen reports whether the pattern key produced a rule recently.
	Seen(ctx context.Context, key string) (bool, error)

	// Remember records that the pattern key produced a rule.
	Remember(ctx context.Context, key string) error

	// Close releases any underlying resources.
	Close() error
}

// MemoryPatternCache is a bounded in-process TTL cache.
type MemoryPatternCache struct {
	lru *expirable.LRU[string, struct{}]
}

// NewMemoryPatternCache creates a pattern cache holding at most size keys,
// each expiring after ttl.
func NewMemoryPatternCache(size int, ttl time.Duration) *MemoryPatternCache {
	if size <= 0 {
		size = 4096
	}
	return &MemoryPatternCache{
		lru: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Seen reports whether the key is present and unexpired.
func (c *MemoryPatternCache) Seen(_ context.Context, key string) (bool, error) {
	_, ok := c.lru.Get(key)
	return ok, nil
}

// Remember inserts the key with the cache TTL.
func (c *MemoryPatternCache) Remember(_ context.Context, key string) error {
	c.lru.Add(key, struct{}{})
	return nil
}

// Close is a no-op for the memory cache.
func (c *MemoryPatternCache) Close() error { return nil }

// RedisPatternCache shares ruled-pattern state across pipeline instances
// watching the same engine.
type RedisPatternCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.SugaredLogger
}

// NewRedisPatternCache creates a Redis-backed pattern cache and verifies
// the connection.
func NewRedisPatternCache(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *zap.SugaredLogger) (*RedisPatternCache, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisPatternCache{
		client:    client,
		keyPrefix: "minerwatch:patterns:",
		ttl:       ttl,
		logger:    logger,
	}, nil
}

// Seen checks key existence in Redis.
func (c *RedisPatternCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.keyPrefix+key).Result()
	if err != nil {
		c.logger.Warnf("Pattern cache lookup failed for %s: %v", key, err)
		return false, fmt.Errorf("pattern cache lookup failed: %w", err)
	}
	return n > 0, nil
}

// Remember stores the key with the configured TTL.
func (c *RedisPatternCache) Remember(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, 1, c.ttl).Err(); err != nil {
		c.logger.Warnf("Pattern cache store failed for %s: %v", key, err)
		return fmt.Errorf("pattern cache store failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisPatternCache) Close() error {
	return c.client.Close()
}
