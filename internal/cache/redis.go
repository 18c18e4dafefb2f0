package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"gravl/internal/log"
)

// RedisCache stores JSON encoded values in Redis so several API replicas
// share one resident copy of each record sequence.
type RedisCache[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *log.Logger

	hits, misses atomic.Uint64
}

// NewRedisCache wraps an existing client. Keys are namespaced with prefix.
func NewRedisCache[T any](client redis.UniversalClient, prefix string, ttl time.Duration, logger *log.Logger) *RedisCache[T] {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentCache})
	}
	return &RedisCache[T]{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Dial connects to addr and verifies the server answers PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisCache[T]) key(key string) string {
	return c.prefix + key
}

// Get treats any Redis or decoding failure as a miss.
func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "Redis get failed", log.FieldCacheKey, key, log.FieldError, err)
		}
		c.misses.Add(1)
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.WarnContext(ctx, "Discarding undecodable cache entry", log.FieldCacheKey, key, log.FieldError, err)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return out, true
}

// Stats reports lookups made by this process. Redis owns expiry, so
// Evictions stays zero and Size is -1.
func (c *RedisCache[T]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: -1}
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.WarnContext(ctx, "Cache value not encodable", log.FieldCacheKey, key, log.FieldError, err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Redis set failed", log.FieldCacheKey, key, log.FieldError, err)
	}
}

func (c *RedisCache[T]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.WarnContext(ctx, "Redis delete failed", log.FieldCacheKey, key, log.FieldError, err)
	}
}
