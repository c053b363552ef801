package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisNamespace = "ultrasense:"

// Redis is a Store backed by a Redis server. Failures degrade to cache
// misses; the database stays the source of truth.
type Redis struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedis parses a redis:// URL and verifies the server is reachable.
func NewRedis(ctx context.Context, url string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, string, bool) {
	data, err := c.client.Get(ctx, redisNamespace+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis get failed", "key", key, "error", err)
		}
		return nil, "", false
	}
	return data, ComputeETag(data), true
}

func (c *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration) string {
	if err := c.client.Set(ctx, redisNamespace+key, data, ttl).Err(); err != nil {
		c.logger.Warn("Redis set failed", "key", key, "error", err)
	}
	return ComputeETag(data)
}

func (c *Redis) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, redisNamespace+key).Err(); err != nil {
		c.logger.Warn("Redis delete failed", "key", key, "error", err)
	}
}

func (c *Redis) Stats(ctx context.Context) map[string]any {
	stats := map[string]any{"backend": "redis", "enabled": true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		stats["error"] = err.Error()
		return stats
	}
	ps := c.client.PoolStats()
	stats["hits"] = ps.Hits
	stats["misses"] = ps.Misses
	stats["total_conns"] = ps.TotalConns
	return stats
}

// Close releases the client.
func (c *Redis) Close() error {
	return c.client.Close()
}
