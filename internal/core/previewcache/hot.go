package previewcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewHotCache builds the hot tier selected by cfg.Backend.
// The redis client is only used (and required) for the redis backend.
func NewHotCache(cfg Config, redisClient *redis.Client) (HotCache, error) {
	switch cfg.Backend {
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("%w: redis client", ErrNilDependency)
		}
		return NewRedisHotCache(redisClient, cfg.RedisPrefix), nil
	case BackendMemory, "":
		return NewMemoryHotCache(NewMemoryCache[Artifact](cfg.MemoryCapacity)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.Backend)
	}
}

// MemoryHotCache adapts MemoryCache to the HotCache interface.
type MemoryHotCache struct {
	cache *MemoryCache[Artifact]
}

// NewMemoryHotCache wraps an existing in-process cache. The cache is injected
// so one instance can be shared by every component of the process.
func NewMemoryHotCache(cache *MemoryCache[Artifact]) *MemoryHotCache {
	return &MemoryHotCache{cache: cache}
}

// Get returns a copy of the cached artifact.
func (m *MemoryHotCache) Get(_ context.Context, key string) (*Artifact, bool, error) {
	artifact, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return &artifact, true, nil
}

// Set stores a copy of artifact so later mutation by the caller does not leak in.
func (m *MemoryHotCache) Set(_ context.Context, key string, artifact *Artifact, ttl time.Duration) error {
	if artifact == nil {
		return nil
	}
	m.cache.Set(key, *artifact, ttl)
	return nil
}

// Delete removes key.
func (m *MemoryHotCache) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Clear removes every entry.
func (m *MemoryHotCache) Clear(_ context.Context) error {
	m.cache.Clear()
	return nil
}

// RedisHotCache implements HotCache using Redis, for deployments where
// several replicas should share one hot tier.
type RedisHotCache struct {
	client *redis.Client
	prefix string
}

// NewRedisHotCache creates a Redis-backed hot tier.
func NewRedisHotCache(client *redis.Client, prefix string) *RedisHotCache {
	return &RedisHotCache{
		client: client,
		prefix: prefix,
	}
}

// key builds the final Redis key with prefix.
func (c *RedisHotCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get retrieves an artifact reference from Redis.
// On Redis error it returns (nil, false, err) so the caller can log and treat it as a miss.
func (c *RedisHotCache) Get(ctx context.Context, key string) (*Artifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached artifact: %w", err)
	}
	return &artifact, true, nil
}

// Set stores an artifact reference with TTL. A non-positive ttl deletes the key.
func (c *RedisHotCache) Set(ctx context.Context, key string, artifact *Artifact, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if artifact == nil {
		return nil
	}
	if ttl <= 0 {
		return c.Delete(ctx, key)
	}

	raw, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a key from Redis.
func (c *RedisHotCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Clear removes every key under the configured prefix.
func (c *RedisHotCache) Clear(ctx context.Context) error {
	pattern := c.key("*")
	iter := c.client.Scan(ctx, 0, pattern, 200).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is healthy.
func (c *RedisHotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
