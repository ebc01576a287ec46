// Package cache provides a short-TTL read-through cache used to avoid a
// disk (or network) read on every hot-path lookup — the runtime kill switch
// reads its source of truth far more often than it changes.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLCache is the interface both backends satisfy.
type TTLCache interface {
	// Get returns the cached value and true if present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// New picks the best available backend: Redis when a client is supplied
// (shared visibility across processes/readers), otherwise an in-process
// map. Mirrors the teacher's dual-backend distlock.NewLock constructor.
func New(redisClient *redis.Client) TTLCache {
	if redisClient != nil {
		return &RedisCache{client: redisClient}
	}
	return NewLocalCache()
}

// RedisCache is a TTLCache backed by Redis GET/SET with EX.
type RedisCache struct {
	client *redis.Client
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// LocalCache is an in-process TTLCache for single-host deployments with no
// Redis configured — the common case for this system (spec: "at most one
// dispatcher process runs at a time").
type LocalCache struct {
	mu      sync.Mutex
	entries map[string]localEntry
}

type localEntry struct {
	value   string
	expires time.Time
}

func NewLocalCache() *LocalCache {
	return &LocalCache{entries: make(map[string]localEntry)}
}

func (c *LocalCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}
