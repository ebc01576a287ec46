package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DailyCounter atomically checks-and-increments a UTC-day send counter.
// Mirrors the teacher's RateLimiter, collapsed to the single daily bucket
// this gate needs — the per-second/per-minute buckets have no corresponding
// concept in the spec's gate.
type DailyCounter interface {
	// CheckAndIncrement atomically returns the count BEFORE incrementing,
	// then increments by 1 if allowed (count < limit). If the count is
	// already at or above limit, it does not increment.
	CheckAndIncrement(ctx context.Context, day string, limit int) (countBefore int, allowed bool, err error)
	// CurrentCount returns today's count without mutating it.
	CurrentCount(ctx context.Context, day string) (int, error)
}

const dailyLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {current, 0}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {current, 1}
`

// RedisDailyCounter is a DailyCounter backed by a Redis Lua script, atomic
// against concurrent readers on the same key.
type RedisDailyCounter struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisDailyCounter(client *redis.Client) *RedisDailyCounter {
	return &RedisDailyCounter{client: client, script: redis.NewScript(dailyLuaScript)}
}

func (c *RedisDailyCounter) CheckAndIncrement(ctx context.Context, day string, limit int) (int, bool, error) {
	key := "send_gate:daily:" + day
	result, err := c.script.Run(ctx, c.client, []string{key}, limit, 36*3600).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("policy: daily counter script: %w", err)
	}
	countBefore := int(result[0].(int64))
	allowed := result[1].(int64) == 1
	return countBefore, allowed, nil
}

func (c *RedisDailyCounter) CurrentCount(ctx context.Context, day string) (int, error) {
	key := "send_gate:daily:" + day
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int
	_, err = fmt.Sscanf(v, "%d", &n)
	return n, err
}

// LocalDailyCounter is an in-process DailyCounter for single-host
// deployments with no Redis configured.
type LocalDailyCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewLocalDailyCounter() *LocalDailyCounter {
	return &LocalDailyCounter{counts: make(map[string]int)}
}

func (c *LocalDailyCounter) CheckAndIncrement(_ context.Context, day string, limit int) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.counts[day]
	if current >= limit {
		return current, false, nil
	}
	c.counts[day] = current + 1
	return current, true, nil
}

func (c *LocalDailyCounter) CurrentCount(_ context.Context, day string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[day], nil
}

// NewDailyCounter picks Redis when client is non-nil, otherwise the local
// in-process fallback — same dual-backend shape as internal/pkg/cache.New.
func NewDailyCounter(client *redis.Client) DailyCounter {
	if client != nil {
		return NewRedisDailyCounter(client)
	}
	return NewLocalDailyCounter()
}

// Today returns the current UTC calendar day as the counter key format.
func Today(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
