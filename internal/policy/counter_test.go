package policy

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCounter(t *testing.T) *RedisDailyCounter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisDailyCounter(client)
}

func TestRedisDailyCounterAtomicIncrement(t *testing.T) {
	c := newTestRedisCounter(t)
	ctx := context.Background()

	before, allowed, err := c.CheckAndIncrement(ctx, "2026-07-30", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, before)
	assert.True(t, allowed)

	before, allowed, err = c.CheckAndIncrement(ctx, "2026-07-30", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, before)
	assert.True(t, allowed)

	_, allowed, err = c.CheckAndIncrement(ctx, "2026-07-30", 2)
	require.NoError(t, err)
	assert.False(t, allowed, "third increment must be denied once limit=2 is reached")

	count, err := c.CurrentCount(ctx, "2026-07-30")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRedisDailyCounterSeparateDays(t *testing.T) {
	c := newTestRedisCounter(t)
	ctx := context.Background()

	_, allowed, err := c.CheckAndIncrement(ctx, "2026-07-30", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, allowed, err = c.CheckAndIncrement(ctx, "2026-07-31", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "a new UTC day must get its own budget")
}
