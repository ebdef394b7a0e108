package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client), mr
}

func TestAcquireLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	ok, err := c.AcquireLock(ctx, "lock:order:1", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "lock:order:1", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseLockOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	_, err := c.AcquireLock(ctx, "lock:order:2", "owner", time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.ReleaseLock(ctx, "lock:order:2", "intruder"))
	assert.True(t, mr.Exists("lock:order:2"))

	require.NoError(t, c.ReleaseLock(ctx, "lock:order:2", "owner"))
	assert.False(t, mr.Exists("lock:order:2"))
}

func TestLockExpires(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	_, err := c.AcquireLock(ctx, "lock:order:3", "a", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	ok, err := c.AcquireLock(ctx, "lock:order:3", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
