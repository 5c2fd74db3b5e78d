package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLockMutualExclusion(t *testing.T) {
	_, client := testRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:c1", time.Minute)
	b := NewRedisLock(client, "campaign:c1", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be acquirable")

	require.NoError(t, a.Release(ctx))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "released lock is free again")
}

func TestRedisLockReleaseIsTokenGuarded(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:c1", time.Minute)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate a's TTL expiring and another run taking the lock over.
	mr.FastForward(2 * time.Minute)
	b := NewRedisLock(client, "campaign:c1", time.Minute)
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// a's stale release must not free b's lock.
	require.NoError(t, a.Release(ctx))
	c := NewRedisLock(client, "campaign:c1", time.Minute)
	ok, err = c.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lock still held by its current owner")
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	_, client := testRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:c1", time.Minute)
	b := NewRedisLock(client, "campaign:c2", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
