package worker

import (
	"context"
	"testing"
	"time"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLockOnlyOwnerReleases(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	a, b := NewRedisLock(client), NewRedisLock(client)

	ok, err := a.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx, "job"))
	assert.True(t, mr.Exists("lock:job"))

	require.NoError(t, a.Release(ctx, "job"))
	assert.False(t, mr.Exists("lock:job"))

	ok, err = b.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExpires(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	a, b := NewRedisLock(client), NewRedisLock(client)

	ok, err := a.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = b.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A late release from the expired holder leaves the new lock alone.
	require.NoError(t, a.Release(ctx, "job"))
	assert.True(t, mr.Exists("lock:job"))
}

func TestSweepUnderRedisLock(t *testing.T) {
	mr, client := newRedis(t)
	fx := ledgertest.New(t)
	seedExpired(t, fx)

	other := NewRedisLock(client)
	ok, err := other.Acquire(context.Background(), sweepLockKey, sweepLockTTL)
	require.NoError(t, err)
	require.True(t, ok)

	s := NewSweeper(fx.Service, NewRedisLock(client), fx.Logger)
	assert.Zero(t, s.Sweep(context.Background()))

	require.NoError(t, other.Release(context.Background(), sweepLockKey))
	assert.Equal(t, 1, s.Sweep(context.Background()))
	assert.False(t, mr.Exists("lock:"+sweepLockKey))
}
