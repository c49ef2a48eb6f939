package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/infra/lock"
)

func client(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()).Err())
	return c
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	c := client(t)
	locker := lock.NewRedisLocker(c, 2*time.Second)
	locker.Prefix = "test:" + uuid.NewString() + ":"
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "listing-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "listing-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	otherUnlock, err := locker.Lock(ctx, "listing-2")
	require.NoError(t, err)
	require.NoError(t, otherUnlock(ctx))

	require.NoError(t, unlock(ctx))
	again, err := locker.Lock(ctx, "listing-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLockerReportsExpiredLock(t *testing.T) {
	c := client(t)
	locker := lock.NewRedisLocker(c, 50*time.Millisecond)
	locker.Prefix = "test:" + uuid.NewString() + ":"
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "listing-1")
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	next, err := locker.Lock(ctx, "listing-1")
	require.NoError(t, err)
	assert.ErrorIs(t, unlock(ctx), lock.ErrLockLost)
	require.NoError(t, next(ctx))
}
