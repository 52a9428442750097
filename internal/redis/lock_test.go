package redisclient

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLockKey(t *testing.T) {
	assert.Equal(t, "lock:job:expire-pending-payments", jobLockKey("expire-pending-payments"))
}

func TestWithJobLockExcludesSecondRunner(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	locker := NewRedisJobLocker(rdb, 5*time.Second)
	job := "test-" + time.Now().Format(time.RFC3339Nano)

	err = locker.WithJobLock(ctx, job, func(ctx context.Context) error {
		inner := locker.WithJobLock(ctx, job, func(context.Context) error {
			t.Fatal("second runner must not acquire the lock")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// released after the first run
	boom := errors.New("boom")
	err = locker.WithJobLock(ctx, job, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	exists, err := rdb.Exists(ctx, jobLockKey(job)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestReleaseKeepsKeyOwnedByAnotherHolder(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	locker := &redisJobLocker{client: rdb, ttl: 5 * time.Second}
	job := "test-takeover-" + time.Now().Format(time.RFC3339Nano)

	lease, err := locker.acquire(ctx, job)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Del(ctx, lease.key).Err() })

	// the key expired and another replica took the job over
	require.NoError(t, rdb.Set(ctx, lease.key, "other-holder", 5*time.Second).Err())

	require.NoError(t, locker.release(ctx, lease))
	val, err := rdb.Get(ctx, lease.key).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-holder", val)
}
