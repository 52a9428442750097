package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("job lock not acquired")
)

const releaseTimeout = 2 * time.Second

// Locker lets one replica at a time run a named background job, such as the pending
// payment sweep. Replicas that lose the race get ErrLockNotAcquired and skip the tick.
type Locker interface {
	WithJobLock(ctx context.Context, job string, fn func(ctx context.Context) error) error
}

type redisJobLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJobLocker returns a Locker backed by one Redis key per job. ttl bounds both
// the key lifetime and the time fn is allowed to run, so a crashed holder frees the job
// after at most one ttl.
func NewRedisJobLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisJobLocker{
		client: client,
		ttl:    ttl,
	}
}

func jobLockKey(job string) string {
	return fmt.Sprintf("lock:job:%s", job)
}

// jobLease is a held job lock. The token makes sure a holder whose key already
// expired cannot delete the key of the replica that took over.
type jobLease struct {
	key   string
	token string
}

func (l *redisJobLocker) acquire(ctx context.Context, job string) (*jobLease, error) {
	lease := &jobLease{key: jobLockKey(job), token: uuid.NewString()}

	ok, err := l.client.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire job lock %s: %w", job, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return lease, nil
}

// WithJobLock runs fn while holding the job's lock. A failed release is reported
// alongside fn's own error; the key still expires on its own after ttl.
func (l *redisJobLocker) WithJobLock(ctx context.Context, job string, fn func(ctx context.Context) error) (err error) {
	lease, err := l.acquire(ctx, job)
	if err != nil {
		return err
	}

	defer func() {
		// released even when ctx was cancelled mid-run
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := l.release(releaseCtx, lease); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(runCtx)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisJobLocker) release(ctx context.Context, lease *jobLease) error {
	if err := releaseScript.Run(ctx, l.client, []string{lease.key}, lease.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release job lock %s: %w", lease.key, err)
	}
	return nil
}
