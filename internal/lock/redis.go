package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client  *redislock.Client
	backoff time.Duration
}

// NewRedis wraps a redislock client (built on a go-redis client). backoff is the retry interval.
func NewRedis(rc redislock.RedisClient, backoff time.Duration) *Redis {
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Redis{client: redislock.New(rc), backoff: backoff}
}

// Obtain retries until the key is free, ctx is done, or ttl elapses when ctx has no deadline.
func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lk, err := r.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	switch {
	case err == nil:
		return redisLease{lk}, nil
	case errors.Is(err, redislock.ErrNotObtained),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return nil, ErrNotObtained
	default:
		return nil, err
	}
}

type redisLease struct{ l *redislock.Lock }

func (rl redisLease) Release(ctx context.Context) error {
	err := rl.l.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// ttl elapsed before release; nothing left to free
		return nil
	}
	return err
}
