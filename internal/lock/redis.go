package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker serializes jobs across replicas using redislock. No retry
// strategy is configured: a busy lock is a synchronous rejection, not a wait.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rds *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: redislock.New(rds), ttl: ttl}
}

var _ Locker = (*RedisLocker)(nil)

func (l *RedisLocker) Acquire(ctx context.Context, connectionID int64) (Lease, error) {
	key := fmt.Sprintf("connlock:%d", connectionID)
	lk, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", key, err)
	}
	return &redisLease{lock: lk, ttl: l.ttl}, nil
}

type redisLease struct {
	lock *redislock.Lock
	ttl  time.Duration
}

// Refresh extends the lease by a full TTL. Jobs slower than the TTL heartbeat
// through this; without it the lock would expire mid-job and a second job
// could start for the same connection.
func (r *redisLease) Refresh(ctx context.Context) error {
	err := r.lock.Refresh(ctx, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLost
	}
	return err
}

func (r *redisLease) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// TTL expired or already released; nothing left to free.
		return nil
	}
	return err
}
