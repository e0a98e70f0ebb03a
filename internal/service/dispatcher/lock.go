package dispatcher

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker provides the cross-process mutual exclusion for a tick. Several
// deployments run the admin API and the worker side by side; both may
// attempt a tick, only one proceeds.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisLocker struct {
	client *redis.Client
}

// NewRedisLocker returns a Locker backed by a volatile SET NX key. The
// TTL bounds how long a crashed holder can block other processes.
func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{client: client}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "storesync:lock:"+key, "1", ttl).Result()
}

func (l *redisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, "storesync:lock:"+key).Err()
}
