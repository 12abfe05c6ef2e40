package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock keeps a job to one instance at a time.
type DistributedLock interface {
	// Acquire reports whether the lock was taken. It expires after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLock is SET NX with a per-instance token, so one instance never
// releases a lock another instance took after expiry.
type RedisLock struct {
	client *redis.Client
	token  string
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, token: uuid.NewString()}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, l.token, ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, l.token).Err()
}

// LocalLock is used when a single instance runs without redis.
type LocalLock struct{}

func (LocalLock) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (LocalLock) Release(context.Context, string) error                        { return nil }
