package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker on top of Redis SET NX with per-holder
// tokens. Use this when multiple server instances share one archive
// database and capacity updates must be serialized across processes.
type RedisLocker struct {
	client *redis.Client
	token  string
}

// releaseScript deletes the lock only if this locker still holds it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// extendScript refreshes the TTL only if this locker still holds the lock.
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// NewRedisLocker creates a new Redis-backed locker.
func NewRedisLocker(client *redis.Client) (*RedisLocker, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}

	return &RedisLocker{
		client: client,
		token:  hex.EncodeToString(buf),
	}, nil
}

// Acquire attempts to acquire a lock.
// Returns true if the lock was acquired, false if it's held by another process.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.token, ttl).Result()
}

// AcquireWithRetry attempts to acquire a lock with retries.
func (l *RedisLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for i := 0; i <= maxRetries; i++ {
		acquired, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return false, nil
}

// Release releases a lock. Only the holder's token can release it.
func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	released, err := releaseScript.Run(ctx, l.client, []string{key}, l.token).Int()
	if err != nil {
		return false, err
	}
	return released == 1, nil
}

// Extend extends the TTL of a held lock.
func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	extended, err := extendScript.Run(ctx, l.client, []string{key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return extended == 1, nil
}

// IsHeld checks if the lock is currently held by any process.
func (l *RedisLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ensure RedisLocker implements Locker
var _ Locker = (*RedisLocker)(nil)
