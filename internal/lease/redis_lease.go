// Package lease provides a best-effort cross-process lock so that replicas
// of the sync worker rarely run the same pass at once.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease implements a TTL lease on a single Redis key.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLease connects to Redis and returns a lease on key.
func NewRedisLease(redisURL, key string, ttl time.Duration) (*RedisLease, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLeaseWithClient(client, key, ttl), nil
}

// NewRedisLeaseWithClient creates a lease from an existing Redis client
func NewRedisLeaseWithClient(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLease{
		client: client,
		key:    "lease:" + key,
		ttl:    ttl,
	}
}

// Acquire takes the lease for token. It reports false when another holder
// has it.
func (l *RedisLease) Acquire(ctx context.Context, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

// Release gives the lease up if token still holds it.
func (l *RedisLease) Release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (l *RedisLease) Close() error {
	return l.client.Close()
}

// Ping checks if Redis is reachable
func (l *RedisLease) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
