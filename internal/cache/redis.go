package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a TTLCache backed by a Redis instance, for deployments where
// multiple processes ingest provider callbacks and must share one dedupe
// window.
type Redis struct {
	rc *redis.Client
	// keyPrefix namespaces entries so one Redis can serve several practices.
	keyPrefix string
}

// NewRedis wraps an existing Redis client. keyPrefix may be empty.
func NewRedis(rc *redis.Client, keyPrefix string) *Redis {
	return &Redis{rc: rc, keyPrefix: keyPrefix}
}

func (r *Redis) key(k string) string {
	if r.keyPrefix == "" {
		return k
	}
	return r.keyPrefix + ":" + k
}

// Get implements TTLCache.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rc.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements TTLCache.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rc.Set(ctx, r.key(key), value, ttl).Err()
}

// Invalidate implements TTLCache.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	return r.rc.Del(ctx, r.key(key)).Err()
}
