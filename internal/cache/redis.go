package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store on a shared redis client. Keys are namespaced by prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a redis-backed cache. The client stays owned by the caller.
func NewRedis(client *redis.Client, prefix string) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis cache needs a client")
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

// Save implements Store.
func (r *Redis) Save(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context, key string, dest any) error {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis load %s: %w", key, err)
	}
	return decode(raw, dest)
}

// Destroy implements Store.
func (r *Redis) Destroy(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis destroy %s: %w", key, err)
	}
	return n > 0, nil
}

var _ Store = (*Redis)(nil)
