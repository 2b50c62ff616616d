package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/web3-storefront/internal/config"
)

// connectionTestKey is written and removed by CheckConnection
const connectionTestKey = "_test_connection"

// RedisCache wraps the Redis client used as the record store
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the KV store. The URL carries host, TLS and
// database; the access token is used as the password when the URL has none.
func NewRedisCache(cfg *config.KVConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid KV_URL: %w", err)
	}

	if opts.Password == "" {
		opts.Password = cfg.Token
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to KV store: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set stores a value without expiry
func (r *RedisCache) Set(ctx context.Context, key string, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// SetNX stores a value only when the key is absent and reports whether it did
func (r *RedisCache) SetNX(ctx context.Context, key string, value string) (bool, error) {
	return r.client.SetNX(ctx, key, value, 0).Result()
}

// Get retrieves a value by key. A missing key returns redis.Nil.
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Del deletes one or more keys
func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Scan walks every key matching pattern with SCAN and calls fn for each.
// Returning false from fn stops the walk.
func (r *RedisCache) Scan(ctx context.Context, pattern string, fn func(key string) bool) error {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if !fn(iter.Val()) {
			return nil
		}
	}
	return iter.Err()
}

// CheckConnection performs a set/get/delete round trip on a scratch key
func (r *RedisCache) CheckConnection(ctx context.Context) error {
	const want = `{"test":"value"}`

	if err := r.Set(ctx, connectionTestKey, want); err != nil {
		return fmt.Errorf("connection test write: %w", err)
	}
	got, err := r.Get(ctx, connectionTestKey)
	if err != nil {
		return fmt.Errorf("connection test read: %w", err)
	}
	if err := r.Del(ctx, connectionTestKey); err != nil {
		return fmt.Errorf("connection test cleanup: %w", err)
	}
	if got != want {
		return fmt.Errorf("connection test mismatch: expected %s, received %s", want, got)
	}
	return nil
}
