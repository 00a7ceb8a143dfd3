package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// GoRedisAdapter implements RedisClient with go-redis.
type GoRedisAdapter struct {
	client *redis.Client
}

// NewGoRedisClient connects to redisURL and pings it.
// URL format: redis://[:password@]host:port[/db], or rediss:// for TLS.
func NewGoRedisClient(redisURL string) (*GoRedisAdapter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewGoRedisClientWithOptions(opts)
}

// NewGoRedisClientWithOptions creates a client with custom options.
func NewGoRedisClientWithOptions(opts *redis.Options) (*GoRedisAdapter, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &GoRedisAdapter{client: client}, nil
}

// Get retrieves a value. A missing key is ErrCacheMiss.
func (a *GoRedisAdapter) Get(ctx context.Context, key string) (string, error) {
	val, err := a.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (a *GoRedisAdapter) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return a.client.Set(ctx, key, value, ttl).Err()
}

func (a *GoRedisAdapter) Del(ctx context.Context, keys ...string) error {
	return a.client.Del(ctx, keys...).Err()
}

// Keys scans for keys matching pattern without blocking the server.
func (a *GoRedisAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := a.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (a *GoRedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *GoRedisAdapter) Close() error {
	return a.client.Close()
}

// NewFromURL creates a Redis-backed cache. It returns the connection error
// so callers can decide to fall back to New.
func NewFromURL(redisURL string, config *Config) (*Cache, error) {
	adapter, err := NewGoRedisClient(redisURL)
	if err != nil {
		return nil, err
	}
	return NewWithClient(adapter, config), nil
}
