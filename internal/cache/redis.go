// Package cache provides the key/value layer that holds planning jobs.
// Redis is used when configured; an in-memory map backs it up when Redis is
// absent or failing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"heftcoder/internal/metrics"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient is the subset of Redis the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Cache is a TTL key/value store backed by Redis with an in-memory fallback.
type Cache struct {
	name string

	memCache map[string]*cacheEntry
	memMu    sync.RWMutex

	// nil when Redis is not configured
	redisClient RedisClient

	defaultTTL time.Duration
	maxMemSize int

	hits    int64
	misses  int64
	statsMu sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Config holds cache configuration.
type Config struct {
	// Name labels the cache in metrics.
	Name string

	// RedisURL is redis://[:password@]host:port[/db]. Empty means memory only.
	RedisURL string

	DefaultTTL     time.Duration
	MaxMemoryItems int

	// CleanupInterval is how often expired memory entries are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:            "jobs",
		DefaultTTL:      time.Hour,
		MaxMemoryItems:  10000,
		CleanupInterval: time.Minute,
	}
}

// New creates a memory-only cache.
func New(config *Config) *Cache {
	return NewWithClient(nil, config)
}

// NewWithClient creates a cache on top of an existing Redis client.
func NewWithClient(client RedisClient, config *Config) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxMemoryItems <= 0 {
		config.MaxMemoryItems = 10000
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	c := &Cache{
		name:        config.Name,
		memCache:    make(map[string]*cacheEntry),
		redisClient: client,
		defaultTTL:  config.DefaultTTL,
		maxMemSize:  config.MaxMemoryItems,
		stop:        make(chan struct{}),
	}

	go c.cleanupLoop(config.CleanupInterval)

	return c
}

// Backend reports "redis" or "memory".
func (c *Cache) Backend() string {
	if c.redisClient != nil {
		return "redis"
	}
	return "memory"
}

// Get retrieves a value.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.redisClient != nil {
		val, err := c.redisClient.Get(ctx, key)
		if err == nil {
			c.recordHit()
			return []byte(val), nil
		}
	}

	c.memMu.RLock()
	entry, exists := c.memCache[key]
	c.memMu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, ErrCacheMiss
	}

	if time.Now().After(entry.ExpiresAt) {
		c.memMu.Lock()
		delete(c.memCache, key)
		c.memMu.Unlock()
		c.recordMiss()
		return nil, ErrCacheMiss
	}

	c.recordHit()
	return entry.Value, nil
}

// Set stores a value. A zero ttl uses the default.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	if c.redisClient != nil {
		if err := c.redisClient.Set(ctx, key, string(value), ttl); err == nil {
			return nil
		}
		// Fall through to memory on Redis error
	}

	c.memMu.Lock()
	defer c.memMu.Unlock()

	if _, ok := c.memCache[key]; !ok && len(c.memCache) >= c.maxMemSize {
		c.evictOldest()
	}

	c.memCache[key] = &cacheEntry{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.redisClient != nil {
		_ = c.redisClient.Del(ctx, key)
	}

	c.memMu.Lock()
	delete(c.memCache, key)
	c.memMu.Unlock()
	return nil
}

// Keys lists live keys matching a trailing-* pattern.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string

	if c.redisClient != nil {
		found, err := c.redisClient.Keys(ctx, pattern)
		if err == nil {
			for _, k := range found {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	now := time.Now()
	c.memMu.RLock()
	for k, entry := range c.memCache {
		if seen[k] || now.After(entry.ExpiresAt) || !matchPattern(pattern, k) {
			continue
		}
		keys = append(keys, k)
	}
	c.memMu.RUnlock()
	return keys, nil
}

// GetJSON retrieves and unmarshals a JSON value.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores a JSON value.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// Ping checks the Redis connection. A memory-only cache is always healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if c.redisClient == nil {
		return nil
	}
	return c.redisClient.Ping(ctx)
}

// Stats holds cache statistics.
type Stats struct {
	Backend    string  `json:"backend"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRatio   float64 `json:"hit_ratio"`
	MemorySize int     `json:"memory_size"`
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.statsMu.RLock()
	hits, misses := c.hits, c.misses
	c.statsMu.RUnlock()

	c.memMu.RLock()
	memSize := len(c.memCache)
	c.memMu.RUnlock()

	hitRatio := float64(0)
	if total := hits + misses; total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return Stats{
		Backend:    c.Backend(),
		Hits:       hits,
		Misses:     misses,
		HitRatio:   hitRatio,
		MemorySize: memSize,
	}
}

// Close stops the cleanup loop and closes Redis.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.redisClient != nil {
		return c.redisClient.Close()
	}
	return nil
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
	metrics.Get().RecordCacheOperation(c.name, true)
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
	metrics.Get().RecordCacheOperation(c.name, false)
}

// evictOldest drops 10% of entries, expired ones first, then those closest
// to expiry. Callers hold memMu.
func (c *Cache) evictOldest() {
	toEvict := c.maxMemSize / 10
	if toEvict < 1 {
		toEvict = 1
	}

	now := time.Now()
	evicted := 0
	for key, entry := range c.memCache {
		if evicted >= toEvict {
			return
		}
		if now.After(entry.ExpiresAt) {
			delete(c.memCache, key)
			evicted++
		}
	}

	for evicted < toEvict && len(c.memCache) > 0 {
		var oldestKey string
		var oldest time.Time
		for key, entry := range c.memCache {
			if oldestKey == "" || entry.ExpiresAt.Before(oldest) {
				oldestKey, oldest = key, entry.ExpiresAt
			}
		}
		delete(c.memCache, oldestKey)
		evicted++
	}
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	c.memMu.Lock()
	defer c.memMu.Unlock()

	now := time.Now()
	for key, entry := range c.memCache {
		if now.After(entry.ExpiresAt) {
			delete(c.memCache, key)
		}
	}
}

// matchPattern supports exact keys and a single trailing *.
func matchPattern(pattern, key string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}

// JobKey is the cache key of a planning job snapshot.
func JobKey(jobID string) string {
	return fmt.Sprintf("planning_job:%s", jobID)
}

// JobPattern matches every planning job key.
const JobPattern = "planning_job:*"
