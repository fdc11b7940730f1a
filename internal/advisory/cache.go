package advisory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/curalink-advisory/internal/domain"
)

// Cache defaults.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 15 * time.Minute
)

// CacheKey returns advisory:<kind>:<sha256 of the canonical content>. Requests
// that differ only in case, whitespace or set order share a key.
func CacheKey(req domain.AdvisoryRequest) string {
	sum := sha256.Sum256([]byte(req.CanonicalContent()))
	return fmt.Sprintf("advisory:%s:%s", req.Kind(), hex.EncodeToString(sum[:]))
}

type cacheEntry struct {
	result    domain.AdvisoryResult
	expiresAt time.Time
}

// memoryCache is a bounded LRU whose entries expire on read.
type memoryCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

func newMemoryCache(size int, ttl time.Duration, now func() time.Time) (*memoryCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &memoryCache{entries: entries, ttl: ttl, now: now}, nil
}

func (c *memoryCache) get(key string) (domain.AdvisoryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.result, true
}

func (c *memoryCache) set(key string, result domain.AdvisoryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, cacheEntry{result: result.Clone(), expiresAt: c.now().Add(c.ttl)})
}

func (c *memoryCache) len() int {
	return c.entries.Len()
}

// redisCache is the optional shared tier. Its failures are logged and read as
// misses.
type redisCache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *logrus.Logger
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *redisCache) get(ctx context.Context, key string) (domain.AdvisoryResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("cache_key", key).Warn("Redis cache read failed")
		return nil, false
	}

	result, err := domain.UnmarshalResult(data)
	if err != nil {
		c.logger.WithError(err).WithField("cache_key", key).Warn("Dropping corrupt cache entry")
		c.client.Del(ctx, key)
		return nil, false
	}
	return result, true
}

func (c *redisCache) set(ctx context.Context, key string, result domain.AdvisoryResult) {
	data, err := domain.MarshalResult(result)
	if err != nil {
		c.logger.WithError(err).WithField("cache_key", key).Warn("Failed to encode cache entry")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("cache_key", key).Warn("Redis cache write failed")
	}
}

// tieredCache consults memory first, then Redis, and promotes Redis hits.
type tieredCache struct {
	memory *memoryCache
	redis  *redisCache
}

func (c *tieredCache) get(ctx context.Context, key string) (domain.AdvisoryResult, string, bool) {
	if r, ok := c.memory.get(key); ok {
		return r, "memory", true
	}
	if c.redis == nil {
		return nil, "", false
	}
	if r, ok := c.redis.get(ctx, key); ok {
		c.memory.set(key, r)
		return r, "redis", true
	}
	return nil, "", false
}

func (c *tieredCache) set(ctx context.Context, key string, result domain.AdvisoryResult) {
	c.memory.set(key, result)
	if c.redis != nil {
		c.redis.set(ctx, key, result)
	}
}
