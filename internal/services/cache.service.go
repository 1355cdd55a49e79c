package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"pulse/internal/models"

	"github.com/redis/go-redis/v9"
)

// MetricsCache memoizes computed SystemMetrics for a short TTL.
// Last write wins; a miss is reported as (nil, false, nil).
type MetricsCache interface {
	Get(ctx context.Context, key string) (*models.SystemMetrics, bool, error)
	Set(ctx context.Context, key string, m *models.SystemMetrics) error
}

// CacheKey builds the (tenant, window) cache key
func CacheKey(tenant, window string) string {
	return fmt.Sprintf("pulse:metrics:%s:%s", tenant, window)
}

type cacheEntry struct {
	metrics  *models.SystemMetrics
	storedAt time.Time
}

// MemoryCache is an in-process TTL cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an in-process cache with the given TTL
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// isValid checks if an entry is still within its TTL
func (mc *MemoryCache) isValid(e cacheEntry) bool {
	return mc.now().Sub(e.storedAt) < mc.ttl
}

// Get returns a cached value if it has not expired
func (mc *MemoryCache) Get(_ context.Context, key string) (*models.SystemMetrics, bool, error) {
	mc.mu.RLock()
	e, ok := mc.entries[key]
	mc.mu.RUnlock()
	if !ok || !mc.isValid(e) {
		return nil, false, nil
	}
	return e.metrics, true, nil
}

// Set stores a value, sweeping expired entries on the way
func (mc *MemoryCache) Set(_ context.Context, key string, m *models.SystemMetrics) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for k, e := range mc.entries {
		if !mc.isValid(e) {
			delete(mc.entries, k)
		}
	}
	mc.entries[key] = cacheEntry{metrics: m, storedAt: mc.now()}
	return nil
}

// Clear drops every entry
func (mc *MemoryCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries = make(map[string]cacheEntry)
}

// RedisCache stores computed metrics as JSON with a Redis expiry
type RedisCache struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRedisCache wraps a redis client. A nil client turns every call into a
// miss.
func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rc: rc, ttl: ttl}
}

// Get retrieves and decodes a cached value
func (c *RedisCache) Get(ctx context.Context, key string) (*models.SystemMetrics, bool, error) {
	if c.rc == nil {
		return nil, false, nil
	}
	raw, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache: %w", err)
	}
	var m models.SystemMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &m, true, nil
}

// Set encodes and stores a value with the cache TTL
func (c *RedisCache) Set(ctx context.Context, key string, m *models.SystemMetrics) error {
	if c.rc == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := c.rc.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}
