package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/redis"
)

// Cache memoizes enrichment lookup results keyed by IP or email domain. It
// exists purely to bound external-call volume; a cache failure degrades to a
// direct lookup and never fails the stage.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the default process-local tier: TTL expiry plus a hard
// entry bound with oldest-expiry eviction, swept periodically.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates a bounded TTL cache.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]memoryEntry),
	}
}

// Get returns the cached value when present and not yet expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with the configured TTL, evicting expired entries and,
// if the cache is still full, the entry closest to expiry.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// evictLocked removes all expired entries, and when nothing has expired, the
// entry with the earliest expiry.
func (c *MemoryCache) evictLocked() {
	now := c.now()
	removed := false
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed = true
		}
	}
	if removed {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// StartSweep launches a periodic sweep of expired entries until ctx is
// cancelled.
func (c *MemoryCache) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				now := c.now()
				for key, entry := range c.entries {
					if now.After(entry.expiresAt) {
						delete(c.entries, key)
					}
				}
				c.mu.Unlock()
			}
		}
	}()
}

// Len returns the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

const redisKeyPrefix = "enrich:"

// RedisCache is the optional shared tier, so multiple enricher replicas and
// restarts share one lookup budget. Errors are swallowed: Redis being down
// just means more external calls.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache wraps a Redis client with the enrichment TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger.WithComponent("enrich-cache")}
}

// Get returns the cached value when present. A plain miss is silent; any
// other failure is logged before being treated as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key)
	if err != nil {
		if !redis.IsNilError(err) {
			c.logger.Warn("redis cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set stores a value with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	_ = c.client.Set(ctx, redisKeyPrefix+key, value, c.ttl)
}
