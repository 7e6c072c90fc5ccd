package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/voxreel/voxreel/internal/models"
)

// CacheKey builds the deterministic lookup key for a resolved asset:
// sha256 over the normalized query and the provider class, so the same
// query against the same provider family always lands on the same entry.
func CacheKey(query, providerClass string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized + "|" + providerClass))
	return hex.EncodeToString(sum[:])
}

// Cache stores asset cache entries keyed by CacheKey. A lookup that finds
// an expired entry reports a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error
}

// ---------------------------------------------------------------------------
// Redis-backed cache
// ---------------------------------------------------------------------------

const cacheKeyPrefix = "cache:assets:"

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if entry.Expired(time.Now()) {
		return nil, nil
	}

	return &entry, nil
}

func (c *RedisCache) Put(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	cp := *entry
	cp.ExpiresAt = time.Now().Add(ttl)

	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := c.client.Set(ctx, cacheKeyPrefix+entry.CacheKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// In-memory cache (tests, single-node dev runs)
// ---------------------------------------------------------------------------

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*models.CacheEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.Expired(time.Now()) {
		return nil, nil
	}

	cp := *entry
	return &cp, nil
}

func (c *MemoryCache) Put(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *entry
	cp.ExpiresAt = time.Now().Add(ttl)
	c.entries[entry.CacheKey] = &cp
	return nil
}
