package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// ResultCache stores tool results keyed by CacheKey.
type ResultCache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
}

// CacheKey hashes the tool name with normalized arguments, so that
// {"a":1,"b":2} and {"b":2,"a":1} share an entry.
func CacheKey(toolName string, arguments json.RawMessage) string {
	var normalized any
	if err := json.Unmarshal(arguments, &normalized); err == nil {
		if sorted, err := json.Marshal(normalized); err == nil {
			arguments = sorted
		}
	}
	hash := sha256.Sum256([]byte(toolName + ":" + string(arguments)))
	return hex.EncodeToString(hash[:])
}

// CacheStats tracks cache performance.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

type memoryEntry struct {
	value     json.RawMessage
	createdAt time.Time
	expiresAt time.Time
}

// MemoryResultCache is an in-process ResultCache with TTL and a size bound.
type MemoryResultCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	stats      CacheStats
	now        func() time.Time
}

// NewMemoryResultCache creates a cache holding at most maxEntries (default 1000).
func NewMemoryResultCache(maxEntries int) *MemoryResultCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryResultCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryResultCache) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Size = len(c.entries)
		return nil, false, nil
	}
	c.stats.Hits++
	return entry.value, true, nil
}

func (c *MemoryResultCache) Set(_ context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	now := c.now()
	c.entries[key] = memoryEntry{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	c.stats.Size = len(c.entries)
	return nil
}

// Stats returns cache statistics.
func (c *MemoryResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *MemoryResultCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldest) {
			oldestKey, oldest = key, entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}
