package research

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"aikun/internal/types"
)

// cacheEntry holds one cached search response.
type cacheEntry struct {
	results   []types.SearchResult
	createdAt time.Time
	expiresAt time.Time
}

// Cache memoizes search responses per (query, locale, recency, site filter)
// so repeated questions inside the TTL don't re-hit the backend.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

// NewCache creates a cache with the given size limit and TTL.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// CacheKey derives a stable key from the full search request.
func CacheKey(query string, opts types.SearchOptions) string {
	h := sha256.Sum256([]byte(query + "|" + opts.Locale + "|" + opts.Recency + "|" + opts.SiteFilter))
	return hex.EncodeToString(h[:])
}

// Get retrieves cached results, reporting a miss for expired entries.
func (c *Cache) Get(key string) ([]types.SearchResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	// Copy so callers can't mutate the cached slice.
	out := make([]types.SearchResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

// Set stores results under the key, evicting the oldest entry at capacity.
func (c *Cache) Set(key string, results []types.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	stored := make([]types.SearchResult, len(results))
	copy(stored, results)

	now := time.Now()
	c.entries[key] = &cacheEntry{
		results:   stored,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

// Size returns the number of entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
