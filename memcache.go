package amee

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcacheKeyPrefix namespaces entries in a shared memcached pool.
const memcacheKeyPrefix = "amee:"

// MemcacheCache is a Cache backend over memcached, for deployments where the
// cache should be shared across processes. Entries are JSON encoded. Every
// backend failure degrades to a miss or a dropped write: caching is an
// optimization, never a hard dependency.
type MemcacheCache struct {
	client *memcache.Client
	logger Logger
}

// NewMemcacheCache creates a backend talking to the given memcached servers.
func NewMemcacheCache(servers ...string) *MemcacheCache {
	return &MemcacheCache{
		client: memcache.New(servers...),
	}
}

// NewMemcacheCacheFromClient wraps an existing memcache client, for callers
// that want to tune timeouts or connection pooling themselves.
func NewMemcacheCacheFromClient(client *memcache.Client) *MemcacheCache {
	return &MemcacheCache{client: client}
}

// WithLogger attaches a logger for backend failure visibility and returns
// the cache for chaining.
func (c *MemcacheCache) WithLogger(logger Logger) *MemcacheCache {
	c.logger = logger
	return c
}

// Get fetches and decodes the entry for key. Backend errors and corrupt
// entries are reported as a miss.
func (c *MemcacheCache) Get(key string) (*CacheEntry, bool) {
	item, err := c.client.Get(memcacheKey(key))
	if err != nil {
		if err != memcache.ErrCacheMiss && c.logger != nil {
			c.logger.Warn("memcache get failed", "error", err)
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		if c.logger != nil {
			c.logger.Warn("memcache entry corrupt", "error", err)
		}
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		return nil, false
	}

	return &entry, true
}

// Set stores entry under key for ttl. Encoding or backend errors drop the
// write silently.
func (c *MemcacheCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	entry.ExpiresAt = time.Now().Add(ttl)

	value, err := json.Marshal(entry)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("memcache entry encode failed", "error", err)
		}
		return
	}

	item := &memcache.Item{
		Key:        memcacheKey(key),
		Value:      value,
		Expiration: expirationSeconds(ttl),
	}
	if err := c.client.Set(item); err != nil && c.logger != nil {
		c.logger.Warn("memcache set failed", "error", err)
	}
}

// Delete removes the entry for key.
func (c *MemcacheCache) Delete(key string) {
	if err := c.client.Delete(memcacheKey(key)); err != nil && err != memcache.ErrCacheMiss && c.logger != nil {
		c.logger.Warn("memcache delete failed", "error", err)
	}
}

// Clear flushes the backend. Affects everything in the pool, not just this
// client's namespace; intended for tests.
func (c *MemcacheCache) Clear() {
	if err := c.client.FlushAll(); err != nil && c.logger != nil {
		c.logger.Warn("memcache flush failed", "error", err)
	}
}

// memcacheKey maps a cache key onto memcached's key constraints (max 250
// bytes, no spaces) by hashing under a namespace prefix.
func memcacheKey(key string) string {
	sum := sha1.Sum([]byte(key))
	return memcacheKeyPrefix + hex.EncodeToString(sum[:])
}

// expirationSeconds converts a TTL to memcached's int32 seconds, rounding up
// so short TTLs do not become "never expire".
func expirationSeconds(ttl time.Duration) int32 {
	seconds := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	const maxRelative = 60 * 60 * 24 * 30 // beyond this memcached treats it as a unix timestamp
	if seconds > maxRelative {
		seconds = maxRelative
	}
	return int32(seconds)
}
