package amee

import (
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long read responses are reused. CO2 coefficients
// change infrequently, so a few hours of staleness is acceptable.
const DefaultCacheTTL = 6 * time.Hour

// InMemoryCache is the default Cache backend: a sharded in-process map.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the entry for key, expiring it lazily.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}

	return entry, true
}

// Set stores entry under key for ttl.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry.ExpiresAt = time.Now().Add(ttl)
	shard.store[key] = entry
}

// Delete removes the entry for key.
func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len returns the number of entries across all shards, including any not yet
// lazily expired.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// DefaultCacheKeyFunc derives the cache key from the request signature:
// method, path and sorted query parameters. url.Values.Encode sorts by key,
// so the same descriptor always maps to the same key, across processes too.
func DefaultCacheKeyFunc(req *Request) string {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var buf []byte
	buf = append(buf, method...)
	buf = append(buf, ':')
	buf = append(buf, req.Path...)
	if len(req.Query) > 0 {
		buf = append(buf, '?')
		buf = append(buf, req.Query.Encode()...)
	}

	return string(buf)
}

// DefaultCacheCondition caches read requests only. Mutating requests bypass
// the cache entirely.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == "" || req.Method == http.MethodGet
}
