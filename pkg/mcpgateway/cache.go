package mcpgateway

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensvm/solana-mcp-gateway/internal/config"
	"github.com/opensvm/solana-mcp-gateway/internal/telemetry"
)

// Cache is the content-addressed response cache sitting in front of the
// upstream pool. Entries are keyed by a 64-bit digest of the method name and
// the canonical JSON of its params, and evicted both on expiry (lazily, on
// read) and on overflow (eagerly, FIFO).
//
// There is no global cache singleton: every ServerState constructs its own,
// sized from config.CacheConfig.
type Cache struct {
	cfg config.CacheConfig
	sink *telemetry.Sink

	mu      sync.Mutex
	entries map[uint64]*cacheEntry
	order   []uint64 // insertion order, for FIFO eviction
	size    atomic.Int64
}

type cacheEntry struct {
	value     json.RawMessage
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired() bool {
	return time.Since(e.createdAt) > e.ttl
}

// NewCache constructs a Cache from cfg, recording cache-size gauge updates
// against sink if non-nil.
func NewCache(cfg config.CacheConfig, sink *telemetry.Sink) *Cache {
	return &Cache{
		cfg:     cfg,
		sink:    sink,
		entries: make(map[uint64]*cacheEntry),
	}
}

// cacheKey hashes method and the canonical JSON representation of params.
// Canonical here means "whatever encoding/json produces for this value" —
// callers that want stable hits across semantically-identical-but-reordered
// params must canonicalize before handing params to Get/Set, matching the
// original's documented caveat that callers should keep parameter ordering
// consistent for best hit rates.
func cacheKey(method string, params json.RawMessage) uint64 {
	h := fnv.New64a()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write(params)
	return h.Sum64()
}

// ttlFor resolves the TTL for method, falling back to the configured default.
func (c *Cache) ttlFor(method string) time.Duration {
	if secs, ok := c.cfg.MethodTTLOverrides[method]; ok {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(c.cfg.DefaultTTLSeconds) * time.Second
}

// Get returns the cached value for (method, params), or (nil, false) on a
// miss — including a miss caused by expiry, which also lazily removes the
// stale entry.
func (c *Cache) Get(method string, params json.RawMessage) (json.RawMessage, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}

	key := cacheKey(method, params)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && entry.expired() {
		c.removeLocked(key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		if c.sink != nil {
			c.sink.CacheMiss(method)
		}
		return nil, false
	}
	if c.sink != nil {
		c.sink.CacheHit(method)
	}
	return entry.value, true
}

// Set stores value for (method, params), evicting the oldest entry (FIFO)
// if the cache is at capacity and this is a new key. Updates to an existing
// key never trigger eviction.
//
// The capacity check, the eviction and the insert run under one hold of
// c.mu, so concurrent writers evict one entry per new key.
func (c *Cache) Set(method string, params json.RawMessage, value json.RawMessage) {
	if !c.cfg.Enabled {
		return
	}

	key := cacheKey(method, params)
	ttl := c.ttlFor(method)

	c.mu.Lock()
	_, isUpdate := c.entries[key]
	if !isUpdate && c.cfg.MaxEntries > 0 && len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	if !isUpdate {
		c.order = append(c.order, key)
		c.size.Add(1)
	}
	c.entries[key] = &cacheEntry{
		value:     value,
		createdAt: time.Now(),
		ttl:       ttl,
	}
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.SetCacheSize(c.size.Load())
	}
}

// evictOldestLocked removes the earliest-inserted surviving entry. Callers
// must hold c.mu.
func (c *Cache) evictOldestLocked() {
	for len(c.order) > 0 {
		k := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			c.size.Add(-1)
			return
		}
	}
}

// removeLocked deletes key. Callers must hold c.mu.
func (c *Cache) removeLocked(key uint64) {
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.size.Add(-1)
	}
}

// Size returns the current entry count.
func (c *Cache) Size() int64 {
	return c.size.Load()
}

// IsEnabled reports whether caching is active for this instance.
func (c *Cache) IsEnabled() bool {
	return c.cfg.Enabled
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uint64]*cacheEntry)
	c.order = nil
	c.mu.Unlock()
	c.size.Store(0)
}

// EvictExpired sweeps all entries and removes any past their TTL. Nothing
// calls this automatically; callers that want periodic cleanup should run
// it from a ticker.
func (c *Cache) EvictExpired() {
	c.mu.Lock()
	for k, e := range c.entries {
		if e.expired() {
			c.removeLocked(k)
		}
	}
	c.mu.Unlock()
}

// WithCache checks the cache for (method, params) and returns the hit if
// present; otherwise it invokes fetch, caches a successful result, and
// returns it. fetch is never called on a hit.
func WithCache(c *Cache, method string, params json.RawMessage, fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if cached, ok := c.Get(method, params); ok {
		return cached, nil
	}

	value, err := fetch()
	if err != nil {
		return nil, err
	}

	c.Set(method, params, value)
	return value, nil
}
