// Package cache provides result caching for expensive integral evaluations.
//
// Two layers are available:
//   - ResultCache: an in-memory LRU keyed by value fingerprints, for
//     interpolation-grid points and repeated evaluations inside one process
//   - Store: a badger-backed persistent store, so expensive numeric
//     integrals survive process restarts
//
// Keys are blake2b fingerprints of the node's structure and the parameter
// values it was evaluated at (see Fingerprint), so a cache entry is valid
// exactly as long as the inputs it encodes.
//
// Usage:
//
//	rc := cache.NewResultCache(10000, 0)
//	key := cache.Fingerprint("f_Int[x]", map[string]float64{"a": 2})
//	if v, ok := rc.Get(key); ok {
//		return v
//	}
//	v := expensiveIntegral()
//	rc.Put(key, v)
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Key identifies one cached result. See Fingerprint.
type Key [16]byte

// ResultCache is a thread-safe LRU cache of scalar results with optional
// TTL expiration.
//
// The cache uses:
//   - Hash map for O(1) lookups
//   - Doubly-linked list for LRU ordering
//   - TTL for automatic expiration
type ResultCache struct {
	mu sync.RWMutex

	maxSize int
	ttl     time.Duration
	enabled bool

	list  *list.List
	items map[Key]*list.Element

	hits   uint64
	misses uint64
}

type resultEntry struct {
	key       Key
	value     float64
	expiresAt time.Time
}

// NewResultCache creates a cache holding up to maxSize results. A ttl of 0
// disables expiration; a maxSize of 0 or less uses the default of 10000.
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &ResultCache{
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
		list:    list.New(),
		items:   make(map[Key]*list.Element, maxSize),
	}
}

// Get retrieves a cached result if present and not expired. A hit moves the
// entry to the front of the LRU order.
func (c *ResultCache) Get(key Key) (float64, bool) {
	if !c.enabled {
		atomic.AddUint64(&c.misses, 1)
		return 0, false
	}

	c.mu.RLock()
	elem, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return 0, false
	}

	entry := elem.Value.(*resultEntry)

	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		c.removeElement(elem)
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return 0, false
	}

	c.mu.Lock()
	c.list.MoveToFront(elem)
	c.mu.Unlock()

	atomic.AddUint64(&c.hits, 1)
	return entry.value, true
}

// Put stores a result, evicting the least recently used entry when full.
func (c *ResultCache) Put(key Key, value float64) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*resultEntry)
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &resultEntry{key: key, value: value}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.items[key] = c.list.PushFront(entry)
}

// Remove drops an entry if present.
func (c *ResultCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.items = make(map[Key]*list.Element, c.maxSize)
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list.Len()
}

// SetEnabled enables or disables the cache. Disabling drops all entries.
func (c *ResultCache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.list.Init()
		c.items = make(map[Key]*list.Element, c.maxSize)
	}
}

// Stats returns hit/miss statistics.
func (c *ResultCache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.list.Len()
	c.mu.RUnlock()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return Stats{Size: size, MaxSize: c.maxSize, Hits: hits, Misses: misses, HitRate: hitRate}
}

// Stats holds cache performance statistics.
type Stats struct {
	Size    int     // Current number of entries
	MaxSize int     // Maximum capacity
	Hits    uint64  // Number of cache hits
	Misses  uint64  // Number of cache misses
	HitRate float64 // Hit rate percentage (0-100)
}

// evictOldest removes the least recently used entry. Caller must hold the
// lock.
func (c *ResultCache) evictOldest() {
	if elem := c.list.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element. Caller must hold the lock.
func (c *ResultCache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*resultEntry).key)
}
