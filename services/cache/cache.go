package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/llm-router/models"
)

// entry is a single cached response with its own expiry. Entries are
// written whole under the lock; readers never observe a torn entry.
type entry struct {
	key       string
	response  models.RouteResponse
	expiresAt time.Time
	element   *list.Element // For LRU tracking
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// ResponseCache is an in-memory LRU cache with per-entry TTL for fully
// materialized route responses. Streaming responses are never stored.
// Thread-safe implementation using sync.Mutex.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	lruList    *list.List    // Doubly linked list for LRU tracking
	maxEntries int           // Maximum number of entries; 0 means unbounded
	defaultTTL time.Duration // TTL applied by Put
	hits       uint64        // Cache hit counter
	misses     uint64        // Cache miss counter
	now        func() time.Time
}

// New creates a ResponseCache. maxEntries of zero disables the LRU bound.
func New(maxEntries int, defaultTTL time.Duration) *ResponseCache {
	return &ResponseCache{
		entries:    make(map[string]*entry),
		lruList:    list.New(),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get retrieves a cached response. The second return is false on a miss
// or when the entry has expired; expiry is checked lazily here.
func (c *ResponseCache) Get(key string) (models.RouteResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists || e.expired(c.now()) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return models.RouteResponse{}, false
	}

	// Move to front (most recently used)
	c.lruList.MoveToFront(e.element)
	c.hits++

	return e.response, true
}

// Put stores a response under key with the default TTL.
func (c *ResponseCache) Put(key string, response models.RouteResponse) {
	c.PutTTL(key, response, c.defaultTTL)
}

// PutTTL stores a response under key with an explicit TTL.
func (c *ResponseCache) PutTTL(key string, response models.RouteResponse, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.entries[key]; exists {
		e.response = response
		e.expiresAt = c.now().Add(ttl)
		c.lruList.MoveToFront(e.element)
		return
	}

	if c.maxEntries > 0 && c.lruList.Len() >= c.maxEntries {
		c.evictLRU()
	}

	e := &entry{
		key:       key,
		response:  response,
		expiresAt: c.now().Add(ttl),
	}
	e.element = c.lruList.PushFront(key)
	c.entries[key] = e
}

// Invalidate removes a specific entry.
func (c *ResponseCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(key)
}

// Clear removes all entries.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.lruList.Init()
}

// Stats represents cache statistics.
type Stats struct {
	Size    int
	Max     int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns current cache statistics.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:   c.lruList.Len(),
		Max:    c.maxEntries,
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// CleanupExpired removes all expired entries and returns the count.
func (c *ResponseCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := make([]string, 0)
	for key, e := range c.entries {
		if e.expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeEntry(key)
	}
	return len(expired)
}

// StartCleanupWorker sweeps expired entries on an interval until stopCh
// closes. Expiry is also enforced lazily on Get, so the sweep is only a
// memory bound for keys that are never read again.
func (c *ResponseCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// removeEntry removes an entry (must be called with lock held).
func (c *ResponseCache) removeEntry(key string) {
	if e, exists := c.entries[key]; exists {
		c.lruList.Remove(e.element)
		delete(c.entries, key)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held).
func (c *ResponseCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, key)
}
