package previewcache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// memoryEntry is owned by MemoryCache and never handed out.
type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryCache is a bounded, recency-ordered cache with per-entry expiry.
// A single mutex guards the whole structure so lookup, eviction and insertion
// are atomic with respect to each other.
type MemoryCache[T any] struct {
	mu       sync.Mutex
	entries  *simplelru.LRU[string, memoryEntry[T]]
	capacity int
	now      func() time.Time
}

// NewMemoryCache creates a cache holding at most capacity entries.
// A capacity of 0 (or less) yields a cache on which Set is a no-op.
func NewMemoryCache[T any](capacity int) *MemoryCache[T] {
	c := &MemoryCache[T]{
		capacity: capacity,
		now:      time.Now,
	}
	if capacity > 0 {
		// NewLRU only fails for non-positive sizes
		entries, err := simplelru.NewLRU[string, memoryEntry[T]](capacity, nil)
		if err == nil {
			c.entries = entries
		}
	}
	return c
}

// Get returns the value for key. Absent and expired entries are misses;
// expired entries are removed on access. A hit moves the entry to the
// most-recently-used position.
func (c *MemoryCache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return zero, false
	}

	entry, ok := c.entries.Peek(key)
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return zero, false
	}

	// Get promotes the entry to most recently used
	c.entries.Get(key)
	return entry.value, true
}

// Set stores value under key with an absolute expiry of now+ttl.
// An existing entry is replaced and its recency refreshed; when the cache is
// full the least recently used entry is evicted. A non-positive ttl removes
// the key instead of storing an already-expired entry.
func (c *MemoryCache[T]) Set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return
	}
	if ttl <= 0 {
		c.entries.Remove(key)
		return
	}

	c.entries.Remove(key)
	c.entries.Add(key, memoryEntry[T]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
}

// Delete removes key if present.
func (c *MemoryCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries != nil {
		c.entries.Remove(key)
	}
}

// Clear removes every entry.
func (c *MemoryCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries != nil {
		c.entries.Purge()
	}
}

// Len returns the number of entries currently held, including expired
// entries that have not been accessed since they expired.
func (c *MemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// Capacity returns the configured capacity.
func (c *MemoryCache[T]) Capacity() int {
	return c.capacity
}
