package previewcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache[string](4)

	cache.Set("a", "artifact-a", time.Minute)

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, "artifact-a", got)
}

func TestMemoryCache_GetMissingKey(t *testing.T) {
	cache := NewMemoryCache[string](4)

	got, ok := cache.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	const capacity = 3
	cache := NewMemoryCache[int](capacity)

	for i := 0; i < capacity; i++ {
		cache.Set(fmt.Sprintf("k%d", i), i, time.Minute)
	}
	cache.Set("k3", 3, time.Minute)

	_, ok := cache.Get("k0")
	assert.False(t, ok, "oldest key should be evicted")
	for i := 1; i <= capacity; i++ {
		_, ok := cache.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d should remain", i)
	}
	assert.Equal(t, capacity, cache.Len())
}

func TestMemoryCache_GetProtectsFromEviction(t *testing.T) {
	cache := NewMemoryCache[string](2)

	cache.Set("A", "a", time.Minute)
	cache.Set("B", "b", time.Minute)

	_, ok := cache.Get("A")
	require.True(t, ok)

	cache.Set("C", "c", time.Minute)

	_, ok = cache.Get("B")
	assert.False(t, ok, "B was least recently used and should be evicted")

	a, ok := cache.Get("A")
	assert.True(t, ok)
	assert.Equal(t, "a", a)

	c, ok := cache.Get("C")
	assert.True(t, ok)
	assert.Equal(t, "c", c)
}

func TestMemoryCache_SetRefreshesRecency(t *testing.T) {
	cache := NewMemoryCache[string](2)

	cache.Set("A", "a1", time.Minute)
	cache.Set("B", "b", time.Minute)
	cache.Set("A", "a2", time.Minute)
	cache.Set("C", "c", time.Minute)

	_, ok := cache.Get("B")
	assert.False(t, ok)

	a, ok := cache.Get("A")
	assert.True(t, ok)
	assert.Equal(t, "a2", a, "re-set should overwrite the value")
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryCache[string](4)

	cache.Set("short", "value", 10*time.Millisecond)

	got, ok := cache.Get("short")
	require.True(t, ok, "entry should be retrievable immediately after insert")
	assert.Equal(t, "value", got)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get("short")
	assert.False(t, ok, "entry should miss after its TTL elapsed")
	assert.Equal(t, 0, cache.Len(), "expired entry should be removed on access")
}

func TestMemoryCache_TTLIndependentOfRecency(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache[string](4)
	cache.now = func() time.Time { return now }

	cache.Set("x", "v", time.Second)

	// Touching the entry repeatedly must not extend its expiry
	for i := 0; i < 5; i++ {
		now = now.Add(150 * time.Millisecond)
		_, ok := cache.Get("x")
		require.True(t, ok)
	}

	now = now.Add(300 * time.Millisecond)
	_, ok := cache.Get("x")
	assert.False(t, ok)
}

func TestMemoryCache_ZeroCapacityIsNoop(t *testing.T) {
	cache := NewMemoryCache[string](0)

	cache.Set("a", "value", time.Minute)

	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())

	// Delete and Clear must not panic on a disabled cache
	cache.Delete("a")
	cache.Clear()
}

func TestMemoryCache_NonPositiveTTLRemoves(t *testing.T) {
	cache := NewMemoryCache[string](2)

	cache.Set("a", "value", time.Minute)
	cache.Set("a", "value", 0)

	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := NewMemoryCache[string](4)
	cache.Set("a", "1", time.Minute)
	cache.Set("b", "2", time.Minute)

	cache.Delete("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)

	cache.Clear()
	_, ok = cache.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	const capacity = 16
	cache := NewMemoryCache[int](capacity)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%64)
				cache.Set(key, i, time.Minute)
				cache.Get(key)
				if i%50 == 0 {
					cache.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), capacity)
}
