package sol

import "sync"

// Cache memoizes a computation per key.
//
// The computation for a key runs exactly once; callers asking for a key
// that is being computed block until the result is in, while callers
// asking for other keys carry on undisturbed. The map lock is never
// held while a computation runs.
//
// The zero Cache is empty and ready to use.
// It must not be copied after first use.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*cacheEntry[V]
}

// LoadOrCompute returns the value for key, calling compute to produce
// it the first time the key is asked for. compute must not call back
// into the cache for the same key, that would deadlock.
func (c *Cache[K, V]) LoadOrCompute(key K, compute func(K) V) V {
	c.mu.RLock()
	e := c.entries[key]
	c.mu.RUnlock()
	if e == nil {
		c.mu.Lock()
		if c.entries == nil {
			c.entries = make(map[K]*cacheEntry[V])
		}
		e = c.entries[key]
		if e == nil {
			e = new(cacheEntry[V])
			c.entries[key] = e
		}
		c.mu.Unlock()
	}
	e.once.Do(func() { e.value = compute(key) })
	return e.value
}

// cacheEntry holds one result. The once both elects the computing
// caller and publishes value to everyone who waited.
type cacheEntry[V any] struct {
	once  sync.Once
	value V
}
