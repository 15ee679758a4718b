package accumulate

import "sync"

// memoryCache is a mutex-guarded map keyed by session id.
type memoryCache[S any] struct {
	mu sync.RWMutex
	m  map[string]S
}

func newMemoryCache[S any]() *memoryCache[S] {
	return &memoryCache[S]{m: map[string]S{}}
}

func (c *memoryCache[S]) Set(key string, val S) {
	c.mu.Lock()
	c.m[key] = val
	c.mu.Unlock()
}

func (c *memoryCache[S]) Get(key string) (S, bool) {
	c.mu.RLock()
	val, ok := c.m[key]
	c.mu.RUnlock()
	return val, ok
}

func (c *memoryCache[S]) Del(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *memoryCache[S]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
