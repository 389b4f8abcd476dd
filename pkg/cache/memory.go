package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryCache implements Cache over a mutex-guarded map with lazy
// expiry plus a background janitor.
type InMemoryCache struct {
	lock    sync.RWMutex
	entries map[string]entry
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]entry),
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.lock.RLock()
	e, ok := c.entries[key]
	c.lock.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, &ErrMiss{}
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries[key] = entry{
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) Invalidate(ctx context.Context, key string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *InMemoryCache) Clear(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

// StartJanitor evicts expired entries on an interval until the context
// is cancelled. Expiry is also checked lazily on Get, so the janitor
// only bounds memory growth.
func (c *InMemoryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.lock.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.lock.Unlock()
		}
	}
}
