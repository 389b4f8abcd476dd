package cache

import (
	"context"
	"time"
)

// DisabledCache misses on every read and drops every write. It exists
// because correctness must not depend on caching at all.
type DisabledCache struct {
}

func NewDisabledCache() *DisabledCache {
	return &DisabledCache{}
}

func (c *DisabledCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, &ErrMiss{}
}

func (c *DisabledCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (c *DisabledCache) Invalidate(ctx context.Context, key string) error {
	return nil
}

func (c *DisabledCache) Clear(ctx context.Context) error {
	return nil
}
