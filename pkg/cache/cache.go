package cache

import (
	"context"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired.
type ErrMiss struct {
}

func (e *ErrMiss) Error() string {
	return "cache miss"
}

func IsMiss(err error) bool {
	_, ok := err.(*ErrMiss)
	return ok
}

// Cache is a TTL key/value byte cache with explicit invalidation.
// The cache is a pure read accelerator: callers must treat any error,
// including backend failures, as a miss and fall back to the source of
// truth. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
