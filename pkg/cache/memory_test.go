package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, err := c.Get(ctx, "missing")
	assert.True(t, IsMiss(err))

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))
	value, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "key")
	assert.True(t, IsMiss(err))
}

func TestInMemoryCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))
	require.NoError(t, c.Invalidate(ctx, "key"))

	_, err := c.Get(ctx, "key")
	assert.True(t, IsMiss(err))

	// invalidating an absent key is a no-op
	assert.NoError(t, c.Invalidate(ctx, "key"))
}

func TestInMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Clear(ctx))

	_, err := c.Get(ctx, "a")
	assert.True(t, IsMiss(err))
	_, err = c.Get(ctx, "b")
	assert.True(t, IsMiss(err))
}

func TestInMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	original := []byte("value")
	require.NoError(t, c.Set(ctx, "key", original, time.Minute))
	original[0] = 'x'

	value, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	// mutating the returned slice must not corrupt the stored entry
	value[0] = 'y'
	again, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NewDisabledCache()

	require.NoError(t, c.Set(ctx, "key", []byte("value"), time.Minute))
	_, err := c.Get(ctx, "key")
	assert.True(t, IsMiss(err))
	assert.NoError(t, c.Invalidate(ctx, "key"))
	assert.NoError(t, c.Clear(ctx))
}
