package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheSetGet(t *testing.T) {
	c := NewInMemoryCache()
	t.Cleanup(c.Stop)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("key", "value", 10*time.Second)

	value, ok := c.Get("key")
	require.True(t, ok)
	require.Equal(t, "value", value)
	require.True(t, c.Has("key"))
}

func TestInMemoryCacheExpiry(t *testing.T) {
	c := NewInMemoryCache()
	t.Cleanup(c.Stop)

	c.Set("key", "value", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key")
	require.False(t, ok)
	require.False(t, c.Has("key"))
}

func TestInMemoryCacheForget(t *testing.T) {
	c := NewInMemoryCache(WithMaxCacheSize(100))
	t.Cleanup(c.Stop)

	c.Set("key", "value", 10*time.Second)
	c.Forget("key")

	require.False(t, c.Has("key"))
}

func TestInMemoryCacheStopIsIdempotent(t *testing.T) {
	c := NewInMemoryCache()
	c.Stop()
	c.Stop()
}
