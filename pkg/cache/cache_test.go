package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(&Options{DefaultTTL: time.Minute, MaxSize: 2})

	require.NoError(t, p.Set(ctx, "a", []byte("1"), 0))
	v, ok := p.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, p.Set(ctx, "b", []byte("2"), 0))
	p.Get(ctx, "a")
	require.NoError(t, p.Set(ctx, "c", []byte("3"), 0))
	assert.Equal(t, 2, p.Len())
	_, ok = p.Get(ctx, "b")
	assert.False(t, ok, "least recently used item is evicted")

	require.NoError(t, p.Set(ctx, "short", []byte("x"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	_, ok = p.Get(ctx, "short")
	assert.False(t, ok)

	require.NoError(t, p.Delete(ctx, "a"))
	_, ok = p.Get(ctx, "a")
	assert.False(t, ok)

	hits, misses := p.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(3), misses)
}

func TestCountCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewCountCache(NewMemoryProvider(nil), time.Minute)
	fp := Fingerprint("books", []string{"title = Dune"})

	_, ok := c.Get(ctx, "books", fp)
	assert.False(t, ok)

	c.Set(ctx, "books", fp, 250)
	c.Set(ctx, "authors", fp, 3)
	total, ok := c.Get(ctx, "books", fp)
	require.True(t, ok)
	assert.Equal(t, 250, total)

	c.Invalidate(ctx, "books")
	_, ok = c.Get(ctx, "books", fp)
	assert.False(t, ok, "invalidated table misses")
	total, ok = c.Get(ctx, "authors", fp)
	assert.True(t, ok, "other tables are untouched")
	assert.Equal(t, 3, total)
}

func TestMemoryProviderIncr(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(nil)

	n, err := p.Incr(ctx, "gen", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, _ = p.Incr(ctx, "gen", time.Minute)
	assert.Equal(t, int64(2), n)

	v, ok := p.Get(ctx, "gen")
	require.True(t, ok)
	assert.Equal(t, "2", string(v))

	require.NoError(t, p.Set(ctx, "junk", []byte("x"), 0))
	n, _ = p.Incr(ctx, "junk", 0)
	assert.Equal(t, int64(1), n)
}

// setOnly hides the Counter implementation of the wrapped provider.
type setOnly struct{ Provider }

func TestCountCacheInvalidationWithoutCounter(t *testing.T) {
	ctx := context.Background()
	c := NewCountCache(setOnly{NewMemoryProvider(nil)}, time.Minute)
	fp := Fingerprint("books")

	c.Set(ctx, "books", fp, 7)
	c.Invalidate(ctx, "books")
	_, ok := c.Get(ctx, "books", fp)
	assert.False(t, ok)

	c.Set(ctx, "books", fp, 8)
	total, ok := c.Get(ctx, "books", fp)
	require.True(t, ok)
	assert.Equal(t, 8, total)
}

func TestNilCountCache(t *testing.T) {
	var c *CountCache
	c.Set(context.Background(), "t", "f", 1)
	c.Invalidate(context.Background(), "t")
	_, ok := c.Get(context.Background(), "t", "f")
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("a", 1), Fingerprint("a", 1))
	assert.NotEqual(t, Fingerprint("a", 1), Fingerprint("a", 2))
	assert.Len(t, Fingerprint(), 64)
}

func TestNewProviderFromConfig(t *testing.T) {
	p, err := NewProviderFromConfig(config.CacheConfig{Provider: "memory", TTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "memory", p.Name())

	_, err = NewProviderFromConfig(config.CacheConfig{Provider: "disk"})
	assert.Error(t, err)
}

func TestRedisConfigAddr(t *testing.T) {
	assert.Equal(t, "localhost:6379", (&RedisConfig{}).Addr())
	assert.Equal(t, "cache:6380", (&RedisConfig{Host: "cache", Port: 6380}).Addr())
}

var (
	_ Counter = (*MemoryProvider)(nil)
	_ Counter = (*RedisProvider)(nil)
	_ Counter = (*MemcacheProvider)(nil)
)
