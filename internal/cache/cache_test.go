package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, dir string, opts Options) *Cache {
	t.Helper()
	c, err := Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	c := openTest(t, t.TempDir(), Options{})

	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))
	got, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, c.Set(ctx, "k1", []byte("v2")))
	got, _, _ = c.Get(ctx, "k1")
	assert.Equal(t, []byte("v2"), got)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Bytes)
	assert.Equal(t, int64(DefaultSizeMB*1024*1024), stats.MaxBytes)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := openTest(t, t.TempDir(), Options{MaxBytes: 30})

	val := bytes.Repeat([]byte("x"), 10)
	require.NoError(t, c.Set(ctx, "a", val))
	require.NoError(t, c.Set(ctx, "b", val))
	require.NoError(t, c.Set(ctx, "c", val))

	// touch a so b becomes the oldest
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "d", val))

	for key, want := range map[string]bool{"a": true, "b": false, "c": true, "d": true} {
		has, err := c.Has(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, has, "key %s", key)
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, stats.Bytes, int64(30))
}

func TestMemoryTierStaysConsistentWithDisk(t *testing.T) {
	ctx := context.Background()
	c := openTest(t, t.TempDir(), Options{MaxBytes: 20, MemoryEntries: 8})

	val := bytes.Repeat([]byte("y"), 10)
	require.NoError(t, c.Set(ctx, "a", val))
	require.NoError(t, c.Set(ctx, "b", val))
	require.NoError(t, c.Set(ctx, "c", val))

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "evicted entry must not be served from memory")

	got, ok, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, val, got)

	require.NoError(t, c.Clear(ctx))
	_, ok, _ = c.Get(ctx, "c")
	assert.False(t, ok)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c1, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, c1.Set(ctx, "key", []byte("value")))
	require.NoError(t, c1.Close())

	c2 := openTest(t, dir, Options{})
	got, ok, err := c2.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("value"), got)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := openTest(t, t.TempDir(), Options{MemoryEntries: 4})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			assert.NoError(t, c.Set(ctx, key, []byte(key)))
			_, _, err := c.Get(ctx, key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Entries)
}

func TestHandlesShareDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	caches := []*Cache{openTest(t, dir, Options{}), openTest(t, dir, Options{MemoryEntries: 8})}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%20)
			assert.NoError(t, caches[i%2].Set(ctx, key, []byte(key)))
			got, ok, err := caches[(i+1)%2].Get(ctx, key)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte(key), got)
		}(i)
	}
	wg.Wait()

	for _, c := range caches {
		stats, err := c.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 20, stats.Entries)
	}
}

func TestRecencyIsSharedBetweenHandles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c1 := openTest(t, dir, Options{MaxBytes: 30})
	c2 := openTest(t, dir, Options{MaxBytes: 30})

	val := bytes.Repeat([]byte("z"), 10)
	require.NoError(t, c1.Set(ctx, "a", val))
	require.NoError(t, c1.Set(ctx, "b", val))
	require.NoError(t, c1.Set(ctx, "c", val))

	// touching a through the second handle makes b the oldest for both
	_, ok, err := c2.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c1.Set(ctx, "d", val))

	for key, want := range map[string]bool{"a": true, "b": false, "c": true, "d": true} {
		has, err := c2.Has(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, has, "key %s", key)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open("", Options{})
	assert.Error(t, err)
}
