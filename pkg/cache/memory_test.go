package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10)

	_, ok, err := c.Get(ctx, AssetIDKey("x"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, AssetIDKey("x"), []byte("payload"), time.Minute))
	got, ok, err := c.Get(ctx, AssetIDKey("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryEvictsOldestAtCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Delete(ctx, "a", "b"))
	assert.Zero(t, c.Size())
}

func TestMemoryDeletePattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10)

	require.NoError(t, c.Set(ctx, AssetIDKey("01A"), []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, AssetNameKey("ranker", "1.0.0"), []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, DepsKey("01A"), []byte("3"), time.Minute))

	require.NoError(t, c.DeletePattern(ctx, "asset:*"))

	_, ok, _ := c.Get(ctx, AssetIDKey("01A"))
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, AssetNameKey("ranker", "1.0.0"))
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, DepsKey("01A"))
	assert.True(t, ok, "deps keys live outside the asset prefix")
}
