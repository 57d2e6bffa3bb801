package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryPatternCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryPatternCache(8, time.Minute)
	defer cache.Close()

	seen, err := cache.Seen(ctx, "pool:pool.minexmr.com")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.Remember(ctx, "pool:pool.minexmr.com"))

	seen, err = cache.Seen(ctx, "pool:pool.minexmr.com")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = cache.Seen(ctx, "pool:other.pool")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryPatternCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryPatternCache(8, 20*time.Millisecond)
	defer cache.Close()

	require.NoError(t, cache.Remember(ctx, "ua:xmrig"))
	time.Sleep(50 * time.Millisecond)

	seen, err := cache.Seen(ctx, "ua:xmrig")
	require.NoError(t, err)
	assert.False(t, seen, "entries expire after the TTL")
}

func TestRedisPatternCache(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisPatternCache(ctx, srv.Addr(), "", 0, time.Minute, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer cache.Close()

	seen, err := cache.Seen(ctx, "tls:pool.minexmr.com")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.Remember(ctx, "tls:pool.minexmr.com"))

	seen, err = cache.Seen(ctx, "tls:pool.minexmr.com")
	require.NoError(t, err)
	assert.True(t, seen)

	// TTL is applied to stored keys.
	srv.FastForward(2 * time.Minute)
	seen, err = cache.Seen(ctx, "tls:pool.minexmr.com")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisPatternCacheConnectFailure(t *testing.T) {
	_, err := NewRedisPatternCache(context.Background(), "127.0.0.1:1", "", 0, time.Minute, nil)
	assert.Error(t, err)
}
