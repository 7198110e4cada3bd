//go:build integration

package infrastructure

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTreeCache_StoreAndLoad(t *testing.T) {
	redisURL := os.Getenv("TTSCRAPER_TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/15"
	}

	ctx := context.Background()
	cache, err := NewRedisTreeCache(ctx, redisURL, "ttscraper-test")
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer cache.Close()
	defer cache.Clear(ctx)

	require.NoError(t, cache.Clear(ctx))

	_, _, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Store(ctx, 99, []byte(`[]`)))

	ts, tree, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(99), ts)
	assert.Equal(t, "[]", string(tree))
}
