package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	type entry struct {
		Name  string `json:"name"`
		Price int64  `json:"price"`
	}

	var got entry
	found, err := GetCache(ctx, rdb, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetCache(ctx, rdb, "k", entry{Name: "Latte", Price: 4500}, time.Minute))
	found, err = GetCache(ctx, rdb, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry{Name: "Latte", Price: 4500}, got)

	mr.FastForward(2 * time.Minute)
	found, err = GetCache(ctx, rdb, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, SetCache(ctx, rdb, "a", 1, 0))
	require.NoError(t, SetCache(ctx, rdb, "b", 2, 0))
	require.NoError(t, DeleteCache(ctx, rdb))
	require.NoError(t, DeleteCache(ctx, rdb, "a", "b"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}
