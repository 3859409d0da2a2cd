package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*LinkCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLinkCache(rdb, ttl), mr
}

func TestLinkCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	_, err := c.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "abc", "https://example.com"))

	got, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got)
	assert.Equal(t, time.Hour, mr.TTL("shortlink:abc"))
}

func TestLinkCache_Expires(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "abc", "https://example.com"))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLinkCache_BackendDown(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	mr.SetError("LOADING")

	_, err := c.Get(context.Background(), "abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestNewLinkCache_DefaultTTL(t *testing.T) {
	c := NewLinkCache(nil, 0)
	assert.Equal(t, 24*time.Hour, c.ttl)
}
