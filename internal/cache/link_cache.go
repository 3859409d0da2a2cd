package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "shortlink:"

// ErrMiss 缓存未命中
var ErrMiss = errors.New("缓存未命中")

// LinkCache 以 shortlink:<code> 为键缓存原始 URL
type LinkCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLinkCache(rdb *redis.Client, ttl time.Duration) *LinkCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkCache{rdb: rdb, ttl: ttl}
}

// Get 读取缓存，未命中返回 ErrMiss
func (c *LinkCache) Get(ctx context.Context, code string) (string, error) {
	val, err := c.rdb.Get(ctx, keyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set 写入缓存
func (c *LinkCache) Set(ctx context.Context, code, originalURL string) error {
	return c.rdb.Set(ctx, keyPrefix+code, originalURL, c.ttl).Err()
}
