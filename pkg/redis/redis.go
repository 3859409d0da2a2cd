package redis

import (
	"context"
	"fmt"

	"shortlink-analytics/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewClient 按缓存配置连接 Redis 并探活。
// 未配置 Host 时返回 nil, nil，调用方退化为只读数据库。
func NewClient(ctx context.Context, cfg config.Cache) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", cfg.Addr(), err)
	}
	return client, nil
}
