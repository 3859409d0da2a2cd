package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"shortlink-analytics/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	rateLimitPrefix  = "ratelimit"
	rateLimitWindow  = time.Minute
	redisLimitBudget = 200 * time.Millisecond
	limiterIdleTTL   = 10 * time.Minute
)

// RateLimit 按客户端 IP 限流。
// 配置了 Redis 时使用固定窗口计数（多实例共享），否则退化为进程内令牌桶。
func RateLimit(redisClient *redis.Client, limitConfig *config.Limit, logger *zap.SugaredLogger) gin.HandlerFunc {
	if !limitConfig.Enabled || limitConfig.Requests <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	var allow func(c *gin.Context) bool
	if redisClient != nil {
		allow = redisWindow(redisClient, limitConfig.Requests, logger)
	} else {
		limiters := newIPLimiters(limitConfig.Requests, limitConfig.Burst)
		allow = func(c *gin.Context) bool { return limiters.allow(c.ClientIP()) }
	}

	return func(c *gin.Context) {
		// 跳过特定路径
		for _, path := range limitConfig.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		if !allow(c) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "请求过于频繁，请稍后再试",
			})
			return
		}

		c.Next()
	}
}

// ipLimiters 每个 IP 一个令牌桶，速率为 requests/分钟。
// 空闲超过 idleTTL 的条目在后续调用时被清理，避免 map 无限增长。
type ipLimiters struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(requests, burst int64) *ipLimiters {
	if burst <= 0 {
		burst = requests
	}
	interval := rateLimitWindow / time.Duration(requests)

	// 桶回满之前不能清理，否则等于提前重置配额
	idle := limiterIdleTTL
	if refill := interval * time.Duration(burst); refill > idle {
		idle = refill
	}

	return &ipLimiters{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(interval),
		burst:    int(burst),
		idleTTL:  idle,
		now:      time.Now,
	}
}

func (l *ipLimiters) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	limiter := v.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// sweep 调用方需持有锁
func (l *ipLimiters) sweep(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.idleTTL {
			delete(l.visitors, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// redisWindow 固定窗口计数，Redis 不可用时放行
func redisWindow(rdb *redis.Client, requests int64, logger *zap.SugaredLogger) func(c *gin.Context) bool {
	windowSeconds := int64(rateLimitWindow.Seconds())
	return func(c *gin.Context) bool {
		bucket := time.Now().UTC().Unix() / windowSeconds
		key := fmt.Sprintf("%s:%s:%d", rateLimitPrefix, c.ClientIP(), bucket)

		ctx, cancel := context.WithTimeout(c.Request.Context(), redisLimitBudget)
		defer cancel()

		pipe := rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*rateLimitWindow)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warnw("限流计数失败，放行请求", "error", err)
			return true
		}
		return incr.Val() <= requests
	}
}
