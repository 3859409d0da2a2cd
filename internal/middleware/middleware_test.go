package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"shortlink-analytics/internal/config"
	"shortlink-analytics/internal/model"
	auth "shortlink-analytics/pkg/jwt"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(tm *auth.TokenManager) *gin.Engine {
	return newAuthRouterWithStatus(tm, nil)
}

func newAuthRouterWithStatus(tm *auth.TokenManager, status UserStatusFunc) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", AuthMiddleware(tm, status))
	api.GET("/me", func(c *gin.Context) {
		id, ok := CurrentUserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "username": c.GetString(ContextUsername)})
	})
	api.GET("/admin", AdminMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doGet(r http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tm := auth.NewManager("test-secret", "shortlink", 1)
	r := newAuthRouter(tm)

	token, err := tm.GenerateToken(42, "alice", model.RoleUser)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGet(r, "/api/me", tt.header)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"id":42,"username":"alice"}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}

	t.Run("token from another secret", func(t *testing.T) {
		other, err := auth.NewManager("other-secret", "shortlink", 1).GenerateToken(42, "alice", model.RoleUser)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/api/me", "Bearer "+other).Code)
	})
}

func TestAuthMiddleware_UserStatus(t *testing.T) {
	tm := auth.NewManager("test-secret", "shortlink", 1)
	active := map[uint]bool{1: true, 2: false}
	r := newAuthRouterWithStatus(tm, func(_ context.Context, id uint) (bool, error) {
		if id == 3 {
			return false, errors.New("db down")
		}
		return active[id], nil
	})

	tests := []struct {
		name string
		id   uint
		want int
	}{
		{"active user", 1, http.StatusOK},
		{"disabled user", 2, http.StatusForbidden},
		{"status lookup fails", 3, http.StatusInternalServerError},
		{"unknown user", 4, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tm.GenerateToken(tt.id, "u", model.RoleUser)
			require.NoError(t, err)
			assert.Equal(t, tt.want, doGet(r, "/api/me", "Bearer "+token).Code)
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	tm := auth.NewManager("test-secret", "shortlink", 1)
	r := newAuthRouter(tm)

	user, err := tm.GenerateToken(1, "bob", model.RoleUser)
	require.NoError(t, err)
	admin, err := tm.GenerateToken(2, "root", model.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, doGet(r, "/api/admin", "Bearer "+user).Code)
	assert.Equal(t, http.StatusNoContent, doGet(r, "/api/admin", "Bearer "+admin).Code)
}

func newLimitedRouter(rdb *redis.Client, cfg *config.Limit) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(rdb, cfg, zap.NewNop().Sugar()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimit_Disabled(t *testing.T) {
	r := newLimitedRouter(nil, &config.Limit{Enabled: false, Requests: 1, Burst: 1})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doGet(r, "/x", "").Code)
	}
}

func TestRateLimit_Local(t *testing.T) {
	r := newLimitedRouter(nil, &config.Limit{
		Enabled:   true,
		Requests:  60,
		Burst:     3,
		SkipPaths: []string{"/health"},
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(r, "/x", "").Code)
	}
	w := doGet(r, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)

	// 跳过的路径不计数
	assert.Equal(t, http.StatusOK, doGet(r, "/health", "").Code)
}

func TestRateLimit_LocalPerClient(t *testing.T) {
	r := newLimitedRouter(nil, &config.Limit{Enabled: true, Requests: 60, Burst: 1})

	first := httptest.NewRequest(http.MethodGet, "/x", nil)
	first.RemoteAddr = "198.51.100.1:1234"
	second := httptest.NewRequest(http.MethodGet, "/x", nil)
	second.RemoteAddr = "198.51.100.2:1234"

	for _, req := range []*http.Request{first, second} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestIPLimiters_EvictsIdleClients(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiters(60, 2)
	l.now = func() time.Time { return clock }

	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("10.0.0."+strconv.Itoa(i)))
	}
	assert.Equal(t, 100, l.size())

	// 活跃客户端保留，空闲的被清理
	clock = clock.Add(limiterIdleTTL / 2)
	assert.True(t, l.allow("10.0.0.1"))
	clock = clock.Add(limiterIdleTTL / 2)
	assert.True(t, l.allow("203.0.113.7"))

	assert.Equal(t, 2, l.size())
}

func TestIPLimiters_KeepsBucketUntilRefilled(t *testing.T) {
	// 1 次/分钟、突发 20：回满需要 20 分钟，长于默认空闲时间
	l := newIPLimiters(1, 20)
	assert.Equal(t, 20*time.Minute, l.idleTTL)

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	for i := 0; i < 20; i++ {
		require.True(t, l.allow("10.0.0.1"))
	}
	assert.False(t, l.allow("10.0.0.1"))

	// 10 分钟后仍未回满，旧的桶不能被清理
	clock = clock.Add(limiterIdleTTL)
	assert.True(t, l.allow("10.0.0.2"))
	assert.Equal(t, 2, l.size())
}

func TestRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := newLimitedRouter(rdb, &config.Limit{Enabled: true, Requests: 2})

	assert.Equal(t, http.StatusOK, doGet(r, "/x", "").Code)
	assert.Equal(t, http.StatusOK, doGet(r, "/x", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "/x", "").Code)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], rateLimitPrefix+":")
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

func TestRateLimit_RedisFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	r := newLimitedRouter(rdb, &config.Limit{Enabled: true, Requests: 1})
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(r, "/x", "").Code)
	}
}

func TestMetricsAndLogger(t *testing.T) {
	r := gin.New()
	r.Use(GinZapRecovery(zap.NewNop(), true), GinZapLogger(zap.NewNop()), Metrics())
	r.GET("/ok/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	assert.Equal(t, http.StatusOK, doGet(r, "/ok/1", "").Code)
	assert.Equal(t, http.StatusNotFound, doGet(r, "/missing", "").Code)

	w := doGet(r, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}
