package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shortlink-analytics/internal/config"
	"shortlink-analytics/internal/middleware"
	"shortlink-analytics/internal/model"
	"shortlink-analytics/internal/repository"
	"shortlink-analytics/internal/service"
	"shortlink-analytics/internal/shortcode"
	"shortlink-analytics/internal/testutil"
	auth "shortlink-analytics/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	svc    *service.ShortLinkService
	tokens *auth.TokenManager
}

// setupTest 为集成测试初始化一个干净的环境
func setupTest(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewSQLiteDB(t)
	logger := zap.NewNop().Sugar()

	// 测试中不启动后台预生成
	generator := shortcode.NewGenerator(shortcode.DefaultLength, 0, logger)
	svc := service.NewShortLinkService(repository.NewGormStore(db), generator, nil, nil, logger, service.Options{
		ClickMode: config.ClickModeSync,
	})
	tokens := auth.NewManager("test-secret", "shortlink-test", 1)

	authHandler := NewAuthHandler(db, tokens)

	router := gin.New()
	RegisterRoutes(router,
		NewShortLinkHandler(svc, Options{AppName: "shortlink", BaseURL: "http://sho.rt/", HomeURL: "/"}),
		authHandler,
		middleware.AuthMiddleware(tokens, authHandler.UserActive),
		middleware.AdminMiddleware(),
	)

	return &testEnv{router: router, db: db, svc: svc, tokens: tokens}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// register 通过接口注册用户并返回令牌
func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	admin := model.User{Username: "root", Email: "root@example.com", Role: model.RoleAdmin, IsActive: true}
	require.NoError(t, admin.SetPassword("rootpass"))
	require.NoError(t, e.db.Create(&admin).Error)

	token, err := e.tokens.GenerateToken(admin.ID, admin.Username, admin.Role)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// TestShortLinkHandler_Integration 创建、跳转三次、查询统计的完整流程
func TestShortLinkHandler_Integration(t *testing.T) {
	env := setupTest(t)
	token := env.register(t, "alice")
	originalURL := "https://example.com/a/very/long/path?x=1"

	w := env.do(http.MethodPost, "/api/shorten", token, CreateShortLinkRequest{URL: originalURL})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[ShortLinkResponse](t, w)
	assert.Zero(t, created.Clicks)
	assert.Equal(t, originalURL, created.OriginalURL)
	assert.Len(t, created.ShortCode, 8)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "http://sho.rt/"+created.ShortCode, created.ShortURL)

	for i := 0; i < 3; i++ {
		w = env.do(http.MethodGet, "/"+created.ShortCode, "", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, originalURL, w.Header().Get("Location"))
	}

	w = env.do(http.MethodGet, "/api/analytics/"+created.ShortCode, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[LinkSummary](t, w)
	assert.Equal(t, int64(3), summary.Clicks)
	assert.Equal(t, originalURL, summary.OriginalURL)

	w = env.do(http.MethodGet, "/api/analytics/"+created.ShortCode+"/clicks?limit=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]ClickResponse](t, w), 2)
}

func TestCreateShortLink_Validation(t *testing.T) {
	env := setupTest(t)
	token := env.register(t, "alice")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing url", gin.H{}, http.StatusBadRequest},
		{"malformed url", CreateShortLinkRequest{URL: "not a url"}, http.StatusBadRequest},
		{"ftp url", CreateShortLinkRequest{URL: "ftp://example.com/file"}, http.StatusBadRequest},
		{"custom code with space", CreateShortLinkRequest{URL: "https://example.com", CustomCode: "my link"}, http.StatusBadRequest},
		{"custom code with slash", CreateShortLinkRequest{URL: "https://example.com", CustomCode: "a/b"}, http.StatusBadRequest},
		{"custom code", CreateShortLinkRequest{URL: "https://example.com", CustomCode: "my-link"}, http.StatusCreated},
		{"custom code taken", CreateShortLinkRequest{URL: "https://other.example", CustomCode: "my-link"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/shorten", token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want != http.StatusCreated {
				assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
			}
		})
	}

	// 被占用的短码仍指向原地址
	w := env.do(http.MethodGet, "/my-link", "", nil)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))
}

func TestCreateShortLink_Unauthenticated(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodPost, "/api/shorten", "", CreateShortLinkRequest{URL: "https://example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/shorten", "garbage", CreateShortLinkRequest{URL: "https://example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/urls", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRedirect_UnknownCodeGoesHome(t *testing.T) {
	env := setupTest(t)

	for _, path := range []string{"/nope1234", "/bad.code"} {
		w := env.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, "/", w.Header().Get("Location"), path)
	}
}

func TestCreateBulk(t *testing.T) {
	env := setupTest(t)
	token := env.register(t, "alice")

	w := env.do(http.MethodPost, "/api/shorten/bulk", token, BulkShortenRequest{
		URLs: []string{"https://a.example", "nope", "https://b.example"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	items := decode[[]BulkItem](t, w)
	require.Len(t, items, 3)
	assert.Len(t, items[0].ShortCode, 8)
	assert.True(t, strings.HasSuffix(items[0].ShortURL, "/"+items[0].ShortCode))
	assert.Empty(t, items[1].ShortCode)
	assert.NotEmpty(t, items[1].Error)
	assert.Empty(t, items[2].Error)

	t.Run("empty list", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/shorten/bulk", token, BulkShortenRequest{URLs: []string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too many", func(t *testing.T) {
		urls := make([]string, MaxBulkURLs+1)
		for i := range urls {
			urls[i] = "https://example.com"
		}
		w := env.do(http.MethodPost, "/api/shorten/bulk", token, BulkShortenRequest{URLs: urls})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListLinks_OnlyOwnNewestFirst(t *testing.T) {
	env := setupTest(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bobby")

	for _, code := range []string{"first", "second"} {
		w := env.do(http.MethodPost, "/api/shorten", alice, CreateShortLinkRequest{URL: "https://example.com/" + code, CustomCode: code})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := env.do(http.MethodPost, "/api/shorten", bob, CreateShortLinkRequest{URL: "https://bob.example", CustomCode: "bobs"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodGet, "/api/urls", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	links := decode[[]LinkSummary](t, w)
	require.Len(t, links, 2)
	assert.False(t, links[0].CreatedAt.Before(links[1].CreatedAt))
	assert.NotContains(t, w.Body.String(), `"id"`)

	w = env.do(http.MethodGet, "/api/urls", env.register(t, "carol"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestAnalytics_Ownership(t *testing.T) {
	env := setupTest(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bobby")

	w := env.do(http.MethodPost, "/api/shorten", alice, CreateShortLinkRequest{URL: "https://example.com", CustomCode: "alices"})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/analytics/alices", alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/analytics/alices", bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/analytics/alices/clicks", bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/analytics/missing", alice, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/analytics/alices", env.adminToken(t), nil).Code)
}

func TestStats(t *testing.T) {
	env := setupTest(t)
	alice := env.register(t, "alice")

	w := env.do(http.MethodPost, "/api/shorten", alice, CreateShortLinkRequest{URL: "https://example.com", CustomCode: "stat"})
	require.Equal(t, http.StatusCreated, w.Code)
	env.do(http.MethodGet, "/stat", "", nil)

	w = env.do(http.MethodGet, "/api/stats", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalLinks":1,"totalClicks":1}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/admin/stats", alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/api/admin/stats", env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalLinks":1,"totalClicks":1,"totalUsers":2}`, w.Body.String())
}

func TestHealthAndIndex(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = env.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shortlink")

	w = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateShortLink_ReservedRouteCodes(t *testing.T) {
	env := setupTest(t)
	token := env.register(t, "alice")

	for _, code := range []string{"api", "health", "metrics", "swagger"} {
		w := env.do(http.MethodPost, "/api/shorten", token, CreateShortLinkRequest{URL: "https://example.com", CustomCode: code})
		assert.Equal(t, http.StatusConflict, w.Code, code)
	}

	// 固定路由不受影响
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/metrics", "", nil).Code)
}
