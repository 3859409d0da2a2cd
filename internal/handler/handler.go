package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shortlink-analytics/internal/middleware"
	"shortlink-analytics/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// MaxBulkURLs 单次批量创建的上限
const MaxBulkURLs = 50

// Options 处理器的展示相关配置
type Options struct {
	AppName string
	Version string
	BaseURL string // 为空时根据请求 Host 拼接短链接
	HomeURL string // 短码不存在时的跳转目标
}

// ShortLinkHandler 处理器
type ShortLinkHandler struct {
	svc  *service.ShortLinkService
	opts Options
}

// NewShortLinkHandler 创建处理器实例
func NewShortLinkHandler(svc *service.ShortLinkService, opts Options) *ShortLinkHandler {
	registerValidators()
	if opts.HomeURL == "" {
		opts.HomeURL = "/"
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &ShortLinkHandler{svc: svc, opts: opts}
}

// IndexPage 服务基本信息
func (h *ShortLinkHandler) IndexPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    h.opts.AppName,
		"version": h.opts.Version,
		"docs":    "/swagger/index.html",
	})
}

// HealthCheck godoc
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *ShortLinkHandler) HealthCheck(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "数据库不可用", "timestamp": time.Now()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

// CreateShortLinkRequest 创建短链接请求
type CreateShortLinkRequest struct {
	URL        string `json:"url" binding:"required" example:"https://github.com/gin-gonic/gin"`
	CustomCode string `json:"customCode" binding:"omitempty,shortcode" example:"gin"`
}

// CreateShortLink godoc
// @Summary 创建短链接
// @Description 为一个长 URL 创建一个新的短链接，可指定自定义短码
// @Tags ShortLink
// @Security ApiKeyAuth
// @Accept  json
// @Produce  json
// @Param   request  body   CreateShortLinkRequest  true  "长链接 URL"
// @Success 201 {object} ShortLinkResponse "成功响应"
// @Failure 400 {object} ErrorResponse "请求无效"
// @Failure 401 {object} ErrorResponse "未认证"
// @Failure 409 {object} ErrorResponse "短码已被占用"
// @Failure 500 {object} ErrorResponse "服务器内部错误"
// @Router /api/shorten [post]
func (h *ShortLinkHandler) CreateShortLink(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "未认证"})
		return
	}

	var req CreateShortLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isShortcodeError(err) {
			respondError(c, service.ErrInvalidCustomCode)
			return
		}
		badRequest(c, err)
		return
	}

	link, err := h.svc.Shorten(c.Request.Context(), service.ShortenInput{
		URL:        req.URL,
		CustomCode: req.CustomCode,
		OwnerID:    userID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ShortLinkResponse{
		ID:          link.ID,
		OriginalURL: link.OriginalURL,
		ShortCode:   link.ShortCode,
		ShortURL:    h.shortURL(c, link.ShortCode),
		CreatedAt:   link.CreatedAt,
		Clicks:      link.Clicks,
	})
}

// BulkShortenRequest 批量创建请求
type BulkShortenRequest struct {
	URLs []string `json:"urls" binding:"required,min=1,max=50"`
}

// CreateBulk godoc
// @Summary 批量创建短链接
// @Description 单条失败不影响其他条目，错误在结果中逐条返回
// @Tags ShortLink
// @Security ApiKeyAuth
// @Accept  json
// @Produce  json
// @Param   request  body   BulkShortenRequest  true  "URL 列表"
// @Success 200 {array} BulkItem
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/shorten/bulk [post]
func (h *ShortLinkHandler) CreateBulk(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "未认证"})
		return
	}

	var req BulkShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results := h.svc.ShortenBulk(c.Request.Context(), userID, req.URLs)
	items := make([]BulkItem, 0, len(results))
	for _, r := range results {
		item := BulkItem{URL: r.URL}
		switch {
		case r.Err == nil:
			item.ShortCode = r.Link.ShortCode
			item.ShortURL = h.shortURL(c, r.Link.ShortCode)
		case statusFor(r.Err) == http.StatusInternalServerError:
			item.Error = "服务器内部错误"
		default:
			item.Error = r.Err.Error()
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, items)
}

// RedirectToOriginal 跳转到原始地址，任何失败都跳转首页
func (h *ShortLinkHandler) RedirectToOriginal(c *gin.Context) {
	target, found := h.svc.Resolve(c.Request.Context(), c.Param("code"), service.ClickMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	})
	if !found {
		c.Redirect(http.StatusFound, h.opts.HomeURL)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// ListLinks godoc
// @Summary 我的短链接
// @Tags ShortLink
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {array} LinkSummary
// @Failure 401 {object} ErrorResponse
// @Router /api/urls [get]
func (h *ShortLinkHandler) ListLinks(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "未认证"})
		return
	}

	links, err := h.svc.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]LinkSummary, 0, len(links))
	for i := range links {
		out = append(out, newSummary(&links[i]))
	}
	c.JSON(http.StatusOK, out)
}

// GetAnalytics godoc
// @Summary 短链接统计
// @Tags Analytics
// @Security ApiKeyAuth
// @Produce json
// @Param code path string true "短码"
// @Success 200 {object} LinkSummary
// @Failure 404 {object} ErrorResponse
// @Router /api/analytics/{code} [get]
func (h *ShortLinkHandler) GetAnalytics(c *gin.Context) {
	link, err := h.svc.Analytics(c.Request.Context(), c.Param("code"), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSummary(link))
}

// GetClicks godoc
// @Summary 最近点击明细
// @Tags Analytics
// @Security ApiKeyAuth
// @Produce json
// @Param code path string true "短码"
// @Param limit query int false "条数，默认 50，最大 500"
// @Success 200 {array} ClickResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/analytics/{code}/clicks [get]
func (h *ShortLinkHandler) GetClicks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.svc.RecentClicks(c.Request.Context(), c.Param("code"), callerFrom(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]ClickResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ClickResponse{
			IPAddress: r.IPAddress,
			UserAgent: r.UserAgent,
			Referer:   r.Referer,
			CreatedAt: r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetStats godoc
// @Summary 当前用户的汇总统计
// @Tags Analytics
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} repository.Stats
// @Router /api/stats [get]
func (h *ShortLinkHandler) GetStats(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "未认证"})
		return
	}

	stats, err := h.svc.OwnerStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetGlobalStats godoc
// @Summary 全站统计（管理员）
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} repository.Stats
// @Failure 403 {object} ErrorResponse
// @Router /api/admin/stats [get]
func (h *ShortLinkHandler) GetGlobalStats(c *gin.Context) {
	stats, err := h.svc.GlobalStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ShortLinkHandler) shortURL(c *gin.Context, code string) string {
	if h.opts.BaseURL != "" {
		return h.opts.BaseURL + "/" + code
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/" + code
}

func callerFrom(c *gin.Context) service.Caller {
	userID, _ := middleware.CurrentUserID(c)
	return service.Caller{UserID: userID, Role: c.GetString(middleware.ContextRole)}
}

func isShortcodeError(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Tag() == "shortcode" {
			return true
		}
	}
	return false
}

