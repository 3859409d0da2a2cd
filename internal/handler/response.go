package handler

import (
	"errors"
	"net/http"
	"time"

	"shortlink-analytics/internal/model"
	"shortlink-analytics/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse 统一的错误响应
type ErrorResponse struct {
	Error string `json:"error" example:"短链接不存在"`
}

// ShortLinkResponse 创建成功后返回的完整记录
type ShortLinkResponse struct {
	ID          string    `json:"id" example:"0b6f3c1e-4b8a-4f57-9d8e-3f0a2c9b7d11"`
	OriginalURL string    `json:"originalUrl" example:"https://example.com/a/very/long/path?x=1"`
	ShortCode   string    `json:"shortCode" example:"aB3_x-9Z"`
	ShortURL    string    `json:"shortUrl" example:"http://localhost:8080/aB3_x-9Z"`
	CreatedAt   time.Time `json:"createdAt"`
	Clicks      int64     `json:"clicks" example:"0"`
}

// LinkSummary 列表和统计接口的投影，不包含 id 和所有者
type LinkSummary struct {
	ShortCode   string    `json:"shortCode" example:"aB3_x-9Z"`
	OriginalURL string    `json:"originalUrl" example:"https://example.com"`
	Clicks      int64     `json:"clicks" example:"3"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ClickResponse 单次点击明细
type ClickResponse struct {
	IPAddress string    `json:"ipAddress" example:"203.0.113.9"`
	UserAgent string    `json:"userAgent" example:"curl/8.5.0"`
	Referer   string    `json:"referer,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// BulkItem 批量创建中的单条结果
type BulkItem struct {
	URL       string `json:"url"`
	ShortCode string `json:"shortCode,omitempty"`
	ShortURL  string `json:"shortUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newSummary(link *model.ShortLink) LinkSummary {
	return LinkSummary{
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		Clicks:      link.Clicks,
		CreatedAt:   link.CreatedAt,
	}
}

// statusFor 将业务错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrInvalidCustomCode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCodeTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError 输出错误响应，5xx 只记录日志并返回通用信息
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.S().Errorw("请求处理失败", "path", c.FullPath(), "error", err)
		c.JSON(status, ErrorResponse{Error: "服务器内部错误"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的请求数据: " + err.Error()})
}
