package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shortlink-analytics/internal/cache"
	"shortlink-analytics/internal/config"
	"shortlink-analytics/internal/events"
	"shortlink-analytics/internal/metrics"
	"shortlink-analytics/internal/model"
	"shortlink-analytics/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultClickLimit = 50
	MaxClickLimit     = 500
)

// CodeSource 提供候选短码
type CodeSource interface {
	Next() (string, error)
}

// URLCache 跳转路径上的短码 -> 原始 URL 缓存，未命中时返回 cache.ErrMiss
type URLCache interface {
	Get(ctx context.Context, code string) (string, error)
	Set(ctx context.Context, code, originalURL string) error
}

// Options 服务行为配置
type Options struct {
	MaxAttempts  int
	ClickMode    string
	ClickTimeout time.Duration
}

// ShortenInput 创建短链接的输入
type ShortenInput struct {
	URL        string
	CustomCode string
	OwnerID    uint
}

// BulkResult 批量创建中单条的结果
type BulkResult struct {
	URL  string
	Link *model.ShortLink
	Err  error
}

// ClickMeta 跳转请求的来源信息
type ClickMeta struct {
	IPAddress string
	UserAgent string
	Referer   string
}

// Caller 当前请求的认证身份
type Caller struct {
	UserID uint
	Role   string
}

func (c Caller) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// ShortLinkService 短链接的创建、跳转与统计
type ShortLinkService struct {
	store     repository.LinkStore
	codes     CodeSource
	cache     URLCache
	publisher events.Publisher
	logger    *zap.SugaredLogger
	opts      Options

	now   func() time.Time
	newID func() string

	clicks sync.WaitGroup
}

// NewShortLinkService 创建服务，cache 和 publisher 可以为 nil
func NewShortLinkService(
	store repository.LinkStore,
	codes CodeSource,
	urlCache URLCache,
	publisher events.Publisher,
	logger *zap.SugaredLogger,
	opts Options,
) *ShortLinkService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.ClickMode == "" {
		opts.ClickMode = config.ClickModeAsync
	}
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = 2 * time.Second
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ShortLinkService{
		store:     store,
		codes:     codes,
		cache:     urlCache,
		publisher: publisher,
		logger:    logger.Named("shortlink"),
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Shorten 校验输入并持久化一条新的短链接
func (s *ShortLinkService) Shorten(ctx context.Context, in ShortenInput) (*model.ShortLink, error) {
	target, err := NormalizeURL(in.URL)
	if err != nil {
		metrics.ShortenTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if in.CustomCode != "" {
		return s.shortenWithCustomCode(ctx, target, in)
	}

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		code, err := s.codes.Next()
		if err != nil {
			metrics.ShortenTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("生成短码失败: %w", err)
		}

		if IsReservedCode(code) {
			metrics.CodeCollisions.Inc()
			continue
		}

		link := s.newLink(code, target, in.OwnerID)
		err = s.store.InsertIfAbsent(ctx, link)
		if errors.Is(err, repository.ErrCodeTaken) {
			metrics.CodeCollisions.Inc()
			s.logger.Debugw("短码冲突，重新生成", "code", code, "attempt", attempt)
			continue
		}
		if err != nil {
			metrics.ShortenTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("保存短链接失败: %w", err)
		}

		s.created(ctx, link)
		return link, nil
	}

	metrics.ShortenTotal.WithLabelValues("error").Inc()
	s.logger.Errorw("短码生成次数耗尽", "attempts", s.opts.MaxAttempts)
	return nil, ErrCodeExhausted
}

func (s *ShortLinkService) shortenWithCustomCode(ctx context.Context, target string, in ShortenInput) (*model.ShortLink, error) {
	if !IsValidCode(in.CustomCode) {
		metrics.ShortenTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCustomCode
	}
	if IsReservedCode(in.CustomCode) {
		metrics.ShortenTotal.WithLabelValues("conflict").Inc()
		return nil, ErrCodeTaken
	}

	link := s.newLink(in.CustomCode, target, in.OwnerID)
	if err := s.store.InsertIfAbsent(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeTaken) {
			metrics.ShortenTotal.WithLabelValues("conflict").Inc()
			return nil, ErrCodeTaken
		}
		metrics.ShortenTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("保存短链接失败: %w", err)
	}

	s.created(ctx, link)
	return link, nil
}

// ShortenBulk 逐条创建，单条失败不影响其他条目
func (s *ShortLinkService) ShortenBulk(ctx context.Context, ownerID uint, urls []string) []BulkResult {
	results := make([]BulkResult, 0, len(urls))
	for _, raw := range urls {
		link, err := s.Shorten(ctx, ShortenInput{URL: raw, OwnerID: ownerID})
		results = append(results, BulkResult{URL: raw, Link: link, Err: err})
	}
	return results
}

func (s *ShortLinkService) newLink(code, target string, ownerID uint) *model.ShortLink {
	return &model.ShortLink{
		ID:          s.newID(),
		ShortCode:   code,
		OriginalURL: target,
		OwnerID:     ownerID,
		Clicks:      0,
		CreatedAt:   s.now().UTC(),
	}
}

func (s *ShortLinkService) created(ctx context.Context, link *model.ShortLink) {
	metrics.ShortenTotal.WithLabelValues("created").Inc()
	s.logger.Infow("短链接已创建", "code", link.ShortCode, "owner", link.OwnerID)
	if s.cache != nil {
		if err := s.cache.Set(ctx, link.ShortCode, link.OriginalURL); err != nil {
			s.logger.Warnw("写入缓存失败", "code", link.ShortCode, "error", err)
		}
	}
}

// Resolve 解析短码并记录一次点击。
// 返回 false 时调用方应跳转到首页，错误只记录日志不向上抛出。
func (s *ShortLinkService) Resolve(ctx context.Context, code string, meta ClickMeta) (string, bool) {
	if !IsValidCode(code) {
		metrics.RedirectsTotal.WithLabelValues("miss").Inc()
		return "", false
	}

	target, err := s.lookupTarget(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RedirectsTotal.WithLabelValues("miss").Inc()
		} else {
			metrics.RedirectsTotal.WithLabelValues("error").Inc()
			s.logger.Errorw("解析短码失败，跳转首页", "code", code, "error", err)
		}
		return "", false
	}

	s.recordClick(ctx, code, meta)
	metrics.RedirectsTotal.WithLabelValues("hit").Inc()
	return target, true
}

func (s *ShortLinkService) lookupTarget(ctx context.Context, code string) (string, error) {
	if s.cache != nil {
		target, err := s.cache.Get(ctx, code)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warnw("读取缓存失败，回退数据库", "code", code, "error", err)
		}
	}

	link, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, code, link.OriginalURL); err != nil {
			s.logger.Warnw("写入缓存失败", "code", code, "error", err)
		}
	}
	return link.OriginalURL, nil
}

func (s *ShortLinkService) recordClick(ctx context.Context, code string, meta ClickMeta) {
	if s.opts.ClickMode == config.ClickModeSync {
		if err := s.persistClick(ctx, code, meta); err != nil {
			metrics.ClickRecordFailures.Inc()
			s.logger.Errorw("记录点击失败", "code", code, "error", err)
		}
		return
	}

	s.clicks.Add(1)
	go func() {
		defer s.clicks.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ClickTimeout)
		defer cancel()
		if err := s.persistClick(ctx, code, meta); err != nil {
			metrics.ClickRecordFailures.Inc()
			s.logger.Warnw("异步记录点击失败", "code", code, "error", err)
		}
	}()
}

func (s *ShortLinkService) persistClick(ctx context.Context, code string, meta ClickMeta) error {
	if err := s.store.IncrementClicks(ctx, code); err != nil {
		return err
	}

	at := s.now().UTC()
	record := &model.ClickRecord{
		ShortCode: code,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Referer:   meta.Referer,
		CreatedAt: at,
	}
	if err := s.store.RecordClick(ctx, record); err != nil {
		// 计数已生效，明细丢失只记日志
		s.logger.Warnw("写入点击明细失败", "code", code, "error", err)
	}

	evt := events.ClickRecorded{
		EventID:    s.newID(),
		ShortCode:  code,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Referer:    meta.Referer,
		OccurredAt: at,
	}
	if err := s.publisher.PublishClick(ctx, evt); err != nil {
		s.logger.Warnw("投递点击事件失败", "code", code, "error", err)
	}
	return nil
}

// WaitClicks 等待进行中的异步点击记录完成
func (s *ShortLinkService) WaitClicks() {
	s.clicks.Wait()
}

// Analytics 返回调用者拥有的短链接；不存在或不属于调用者都视为不存在
func (s *ShortLinkService) Analytics(ctx context.Context, code string, caller Caller) (*model.ShortLink, error) {
	if !IsValidCode(code) {
		return nil, ErrNotFound
	}

	link, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if link.OwnerID != caller.UserID && !caller.IsAdmin() {
		return nil, ErrNotFound
	}
	return link, nil
}

// RecentClicks 返回最近的点击明细，按时间倒序
func (s *ShortLinkService) RecentClicks(ctx context.Context, code string, caller Caller, limit int) ([]model.ClickRecord, error) {
	if _, err := s.Analytics(ctx, code, caller); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultClickLimit
	case limit > MaxClickLimit:
		limit = MaxClickLimit
	}
	return s.store.RecentClicks(ctx, code, limit)
}

// ListByOwner 返回用户的全部短链接，最新的在前
func (s *ShortLinkService) ListByOwner(ctx context.Context, ownerID uint) ([]model.ShortLink, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

func (s *ShortLinkService) OwnerStats(ctx context.Context, ownerID uint) (repository.Stats, error) {
	return s.store.OwnerStats(ctx, ownerID)
}

func (s *ShortLinkService) GlobalStats(ctx context.Context) (repository.Stats, error) {
	return s.store.GlobalStats(ctx)
}

// Ping 检查存储是否可用
func (s *ShortLinkService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
