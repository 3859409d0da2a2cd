package repository

import (
	"context"
	"errors"

	"shortlink-analytics/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrCodeTaken 短码已存在，插入未生效
	ErrCodeTaken = errors.New("短码已存在")
)

// Stats 汇总统计
type Stats struct {
	TotalLinks  int64 `json:"totalLinks"`
	TotalClicks int64 `json:"totalClicks"`
	TotalUsers  int64 `json:"totalUsers,omitempty"`
}

// LinkStore 短链接持久化接口
type LinkStore interface {
	FindByCode(ctx context.Context, code string) (*model.ShortLink, error)
	// InsertIfAbsent 在短码不存在时插入，否则返回 ErrCodeTaken，整个过程是单条语句
	InsertIfAbsent(ctx context.Context, link *model.ShortLink) error
	IncrementClicks(ctx context.Context, code string) error
	ListByOwner(ctx context.Context, ownerID uint) ([]model.ShortLink, error)

	RecordClick(ctx context.Context, record *model.ClickRecord) error
	RecentClicks(ctx context.Context, code string, limit int) ([]model.ClickRecord, error)

	OwnerStats(ctx context.Context, ownerID uint) (Stats, error)
	GlobalStats(ctx context.Context) (Stats, error)

	Ping(ctx context.Context) error
}
