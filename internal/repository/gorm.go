package repository

import (
	"context"
	"errors"
	"fmt"

	"shortlink-analytics/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm 的 LinkStore 实现，支持 MySQL / PostgreSQL / SQLite
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	var link model.ShortLink
	if err := s.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询短链接失败: %w", err)
	}
	return &link, nil
}

func (s *GormStore) InsertIfAbsent(ctx context.Context, link *model.ShortLink) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "short_code"}}, DoNothing: true}).
		Create(link)
	if res.Error != nil {
		return fmt.Errorf("插入短链接失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (s *GormStore) IncrementClicks(ctx context.Context, code string) error {
	res := s.db.WithContext(ctx).
		Model(&model.ShortLink{}).
		Where("short_code = ?", code).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("更新点击数失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListByOwner(ctx context.Context, ownerID uint) ([]model.ShortLink, error) {
	links := make([]model.ShortLink, 0)
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户短链接失败: %w", err)
	}
	return links, nil
}

func (s *GormStore) RecordClick(ctx context.Context, record *model.ClickRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("写入点击记录失败: %w", err)
	}
	return nil
}

func (s *GormStore) RecentClicks(ctx context.Context, code string, limit int) ([]model.ClickRecord, error) {
	records := make([]model.ClickRecord, 0)
	err := s.db.WithContext(ctx).
		Where("short_code = ?", code).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询点击记录失败: %w", err)
	}
	return records, nil
}

func (s *GormStore) OwnerStats(ctx context.Context, ownerID uint) (Stats, error) {
	var stats Stats
	scoped := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.ShortLink{}).Where("owner_id = ?", ownerID)
	}
	if err := scoped().Count(&stats.TotalLinks).Error; err != nil {
		return Stats{}, fmt.Errorf("统计短链接数量失败: %w", err)
	}
	if err := scoped().Select("COALESCE(SUM(clicks), 0)").Scan(&stats.TotalClicks).Error; err != nil {
		return Stats{}, fmt.Errorf("统计点击数失败: %w", err)
	}
	return stats, nil
}

func (s *GormStore) GlobalStats(ctx context.Context) (Stats, error) {
	var stats Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.ShortLink{}).Count(&stats.TotalLinks).Error; err != nil {
		return Stats{}, fmt.Errorf("统计短链接数量失败: %w", err)
	}
	if err := db.Model(&model.ShortLink{}).Select("COALESCE(SUM(clicks), 0)").Scan(&stats.TotalClicks).Error; err != nil {
		return Stats{}, fmt.Errorf("统计点击数失败: %w", err)
	}
	if err := db.Model(&model.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return Stats{}, fmt.Errorf("统计用户数量失败: %w", err)
	}
	return stats, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
