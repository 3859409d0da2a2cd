package model

import (
	"time"
)

// ShortLink 短链接模型，创建后只有 Clicks 会变化
type ShortLink struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ShortCode   string    `gorm:"size:32;uniqueIndex;not null" json:"short_code"`
	OriginalURL string    `gorm:"type:text;not null" json:"original_url"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	Clicks      int64     `gorm:"not null" json:"clicks"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (ShortLink) TableName() string {
	return "short_links"
}
