package model

import (
	"time"
)

// ClickRecord 每次成功跳转记录一条
type ClickRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ShortCode string    `gorm:"size:32;not null;index" json:"short_code"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"type:text" json:"user_agent"`
	Referer   string    `gorm:"type:text" json:"referer"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ClickRecord) TableName() string {
	return "click_records"
}
