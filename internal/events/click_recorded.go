package events

import (
	"context"
	"time"
)

// ClickRecorded 在一次跳转被计数后发出
type ClickRecorded struct {
	EventID    string    `json:"eventId"`
	ShortCode  string    `json:"shortCode"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Referer    string    `json:"referer,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher 点击事件投递
type Publisher interface {
	PublishClick(ctx context.Context, evt ClickRecorded) error
	Close() error
}

// NopPublisher 未配置消息队列时使用
type NopPublisher struct{}

func (NopPublisher) PublishClick(context.Context, ClickRecorded) error { return nil }
func (NopPublisher) Close() error                                      { return nil }
