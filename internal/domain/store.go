package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent 已接收的 Stripe 事件回执，EventID 唯一，用于至少一次投递下的去重
type WebhookEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EventID   string         `gorm:"size:191;not null;uniqueIndex" json:"eventId"`
	Type      string         `gorm:"size:100;not null;index" json:"type"`
	Payload   datatypes.JSON `json:"payload"`
	Outcome   string         `gorm:"size:32;not null" json:"outcome"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

type WebhookEventRepository interface {
	// Record 已存在同一 EventID 时返回 false
	Record(ctx context.Context, e *WebhookEvent) (bool, error)
	SetOutcome(ctx context.Context, eventID, outcome string) error
}

// UnitOfWork 同一数据库会话（或事务）下的仓储集合
type UnitOfWork interface {
	Users() UserRepository
	Transactions() TransactionRepository
	WebhookEvents() WebhookEventRepository
}

// Store fn 返回错误时整个事务回滚
type Store interface {
	UnitOfWork
	WithinTx(ctx context.Context, fn func(tx UnitOfWork) error) error
}
