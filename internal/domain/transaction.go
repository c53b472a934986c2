package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// 流水来源
const (
	SourceCheckoutRedirect = "checkout_redirect"
	SourceWebhook          = "webhook"
)

var ErrTransactionNotRefundable = errors.New("transaction is not refundable")

// MembershipTransaction 一次已入账的支付事实。创建后只允许修改 Status。
type MembershipTransaction struct {
	ID                    string          `gorm:"primaryKey;size:32" json:"id"`
	UserID                string          `gorm:"size:32;not null;index" json:"userId"`
	Reference             string          `gorm:"size:255;not null;uniqueIndex" json:"reference"`
	StripePaymentIntentID *string         `gorm:"size:255;index" json:"paymentIntentId,omitempty"`
	StripeSessionID       *string         `gorm:"size:255" json:"sessionId,omitempty"`
	StripeSubscriptionID  *string         `gorm:"size:255" json:"subscriptionId,omitempty"`
	Amount                decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency              string          `gorm:"size:3;not null;default:USD" json:"currency"`
	Status                PaymentStatus   `gorm:"size:16;not null;default:pending" json:"status"`
	MembershipType        MembershipType  `gorm:"size:16;not null" json:"membershipType"`
	Source                string          `gorm:"size:32;not null" json:"source"`
	EventAt               time.Time       `json:"eventAt"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

func (MembershipTransaction) TableName() string { return "membership_transactions" }

type TransactionRepository interface {
	// Append 按 Reference 去重插入；已存在时返回 false 且不报错
	Append(ctx context.Context, t *MembershipTransaction) (bool, error)
	FindByID(ctx context.Context, id string) (*MembershipTransaction, error)
	FindByReference(ctx context.Context, ref string) (*MembershipTransaction, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]MembershipTransaction, int64, error)
	// MarkRefunded completed → refunded，其他状态返回 ErrTransactionNotRefundable
	MarkRefunded(ctx context.Context, id string) error
}
