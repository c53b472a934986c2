package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MembershipType 会员档位
type MembershipType string

const (
	MembershipAnnual    MembershipType = "annual"
	MembershipLifetime  MembershipType = "lifetime"
	MembershipSupporter MembershipType = "supporter"
)

var ErrUnknownMembershipType = errors.New("unknown membership type")

// ParseMembershipType 严格解析，不认识的档位直接报错（不回退到 annual）
func ParseMembershipType(s string) (MembershipType, error) {
	switch t := MembershipType(strings.ToLower(strings.TrimSpace(s))); t {
	case MembershipAnnual, MembershipLifetime, MembershipSupporter:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMembershipType, s)
	}
}

// Recurring 是否按周期扣费（只有这种档位才会持有订阅号）
func (t MembershipType) Recurring() bool { return t == MembershipAnnual }

// MembershipStatus 本地会员状态（与 Stripe 自己的订阅状态无关）
type MembershipStatus string

const (
	StatusPending  MembershipStatus = "pending"
	StatusActive   MembershipStatus = "active"
	StatusExpired  MembershipStatus = "expired"
	StatusInactive MembershipStatus = "inactive"
)

var ErrUnknownMembershipStatus = errors.New("unknown membership status")

func ParseMembershipStatus(s string) (MembershipStatus, error) {
	switch st := MembershipStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusActive, StatusExpired, StatusInactive:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMembershipStatus, s)
	}
}

type User struct {
	ID                   string           `gorm:"primaryKey;size:32" json:"id"`
	Email                string           `gorm:"uniqueIndex;size:191;not null" json:"email"`
	Name                 string           `gorm:"size:100;not null" json:"name"`
	PasswordHash         string           `gorm:"size:191;not null" json:"-"`
	IsAdmin              bool             `gorm:"not null;default:false" json:"isAdmin"`
	MembershipType       *MembershipType  `gorm:"size:16" json:"membershipType"`
	MembershipStatus     MembershipStatus `gorm:"size:16;not null;default:pending;index" json:"membershipStatus"`
	StripeCustomerID     *string          `gorm:"size:255;uniqueIndex" json:"-"`
	StripeSubscriptionID *string          `gorm:"size:255" json:"-"`
	StatusEventAt        *time.Time       `json:"-"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

func (u *User) IsActiveMember() bool { return u.MembershipStatus == StatusActive }

// CustomerRef 未绑定 Stripe 客户时返回空串
func (u *User) CustomerRef() string {
	if u.StripeCustomerID == nil {
		return ""
	}
	return *u.StripeCustomerID
}

func (u *User) SubscriptionRef() string {
	if u.StripeSubscriptionID == nil {
		return ""
	}
	return *u.StripeSubscriptionID
}

// UserFilter 后台列表筛选
type UserFilter struct {
	Status MembershipStatus
	Query  string
	Offset int
	Limit  int
}

// UserRepository 查询方法在记录不存在时返回 (nil, nil)
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByCustomerRef(ctx context.Context, ref string) (*User, error)
	// Lock* 必须在事务内调用，对用户行加 FOR UPDATE 锁
	LockByID(ctx context.Context, id string) (*User, error)
	LockByCustomerRef(ctx context.Context, ref string) (*User, error)
	// BindCustomerRef 仅在 stripe_customer_id 仍为空时写入，返回是否写入成功
	BindCustomerRef(ctx context.Context, id, ref string) (bool, error)
	UpdateMembership(ctx context.Context, u *User) error
	List(ctx context.Context, f UserFilter) ([]User, int64, error)
	CountByStatus(ctx context.Context) (map[MembershipStatus]int64, error)
}
