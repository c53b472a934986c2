package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"terralumen/internal/domain"
)

var ErrDuplicate = errors.New("duplicate record")

// Store 基于 gorm 的 domain.Store；事务内会用 tx 重新构造一份
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Users() domain.UserRepository                 { return NewUserRepo(s.db) }
func (s *Store) Transactions() domain.TransactionRepository   { return NewTransactionRepo(s.db) }
func (s *Store) WebhookEvents() domain.WebhookEventRepository { return NewWebhookEventRepo(s.db) }

func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.UnitOfWork) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Migrate 建表/补列
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.User{}, &domain.MembershipTransaction{}, &domain.WebhookEvent{})
}

// IsDupKey 不依赖 gorm.ErrDuplicatedKey（需要开启 TranslateError），按驱动报错文本判断
func IsDupKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
