// Package testutil 测试用的 sqlite 库和种子数据
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"terralumen/internal/core/database"
	"terralumen/internal/domain"
	"terralumen/internal/repo"
	"terralumen/pkg/utils"
)

// OpenDB 每个测试一份独立的 sqlite 文件库；单连接，事务天然串行
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "test.db"),
		LogLevel:     "silent",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func NewStore(t *testing.T) *repo.Store {
	t.Helper()
	return repo.NewStore(OpenDB(t))
}

type UserOpt func(u *domain.User)

func WithCustomer(ref string) UserOpt {
	return func(u *domain.User) { u.StripeCustomerID = &ref }
}

func WithSubscription(ref string) UserOpt {
	return func(u *domain.User) { u.StripeSubscriptionID = &ref }
}

func WithMembership(t domain.MembershipType, s domain.MembershipStatus) UserOpt {
	return func(u *domain.User) {
		u.MembershipType = &t
		u.MembershipStatus = s
	}
}

func WithStatusEventAt(at time.Time) UserOpt {
	return func(u *domain.User) { u.StatusEventAt = &at }
}

func Admin() UserOpt {
	return func(u *domain.User) { u.IsAdmin = true }
}

// SeedUser 密码固定为 password123
func SeedUser(t *testing.T, s domain.Store, email string, opts ...UserOpt) *domain.User {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)
	u := &domain.User{
		ID:           utils.NewID(),
		Email:        email,
		Name:         "Member " + email,
		PasswordHash: hash,
	}
	for _, o := range opts {
		o(u)
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

// ReloadUser 读库里的最新状态
func ReloadUser(t *testing.T, s domain.Store, id string) *domain.User {
	t.Helper()
	u, err := s.Users().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}
