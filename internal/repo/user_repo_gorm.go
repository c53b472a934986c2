package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"terralumen/internal/domain"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.MembershipStatus == "" {
		u.MembershipStatus = domain.StatusPending
	}
	err := r.db.WithContext(ctx).Create(u).Error
	if err != nil && IsDupKey(err) {
		return ErrDuplicate
	}
	return err
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(r.db.WithContext(ctx), "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepo) FindByCustomerRef(ctx context.Context, ref string) (*domain.User, error) {
	if ref == "" {
		return nil, nil
	}
	return r.first(r.db.WithContext(ctx), "stripe_customer_id = ?", ref)
}

func (r *UserRepo) LockByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(r.forUpdate(ctx), "id = ?", id)
}

func (r *UserRepo) LockByCustomerRef(ctx context.Context, ref string) (*domain.User, error) {
	if ref == "" {
		return nil, nil
	}
	return r.first(r.forUpdate(ctx), "stripe_customer_id = ?", ref)
}

func (r *UserRepo) BindCustomerRef(ctx context.Context, id, ref string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND stripe_customer_id IS NULL", id).
		Updates(map[string]any{"stripe_customer_id": ref, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateMembership 只写会员相关列，nil 指针会落成 NULL
func (r *UserRepo) UpdateMembership(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"membership_type":        u.MembershipType,
			"membership_status":      u.MembershipStatus,
			"stripe_customer_id":     u.StripeCustomerID,
			"stripe_subscription_id": u.StripeSubscriptionID,
			"status_event_at":        u.StatusEventAt,
			"updated_at":             u.UpdatedAt,
		}).Error
}

func (r *UserRepo) List(ctx context.Context, f domain.UserFilter) ([]domain.User, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	tx := r.db.WithContext(ctx).Model(&domain.User{})
	if f.Status != "" {
		tx = tx.Where("membership_status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + s + "%"
		tx = tx.Where("email LIKE ? OR name LIKE ?", like, like)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []domain.User
	if err := tx.Offset(f.Offset).Limit(f.Limit).Order("created_at desc").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepo) CountByStatus(ctx context.Context) (map[domain.MembershipStatus]int64, error) {
	var rows []struct {
		MembershipStatus domain.MembershipStatus
		N                int64
	}
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Select("membership_status, COUNT(*) AS n").
		Group("membership_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.MembershipStatus]int64, len(rows))
	for _, row := range rows {
		out[row.MembershipStatus] = row.N
	}
	return out, nil
}

func (r *UserRepo) forUpdate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *UserRepo) first(q *gorm.DB, cond string, arg any) (*domain.User, error) {
	var u domain.User
	err := q.Where(cond, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
