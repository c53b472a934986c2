package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"terralumen/internal/domain"
	"terralumen/pkg/utils"
)

type TransactionRepo struct{ db *gorm.DB }

func NewTransactionRepo(db *gorm.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Append INSERT ... ON CONFLICT DO NOTHING，冲突不会让外层事务失效
func (r *TransactionRepo) Append(ctx context.Context, t *domain.MembershipTransaction) (bool, error) {
	if t.ID == "" {
		t.ID = utils.NewID()
	}
	if t.Amount.IsNegative() {
		return false, errors.New("transaction amount must not be negative")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference"}}, DoNothing: true}).
		Create(t)
	if res.Error != nil {
		if IsDupKey(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *TransactionRepo) FindByID(ctx context.Context, id string) (*domain.MembershipTransaction, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *TransactionRepo) FindByReference(ctx context.Context, ref string) (*domain.MembershipTransaction, error) {
	return r.first(ctx, "reference = ?", ref)
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.MembershipTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Model(&domain.MembershipTransaction{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []domain.MembershipTransaction
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *TransactionRepo) MarkRefunded(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.MembershipTransaction{}).
		Where("id = ? AND status = ?", id, domain.PaymentCompleted).
		Updates(map[string]any{"status": domain.PaymentRefunded, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTransactionNotRefundable
	}
	return nil
}

func (r *TransactionRepo) first(ctx context.Context, cond string, arg any) (*domain.MembershipTransaction, error) {
	var t domain.MembershipTransaction
	err := r.db.WithContext(ctx).Where(cond, arg).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
