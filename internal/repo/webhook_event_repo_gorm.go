package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"terralumen/internal/domain"
)

type WebhookEventRepo struct{ db *gorm.DB }

func NewWebhookEventRepo(db *gorm.DB) *WebhookEventRepo { return &WebhookEventRepo{db: db} }

func (r *WebhookEventRepo) Record(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		if IsDupKey(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *WebhookEventRepo) SetOutcome(ctx context.Context, eventID, outcome string) error {
	return r.db.WithContext(ctx).Model(&domain.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("outcome", outcome).Error
}
