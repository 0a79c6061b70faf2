package repository

import (
	"context"

	"github.com/smallbiznis/dojo/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// upsertColumns are rewritten when an intent is saved again. user_id, id and
// created_at keep the values of the first save.
var upsertColumns = []string{
	"amount",
	"currency",
	"status",
	"payment_type",
	"price_id",
	"product_id",
	"price_verified",
	"updated_at",
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_intent_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(record).Error
}

func (r *repo) FindByExternalIntentID(ctx context.Context, db *gorm.DB, externalIntentID string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_intent_id, user_id, amount, currency, status,
			payment_type, price_id, product_id, price_verified, created_at, updated_at
		 FROM payment_records
		 WHERE external_intent_id = ?
		 LIMIT 1`,
		externalIntentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.PaymentRecord, error) {
	var items []domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_intent_id, user_id, amount, currency, status,
			payment_type, price_id, product_id, price_verified, created_at, updated_at
		 FROM payment_records
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, externalIntentID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_records WHERE external_intent_id = ?`,
		externalIntentID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) LatestSucceeded(ctx context.Context, db *gorm.DB, userID string) (*domain.PaymentRecord, error) {
	var item domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_intent_id, user_id, amount, currency, status,
			payment_type, price_id, product_id, price_verified, created_at, updated_at
		 FROM payment_records
		 WHERE user_id = ? AND status = ? AND price_verified = ?
		   AND price_id IS NOT NULL AND price_id <> ''
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
		domain.StatusSucceeded,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
