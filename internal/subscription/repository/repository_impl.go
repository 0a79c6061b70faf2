package repository

import (
	"context"

	"github.com/smallbiznis/dojo/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID string) (*domain.Override, error) {
	var override domain.Override
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, plan_id, expires_at, updated_by, updated_at
		 FROM subscription_overrides
		 WHERE user_id = ?`,
		userID,
	).Scan(&override).Error
	if err != nil {
		return nil, err
	}
	if override.UserID == "" {
		return nil, nil
	}
	return &override, nil
}

func (r *repo) Replace(ctx context.Context, db *gorm.DB, override *domain.Override) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan_id", "expires_at", "updated_by", "updated_at"}),
	}).Create(override).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM subscription_overrides WHERE user_id = ?`,
		userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
