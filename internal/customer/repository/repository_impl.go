package repository

import (
	"context"

	"github.com/smallbiznis/dojo/internal/customer/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Link, error) {
	var link domain.Link
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, billing_customer_id, created_at
		 FROM billing_customers
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&link).Error
	if err != nil {
		return nil, err
	}
	if link.UserID == "" {
		return nil, nil
	}
	return &link, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, link *domain.Link) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(link)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
