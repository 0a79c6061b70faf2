package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindByExternalIntentID(ctx context.Context, db *gorm.DB, externalIntentID string) (*PaymentRecord, error)
	ListForUser(ctx context.Context, db *gorm.DB, userID string) ([]PaymentRecord, error)
	Exists(ctx context.Context, db *gorm.DB, externalIntentID string) (bool, error)
	// LatestSucceeded only considers records with a verified price.
	LatestSucceeded(ctx context.Context, db *gorm.DB, userID string) (*PaymentRecord, error)
}
