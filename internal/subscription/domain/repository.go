package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, userID string) (*Override, error)
	// Replace inserts the override or overwrites every column of the
	// existing row for the same user.
	Replace(ctx context.Context, db *gorm.DB, override *Override) error
	Delete(ctx context.Context, db *gorm.DB, userID string) (bool, error)
}
