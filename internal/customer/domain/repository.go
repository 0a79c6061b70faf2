package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Link, error)
	// Insert reports false when a link for the user already existed.
	Insert(ctx context.Context, db *gorm.DB, link *Link) (bool, error)
}
