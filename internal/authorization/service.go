package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/dojo/internal/auth"
)

var (
	ErrInvalidActor = errors.New("invalid_actor")
	ErrForbidden    = errors.New("forbidden")
)

type Service interface {
	// IsAdmin reports whether the principal may manage subscription overrides.
	IsAdmin(ctx context.Context, principal auth.Principal) (bool, error)
	GrantAdmin(ctx context.Context, userID string) error
	RevokeAdmin(ctx context.Context, userID string) error
}
