package domain

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type EnsureRequest struct {
	UserID string
	Email  string
}

type Service interface {
	EnsureBillingCustomer(ctx context.Context, req EnsureRequest) (*Link, error)
}

// IdempotencyKey is the gateway key used when creating the customer for userID.
// Retries with the same email collapse onto one gateway customer. The email
// is folded into the key so a retry that corrects it is a new request instead
// of a parameter mismatch.
func IdempotencyKey(userID, email string) string {
	key := "customer_" + userID
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return key
	}
	return key + "_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(email)).String()
}
