package domain

import (
	"context"

	"github.com/smallbiznis/dojo/internal/auth"
)

// CreateIntentRequest is the body of a checkout request. Amount is in minor
// currency units and only applies to one-time payments.
type CreateIntentRequest struct {
	PaymentType   string `json:"paymentType" validate:"required,oneof=subscription one-time"`
	PriceID       string `json:"priceId,omitempty" validate:"omitempty,max=255"`
	Amount        *int64 `json:"amount,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty" validate:"omitempty,email"`
	PlanID        string `json:"planId,omitempty" validate:"omitempty,max=64"`
}

type IntentResult struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"intentId"`
	PaymentType  string `json:"paymentType"`
	CustomerID   string `json:"customerId"`
	Amount       *int64 `json:"amount,omitempty"`
	Currency     string `json:"currency"`
}

type Service interface {
	CreateIntent(ctx context.Context, principal auth.Principal, req CreateIntentRequest) (*IntentResult, error)
}

// IdempotencyKeyPrefix prefixes the per-request key sent with intent creation.
const IdempotencyKeyPrefix = "intent_"
