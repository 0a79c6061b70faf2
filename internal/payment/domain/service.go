package domain

import (
	"context"
	"io"

	"github.com/smallbiznis/dojo/internal/plan"
)

// Payer is the authenticated user a payment is saved for.
type Payer struct {
	UserID string
	Email  string
}

type SavePaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	PaymentType     string `json:"paymentType,omitempty"`
	PriceID         string `json:"priceId,omitempty"`
}

type Service interface {
	// SavePayment fetches the intent from the gateway and upserts the local
	// record. Saving the same intent again updates it in place.
	SavePayment(ctx context.Context, payer Payer, req SavePaymentRequest) (*PaymentRecord, error)
	ListPayments(ctx context.Context, userID string) ([]PaymentRecord, error)
	GetPayment(ctx context.Context, userID, externalIntentID string) (*PaymentRecord, error)
	RenderReceipt(ctx context.Context, payer Payer, externalIntentID string) (io.Reader, error)
	// PlanForUser derives the plan paid for by the newest succeeded payment.
	PlanForUser(ctx context.Context, userID string) (*plan.Plan, error)
}
