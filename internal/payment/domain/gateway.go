package domain

import "context"

// Metadata keys written on every gateway object the service creates.
const (
	MetadataUserID      = "user_id"
	MetadataPaymentType = "payment_type"
	MetadataPriceID     = "price_id"
	MetadataPlanID      = "plan_id"
)

type Customer struct {
	ID     string
	Email  string
	UserID string
}

type CreateCustomerInput struct {
	UserID         string
	Email          string
	IdempotencyKey string
}

type IntentInput struct {
	CustomerID     string
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
}

// PaymentIntent is the gateway view of a payment attempt. Status is already
// mapped onto the local status set.
type PaymentIntent struct {
	ID         string
	CustomerID string
	Amount     int64
	Currency   string
	Status     Status
	Metadata   map[string]string
	Invoice    InvoiceLookup
}

type Invoice struct {
	ID                 string
	SubscriptionID     string
	SubscriptionStatus string
}

type Price struct {
	ID         string
	ProductID  string
	Currency   string
	UnitAmount int64
	Active     bool
}

// Gateway is the payment provider. FindCustomerByUserID returns nil, nil when no
// customer is tagged with the user id. Reads surface a missing object as
// errs.ErrNotFound.
type Gateway interface {
	CreateCustomer(ctx context.Context, in CreateCustomerInput) (*Customer, error)
	FindCustomerByUserID(ctx context.Context, userID string) (*Customer, error)
	CreateSetupIntent(ctx context.Context, in IntentInput) (*Intent, error)
	CreatePaymentIntent(ctx context.Context, in IntentInput) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	RetrieveInvoice(ctx context.Context, id string) (*Invoice, error)
	RetrievePrice(ctx context.Context, id string) (*Price, error)
}
