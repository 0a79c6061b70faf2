package domain

import "strings"

// InvoiceLookup is the outcome of following a payment intent to its invoice.
// Exactly one of the variants below is used.
type InvoiceLookup interface {
	invoiceLookup()
}

// InvoiceNotLinked means the intent carries no invoice reference.
type InvoiceNotLinked struct{}

// InvoiceNotExpanded means only the invoice id is known.
type InvoiceNotExpanded struct {
	InvoiceID string
}

// InvoiceFound carries the subscription the invoice belongs to, if any.
type InvoiceFound struct {
	InvoiceID          string
	SubscriptionID     string
	SubscriptionStatus string
}

// InvoiceLookupFailed records a failed invoice read. It never matches.
type InvoiceLookupFailed struct {
	InvoiceID string
	Err       error
}

func (InvoiceNotLinked) invoiceLookup()    {}
func (InvoiceNotExpanded) invoiceLookup()  {}
func (InvoiceFound) invoiceLookup()        {}
func (InvoiceLookupFailed) invoiceLookup() {}

// HasActiveSubscription reports whether the invoice belongs to a subscription
// that has not reached a terminal state.
func (f InvoiceFound) HasActiveSubscription() bool {
	if strings.TrimSpace(f.SubscriptionID) == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(f.SubscriptionStatus)) {
	case "canceled", "incomplete_expired":
		return false
	}
	return true
}

// ResolvePaymentType classifies a payment. The first signal that matches wins:
// the explicit request type, the gateway metadata tag, then a live subscription
// on the linked invoice. Everything else is one-time.
func ResolvePaymentType(explicit PaymentType, metadataType string, invoice InvoiceLookup) PaymentType {
	if explicit.Valid() {
		return explicit
	}
	if t, ok := ParsePaymentType(metadataType); ok {
		return t
	}
	if found, ok := invoice.(InvoiceFound); ok && found.HasActiveSubscription() {
		return PaymentTypeSubscription
	}
	return PaymentTypeOneTime
}
