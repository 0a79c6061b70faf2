// Package paymenttest provides an in-memory payment gateway for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/dojo/internal/errs"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
)

// Gateway records every call and serves objects from its maps. Hooks run
// before the matching call and may return an error to fail it.
type Gateway struct {
	mu sync.Mutex

	Customers      map[string]*paymentdomain.Customer
	PaymentIntents map[string]*paymentdomain.PaymentIntent
	Invoices       map[string]*paymentdomain.Invoice
	Prices         map[string]*paymentdomain.Price

	InvoiceErr error
	PriceErr   error

	OnCreateCustomer func(in paymentdomain.CreateCustomerInput) error

	Calls           map[string]int
	CustomerInputs  []paymentdomain.CreateCustomerInput
	SetupIntents    []paymentdomain.IntentInput
	PaymentIntentIn []paymentdomain.IntentInput

	seq int
}

func NewGateway() *Gateway {
	return &Gateway{
		Customers:      map[string]*paymentdomain.Customer{},
		PaymentIntents: map[string]*paymentdomain.PaymentIntent{},
		Invoices:       map[string]*paymentdomain.Invoice{},
		Prices:         map[string]*paymentdomain.Price{},
		Calls:          map[string]int{},
	}
}

func (g *Gateway) CallCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Calls[name]
}

// TotalCalls counts every gateway call made so far.
func (g *Gateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.Calls {
		total += n
	}
	return total
}

func (g *Gateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *Gateway) CreateCustomer(ctx context.Context, in paymentdomain.CreateCustomerInput) (*paymentdomain.Customer, error) {
	g.mu.Lock()
	g.Calls["CreateCustomer"]++
	g.CustomerInputs = append(g.CustomerInputs, in)
	hook := g.OnCreateCustomer
	g.mu.Unlock()

	if hook != nil {
		if err := hook(in); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	cus := &paymentdomain.Customer{ID: g.next("cus"), Email: in.Email, UserID: in.UserID}
	g.Customers[cus.ID] = cus
	return cus, nil
}

func (g *Gateway) FindCustomerByUserID(ctx context.Context, userID string) (*paymentdomain.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["FindCustomerByUserID"]++
	for _, cus := range g.Customers {
		if cus.UserID == userID {
			return cus, nil
		}
	}
	return nil, nil
}

func (g *Gateway) CreateSetupIntent(ctx context.Context, in paymentdomain.IntentInput) (*paymentdomain.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["CreateSetupIntent"]++
	g.SetupIntents = append(g.SetupIntents, in)
	id := g.next("seti")
	return &paymentdomain.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, in paymentdomain.IntentInput) (*paymentdomain.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["CreatePaymentIntent"]++
	g.PaymentIntentIn = append(g.PaymentIntentIn, in)
	id := g.next("pi")
	g.PaymentIntents[id] = &paymentdomain.PaymentIntent{
		ID:         id,
		CustomerID: in.CustomerID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Status:     paymentdomain.StatusPending,
		Metadata:   in.Metadata,
		Invoice:    paymentdomain.InvoiceNotLinked{},
	}
	return &paymentdomain.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *Gateway) RetrievePaymentIntent(ctx context.Context, id string) (*paymentdomain.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["RetrievePaymentIntent"]++
	pi, ok := g.PaymentIntents[id]
	if !ok {
		return nil, fmt.Errorf("payment intent %s: %w", id, errs.ErrNotFound)
	}
	out := *pi
	return &out, nil
}

func (g *Gateway) RetrieveInvoice(ctx context.Context, id string) (*paymentdomain.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["RetrieveInvoice"]++
	if g.InvoiceErr != nil {
		return nil, g.InvoiceErr
	}
	inv, ok := g.Invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, errs.ErrNotFound)
	}
	out := *inv
	return &out, nil
}

func (g *Gateway) RetrievePrice(ctx context.Context, id string) (*paymentdomain.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["RetrievePrice"]++
	if g.PriceErr != nil {
		return nil, g.PriceErr
	}
	price, ok := g.Prices[id]
	if !ok {
		return nil, fmt.Errorf("price %s: %w", id, errs.ErrNotFound)
	}
	out := *price
	return &out, nil
}

// SetIntentStatus simulates the customer completing or failing the payment.
func (g *Gateway) SetIntentStatus(id string, status paymentdomain.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pi, ok := g.PaymentIntents[id]; ok {
		pi.Status = status
	}
}

var _ paymentdomain.Gateway = (*Gateway)(nil)
