package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/dojo/internal/errs"
	obsmetrics "github.com/smallbiznis/dojo/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryDelay = 200 * time.Millisecond
)

type Config struct {
	SecretKey  string
	Timeout    time.Duration
	RetryDelay time.Duration
	// Backends overrides the stripe-go HTTP backends. Nil uses the live API.
	Backends *stripe.Backends
}

// Adapter implements paymentdomain.Gateway on top of the Stripe API. Reads are
// retried once on transient failures, mutations are never retried.
type Adapter struct {
	api        *client.API
	log        *zap.Logger
	metrics    *obsmetrics.Metrics
	timeout    time.Duration
	retryDelay time.Duration
}

func New(cfg Config, log *zap.Logger, metrics *obsmetrics.Metrics) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	backends := cfg.Backends
	if backends == nil {
		backends = NewBackends(nil)
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, backends)

	return &Adapter{
		api:        sc,
		log:        log.Named("payment.stripe"),
		metrics:    metrics,
		timeout:    timeout,
		retryDelay: retryDelay,
	}
}

// NewBackends builds stripe-go backends with the SDK's own network retries
// disabled, so the adapter alone decides what is retried.
func NewBackends(cfg *stripe.BackendConfig) *stripe.Backends {
	if cfg == nil {
		cfg = &stripe.BackendConfig{}
	}
	cfg.MaxNetworkRetries = stripe.Int64(0)
	if cfg.LeveledLogger == nil {
		cfg.LeveledLogger = &stripe.LeveledLogger{Level: stripe.LevelNull}
	}
	// GetBackendWithConfig fills defaults into the config it is given.
	api, connect, uploads := *cfg, *cfg, *cfg
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, &api),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &connect),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &uploads),
	}
}

func (a *Adapter) CreateCustomer(ctx context.Context, in paymentdomain.CreateCustomerInput) (*paymentdomain.Customer, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			paymentdomain.MetadataUserID: in.UserID,
		},
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		params.Email = stripe.String(email)
	}
	if in.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(in.IdempotencyKey)
	}

	var cus *stripe.Customer
	err := a.mutate(ctx, "stripe.create_customer", func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		cus, err = a.api.Customers.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("stripe customer created",
		zap.String("billing_customer_id", cus.ID),
		zap.String("user_id", in.UserID),
	)
	return toCustomer(cus), nil
}

func (a *Adapter) FindCustomerByUserID(ctx context.Context, userID string) (*paymentdomain.Customer, error) {
	query := fmt.Sprintf("metadata['%s']:'%s'", paymentdomain.MetadataUserID, escapeSearchValue(userID))

	var found *stripe.Customer
	err := a.read(ctx, "stripe.search_customer", func(callCtx context.Context) error {
		found = nil
		iter := a.api.Customers.Search(&stripe.CustomerSearchParams{
			SearchParams: stripe.SearchParams{
				Query:   query,
				Limit:   stripe.Int64(1),
				Context: callCtx,
			},
		})
		if iter.Next() {
			found = iter.Customer()
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}
	return toCustomer(found), nil
}

func (a *Adapter) CreateSetupIntent(ctx context.Context, in paymentdomain.IntentInput) (*paymentdomain.Intent, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(in.CustomerID),
		Usage:    stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(in.IdempotencyKey)
	}

	var si *stripe.SetupIntent
	err := a.mutate(ctx, "stripe.create_setup_intent", func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		si, err = a.api.SetupIntents.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &paymentdomain.Intent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func (a *Adapter) CreatePaymentIntent(ctx context.Context, in paymentdomain.IntentInput) (*paymentdomain.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		Customer: stripe.String(in.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(in.IdempotencyKey)
	}

	var pi *stripe.PaymentIntent
	err := a.mutate(ctx, "stripe.create_payment_intent", func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		pi, err = a.api.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &paymentdomain.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (a *Adapter) RetrievePaymentIntent(ctx context.Context, id string) (*paymentdomain.PaymentIntent, error) {
	var pi *stripe.PaymentIntent
	err := a.read(ctx, "stripe.retrieve_payment_intent", func(callCtx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = callCtx
		var err error
		pi, err = a.api.PaymentIntents.Get(id, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &paymentdomain.PaymentIntent{
		ID:       pi.ID,
		Amount:   pi.Amount,
		Currency: strings.ToLower(string(pi.Currency)),
		Status:   mapIntentStatus(pi),
		Metadata: pi.Metadata,
		Invoice:  invoiceLookup(pi.Invoice),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out, nil
}

func (a *Adapter) RetrieveInvoice(ctx context.Context, id string) (*paymentdomain.Invoice, error) {
	var inv *stripe.Invoice
	err := a.read(ctx, "stripe.retrieve_invoice", func(callCtx context.Context) error {
		params := &stripe.InvoiceParams{}
		params.Context = callCtx
		params.AddExpand("subscription")
		var err error
		inv, err = a.api.Invoices.Get(id, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &paymentdomain.Invoice{ID: inv.ID}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
		out.SubscriptionStatus = string(inv.Subscription.Status)
	}
	return out, nil
}

func (a *Adapter) RetrievePrice(ctx context.Context, id string) (*paymentdomain.Price, error) {
	var price *stripe.Price
	err := a.read(ctx, "stripe.retrieve_price", func(callCtx context.Context) error {
		params := &stripe.PriceParams{}
		params.Context = callCtx
		var err error
		price, err = a.api.Prices.Get(id, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &paymentdomain.Price{
		ID:         price.ID,
		Currency:   strings.ToLower(string(price.Currency)),
		UnitAmount: price.UnitAmount,
		Active:     price.Active,
	}
	if price.Product != nil {
		out.ProductID = price.Product.ID
	}
	return out, nil
}

func (a *Adapter) read(ctx context.Context, op string, call func(context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			a.metrics.RecordGatewayRetry(ctx, op)
			a.log.Warn("retrying gateway read", zap.String("operation", op))
		}
		err := a.mutate(ctx, op, call)
		if err == nil {
			return nil
		}
		if !errs.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.retryDelay), 1),
		ctx,
	)
	return backoff.Retry(operation, policy)
}

func (a *Adapter) mutate(ctx context.Context, op string, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := call(callCtx); err != nil {
		logStripeError(a.log, op, err)
		return mapError(op, err)
	}
	return nil
}

func mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
		}
		transient := stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.Type == stripe.ErrorTypeAPI
		return errs.Upstream(op, transient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Upstream(op, true, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.Upstream(op, true, err)
	}
	return errs.Upstream(op, false, err)
}

func mapIntentStatus(pi *stripe.PaymentIntent) paymentdomain.Status {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return paymentdomain.StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return paymentdomain.StatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return paymentdomain.StatusFailed
		}
	}
	return paymentdomain.StatusPending
}

// invoiceLookup classifies the invoice reference on an intent. An unexpanded
// reference only carries the id.
func invoiceLookup(inv *stripe.Invoice) paymentdomain.InvoiceLookup {
	if inv == nil || inv.ID == "" {
		return paymentdomain.InvoiceNotLinked{}
	}
	if inv.Object == "" {
		return paymentdomain.InvoiceNotExpanded{InvoiceID: inv.ID}
	}
	found := paymentdomain.InvoiceFound{InvoiceID: inv.ID}
	if inv.Subscription != nil {
		found.SubscriptionID = inv.Subscription.ID
		found.SubscriptionStatus = string(inv.Subscription.Status)
	}
	return found
}

func toCustomer(cus *stripe.Customer) *paymentdomain.Customer {
	return &paymentdomain.Customer{
		ID:     cus.ID,
		Email:  cus.Email,
		UserID: cus.Metadata[paymentdomain.MetadataUserID],
	}
}

// escapeSearchValue escapes backslashes and single quotes for a quoted
// search value. The replacer works in one pass, so added escapes are never
// escaped again.
func escapeSearchValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}

func logStripeError(log *zap.Logger, op string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Warn("stripe api error",
			zap.String("operation", op),
			zap.String("type", string(stripeErr.Type)),
			zap.String("code", string(stripeErr.Code)),
			zap.String("request_id", stripeErr.RequestID),
			zap.Int("status_code", stripeErr.HTTPStatusCode),
			zap.String("message", stripeErr.Msg),
		)
		return
	}
	log.Warn("stripe call failed", zap.String("operation", op), zap.Error(err))
}
