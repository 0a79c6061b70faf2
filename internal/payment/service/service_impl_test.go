package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/dojo/internal/clock"
	"github.com/smallbiznis/dojo/internal/config"
	customerdomain "github.com/smallbiznis/dojo/internal/customer/domain"
	customerrepo "github.com/smallbiznis/dojo/internal/customer/repository"
	"github.com/smallbiznis/dojo/internal/errs"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/payment/paymenttest"
	paymentrepo "github.com/smallbiznis/dojo/internal/payment/repository"
	paymentservice "github.com/smallbiznis/dojo/internal/payment/service"
	"github.com/smallbiznis/dojo/internal/plan"
	"github.com/smallbiznis/dojo/internal/providers/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sentMail struct {
	to       []string
	template string
	data     map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.err
}

func (m *fakeMailer) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, template: templateName, data: data})
	return m.err
}

type fakePDF struct {
	last pdf.ReceiptData
}

func (p *fakePDF) GenerateReceipt(ctx context.Context, data pdf.ReceiptData) (io.Reader, error) {
	p.last = data
	return strings.NewReader("%PDF-fake"), nil
}

type harness struct {
	db     *gorm.DB
	gw     *paymenttest.Gateway
	mailer *fakeMailer
	pdf    *fakePDF
	svc    paymentdomain.Service
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE payment_records (
		id INTEGER PRIMARY KEY,
		external_intent_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		price_id TEXT,
		product_id TEXT,
		price_verified BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE billing_customers (
		user_id TEXT PRIMARY KEY,
		billing_customer_id TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	)`).Error)
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		db:     setupTestDB(t),
		gw:     paymenttest.NewGateway(),
		mailer: &fakeMailer{},
		pdf:    &fakePDF{},
	}
	customers := customerrepo.Provide()
	_, err = customers.Insert(context.Background(), h.db, &customerdomain.Link{
		UserID:            "user_1",
		BillingCustomerID: "cus_1",
		CreatedAt:         time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	h.svc = paymentservice.NewService(paymentservice.Params{
		DB:        h.db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
		Cfg:       config.Config{AppName: "dojo", Billing: config.BillingConfig{Currency: "mxn"}},
		Repo:      paymentrepo.Provide(),
		Customers: customers,
		Gateway:   h.gw,
		Catalog:   plan.NewCatalog(config.DefaultPlans()),
		Email:     h.mailer,
		PDF:       h.pdf,
	})
	return h
}

func (h *harness) addIntent(id string, status paymentdomain.Status, metadata map[string]string, invoice paymentdomain.InvoiceLookup) {
	if invoice == nil {
		invoice = paymentdomain.InvoiceNotLinked{}
	}
	h.gw.PaymentIntents[id] = &paymentdomain.PaymentIntent{
		ID:         id,
		CustomerID: "cus_1",
		Amount:     145000,
		Currency:   "MXN",
		Status:     status,
		Metadata:   metadata,
		Invoice:    invoice,
	}
}

func (h *harness) countRecords(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM payment_records`).Scan(&count).Error)
	return count
}

var payer = paymentdomain.Payer{UserID: "user_1", Email: "ana@example.com"}

func TestSavePaymentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusPending, map[string]string{
		paymentdomain.MetadataUserID: "user_1",
		paymentdomain.MetadataPlanID: "basic",
	}, nil)

	first, err := h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPending, first.Status)

	h.gw.SetIntentStatus("pi_1", paymentdomain.StatusSucceeded)
	second, err := h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), h.countRecords(t))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, paymentdomain.StatusSucceeded, second.Status)
	assert.Equal(t, paymentdomain.PaymentTypeOneTime, second.PaymentType)
	assert.Equal(t, "mxn", second.Currency)
	require.NotNil(t, second.PriceID)
	assert.Equal(t, "price_basic_monthly", *second.PriceID)
	require.NotNil(t, second.ProductID)
	assert.Equal(t, "prod_basic", *second.ProductID)
	assert.True(t, second.PriceVerified)
}

func TestSavePaymentTypeFromMetadata(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataPaymentType: "subscription",
	}, paymentdomain.InvoiceNotExpanded{InvoiceID: "in_1"})

	record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentTypeSubscription, record.PaymentType)
	assert.Equal(t, 0, h.gw.CallCount("RetrieveInvoice"))
}

func TestSavePaymentExplicitTypeWins(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataPaymentType: "subscription",
	}, nil)

	record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{
		PaymentIntentID: "pi_1",
		PaymentType:     "one-time",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentTypeOneTime, record.PaymentType)
}

func TestSavePaymentTypeFromInvoiceSubscription(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, nil, paymentdomain.InvoiceNotExpanded{InvoiceID: "in_1"})
	h.gw.Invoices["in_1"] = &paymentdomain.Invoice{ID: "in_1", SubscriptionID: "sub_1", SubscriptionStatus: "active"}

	record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentTypeSubscription, record.PaymentType)
	assert.Equal(t, 1, h.gw.CallCount("RetrieveInvoice"))
}

func TestSavePaymentInvoiceLookupFailureFallsBackToOneTime(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, nil, paymentdomain.InvoiceNotExpanded{InvoiceID: "in_1"})
	h.gw.InvoiceErr = errs.Upstream("stripe.retrieve_invoice", true, errors.New("timeout"))

	record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentTypeOneTime, record.PaymentType)
}

func TestSavePaymentRejectsForeignIntent(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataUserID: "user_2",
	}, nil)

	_, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	assert.True(t, errors.Is(err, errs.ErrPermissionDenied))
	assert.Equal(t, int64(0), h.countRecords(t))
}

func TestSavePaymentOwnershipByCustomer(t *testing.T) {
	cases := []struct {
		name       string
		customerID string
		metadata   map[string]string
		payer      paymentdomain.Payer
		wantErr    bool
	}{
		{name: "own customer without metadata", customerID: "cus_1", payer: payer},
		{name: "foreign customer without metadata", customerID: "cus_someone_else", payer: payer, wantErr: true},
		{name: "no customer and no metadata", payer: payer, wantErr: true},
		{
			name:       "foreign customer with own metadata",
			customerID: "cus_someone_else",
			metadata:   map[string]string{paymentdomain.MetadataUserID: "user_1"},
			payer:      payer,
			wantErr:    true,
		},
		{
			name:       "caller without customer link",
			customerID: "cus_1",
			payer:      paymentdomain.Payer{UserID: "user_3"},
			wantErr:    true,
		},
		{
			name:       "metadata owner before the link exists",
			customerID: "cus_new",
			metadata:   map[string]string{paymentdomain.MetadataUserID: "user_3"},
			payer:      paymentdomain.Payer{UserID: "user_3"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.addIntent("pi_1", paymentdomain.StatusSucceeded, tc.metadata, nil)
			h.gw.PaymentIntents["pi_1"].CustomerID = tc.customerID

			record, err := h.svc.SavePayment(context.Background(), tc.payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
			if tc.wantErr {
				assert.ErrorIs(t, err, errs.ErrPermissionDenied)
				assert.Equal(t, int64(0), h.countRecords(t))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.payer.UserID, record.UserID)
		})
	}
}

func TestSavePaymentClaimedPriceDoesNotGrantPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addIntent("pi_cheap", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataUserID:      "user_1",
		paymentdomain.MetadataPaymentType: "one-time",
		paymentdomain.MetadataPriceID:     "price_full_monthly",
	}, nil)
	h.gw.PaymentIntents["pi_cheap"].Amount = 1

	record, err := h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{
		PaymentIntentID: "pi_cheap",
		PriceID:         "price_full_monthly",
	})
	require.NoError(t, err)
	require.NotNil(t, record.PriceID)
	assert.Equal(t, "price_full_monthly", *record.PriceID)
	assert.False(t, record.PriceVerified)

	got, err := h.svc.PlanForUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSavePaymentPriceVerification(t *testing.T) {
	cases := []struct {
		name     string
		amount   int64
		currency string
		metadata map[string]string
		priceID  string
		want     bool
	}{
		{name: "amount matches plan", amount: 195000, currency: "MXN", priceID: "price_full_monthly", want: true},
		{name: "amount of another plan", amount: 145000, currency: "MXN", priceID: "price_full_monthly"},
		{name: "other currency", amount: 195000, currency: "USD", priceID: "price_full_monthly"},
		{
			name:     "subscription intent for the price",
			amount:   0,
			currency: "MXN",
			metadata: map[string]string{
				paymentdomain.MetadataPaymentType: "subscription",
				paymentdomain.MetadataPriceID:     "price_full_monthly",
			},
			want: true,
		},
		{
			name:     "request price differs from subscription metadata",
			amount:   0,
			currency: "MXN",
			metadata: map[string]string{
				paymentdomain.MetadataPaymentType: "subscription",
				paymentdomain.MetadataPriceID:     "price_kids_monthly",
			},
			priceID: "price_full_monthly",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.addIntent("pi_1", paymentdomain.StatusSucceeded, tc.metadata, nil)
			h.gw.PaymentIntents["pi_1"].Amount = tc.amount
			h.gw.PaymentIntents["pi_1"].Currency = tc.currency

			record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{
				PaymentIntentID: "pi_1",
				PriceID:         tc.priceID,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, record.PriceVerified)
		})
	}
}

func TestSavePaymentValidatesInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{})
	vErr, ok := errs.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "paymentIntentId", vErr.Field)

	_, err = h.svc.SavePayment(context.Background(), paymentdomain.Payer{}, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	assert.True(t, errors.Is(err, errs.ErrUnauthenticated))
	assert.Equal(t, 0, h.gw.TotalCalls())
}

func TestSavePaymentUnknownIntent(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_missing"})
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestSavePaymentProductFromGateway(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataPriceID: "price_promo",
	}, nil)
	h.gw.Prices["price_promo"] = &paymentdomain.Price{ID: "price_promo", ProductID: "prod_promo"}

	record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	require.NotNil(t, record.ProductID)
	assert.Equal(t, "prod_promo", *record.ProductID)
}

func TestSavePaymentPriceLookupFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, nil, nil)
	h.gw.PriceErr = errs.Upstream("stripe.retrieve_price", true, errors.New("timeout"))

	record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{
		PaymentIntentID: "pi_1",
		PriceID:         "price_promo",
	})
	require.NoError(t, err)
	require.NotNil(t, record.PriceID)
	assert.Equal(t, "price_promo", *record.PriceID)
	assert.Nil(t, record.ProductID)
}

func TestReceiptSentOnceForFirstSucceededSave(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataPlanID: "basic",
	}, nil)

	_, err := h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	_, err = h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, []string{"ana@example.com"}, h.mailer.sent[0].to)
	assert.Equal(t, "1,450.00 MXN", h.mailer.sent[0].data["amount"])
	assert.Equal(t, "Plan Básico", h.mailer.sent[0].data["plan"])
}

func TestReceiptFailureDoesNotFailSave(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("smtp down")
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, nil, nil)

	record, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	assert.NotNil(t, record)
}

func TestNoReceiptForPendingPayment(t *testing.T) {
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusPending, nil, nil)

	_, err := h.svc.SavePayment(context.Background(), payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)
	assert.Empty(t, h.mailer.sent)
}

func TestPlanForUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	got, err := h.svc.PlanForUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Nil(t, got)

	h.addIntent("pi_1", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataPriceID: "price_full_monthly",
	}, nil)
	h.gw.PaymentIntents["pi_1"].Amount = 195000
	_, err = h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)

	got, err = h.svc.PlanForUser(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "full", got.ID)
}

func TestGetPaymentHidesOtherUsers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addIntent("pi_1", paymentdomain.StatusSucceeded, nil, nil)
	_, err := h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{PaymentIntentID: "pi_1"})
	require.NoError(t, err)

	_, err = h.svc.GetPayment(ctx, "user_2", "pi_1")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	list, err := h.svc.ListPayments(ctx, "user_2")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = h.svc.ListPayments(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRenderReceipt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addIntent("pi_paid", paymentdomain.StatusSucceeded, map[string]string{
		paymentdomain.MetadataPlanID: "kids",
	}, nil)
	h.addIntent("pi_pending", paymentdomain.StatusPending, nil, nil)
	for _, id := range []string{"pi_paid", "pi_pending"} {
		_, err := h.svc.SavePayment(ctx, payer, paymentdomain.SavePaymentRequest{PaymentIntentID: id})
		require.NoError(t, err)
	}

	r, err := h.svc.RenderReceipt(ctx, payer, "pi_paid")
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(body))
	assert.Equal(t, "Plan Infantil", h.pdf.last.Description)
	assert.Equal(t, "1,450.00 MXN", h.pdf.last.Amount)

	_, err = h.svc.RenderReceipt(ctx, payer, "pi_pending")
	_, ok := errs.AsValidation(err)
	assert.True(t, ok)
}
