package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/dojo/internal/auth"
	checkoutdomain "github.com/smallbiznis/dojo/internal/checkout/domain"
	checkoutservice "github.com/smallbiznis/dojo/internal/checkout/service"
	"github.com/smallbiznis/dojo/internal/clock"
	"github.com/smallbiznis/dojo/internal/config"
	customerrepo "github.com/smallbiznis/dojo/internal/customer/repository"
	customerservice "github.com/smallbiznis/dojo/internal/customer/service"
	"github.com/smallbiznis/dojo/internal/errs"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/payment/paymenttest"
	paymentrepo "github.com/smallbiznis/dojo/internal/payment/repository"
	paymentservice "github.com/smallbiznis/dojo/internal/payment/service"
	"github.com/smallbiznis/dojo/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var student = auth.Principal{ID: "user_1", Email: "ana@example.com", Role: auth.RoleUser}

type harness struct {
	db       *gorm.DB
	gw       *paymenttest.Gateway
	checkout checkoutdomain.Service
	payments paymentdomain.Service
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE billing_customers (
		user_id TEXT PRIMARY KEY,
		billing_customer_id TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	)`).Error)
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
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{AppName: "dojo", Billing: config.BillingConfig{Currency: "mxn"}}
	catalog := plan.NewCatalog(config.DefaultPlans())
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	h := &harness{db: setupTestDB(t), gw: paymenttest.NewGateway()}
	links := customerrepo.Provide()
	customers := customerservice.NewService(customerservice.Params{
		DB:      h.db,
		Log:     zap.NewNop(),
		Clock:   clk,
		Repo:    links,
		Gateway: h.gw,
	})
	h.checkout = checkoutservice.NewService(checkoutservice.Params{
		Log:       zap.NewNop(),
		Cfg:       cfg,
		Catalog:   catalog,
		Gateway:   h.gw,
		Customers: customers,
	})
	h.payments = paymentservice.NewService(paymentservice.Params{
		DB:        h.db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Cfg:       cfg,
		Repo:      paymentrepo.Provide(),
		Customers: links,
		Gateway:   h.gw,
		Catalog:   catalog,
	})
	return h
}

func amount(v int64) *int64 { return &v }

func TestCreateIntentAmountBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		amount  *int64
		wantErr bool
	}{
		{name: "zero", amount: amount(0), wantErr: true},
		{name: "negative", amount: amount(-1), wantErr: true},
		{name: "missing", amount: nil, wantErr: true},
		{name: "positive", amount: amount(1500)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			res, err := h.checkout.CreateIntent(context.Background(), student, checkoutdomain.CreateIntentRequest{
				PaymentType: "one-time",
				Amount:      tc.amount,
			})
			if tc.wantErr {
				require.Error(t, err)
				vErr, ok := errs.AsValidation(err)
				require.True(t, ok)
				assert.Equal(t, "amount", vErr.Field)
				assert.Equal(t, 0, h.gw.TotalCalls())
				return
			}
			require.NoError(t, err)
			require.NotNil(t, res.Amount)
			assert.Equal(t, int64(1500), *res.Amount)
			assert.Equal(t, "mxn", res.Currency)
			assert.Equal(t, "one-time", res.PaymentType)
			assert.NotEmpty(t, res.ClientSecret)
		})
	}
}

func TestCreateIntentValidationHasNoSideEffects(t *testing.T) {
	cases := []struct {
		name  string
		req   checkoutdomain.CreateIntentRequest
		field string
	}{
		{name: "subscription without price", req: checkoutdomain.CreateIntentRequest{PaymentType: "subscription"}, field: "priceId"},
		{name: "unknown payment type", req: checkoutdomain.CreateIntentRequest{PaymentType: "monthly"}, field: "paymentType"},
		{name: "missing payment type", req: checkoutdomain.CreateIntentRequest{}, field: "paymentType"},
		{name: "bad email", req: checkoutdomain.CreateIntentRequest{PaymentType: "one-time", Amount: amount(100), CustomerEmail: "nope"}, field: "customerEmail"},
		{name: "unknown plan", req: checkoutdomain.CreateIntentRequest{PaymentType: "one-time", Amount: amount(100), PlanID: "platinum"}, field: "planId"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.checkout.CreateIntent(context.Background(), student, tc.req)
			vErr, ok := errs.AsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Equal(t, tc.field, vErr.Field)
			assert.Equal(t, 0, h.gw.TotalCalls())

			var links int64
			require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM billing_customers`).Scan(&links).Error)
			assert.Zero(t, links)
		})
	}
}

func TestCreateIntentRequiresPrincipal(t *testing.T) {
	h := newHarness(t)
	_, err := h.checkout.CreateIntent(context.Background(), auth.Principal{}, checkoutdomain.CreateIntentRequest{
		PaymentType: "one-time",
		Amount:      amount(100),
	})
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestCreateIntentSubscriptionUsesCatalogPrice(t *testing.T) {
	h := newHarness(t)
	res, err := h.checkout.CreateIntent(context.Background(), student, checkoutdomain.CreateIntentRequest{
		PaymentType: "subscription",
		PriceID:     "price_full_monthly",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Amount)
	assert.True(t, strings.HasPrefix(res.IntentID, "seti_"))

	assert.Equal(t, 0, h.gw.CallCount("RetrievePrice"))
	require.Len(t, h.gw.SetupIntents, 1)
	in := h.gw.SetupIntents[0]
	assert.Equal(t, res.CustomerID, in.CustomerID)
	assert.Equal(t, map[string]string{
		paymentdomain.MetadataUserID:      "user_1",
		paymentdomain.MetadataPaymentType: "subscription",
		paymentdomain.MetadataPriceID:     "price_full_monthly",
		paymentdomain.MetadataPlanID:      "full",
	}, in.Metadata)
	assert.True(t, strings.HasPrefix(in.IdempotencyKey, checkoutdomain.IdempotencyKeyPrefix))
}

func TestCreateIntentSubscriptionChecksUnknownPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.checkout.CreateIntent(ctx, student, checkoutdomain.CreateIntentRequest{
		PaymentType: "subscription",
		PriceID:     "price_missing",
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, 0, h.gw.CallCount("CreateCustomer"))

	h.gw.Prices["price_old"] = &paymentdomain.Price{ID: "price_old", Active: false}
	_, err = h.checkout.CreateIntent(ctx, student, checkoutdomain.CreateIntentRequest{
		PaymentType: "subscription",
		PriceID:     "price_old",
	})
	vErr, ok := errs.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "priceId", vErr.Field)

	h.gw.Prices["price_promo"] = &paymentdomain.Price{ID: "price_promo", ProductID: "prod_promo", Active: true}
	res, err := h.checkout.CreateIntent(ctx, student, checkoutdomain.CreateIntentRequest{
		PaymentType: "subscription",
		PriceID:     "price_promo",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.IntentID)
	require.Len(t, h.gw.SetupIntents, 1)
	assert.NotContains(t, h.gw.SetupIntents[0].Metadata, paymentdomain.MetadataPlanID)
}

func TestCreateIntentReusesCustomer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.checkout.CreateIntent(ctx, student, checkoutdomain.CreateIntentRequest{PaymentType: "one-time", Amount: amount(1500)})
	require.NoError(t, err)
	second, err := h.checkout.CreateIntent(ctx, student, checkoutdomain.CreateIntentRequest{PaymentType: "subscription", PriceID: "price_basic_monthly"})
	require.NoError(t, err)

	assert.Equal(t, first.CustomerID, second.CustomerID)
	assert.Equal(t, 1, h.gw.CallCount("CreateCustomer"))
	require.Len(t, h.gw.CustomerInputs, 1)
	assert.Equal(t, "ana@example.com", h.gw.CustomerInputs[0].Email)
	assert.NotEqual(t, h.gw.PaymentIntentIn[0].IdempotencyKey, h.gw.SetupIntents[0].IdempotencyKey)
}

func TestCheckoutThenSaveIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.checkout.CreateIntent(ctx, student, checkoutdomain.CreateIntentRequest{
		PaymentType: "one-time",
		Amount:      amount(1450),
		PlanID:      "basic",
	})
	require.NoError(t, err)
	require.Len(t, h.gw.PaymentIntentIn, 1)
	assert.Equal(t, "mxn", h.gw.PaymentIntentIn[0].Currency)
	assert.Equal(t, "basic", h.gw.PaymentIntentIn[0].Metadata[paymentdomain.MetadataPlanID])

	h.gw.SetIntentStatus(res.IntentID, paymentdomain.StatusSucceeded)

	payer := paymentdomain.Payer{UserID: student.ID, Email: student.Email}
	req := paymentdomain.SavePaymentRequest{PaymentIntentID: res.IntentID}
	_, err = h.payments.SavePayment(ctx, payer, req)
	require.NoError(t, err)
	record, err := h.payments.SavePayment(ctx, payer, req)
	require.NoError(t, err)

	var count int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(1) FROM payment_records WHERE external_intent_id = ?`, res.IntentID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, int64(1450), record.Amount)
	assert.Equal(t, paymentdomain.PaymentTypeOneTime, record.PaymentType)
	assert.Equal(t, paymentdomain.StatusSucceeded, record.Status)
	assert.Equal(t, student.ID, record.UserID)
	require.NotNil(t, record.PriceID)
	assert.Equal(t, "price_basic_monthly", *record.PriceID)
	// 1450 is below the basic monthly amount, so the plan is not granted.
	assert.False(t, record.PriceVerified)
	granted, err := h.payments.PlanForUser(ctx, student.ID)
	require.NoError(t, err)
	assert.Nil(t, granted)
}
