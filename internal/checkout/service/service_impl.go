package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/dojo/internal/auth"
	checkoutdomain "github.com/smallbiznis/dojo/internal/checkout/domain"
	"github.com/smallbiznis/dojo/internal/config"
	customerdomain "github.com/smallbiznis/dojo/internal/customer/domain"
	"github.com/smallbiznis/dojo/internal/errs"
	obsmetrics "github.com/smallbiznis/dojo/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultCurrency = "mxn"

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Catalog    *plan.Catalog
	Gateway    paymentdomain.Gateway
	Customers  customerdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	catalog    *plan.Catalog
	gateway    paymentdomain.Gateway
	customers  customerdomain.Service
	validate   *validator.Validate
	currency   string
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) checkoutdomain.Service {
	currency := strings.ToLower(strings.TrimSpace(p.Cfg.Billing.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return &Service{
		log:        p.Log.Named("checkout.service"),
		catalog:    p.Catalog,
		gateway:    p.Gateway,
		customers:  p.Customers,
		validate:   newValidator(),
		currency:   currency,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateIntent(ctx context.Context, principal auth.Principal, req checkoutdomain.CreateIntentRequest) (*checkoutdomain.IntentResult, error) {
	userID := strings.TrimSpace(principal.ID)
	if userID == "" {
		return nil, errs.ErrUnauthenticated
	}
	if err := validateRequest(s.validate, s.catalog, &req); err != nil {
		return nil, err
	}

	paymentType := paymentdomain.PaymentType(req.PaymentType)
	planID := req.PlanID

	if paymentType == paymentdomain.PaymentTypeSubscription {
		resolvedPlan, err := s.checkPrice(ctx, req.PriceID)
		if err != nil {
			return nil, err
		}
		if planID == "" {
			planID = resolvedPlan
		}
	}

	email := req.CustomerEmail
	if email == "" {
		email = strings.TrimSpace(principal.Email)
	}

	link, err := s.customers.EnsureBillingCustomer(ctx, customerdomain.EnsureRequest{
		UserID: userID,
		Email:  email,
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		paymentdomain.MetadataUserID:      userID,
		paymentdomain.MetadataPaymentType: string(paymentType),
	}
	if req.PriceID != "" {
		metadata[paymentdomain.MetadataPriceID] = req.PriceID
	}
	if planID != "" {
		metadata[paymentdomain.MetadataPlanID] = planID
	}

	input := paymentdomain.IntentInput{
		CustomerID:     link.BillingCustomerID,
		Currency:       s.currency,
		Metadata:       metadata,
		IdempotencyKey: checkoutdomain.IdempotencyKeyPrefix + ulid.Make().String(),
	}

	var intent *paymentdomain.Intent
	switch paymentType {
	case paymentdomain.PaymentTypeSubscription:
		intent, err = s.gateway.CreateSetupIntent(ctx, input)
	default:
		input.Amount = *req.Amount
		intent, err = s.gateway.CreatePaymentIntent(ctx, input)
	}
	if err != nil {
		s.log.Error("failed to create checkout intent",
			zap.String("user_id", userID),
			zap.String("payment_type", string(paymentType)),
			zap.Error(err),
		)
		return nil, err
	}

	s.obsMetrics.RecordCheckoutIntent(ctx, string(paymentType))
	s.log.Info("checkout intent created",
		zap.String("user_id", userID),
		zap.String("intent_id", intent.ID),
		zap.String("payment_type", string(paymentType)),
	)

	result := &checkoutdomain.IntentResult{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		PaymentType:  string(paymentType),
		CustomerID:   link.BillingCustomerID,
		Currency:     s.currency,
	}
	if paymentType == paymentdomain.PaymentTypeOneTime {
		amount := *req.Amount
		result.Amount = &amount
	}
	return result, nil
}

// checkPrice confirms the price exists and returns the catalog plan it
// belongs to, if any.
func (s *Service) checkPrice(ctx context.Context, priceID string) (string, error) {
	if p, ok := s.catalog.ByPriceID(priceID); ok {
		return p.ID, nil
	}

	price, err := s.gateway.RetrievePrice(ctx, priceID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", fmt.Errorf("price %s: %w", priceID, errs.ErrNotFound)
		}
		return "", err
	}
	if !price.Active {
		return "", errs.Invalid("priceId", "price is not active")
	}
	return "", nil
}
