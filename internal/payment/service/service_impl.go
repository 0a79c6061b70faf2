package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dojo/internal/clock"
	"github.com/smallbiznis/dojo/internal/config"
	customerdomain "github.com/smallbiznis/dojo/internal/customer/domain"
	"github.com/smallbiznis/dojo/internal/errs"
	obsmetrics "github.com/smallbiznis/dojo/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/plan"
	"github.com/smallbiznis/dojo/internal/providers/email"
	"github.com/smallbiznis/dojo/internal/providers/pdf"
	"github.com/smallbiznis/dojo/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       paymentdomain.Repository
	Customers  customerdomain.Repository
	Gateway    paymentdomain.Gateway
	Catalog    *plan.Catalog
	Email      email.Provider      `optional:"true"`
	PDF        pdf.Provider        `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	appName    string
	currency   string
	repo       paymentdomain.Repository
	customers  customerdomain.Repository
	gateway    paymentdomain.Gateway
	catalog    *plan.Catalog
	email      email.Provider
	pdf        pdf.Provider
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	mailer := p.Email
	if mailer == nil {
		mailer = &email.NoOpProvider{}
	}
	renderer := p.PDF
	if renderer == nil {
		renderer = pdf.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		appName:    p.Cfg.AppName,
		currency:   strings.ToLower(p.Cfg.Billing.Currency),
		repo:       p.Repo,
		customers:  p.Customers,
		gateway:    p.Gateway,
		catalog:    p.Catalog,
		email:      mailer,
		pdf:        renderer,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) SavePayment(ctx context.Context, payer paymentdomain.Payer, req paymentdomain.SavePaymentRequest) (*paymentdomain.PaymentRecord, error) {
	userID := strings.TrimSpace(payer.UserID)
	if userID == "" {
		return nil, errs.ErrUnauthenticated
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return nil, errs.Required("paymentIntentId")
	}

	intent, err := s.gateway.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, userID, intent); err != nil {
		return nil, err
	}

	paymentType := s.resolvePaymentType(ctx, req, intent)
	priceID, productID := s.resolveProduct(ctx, req, intent)
	verified := priceID != "" && s.priceBacked(intent, priceID)
	if priceID != "" && !verified {
		s.log.Info("payment price is not backed by the intent, keeping it descriptive",
			zap.String("payment_intent_id", intent.ID),
			zap.String("price_id", priceID),
			zap.Int64("amount", intent.Amount),
		)
	}

	existed, err := s.repo.Exists(ctx, s.db, intent.ID)
	if err != nil {
		return nil, errs.Upstream("payment.exists", true, err)
	}

	now := s.clock.Now()
	record := &paymentdomain.PaymentRecord{
		ID:               s.genID.Generate(),
		ExternalIntentID: intent.ID,
		UserID:           userID,
		Amount:           intent.Amount,
		Currency:         strings.ToLower(intent.Currency),
		Status:           intent.Status,
		PaymentType:      paymentType,
		PriceID:          optional(priceID),
		ProductID:        optional(productID),
		PriceVerified:    verified,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if record.Amount < 0 {
		return nil, errs.Invalid("amount", "gateway reported a negative amount")
	}
	if !record.Status.Valid() {
		record.Status = paymentdomain.StatusPending
	}

	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		s.log.Error("failed to upsert payment record", zap.String("payment_intent_id", intent.ID), zap.Error(err))
		return nil, errs.Upstream("payment.upsert", true, err)
	}

	stored, err := s.repo.FindByExternalIntentID(ctx, s.db, intent.ID)
	if err != nil {
		return nil, errs.Upstream("payment.find", true, err)
	}
	if stored == nil {
		stored = record
	}

	s.obsMetrics.RecordPaymentSave(ctx, string(stored.PaymentType), string(stored.Status))
	s.log.Info("payment saved",
		zap.String("payment_intent_id", stored.ExternalIntentID),
		zap.String("user_id", stored.UserID),
		zap.String("status", string(stored.Status)),
		zap.String("payment_type", string(stored.PaymentType)),
		zap.Bool("created", !existed),
	)

	if !existed && stored.Status == paymentdomain.StatusSucceeded {
		s.sendReceipt(ctx, payer, stored)
	}
	return stored, nil
}

// checkOwner accepts an intent whose user metadata names the caller or whose
// gateway customer is the caller's billing customer. An intent without user
// metadata must belong to the caller's billing customer.
func (s *Service) checkOwner(ctx context.Context, userID string, intent *paymentdomain.PaymentIntent) error {
	owner := strings.TrimSpace(intent.Metadata[paymentdomain.MetadataUserID])
	deny := func(reason string) error {
		s.log.Warn("payment intent belongs to another user",
			zap.String("payment_intent_id", intent.ID),
			zap.String("user_id", userID),
			zap.String("reason", reason),
		)
		return fmt.Errorf("payment intent %s: %w", intent.ID, errs.ErrPermissionDenied)
	}

	if owner != "" && owner != userID {
		return deny("metadata_user")
	}
	customerID := strings.TrimSpace(intent.CustomerID)
	if customerID == "" {
		if owner == "" {
			return deny("no_owner")
		}
		return nil
	}

	link, err := s.customers.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return errs.Upstream("payment.customer_link", db.IsTransientErr(err), err)
	}
	switch {
	case link != nil && link.BillingCustomerID == customerID:
		return nil
	case link != nil:
		return deny("customer_mismatch")
	case owner == "":
		return deny("no_customer_link")
	}
	return nil
}

// priceBacked reports whether the intent itself vouches for priceID: it
// charged the monthly amount of the catalog plan selling that price, or it is
// a subscription intent created for exactly that price. Anything else is the
// caller's word only.
func (s *Service) priceBacked(intent *paymentdomain.PaymentIntent, priceID string) bool {
	p, ok := s.catalog.ByPriceID(priceID)
	if !ok {
		return false
	}
	if intent.Metadata[paymentdomain.MetadataPaymentType] == string(paymentdomain.PaymentTypeSubscription) &&
		strings.TrimSpace(intent.Metadata[paymentdomain.MetadataPriceID]) == priceID {
		return true
	}
	if s.currency != "" && !strings.EqualFold(intent.Currency, s.currency) {
		return false
	}
	return p.MonthlyAmount > 0 && intent.Amount == p.MonthlyAmount
}

// resolvePaymentType only follows the invoice when neither the request nor the
// intent metadata names a type.
func (s *Service) resolvePaymentType(ctx context.Context, req paymentdomain.SavePaymentRequest, intent *paymentdomain.PaymentIntent) paymentdomain.PaymentType {
	explicit, _ := paymentdomain.ParsePaymentType(req.PaymentType)
	metadataType := intent.Metadata[paymentdomain.MetadataPaymentType]
	if _, ok := paymentdomain.ParsePaymentType(metadataType); explicit.Valid() || ok {
		return paymentdomain.ResolvePaymentType(explicit, metadataType, intent.Invoice)
	}

	lookup := s.lookupInvoice(ctx, intent.Invoice)
	if failed, ok := lookup.(paymentdomain.InvoiceLookupFailed); ok {
		s.log.Warn("invoice lookup failed, treating payment as one-time",
			zap.String("payment_intent_id", intent.ID),
			zap.String("invoice_id", failed.InvoiceID),
			zap.Error(failed.Err),
		)
	}
	return paymentdomain.ResolvePaymentType(explicit, metadataType, lookup)
}

func (s *Service) lookupInvoice(ctx context.Context, lookup paymentdomain.InvoiceLookup) paymentdomain.InvoiceLookup {
	pending, ok := lookup.(paymentdomain.InvoiceNotExpanded)
	if !ok {
		if lookup == nil {
			return paymentdomain.InvoiceNotLinked{}
		}
		return lookup
	}
	inv, err := s.gateway.RetrieveInvoice(ctx, pending.InvoiceID)
	if err != nil {
		return paymentdomain.InvoiceLookupFailed{InvoiceID: pending.InvoiceID, Err: err}
	}
	return paymentdomain.InvoiceFound{
		InvoiceID:          inv.ID,
		SubscriptionID:     inv.SubscriptionID,
		SubscriptionStatus: inv.SubscriptionStatus,
	}
}

// resolveProduct picks the price from the request, then the intent metadata,
// then the catalog plan named in the metadata. The product comes from the
// catalog when it knows the price and from the gateway otherwise. A failed
// price read leaves the product empty.
func (s *Service) resolveProduct(ctx context.Context, req paymentdomain.SavePaymentRequest, intent *paymentdomain.PaymentIntent) (priceID, productID string) {
	priceID = strings.TrimSpace(req.PriceID)
	if priceID == "" {
		priceID = strings.TrimSpace(intent.Metadata[paymentdomain.MetadataPriceID])
	}
	if priceID == "" {
		if p, ok := s.catalog.Lookup(strings.TrimSpace(intent.Metadata[paymentdomain.MetadataPlanID])); ok {
			priceID = p.PriceID
		}
	}
	if priceID == "" {
		return "", ""
	}

	if p, ok := s.catalog.ByPriceID(priceID); ok && p.ProductID != "" {
		return priceID, p.ProductID
	}
	price, err := s.gateway.RetrievePrice(ctx, priceID)
	if err != nil {
		s.log.Warn("price lookup failed, saving payment without product",
			zap.String("payment_intent_id", intent.ID),
			zap.String("price_id", priceID),
			zap.Error(err),
		)
		return priceID, ""
	}
	return priceID, price.ProductID
}

func (s *Service) sendReceipt(ctx context.Context, payer paymentdomain.Payer, record *paymentdomain.PaymentRecord) {
	to := strings.TrimSpace(payer.Email)
	if to == "" {
		return
	}
	err := s.email.SendTemplate(ctx, []string{to}, email.TemplatePaymentReceipt, map[string]any{
		"amount":       paymentdomain.FormatAmount(record.Amount, record.Currency),
		"plan":         s.describe(record),
		"payment_type": string(record.PaymentType),
		"reference":    record.ExternalIntentID,
		"date":         record.UpdatedAt.Format("2006-01-02"),
	})
	if err != nil {
		s.log.Warn("failed to send payment receipt",
			zap.String("payment_intent_id", record.ExternalIntentID),
			zap.Error(err),
		)
	}
}

func (s *Service) describe(record *paymentdomain.PaymentRecord) string {
	if record.PriceID != nil {
		if p, ok := s.catalog.ByPriceID(*record.PriceID); ok {
			return p.Label
		}
	}
	if record.PaymentType == paymentdomain.PaymentTypeSubscription {
		return "Subscription"
	}
	return "One-time payment"
}

func (s *Service) ListPayments(ctx context.Context, userID string) ([]paymentdomain.PaymentRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.ErrUnauthenticated
	}
	items, err := s.repo.ListForUser(ctx, s.db, userID)
	if err != nil {
		return nil, errs.Upstream("payment.list", db.IsTransientErr(err), err)
	}
	if items == nil {
		items = []paymentdomain.PaymentRecord{}
	}
	return items, nil
}

func (s *Service) GetPayment(ctx context.Context, userID, externalIntentID string) (*paymentdomain.PaymentRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.ErrUnauthenticated
	}
	externalIntentID = strings.TrimSpace(externalIntentID)
	if externalIntentID == "" {
		return nil, errs.Required("paymentIntentId")
	}
	record, err := s.repo.FindByExternalIntentID(ctx, s.db, externalIntentID)
	if err != nil {
		return nil, errs.Upstream("payment.find", db.IsTransientErr(err), err)
	}
	// Records of other users are reported as missing.
	if record == nil || record.UserID != userID {
		return nil, errs.ErrNotFound
	}
	return record, nil
}

func (s *Service) RenderReceipt(ctx context.Context, payer paymentdomain.Payer, externalIntentID string) (io.Reader, error) {
	record, err := s.GetPayment(ctx, payer.UserID, externalIntentID)
	if err != nil {
		return nil, err
	}
	if record.Status != paymentdomain.StatusSucceeded {
		return nil, errs.Invalid("paymentIntentId", "receipts are only available for succeeded payments")
	}

	return s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		StudioName:  s.appName,
		Reference:   record.ExternalIntentID,
		DatePaid:    record.UpdatedAt.Format("2006-01-02"),
		BillToEmail: payer.Email,
		Description: s.describe(record),
		PaymentType: string(record.PaymentType),
		Amount:      paymentdomain.FormatAmount(record.Amount, record.Currency),
	})
}

func (s *Service) PlanForUser(ctx context.Context, userID string) (*plan.Plan, error) {
	record, err := s.repo.LatestSucceeded(ctx, s.db, userID)
	if err != nil {
		return nil, errs.Upstream("payment.latest_succeeded", db.IsTransientErr(err), err)
	}
	if record == nil || record.PriceID == nil {
		return nil, nil
	}
	p, ok := s.catalog.ByPriceID(*record.PriceID)
	if !ok {
		s.log.Debug("latest payment price is not in the catalog",
			zap.String("user_id", userID),
			zap.String("price_id", *record.PriceID),
		)
		return nil, nil
	}
	return &p, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
