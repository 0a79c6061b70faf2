package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/dojo/internal/clock"
	"github.com/smallbiznis/dojo/internal/customer/domain"
	"github.com/smallbiznis/dojo/internal/errs"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/ratelimit"
	"github.com/smallbiznis/dojo/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Gateway paymentdomain.Gateway
	Limiter *ratelimit.CheckoutLimiter `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    domain.Repository
	gateway paymentdomain.Gateway
	limiter *ratelimit.CheckoutLimiter
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("customer.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		gateway: p.Gateway,
		limiter: p.Limiter,
	}
}

// EnsureBillingCustomer returns the user's billing customer, creating it at the
// gateway on first use. The link is stored before the caller issues any intent.
func (s *Service) EnsureBillingCustomer(ctx context.Context, req domain.EnsureRequest) (*domain.Link, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, errs.Required("user_id")
	}

	link, err := s.find(ctx, userID)
	if err != nil || link != nil {
		return link, err
	}

	token, locked, err := s.limiter.TryLockCustomer(ctx, userID)
	switch {
	case err != nil:
		s.log.Warn("customer lock unavailable, continuing without it", zap.String("user_id", userID), zap.Error(err))
	case !locked:
		link, err := s.find(ctx, userID)
		if err != nil || link != nil {
			return link, err
		}
		return nil, fmt.Errorf("billing customer creation in progress: %w", errs.ErrConflict)
	default:
		defer func() {
			if err := s.limiter.ReleaseCustomer(context.WithoutCancel(ctx), userID, token); err != nil {
				s.log.Warn("failed to release customer lock", zap.String("user_id", userID), zap.Error(err))
			}
		}()
		if link, err := s.find(ctx, userID); err != nil || link != nil {
			return link, err
		}
	}

	customer, err := s.gateway.FindCustomerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		s.log.Info("recovered billing customer from gateway",
			zap.String("user_id", userID),
			zap.String("billing_customer_id", customer.ID),
		)
	} else {
		email := strings.TrimSpace(req.Email)
		customer, err = s.gateway.CreateCustomer(ctx, paymentdomain.CreateCustomerInput{
			UserID:         userID,
			Email:          email,
			IdempotencyKey: domain.IdempotencyKey(userID, email),
		})
		if err != nil {
			return nil, err
		}
	}

	inserted, err := s.repo.Insert(ctx, s.db, &domain.Link{
		UserID:            userID,
		BillingCustomerID: customer.ID,
		CreatedAt:         s.clock.Now(),
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("billing customer %s already linked: %w", customer.ID, errs.ErrConflict)
		}
		return nil, errs.Upstream("customer.insert_link", db.IsTransientErr(err), err)
	}

	stored, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errs.Upstream("customer.find_link", true, fmt.Errorf("link for user %s missing after insert", userID))
	}
	if !inserted && stored.BillingCustomerID != customer.ID {
		s.log.Warn("orphaned billing customer after concurrent link",
			zap.String("user_id", userID),
			zap.String("billing_customer_id", stored.BillingCustomerID),
			zap.String("orphan_customer_id", customer.ID),
		)
	}
	return stored, nil
}

func (s *Service) find(ctx context.Context, userID string) (*domain.Link, error) {
	link, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, errs.Upstream("customer.find_link", true, err)
	}
	return link, nil
}
