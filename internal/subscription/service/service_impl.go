package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/dojo/internal/audit/domain"
	"github.com/smallbiznis/dojo/internal/clock"
	"github.com/smallbiznis/dojo/internal/errs"
	obsmetrics "github.com/smallbiznis/dojo/internal/observability/metrics"
	"github.com/smallbiznis/dojo/internal/plan"
	subscriptiondomain "github.com/smallbiznis/dojo/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       subscriptiondomain.Repository
	Catalog    *plan.Catalog
	Plans      subscriptiondomain.PlanSource
	Audit      auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	catalog    *plan.Catalog
	plans      subscriptiondomain.PlanSource
	audit      auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("subscription.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		catalog:    p.Catalog,
		plans:      p.Plans,
		audit:      p.Audit,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) SetOverride(ctx context.Context, actor subscriptiondomain.Actor, userID, planID string) (*subscriptiondomain.Override, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.Required("user_id")
	}
	planID = strings.TrimSpace(planID)
	if _, err := s.catalog.Require(planID); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.Invalid("plan", "plan must be one of: "+strings.Join(s.catalog.IDs(), ", ")), err)
	}

	now := s.clock.Now()
	override := &subscriptiondomain.Override{
		UserID:    userID,
		PlanID:    planID,
		ExpiresAt: now.Add(subscriptiondomain.OverrideTTL),
		UpdatedBy: actor.ID,
		UpdatedAt: now,
	}
	if err := s.repo.Replace(ctx, s.db, override); err != nil {
		s.log.Error("failed to replace subscription override", zap.String("user_id", userID), zap.Error(err))
		return nil, errs.Upstream("subscription_override.replace", true, err)
	}

	s.obsMetrics.RecordOverrideChange(ctx, "set")
	s.log.Info("subscription override set",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.String("actor_id", actor.ID),
		zap.Time("expires_at", override.ExpiresAt),
	)
	s.recordAudit(ctx, actor, subscriptiondomain.AuditActionSet, userID, map[string]any{
		"plan_id":    planID,
		"expires_at": override.ExpiresAt.Format(time.RFC3339),
	})
	return override, nil
}

func (s *Service) ClearOverride(ctx context.Context, actor subscriptiondomain.Actor, userID string) error {
	if err := authorize(actor); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errs.Required("user_id")
	}

	deleted, err := s.repo.Delete(ctx, s.db, userID)
	if err != nil {
		s.log.Error("failed to delete subscription override", zap.String("user_id", userID), zap.Error(err))
		return errs.Upstream("subscription_override.delete", true, err)
	}
	if !deleted {
		return nil
	}

	s.obsMetrics.RecordOverrideChange(ctx, "clear")
	s.log.Info("subscription override cleared", zap.String("user_id", userID), zap.String("actor_id", actor.ID))
	s.recordAudit(ctx, actor, subscriptiondomain.AuditActionClear, userID, nil)
	return nil
}

func (s *Service) GetOverride(ctx context.Context, userID string) (*subscriptiondomain.Override, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.Required("user_id")
	}
	override, err := s.repo.Get(ctx, s.db, userID)
	if err != nil {
		return nil, errs.Upstream("subscription_override.get", true, err)
	}
	if override == nil {
		return nil, fmt.Errorf("subscription override for %s: %w", userID, errs.ErrNotFound)
	}
	return override, nil
}

func (s *Service) GetEffectivePlan(ctx context.Context, userID string) (*subscriptiondomain.EffectivePlan, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.ErrUnauthenticated
	}

	override, ok, err := s.activeOverride(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		if p, found := s.catalog.Lookup(override.PlanID); found {
			expiresAt := override.ExpiresAt
			return &subscriptiondomain.EffectivePlan{
				Plan:      p,
				Source:    subscriptiondomain.SourceOverride,
				ExpiresAt: &expiresAt,
			}, nil
		}
		s.log.Warn("override names a plan missing from the catalog",
			zap.String("user_id", userID),
			zap.String("plan_id", override.PlanID),
		)
	}

	if s.plans == nil {
		return nil, nil
	}
	paid, err := s.plans.PlanForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if paid == nil {
		return nil, nil
	}
	return &subscriptiondomain.EffectivePlan{
		Plan:   *paid,
		Source: subscriptiondomain.SourcePayment,
	}, nil
}

func (s *Service) GetManualSubscription(ctx context.Context, userID string) (*subscriptiondomain.ManualSubscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errs.ErrUnauthenticated
	}

	override, ok, err := s.activeOverride(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}

	label := override.PlanID
	if p, found := s.catalog.Lookup(override.PlanID); found {
		label = p.Label
	}
	return &subscriptiondomain.ManualSubscription{
		PlanValue: override.PlanID,
		PlanLabel: label,
		ExpiresAt: override.ExpiresAt,
		UpdatedAt: override.UpdatedAt,
	}, nil
}

func (s *Service) activeOverride(ctx context.Context, userID string) (*subscriptiondomain.Override, bool, error) {
	override, err := s.repo.Get(ctx, s.db, userID)
	if err != nil {
		return nil, false, errs.Upstream("subscription_override.get", true, err)
	}
	if override == nil || !override.ActiveAt(s.clock.Now()) {
		return nil, false, nil
	}
	return override, true, nil
}

func (s *Service) recordAudit(ctx context.Context, actor subscriptiondomain.Actor, action, userID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	actorID := actor.ID
	targetID := userID
	if err := s.audit.AuditLog(ctx, string(auditdomain.ActorTypeAdmin), &actorID, action, subscriptiondomain.AuditTargetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to audit subscription override change",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func authorize(actor subscriptiondomain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return errs.ErrUnauthenticated
	}
	if !actor.IsAdmin {
		return errs.ErrPermissionDenied
	}
	return nil
}
