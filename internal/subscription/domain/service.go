package domain

import (
	"context"

	"github.com/smallbiznis/dojo/internal/plan"
)

// PlanSource derives a user's plan from completed payments.
type PlanSource interface {
	PlanForUser(ctx context.Context, userID string) (*plan.Plan, error)
}

type Service interface {
	SetOverride(ctx context.Context, actor Actor, userID, planID string) (*Override, error)
	ClearOverride(ctx context.Context, actor Actor, userID string) error
	// GetOverride returns the stored row even when it has expired.
	GetOverride(ctx context.Context, userID string) (*Override, error)
	GetEffectivePlan(ctx context.Context, userID string) (*EffectivePlan, error)
	GetManualSubscription(ctx context.Context, userID string) (*ManualSubscription, error)
}

const (
	AuditActionSet   = "subscription_override.set"
	AuditActionClear = "subscription_override.clear"
	AuditTargetType  = "subscription_override"
)
