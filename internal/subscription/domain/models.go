package domain

import (
	"time"

	"github.com/smallbiznis/dojo/internal/plan"
)

// OverrideTTL is how long a manual plan assignment stays active.
const OverrideTTL = 30 * 24 * time.Hour

// Override is an administrator's manual plan assignment for a user. Expiry is
// judged at read time; expired rows stay until cleared or replaced.
type Override struct {
	UserID    string    `gorm:"primaryKey;type:text" json:"user_id"`
	PlanID    string    `gorm:"type:text;not null" json:"plan_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	UpdatedBy string    `gorm:"type:text;not null" json:"updated_by"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Override) TableName() string { return "subscription_overrides" }

// ActiveAt reports whether the override is still in force at now.
func (o Override) ActiveAt(now time.Time) bool {
	return now.Before(o.ExpiresAt)
}

// Actor is the caller changing an override.
type Actor struct {
	ID      string
	IsAdmin bool
}

type PlanSourceKind string

const (
	SourceOverride PlanSourceKind = "override"
	SourcePayment  PlanSourceKind = "payment"
)

type EffectivePlan struct {
	Plan      plan.Plan      `json:"plan"`
	Source    PlanSourceKind `json:"source"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

type ManualSubscription struct {
	PlanValue string    `json:"planValue"`
	PlanLabel string    `json:"planLabel"`
	ExpiresAt time.Time `json:"expiresAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
