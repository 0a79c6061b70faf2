package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeOneTime      PaymentType = "one-time"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeSubscription, PaymentTypeOneTime:
		return true
	}
	return false
}

// ParsePaymentType normalizes raw input. The zero value is returned for anything
// that is not a known payment type.
func ParsePaymentType(raw string) (PaymentType, bool) {
	t := PaymentType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", false
	}
	return t, true
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// PaymentRecord is the local copy of a gateway payment intent. ExternalIntentID
// is the idempotency key for saves. PriceVerified marks a PriceID that the
// intent itself backs; unverified prices are descriptive and grant no plan.
type PaymentRecord struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	ExternalIntentID string       `json:"external_intent_id" gorm:"type:text;not null;uniqueIndex:payment_records_external_intent_id_key"`
	UserID           string       `json:"user_id" gorm:"type:text;not null;index"`
	Amount           int64        `json:"amount" gorm:"not null;default:0"`
	Currency         string       `json:"currency" gorm:"type:text;not null"`
	Status           Status       `json:"status" gorm:"type:text;not null"`
	PaymentType      PaymentType  `json:"payment_type" gorm:"type:text;not null"`
	PriceID          *string      `json:"price_id,omitempty" gorm:"type:text"`
	ProductID        *string      `json:"product_id,omitempty" gorm:"type:text"`
	PriceVerified    bool         `json:"price_verified" gorm:"not null;default:false"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payment_records" }
