package domain

import "time"

// Link ties an application user to their billing customer at the gateway.
// It is written once and never recreated.
type Link struct {
	UserID            string    `gorm:"primaryKey;type:text" json:"user_id"`
	BillingCustomerID string    `gorm:"type:text;not null;uniqueIndex:billing_customers_billing_customer_id_key" json:"billing_customer_id"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
}

func (Link) TableName() string { return "billing_customers" }
