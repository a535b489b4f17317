package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusIncomplete
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Terminal reports whether dunning may still act on the subscription.
// cancelled and unpaid are the two terminal-action outcomes.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusUnpaid
}

// Subscription is a recurring billing agreement for one product.
type Subscription struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_subscriptions_user_status" json:"user_id"`
	ProductID int64     `gorm:"not null" json:"product_id"`

	Status SubscriptionStatus `gorm:"type:subscription_status;not null;default:'incomplete';index:idx_subscriptions_user_status;index:idx_subscriptions_status_period_end" json:"status"`

	// Price snapshot used when the scheduler cuts a renewal order
	PriceAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_amount"`
	PriceCurrency string          `gorm:"size:3;default:'KES'" json:"price_currency"`

	CurrentPeriodStart time.Time `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time `gorm:"not null;index:idx_subscriptions_status_period_end" json:"current_period_end"`
	BillingAnchor      time.Time `json:"billing_anchor"`

	CancelAtPeriodEnd bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`

	TrialStart *time.Time `json:"trial_start,omitempty"`
	TrialEnd   *time.Time `json:"trial_end,omitempty"`

	// Grace window after a failed renewal before the terminal dunning
	// action revokes access
	GraceUntil *time.Time `json:"grace_until,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time  `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// NeedsRenewal reports whether the current period has lapsed on an
// active subscription.
func (s *Subscription) NeedsRenewal(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && !now.Before(s.CurrentPeriodEnd)
}

// InTrial reports whether the subscription is still inside its trial window.
func (s *Subscription) InTrial(now time.Time) bool {
	return s.TrialEnd != nil && now.Before(*s.TrialEnd)
}
