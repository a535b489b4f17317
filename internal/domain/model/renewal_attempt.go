package model

import (
	"database/sql/driver"
	"time"
)

// AttemptStatus represents the status of a renewal attempt
type AttemptStatus string

const (
	AttemptStatusPending    AttemptStatus = "pending"
	AttemptStatusProcessing AttemptStatus = "processing"
	AttemptStatusSucceeded  AttemptStatus = "succeeded"
	AttemptStatusFailed     AttemptStatus = "failed"
)

// Scan implements sql.Scanner interface
func (a *AttemptStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*a = AttemptStatus(v)
	case []byte:
		*a = AttemptStatus(v)
	default:
		*a = AttemptStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (a AttemptStatus) Value() (driver.Value, error) {
	return string(a), nil
}

// RenewalAttempt tracks one collection attempt in a subscription's billing
// cycle. attempt_number is strictly increasing per subscription; at most one
// attempt per subscription per period may sit in pending/processing.
type RenewalAttempt struct {
	ID             int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SubscriptionID int64         `gorm:"not null;index:idx_renewal_attempts_sub_status" json:"subscription_id"`
	AttemptNumber  int           `gorm:"not null;default:1" json:"attempt_number"`
	Status         AttemptStatus `gorm:"type:attempt_status;not null;default:'pending';index:idx_renewal_attempts_sub_status" json:"status"`

	PaymentIntentID *int64 `gorm:"index" json:"payment_intent_id,omitempty"`
	OrderID         *int64 `gorm:"index" json:"order_id,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	ScheduledAt time.Time  `gorm:"not null;index" json:"scheduled_at"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty"`
	SucceededAt *time.Time `json:"succeeded_at,omitempty"`

	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`

	// Relations
	Subscription *Subscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
}

// TableName specifies the table name for GORM
func (RenewalAttempt) TableName() string {
	return "renewal_attempts"
}
