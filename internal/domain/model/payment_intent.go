package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntentStatus represents the lifecycle state of a payment intent
type IntentStatus string

const (
	IntentStatusCreated        IntentStatus = "created"
	IntentStatusRequiresAction IntentStatus = "requires_action"
	IntentStatusProcessing     IntentStatus = "processing"
	IntentStatusSucceeded      IntentStatus = "succeeded"
	IntentStatusFailed         IntentStatus = "failed"
	IntentStatusCancelled      IntentStatus = "cancelled"
)

// Scan implements sql.Scanner interface
func (s *IntentStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = IntentStatus(v)
	case []byte:
		*s = IntentStatus(v)
	default:
		*s = IntentStatusCreated
	}
	return nil
}

// Value implements driver.Valuer interface
func (s IntentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Terminal reports whether the status admits no further transitions.
func (s IntentStatus) Terminal() bool {
	return s == IntentStatusSucceeded || s == IntentStatusFailed || s == IntentStatusCancelled
}

// NextAction is the user-facing step required to complete an intent
type NextAction string

const (
	NextActionSTKPush  NextAction = "stk_push"
	NextActionCollect  NextAction = "collect"
	NextActionRedirect NextAction = "redirect"
	NextActionNone     NextAction = "none"
)

// PaymentIntent represents one attempt to collect payment for an order.
// The idempotency key uniquely identifies the logical creation attempt:
// replaying Create with the same key returns this row, never a second one.
type PaymentIntent struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID        int64           `gorm:"not null;index:idx_payment_intents_order_status" json:"order_id"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency       string          `gorm:"size:3;default:'KES'" json:"currency"`
	Provider       string          `gorm:"size:20;not null;index" json:"provider"`
	PaymentMethodID *int64         `json:"payment_method_id,omitempty"`
	Status         IntentStatus    `gorm:"type:intent_status;not null;default:'created';index:idx_payment_intents_order_status" json:"status"`
	NextAction     NextAction      `gorm:"size:20;default:'none'" json:"next_action"`
	IdempotencyKey string          `gorm:"size:100;uniqueIndex;not null" json:"idempotency_key"`

	// Provider correlation references. CheckoutRequestID is the M-Pesa
	// STK correlation key; Airtel correlates on the transaction reference.
	ProviderTransactionID string `gorm:"size:100;index" json:"provider_transaction_id"`
	CheckoutRequestID     string `gorm:"size:100;index" json:"checkout_request_id"`
	MerchantRequestID     string `gorm:"size:100" json:"merchant_request_id"`

	ProviderData JSONB  `gorm:"type:jsonb;default:'{}'" json:"provider_data"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`

	// Relations
	Order *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName specifies the table name for GORM
func (PaymentIntent) TableName() string {
	return "payment_intents"
}
