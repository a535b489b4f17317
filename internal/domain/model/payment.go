package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the immutable record of a settled transaction. Exactly one
// row exists per successfully settled intent; provider_transaction_id is
// globally unique and doubles as the settlement dedup key.
type Payment struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentIntentID int64           `gorm:"not null;index" json:"payment_intent_id"`
	OrderID         int64           `gorm:"not null;index" json:"order_id"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency        string          `gorm:"size:3;default:'KES'" json:"currency"`

	Provider              string `gorm:"size:20;not null" json:"provider"`
	ProviderTransactionID string `gorm:"size:100;uniqueIndex;not null" json:"provider_transaction_id"`
	ProviderReceiptNumber string `gorm:"size:100" json:"provider_receipt_number"`

	PayerPhone string `gorm:"size:20" json:"payer_phone"`
	PayerName  string `gorm:"size:100" json:"payer_name"`

	Metadata  JSONB     `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time `gorm:"default:now();index" json:"created_at"`

	// Relations
	PaymentIntent *PaymentIntent `gorm:"foreignKey:PaymentIntentID" json:"payment_intent,omitempty"`
	Order         *Order         `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}
