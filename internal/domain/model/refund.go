package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the status of a refund
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled"
)

// Scan implements sql.Scanner interface
func (r *RefundStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*r = RefundStatus(v)
	case []byte:
		*r = RefundStatus(v)
	default:
		*r = RefundStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (r RefundStatus) Value() (driver.Value, error) {
	return string(r), nil
}

// Refund is a request to return funds for a settled payment. A completed
// refund posts reversed ledger entries against the original payment.
type Refund struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID int64           `gorm:"not null;index" json:"payment_id"`
	OrderID   int64           `gorm:"not null;index" json:"order_id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency  string          `gorm:"size:3;default:'KES'" json:"currency"`
	Reason    string          `gorm:"type:text" json:"reason,omitempty"`
	Status    RefundStatus    `gorm:"type:refund_status;not null;default:'pending';index" json:"status"`

	ProviderRefundID string `gorm:"size:100" json:"provider_refund_id,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"default:now()" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:now()" json:"updated_at"`

	// Relations
	Payment *Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}

// TableName specifies the table name for GORM
func (Refund) TableName() string {
	return "refunds"
}
