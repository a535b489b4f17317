package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Scan implements sql.Scanner interface
func (o *OrderStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*o = OrderStatus(v)
	case []byte:
		*o = OrderStatus(v)
	default:
		*o = OrderStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (o OrderStatus) Value() (driver.Value, error) {
	return string(o), nil
}

// Order is the billing snapshot a payment collects against. The engine
// only creates renewal orders and moves status; catalog concerns live
// with the commerce collaborator.
type Order struct {
	ID     int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uuid.UUID   `gorm:"type:uuid;not null;index:idx_orders_user_status" json:"user_id"`
	Status OrderStatus `gorm:"type:order_status;not null;default:'pending';index:idx_orders_user_status" json:"status"`

	Subtotal       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"discount_amount"`
	Total          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	Currency       string          `gorm:"size:3;default:'KES'" json:"currency"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `gorm:"default:now();index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"default:now()" json:"updated_at"`

	// Relations
	LineItems []LineItem `gorm:"foreignKey:OrderID" json:"line_items,omitempty"`
}

// TableName specifies the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// LineItem is one product line on an order.
type LineItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64           `gorm:"not null;index" json:"order_id"`
	ProductID int64           `gorm:"not null" json:"product_id"`
	Quantity  int             `gorm:"not null;default:1" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Total     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`

	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (LineItem) TableName() string {
	return "line_items"
}
