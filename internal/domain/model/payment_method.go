package model

import (
	"time"

	"github.com/google/uuid"
)

// Method type constants
const (
	MethodTypeMpesa  = "mpesa"
	MethodTypeAirtel = "airtel"
)

// PaymentMethod is a stored collection target for a user. For mobile
// money this is a phone number; the default active method is the one
// renewal billing pushes to.
type PaymentMethod struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_payment_methods_user_default" json:"user_id"`
	MethodType string    `gorm:"size:20;not null" json:"method_type"`

	// Format: 2547XXXXXXXX
	PhoneNumber string `gorm:"size:20" json:"phone_number"`

	IsDefault bool `gorm:"default:false;index:idx_payment_methods_user_default" json:"is_default"`
	IsActive  bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PaymentMethod) TableName() string {
	return "payment_methods"
}
