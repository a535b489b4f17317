package model

import "time"

// ProviderAccount holds per-provider API credentials. Gateways are
// constructed from one of these rows at startup.
type ProviderAccount struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider string `gorm:"size:20;not null;uniqueIndex:idx_provider_accounts_tenant_provider" json:"provider"`
	Tenant   string `gorm:"size:100;not null;uniqueIndex:idx_provider_accounts_tenant_provider" json:"tenant"`

	// M-Pesa Daraja
	MpesaConsumerKey    string `gorm:"size:200" json:"-"`
	MpesaConsumerSecret string `gorm:"size:200" json:"-"`
	MpesaShortcode      string `gorm:"size:20" json:"mpesa_shortcode,omitempty"`
	MpesaPasskey        string `gorm:"size:200" json:"-"`

	// Airtel Money
	AirtelClientID     string `gorm:"size:200" json:"-"`
	AirtelClientSecret string `gorm:"size:200" json:"-"`

	// sandbox or production
	Environment string `gorm:"size:20;default:'sandbox'" json:"environment"`

	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ProviderAccount) TableName() string {
	return "provider_accounts"
}
