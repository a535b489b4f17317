package model

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType distinguishes the two sides of a ledger posting
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// Scan implements sql.Scanner interface
func (e *EntryType) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*e = EntryType(v)
	case []byte:
		*e = EntryType(v)
	default:
		return nil
	}
	return nil
}

// Value implements driver.Valuer interface
func (e EntryType) Value() (driver.Value, error) {
	return string(e), nil
}

// AccountType is the ledger account an entry posts against
type AccountType string

const (
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeLiability AccountType = "liability"
	AccountTypeExpense   AccountType = "expense"
	AccountTypeAsset     AccountType = "asset"
)

// LedgerEntry is an append-only double-entry record used for financial
// reconciliation. Entries are never updated or deleted.
type LedgerEntry struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID *int64 `gorm:"index" json:"payment_id,omitempty"`
	OrderID   *int64 `gorm:"index" json:"order_id,omitempty"`
	RefundID  *int64 `gorm:"index" json:"refund_id,omitempty"`

	EntryType   EntryType       `gorm:"type:entry_type;not null" json:"entry_type"`
	AccountType AccountType     `gorm:"size:20;not null;index" json:"account_type"`
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;default:'KES'" json:"currency"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Metadata    JSONB           `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"default:now();index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
