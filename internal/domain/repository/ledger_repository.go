package repository

import (
	"context"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/shopspring/decimal"
)

// LedgerRepository appends double-entry records. There is deliberately
// no update or delete operation.
type LedgerRepository interface {
	// AppendEntries persists a balanced set of entries in one transaction
	AppendEntries(ctx context.Context, entries []*model.LedgerEntry) error

	// SumsByPayment returns the debit and credit totals posted against a
	// payment; used only by reconciliation
	SumsByPayment(ctx context.Context, paymentID int64) (debits, credits decimal.Decimal, err error)
}
