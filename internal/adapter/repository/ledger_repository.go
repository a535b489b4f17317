package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

type ledgerRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *gorm.DB, logger *zap.Logger) repository.LedgerRepository {
	return &ledgerRepository{db: db, logger: logger}
}

func (r *ledgerRepository) AppendEntries(ctx context.Context, entries []*model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&entries).Error
	})

	if err != nil {
		r.logger.Error("Failed to append ledger entries",
			zap.Int("count", len(entries)),
			zap.Error(err))
		return fmt.Errorf("failed to append ledger entries: %w", err)
	}

	return nil
}

func (r *ledgerRepository) SumsByPayment(ctx context.Context, paymentID int64) (decimal.Decimal, decimal.Decimal, error) {
	type sums struct {
		EntryType string
		Total     decimal.Decimal
	}

	var rows []sums
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("entry_type, COALESCE(SUM(amount), 0) AS total").
		Where("payment_id = ?", paymentID).
		Group("entry_type").
		Scan(&rows).Error

	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	debits, credits := decimal.Zero, decimal.Zero
	for _, row := range rows {
		switch model.EntryType(row.EntryType) {
		case model.EntryTypeDebit:
			debits = row.Total
		case model.EntryTypeCredit:
			credits = row.Total
		}
	}

	return debits, credits, nil
}
