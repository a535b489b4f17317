package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

// LedgerService posts double-entry records for money movements. Postings
// are validated to balance before they are written; an unbalanced set is
// rejected as a whole.
type LedgerService struct {
	ledgerRepo repository.LedgerRepository
	logger     *zap.Logger
}

// NewLedgerService creates a new ledger service instance
func NewLedgerService(ledgerRepo repository.LedgerRepository, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		ledgerRepo: ledgerRepo,
		logger:     logger,
	}
}

// validateBalanced rejects a posting set whose debits and credits differ
func validateBalanced(entries []*model.LedgerEntry) error {
	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.EntryType {
		case model.EntryTypeDebit:
			debits = debits.Add(e.Amount)
		case model.EntryTypeCredit:
			credits = credits.Add(e.Amount)
		default:
			return fmt.Errorf("unknown entry type: %s", e.EntryType)
		}
	}

	if !debits.Equal(credits) {
		return fmt.Errorf("unbalanced posting: debits %s, credits %s", debits, credits)
	}

	return nil
}

// RecordSettlement posts the standard settlement pair for a payment:
// debit the provider clearing asset, credit revenue.
func (s *LedgerService) RecordSettlement(ctx context.Context, payment *model.Payment) error {
	entries := []*model.LedgerEntry{
		{
			PaymentID:   &payment.ID,
			OrderID:     &payment.OrderID,
			EntryType:   model.EntryTypeDebit,
			AccountType: model.AccountTypeAsset,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
			Description: fmt.Sprintf("%s settlement %s", payment.Provider, payment.ProviderTransactionID),
		},
		{
			PaymentID:   &payment.ID,
			OrderID:     &payment.OrderID,
			EntryType:   model.EntryTypeCredit,
			AccountType: model.AccountTypeRevenue,
			Amount:      payment.Amount,
			Currency:    payment.Currency,
			Description: fmt.Sprintf("revenue for order %d", payment.OrderID),
		},
	}

	if err := validateBalanced(entries); err != nil {
		return err
	}

	if err := s.ledgerRepo.AppendEntries(ctx, entries); err != nil {
		return err
	}

	s.logger.Info("Settlement posted to ledger",
		zap.Int64("payment_id", payment.ID),
		zap.String("amount", payment.Amount.String()))

	return nil
}

// RecordRefund posts the reversal pair for a refund: debit revenue,
// credit the provider clearing asset.
func (s *LedgerService) RecordRefund(ctx context.Context, refund *model.Refund, payment *model.Payment) error {
	entries := []*model.LedgerEntry{
		{
			PaymentID:   &payment.ID,
			OrderID:     &payment.OrderID,
			RefundID:    &refund.ID,
			EntryType:   model.EntryTypeDebit,
			AccountType: model.AccountTypeRevenue,
			Amount:      refund.Amount,
			Currency:    refund.Currency,
			Description: fmt.Sprintf("refund for payment %d", payment.ID),
		},
		{
			PaymentID:   &payment.ID,
			OrderID:     &payment.OrderID,
			RefundID:    &refund.ID,
			EntryType:   model.EntryTypeCredit,
			AccountType: model.AccountTypeAsset,
			Amount:      refund.Amount,
			Currency:    refund.Currency,
			Description: fmt.Sprintf("%s reversal %s", payment.Provider, refund.ProviderRefundID),
		},
	}

	if err := validateBalanced(entries); err != nil {
		return err
	}

	if err := s.ledgerRepo.AppendEntries(ctx, entries); err != nil {
		return err
	}

	s.logger.Info("Refund posted to ledger",
		zap.Int64("refund_id", refund.ID),
		zap.String("amount", refund.Amount.String()))

	return nil
}
