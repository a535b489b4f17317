package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/elimupay/billing/internal/domain/model"
)

func TestValidateBalanced(t *testing.T) {
	t.Run("accepts a balanced pair", func(t *testing.T) {
		entries := []*model.LedgerEntry{
			{EntryType: model.EntryTypeDebit, Amount: decimal.NewFromInt(1000)},
			{EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(1000)},
		}

		assert.NoError(t, validateBalanced(entries))
	})

	t.Run("accepts a split posting that nets to zero", func(t *testing.T) {
		entries := []*model.LedgerEntry{
			{EntryType: model.EntryTypeDebit, Amount: decimal.NewFromInt(1000)},
			{EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(900)},
			{EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(100)},
		}

		assert.NoError(t, validateBalanced(entries))
	})

	t.Run("rejects an unbalanced posting", func(t *testing.T) {
		entries := []*model.LedgerEntry{
			{EntryType: model.EntryTypeDebit, Amount: decimal.NewFromInt(1000)},
			{EntryType: model.EntryTypeCredit, Amount: decimal.NewFromInt(500)},
		}

		err := validateBalanced(entries)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unbalanced")
	})

	t.Run("rejects an unknown entry type", func(t *testing.T) {
		entries := []*model.LedgerEntry{
			{EntryType: model.EntryType("transfer"), Amount: decimal.NewFromInt(1000)},
		}

		assert.Error(t, validateBalanced(entries))
	})
}
