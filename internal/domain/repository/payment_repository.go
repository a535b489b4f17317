package repository

import (
	"context"
	"time"

	"github.com/elimupay/billing/internal/domain/model"
)

// PaymentRepository persists settled payment records
type PaymentRepository interface {
	// Create inserts the immutable settlement row; returns
	// ErrDuplicateKey when the provider transaction ID already exists
	Create(ctx context.Context, payment *model.Payment) error

	GetByID(ctx context.Context, id int64) (*model.Payment, error)

	GetByProviderTransactionID(ctx context.Context, txID string) (*model.Payment, error)

	// ListCreatedBetween returns payments settled inside the window,
	// order preloaded, for reconciliation
	ListCreatedBetween(ctx context.Context, start, end time.Time) ([]*model.Payment, error)
}
