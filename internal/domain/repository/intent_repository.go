package repository

import (
	"context"
	"time"

	"github.com/elimupay/billing/internal/domain/model"
)

// IntentRepository persists payment intents
type IntentRepository interface {
	// Create inserts a new intent; returns ErrDuplicateKey when the
	// idempotency key is already taken
	Create(ctx context.Context, intent *model.PaymentIntent) error

	GetByID(ctx context.Context, id int64) (*model.PaymentIntent, error)

	// GetByIdempotencyKey returns nil, nil when no intent holds the key
	GetByIdempotencyKey(ctx context.Context, key string) (*model.PaymentIntent, error)

	// GetByCorrelationRef resolves a provider callback reference
	// (checkout request ID or provider transaction ID) to an intent
	GetByCorrelationRef(ctx context.Context, providerName, ref string) (*model.PaymentIntent, error)

	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error

	// UpdateStatusIf transitions status only when the current status is
	// one of from; reports whether the row was actually moved. This is
	// the compare-and-swap guard for concurrent sweeps.
	UpdateStatusIf(ctx context.Context, id int64, from []model.IntentStatus, to model.IntentStatus, fields map[string]interface{}) (bool, error)

	// CancelExpired moves intents past their expiry still in
	// created/requires_action to cancelled and returns how many rows
	// this invocation moved
	CancelExpired(ctx context.Context, now time.Time) (int64, error)
}
