package repository

import (
	"context"

	"github.com/elimupay/billing/internal/domain/model"
)

// WebhookRepository persists inbound provider events
type WebhookRepository interface {
	// InsertIfAbsent atomically inserts the event keyed on
	// provider_event_id. inserted is false on a dedup hit; the check and
	// the insert are one statement, never a read followed by a write.
	InsertIfAbsent(ctx context.Context, event *model.WebhookEvent) (inserted bool, err error)

	// IncrementDelivery bumps the delivery counter on the winner row when
	// a redelivered event loses the dedup insert
	IncrementDelivery(ctx context.Context, providerEventID string) error

	// MarkProcessed finishes an event, linking the intent/payment it
	// resolved to
	MarkProcessed(ctx context.Context, id int64, intentID, paymentID *int64) error

	MarkFailed(ctx context.Context, id int64, intentID *int64, errMsg string) error

	// HasProcessedForPayment reports whether a processed event exists
	// for the payment; used only by reconciliation
	HasProcessedForPayment(ctx context.Context, paymentID int64) (bool, error)
}
