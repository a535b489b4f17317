package repository

import (
	"context"
	"time"

	"github.com/elimupay/billing/internal/domain/model"
)

// RenewalAttemptRepository persists billing cycle attempts
type RenewalAttemptRepository interface {
	Create(ctx context.Context, attempt *model.RenewalAttempt) error

	GetByID(ctx context.Context, id int64) (*model.RenewalAttempt, error)

	// CountBySubscription returns the number of attempts ever made for
	// the subscription; attempt_number is derived as count+1
	CountBySubscription(ctx context.Context, subscriptionID int64) (int64, error)

	// GetInFlight returns a pending/processing attempt scheduled at or
	// after since, or nil when none exists. The serializing guard
	// against double-billing under concurrent sweeps.
	GetInFlight(ctx context.Context, subscriptionID int64, since time.Time) (*model.RenewalAttempt, error)

	// GetFirstFailedSince returns the earliest failed attempt created at
	// or after since; dunning anchors its day arithmetic on this row
	GetFirstFailedSince(ctx context.Context, subscriptionID int64, since time.Time) (*model.RenewalAttempt, error)

	// GetByPaymentIntentID resolves the attempt an intent was collecting
	// for, nil when the intent was not a renewal
	GetByPaymentIntentID(ctx context.Context, intentID int64) (*model.RenewalAttempt, error)

	// HasAttemptSince reports whether any attempt was created strictly
	// after the given instant; dunning's one-retry-per-offset guard
	HasAttemptSince(ctx context.Context, subscriptionID int64, after time.Time) (bool, error)

	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
}
