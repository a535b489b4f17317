package repository

import (
	"context"
	"time"

	"github.com/elimupay/billing/internal/domain/model"
)

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)

	// ListDueForRenewal returns active subscriptions whose current
	// period has lapsed
	ListDueForRenewal(ctx context.Context, now time.Time) ([]*model.Subscription, error)

	ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]*model.Subscription, error)

	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error

	// UpdateStatusIf transitions status only when the current status is
	// one of from; reports whether the row moved. Repeated dunning runs
	// applying a terminal action rely on this guard.
	UpdateStatusIf(ctx context.Context, id int64, from []model.SubscriptionStatus, to model.SubscriptionStatus, fields map[string]interface{}) (bool, error)
}
