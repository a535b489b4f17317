package notify

import (
	"context"
	"time"
)

// EventType names a billing event published to downstream consumers
type EventType string

const (
	EventPaymentSucceeded    EventType = "payment.succeeded"
	EventPaymentFailed       EventType = "payment.failed"
	EventRenewalRetry        EventType = "renewal.retry"
	EventSubscriptionEnded   EventType = "subscription.ended"
	EventReconciliationAlert EventType = "reconciliation.alert"
)

// Event is the message published for notification fan-out. Delivery is
// fire-and-forget; billing state never depends on a publish succeeding.
type Event struct {
	Type           EventType              `json:"type"`
	UserID         string                 `json:"user_id,omitempty"`
	SubscriptionID int64                  `json:"subscription_id,omitempty"`
	PaymentID      int64                  `json:"payment_id,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// Notifier publishes billing events
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}
