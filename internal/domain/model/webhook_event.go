package model

import (
	"database/sql/driver"
	"time"
)

// WebhookStatus represents the processing status of a webhook event
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusFailed     WebhookStatus = "failed"
	WebhookStatusIgnored    WebhookStatus = "ignored"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// WebhookEvent stores an inbound provider notification for auditing and
// deduplication. provider_event_id is unique; a second delivery of the same
// event never reaches settlement logic. The raw payload is kept verbatim,
// business logic only sees the canonical parsed view.
type WebhookEvent struct {
	ID              int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider        string        `gorm:"size:20;not null;index:idx_webhook_events_provider_status" json:"provider"`
	ProviderEventID string        `gorm:"size:200;uniqueIndex;not null" json:"provider_event_id"`
	EventType       string        `gorm:"size:50;not null" json:"event_type"`
	Payload         JSONB         `gorm:"type:jsonb;not null" json:"payload"`
	Status          WebhookStatus `gorm:"type:webhook_status;not null;default:'pending';index:idx_webhook_events_provider_status" json:"status"`

	// How many times the provider delivered this event; redeliveries
	// bump the counter on the first row instead of inserting
	DeliveryCount int `gorm:"not null;default:1" json:"delivery_count"`
	ProcessedAt     *time.Time    `json:"processed_at,omitempty"`
	ErrorMessage    string        `gorm:"type:text" json:"error_message,omitempty"`

	// Linkage to the intent/payment the event resolved to
	PaymentIntentID *int64 `gorm:"index" json:"payment_intent_id,omitempty"`
	PaymentID       *int64 `gorm:"index" json:"payment_id,omitempty"`

	CreatedAt time.Time `gorm:"default:now();index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
