package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookRepository creates a new webhook event repository
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookRepository {
	return &webhookRepository{db: db, logger: logger}
}

// InsertIfAbsent relies on ON CONFLICT DO NOTHING against the unique
// provider_event_id index, so two concurrent deliveries of the same
// event race on a single atomic statement and exactly one wins.
func (r *webhookRepository) InsertIfAbsent(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)

	if result.Error != nil {
		r.logger.Error("Failed to insert webhook event",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to insert webhook event: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (r *webhookRepository) IncrementDelivery(ctx context.Context, providerEventID string) error {
	err := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", providerEventID).
		UpdateColumn("delivery_count", gorm.Expr("delivery_count + 1")).Error

	if err != nil {
		return fmt.Errorf("failed to increment delivery count: %w", err)
	}

	return nil
}

func (r *webhookRepository) MarkProcessed(ctx context.Context, id int64, intentID, paymentID *int64) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            model.WebhookStatusProcessed,
			"processed_at":      &now,
			"payment_intent_id": intentID,
			"payment_id":        paymentID,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook event processed",
			zap.Int64("event_id", id),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook event processed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %d", id)
	}

	return nil
}

func (r *webhookRepository) MarkFailed(ctx context.Context, id int64, intentID *int64, errMsg string) error {
	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            model.WebhookStatusFailed,
			"payment_intent_id": intentID,
			"error_message":     errMsg,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook event failed",
			zap.Int64("event_id", id),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook event failed: %w", result.Error)
	}

	return nil
}

func (r *webhookRepository) HasProcessedForPayment(ctx context.Context, paymentID int64) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("payment_id = ? AND status = ?", paymentID, model.WebhookStatusProcessed).
		Count(&count).Error

	if err != nil {
		return false, fmt.Errorf("failed to check processed webhook for payment: %w", err)
	}

	return count > 0, nil
}
