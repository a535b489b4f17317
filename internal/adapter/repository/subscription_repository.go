package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).First(&sub, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

func (r *subscriptionRepository) ListDueForRenewal(ctx context.Context, now time.Time) ([]*model.Subscription, error) {
	var subs []*model.Subscription

	err := r.db.WithContext(ctx).
		Where("status = ? AND current_period_end <= ?", model.SubscriptionStatusActive, now).
		Order("current_period_end ASC").
		Find(&subs).Error

	if err != nil {
		r.logger.Error("Failed to list subscriptions due for renewal", zap.Error(err))
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	return subs, nil
}

func (r *subscriptionRepository) ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]*model.Subscription, error) {
	var subs []*model.Subscription

	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Find(&subs).Error

	if err != nil {
		r.logger.Error("Failed to list subscriptions by status",
			zap.String("status", string(status)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}

func (r *subscriptionRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ?", id).
		Updates(fields)

	if result.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("subscription not found: %d", id)
	}

	return nil
}

func (r *subscriptionRepository) UpdateStatusIf(ctx context.Context, id int64, from []model.SubscriptionStatus, to model.SubscriptionStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to transition subscription",
			zap.Int64("subscription_id", id),
			zap.String("to", string(to)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to transition subscription: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}
