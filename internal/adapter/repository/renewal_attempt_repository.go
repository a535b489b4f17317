package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

type renewalAttemptRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRenewalAttemptRepository creates a new renewal attempt repository
func NewRenewalAttemptRepository(db *gorm.DB, logger *zap.Logger) repository.RenewalAttemptRepository {
	return &renewalAttemptRepository{db: db, logger: logger}
}

// Create inserts an attempt row. The partial unique index on in-flight
// attempts and the (subscription_id, attempt_number) index turn a lost
// race into ErrDuplicateKey instead of a second attempt.
func (r *renewalAttemptRepository) Create(ctx context.Context, attempt *model.RenewalAttempt) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(attempt)

	if result.Error != nil {
		r.logger.Error("Failed to create renewal attempt",
			zap.Int64("subscription_id", attempt.SubscriptionID),
			zap.Int("attempt_number", attempt.AttemptNumber),
			zap.Error(result.Error))
		return fmt.Errorf("failed to create renewal attempt: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return repository.ErrDuplicateKey
	}

	return nil
}

func (r *renewalAttemptRepository) GetByID(ctx context.Context, id int64) (*model.RenewalAttempt, error) {
	var attempt model.RenewalAttempt

	err := r.db.WithContext(ctx).
		Preload("Subscription").
		First(&attempt, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get renewal attempt: %w", err)
	}

	return &attempt, nil
}

func (r *renewalAttemptRepository) CountBySubscription(ctx context.Context, subscriptionID int64) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.RenewalAttempt{}).
		Where("subscription_id = ?", subscriptionID).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to count renewal attempts: %w", err)
	}

	return count, nil
}

func (r *renewalAttemptRepository) GetInFlight(ctx context.Context, subscriptionID int64, since time.Time) (*model.RenewalAttempt, error) {
	var attempt model.RenewalAttempt

	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND scheduled_at >= ? AND status IN ?",
			subscriptionID, since,
			[]model.AttemptStatus{model.AttemptStatusPending, model.AttemptStatusProcessing}).
		First(&attempt).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get in-flight renewal attempt: %w", err)
	}

	return &attempt, nil
}

func (r *renewalAttemptRepository) GetFirstFailedSince(ctx context.Context, subscriptionID int64, since time.Time) (*model.RenewalAttempt, error) {
	var attempt model.RenewalAttempt

	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ? AND created_at >= ?",
			subscriptionID, model.AttemptStatusFailed, since).
		Order("created_at ASC").
		First(&attempt).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get first failed attempt: %w", err)
	}

	return &attempt, nil
}

func (r *renewalAttemptRepository) GetByPaymentIntentID(ctx context.Context, intentID int64) (*model.RenewalAttempt, error) {
	var attempt model.RenewalAttempt

	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		First(&attempt).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attempt by intent: %w", err)
	}

	return &attempt, nil
}

func (r *renewalAttemptRepository) HasAttemptSince(ctx context.Context, subscriptionID int64, after time.Time) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.RenewalAttempt{}).
		Where("subscription_id = ? AND created_at > ?", subscriptionID, after).
		Count(&count).Error

	if err != nil {
		return false, fmt.Errorf("failed to count attempts since: %w", err)
	}

	return count > 0, nil
}

func (r *renewalAttemptRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.RenewalAttempt{}).
		Where("id = ?", id).
		Updates(fields)

	if result.Error != nil {
		return fmt.Errorf("failed to update renewal attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("renewal attempt not found: %d", id)
	}

	return nil
}
