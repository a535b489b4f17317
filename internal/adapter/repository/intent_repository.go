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

type intentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewIntentRepository creates a new payment intent repository
func NewIntentRepository(db *gorm.DB, logger *zap.Logger) repository.IntentRepository {
	return &intentRepository{db: db, logger: logger}
}

func (r *intentRepository) Create(ctx context.Context, intent *model.PaymentIntent) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(intent)

	if result.Error != nil {
		r.logger.Error("Failed to create payment intent",
			zap.String("idempotency_key", intent.IdempotencyKey),
			zap.Error(result.Error))
		return fmt.Errorf("failed to create payment intent: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return repository.ErrDuplicateKey
	}

	return nil
}

func (r *intentRepository) GetByID(ctx context.Context, id int64) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent

	err := r.db.WithContext(ctx).First(&intent, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return &intent, nil
}

func (r *intentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent

	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&intent).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get intent by idempotency key",
			zap.String("idempotency_key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get intent by idempotency key: %w", err)
	}

	return &intent, nil
}

func (r *intentRepository) GetByCorrelationRef(ctx context.Context, providerName, ref string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent

	err := r.db.WithContext(ctx).
		Where("provider = ? AND (checkout_request_id = ? OR provider_transaction_id = ?)",
			providerName, ref, ref).
		First(&intent).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to resolve intent by correlation reference",
			zap.String("provider", providerName),
			zap.String("reference", ref),
			zap.Error(err))
		return nil, fmt.Errorf("failed to resolve intent: %w", err)
	}

	return &intent, nil
}

func (r *intentRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.PaymentIntent{}).
		Where("id = ?", id).
		Updates(fields)

	if result.Error != nil {
		return fmt.Errorf("failed to update payment intent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment intent not found: %d", id)
	}

	return nil
}

func (r *intentRepository) UpdateStatusIf(ctx context.Context, id int64, from []model.IntentStatus, to model.IntentStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&model.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to transition payment intent",
			zap.Int64("intent_id", id),
			zap.String("to", string(to)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to transition payment intent: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (r *intentRepository) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.PaymentIntent{}).
		Where("status IN ? AND expires_at < ?",
			[]model.IntentStatus{model.IntentStatusCreated, model.IntentStatusRequiresAction},
			now).
		Updates(map[string]interface{}{
			"status":        model.IntentStatusCancelled,
			"error_message": "payment intent expired",
			"updated_at":    now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to cancel expired intents", zap.Error(result.Error))
		return 0, fmt.Errorf("failed to cancel expired intents: %w", result.Error)
	}

	return result.RowsAffected, nil
}
