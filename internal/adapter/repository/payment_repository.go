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

type paymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB, logger *zap.Logger) repository.PaymentRepository {
	return &paymentRepository{db: db, logger: logger}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_transaction_id"}},
			DoNothing: true,
		}).
		Create(payment)

	if result.Error != nil {
		r.logger.Error("Failed to create payment",
			zap.String("provider_transaction_id", payment.ProviderTransactionID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to create payment: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return repository.ErrDuplicateKey
	}

	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).First(&payment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

func (r *paymentRepository) GetByProviderTransactionID(ctx context.Context, txID string) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).
		Where("provider_transaction_id = ?", txID).
		First(&payment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment by transaction ID: %w", err)
	}

	return &payment, nil
}

func (r *paymentRepository) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]*model.Payment, error) {
	var payments []*model.Payment

	err := r.db.WithContext(ctx).
		Preload("Order").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Order("created_at ASC").
		Find(&payments).Error

	if err != nil {
		r.logger.Error("Failed to list payments for window",
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}
