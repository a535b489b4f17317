package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

type paymentMethodRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentMethodRepository creates a new payment method repository
func NewPaymentMethodRepository(db *gorm.DB, logger *zap.Logger) repository.PaymentMethodRepository {
	return &paymentMethodRepository{db: db, logger: logger}
}

func (r *paymentMethodRepository) GetDefaultForUser(ctx context.Context, userID uuid.UUID) (*model.PaymentMethod, error) {
	var method model.PaymentMethod

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ? AND is_active = ?", userID, true, true).
		First(&method).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default payment method: %w", err)
	}

	return &method, nil
}

type dunningScheduleRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDunningScheduleRepository creates a new dunning schedule repository
func NewDunningScheduleRepository(db *gorm.DB, logger *zap.Logger) repository.DunningScheduleRepository {
	return &dunningScheduleRepository{db: db, logger: logger}
}

func (r *dunningScheduleRepository) GetDefault(ctx context.Context) (*model.DunningSchedule, error) {
	var schedule model.DunningSchedule

	err := r.db.WithContext(ctx).
		Where("is_active = ? AND is_default = ?", true, true).
		First(&schedule).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default dunning schedule: %w", err)
	}

	return &schedule, nil
}

func (r *dunningScheduleRepository) Save(ctx context.Context, schedule *model.DunningSchedule) error {
	schedule.UpdatedAt = time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if schedule.IsDefault {
			demote := tx.Model(&model.DunningSchedule{}).
				Where("is_default = ?", true)
			if schedule.ID != 0 {
				demote = demote.Where("id <> ?", schedule.ID)
			}
			if err := demote.Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(schedule).Error
	})

	if err != nil {
		r.logger.Error("Failed to save dunning schedule",
			zap.String("name", schedule.Name),
			zap.Error(err))
		return fmt.Errorf("failed to save dunning schedule: %w", err)
	}

	return nil
}

type providerAccountRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewProviderAccountRepository creates a new provider account repository
func NewProviderAccountRepository(db *gorm.DB, logger *zap.Logger) repository.ProviderAccountRepository {
	return &providerAccountRepository{db: db, logger: logger}
}

func (r *providerAccountRepository) ListActive(ctx context.Context) ([]*model.ProviderAccount, error) {
	var accounts []*model.ProviderAccount

	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&accounts).Error

	if err != nil {
		r.logger.Error("Failed to list provider accounts", zap.Error(err))
		return nil, fmt.Errorf("failed to list provider accounts: %w", err)
	}

	return accounts, nil
}

type refundRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRefundRepository creates a new refund repository
func NewRefundRepository(db *gorm.DB, logger *zap.Logger) repository.RefundRepository {
	return &refundRepository{db: db, logger: logger}
}

func (r *refundRepository) Create(ctx context.Context, refund *model.Refund) error {
	err := r.db.WithContext(ctx).Create(refund).Error
	if err != nil {
		r.logger.Error("Failed to create refund",
			zap.Int64("payment_id", refund.PaymentID),
			zap.Error(err))
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

func (r *refundRepository) GetByID(ctx context.Context, id int64) (*model.Refund, error) {
	var refund model.Refund

	err := r.db.WithContext(ctx).
		Preload("Payment").
		First(&refund, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}

	return &refund, nil
}

func (r *refundRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.Refund{}).
		Where("id = ?", id).
		Updates(fields)

	if result.Error != nil {
		return fmt.Errorf("failed to update refund: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("refund not found: %d", id)
	}

	return nil
}
