package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/elimupay/billing/internal/domain/model"
)

// PaymentMethodRepository reads stored collection targets
type PaymentMethodRepository interface {
	// GetDefaultForUser returns the user's default active method, nil
	// when none is configured
	GetDefaultForUser(ctx context.Context, userID uuid.UUID) (*model.PaymentMethod, error)
}

// DunningScheduleRepository reads and writes dunning configuration
type DunningScheduleRepository interface {
	// GetDefault returns the active default schedule, nil when none
	GetDefault(ctx context.Context) (*model.DunningSchedule, error)
	// Save inserts or updates a schedule. A saved default demotes any
	// other default in the same statement's transaction.
	Save(ctx context.Context, schedule *model.DunningSchedule) error
}

// ProviderAccountRepository reads provider credentials
type ProviderAccountRepository interface {
	ListActive(ctx context.Context) ([]*model.ProviderAccount, error)
}

// RefundRepository persists refund requests
type RefundRepository interface {
	Create(ctx context.Context, refund *model.Refund) error
	GetByID(ctx context.Context, id int64) (*model.Refund, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
}
