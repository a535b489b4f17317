package repository

import (
	"context"

	"github.com/elimupay/billing/internal/domain/model"
)

// OrderRepository persists billing orders
type OrderRepository interface {
	// Create inserts the order together with its line items
	Create(ctx context.Context, order *model.Order) error

	GetByID(ctx context.Context, id int64) (*model.Order, error)

	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
}
