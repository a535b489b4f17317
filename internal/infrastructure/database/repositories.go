package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	adapter "github.com/elimupay/billing/internal/adapter/repository"
	"github.com/elimupay/billing/internal/domain/repository"
)

// Repositories bundles every repository for dependency injection
type Repositories struct {
	Intent          repository.IntentRepository
	Payment         repository.PaymentRepository
	Webhook         repository.WebhookRepository
	Ledger          repository.LedgerRepository
	Order           repository.OrderRepository
	Subscription    repository.SubscriptionRepository
	RenewalAttempt  repository.RenewalAttemptRepository
	DunningSchedule repository.DunningScheduleRepository
	PaymentMethod   repository.PaymentMethodRepository
	ProviderAccount repository.ProviderAccountRepository
	Refund          repository.RefundRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Intent:          adapter.NewIntentRepository(db, logger),
		Payment:         adapter.NewPaymentRepository(db, logger),
		Webhook:         adapter.NewWebhookRepository(db, logger),
		Ledger:          adapter.NewLedgerRepository(db, logger),
		Order:           adapter.NewOrderRepository(db, logger),
		Subscription:    adapter.NewSubscriptionRepository(db, logger),
		RenewalAttempt:  adapter.NewRenewalAttemptRepository(db, logger),
		DunningSchedule: adapter.NewDunningScheduleRepository(db, logger),
		PaymentMethod:   adapter.NewPaymentMethodRepository(db, logger),
		ProviderAccount: adapter.NewProviderAccountRepository(db, logger),
		Refund:          adapter.NewRefundRepository(db, logger),
	}
}
