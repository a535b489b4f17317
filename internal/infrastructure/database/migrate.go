package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elimupay/billing/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := createExtensions(db); err != nil {
		logger.Error("Failed to create extensions", zap.Error(err))
		return err
	}

	// Enum types must exist before auto-migrate references them
	if err := createCustomTypes(db); err != nil {
		logger.Error("Failed to create custom types", zap.Error(err))
		return err
	}

	err := db.AutoMigrate(
		&model.Order{},
		&model.LineItem{},
		&model.PaymentMethod{},
		&model.ProviderAccount{},
		&model.PaymentIntent{},
		&model.Payment{},
		&model.WebhookEvent{},
		&model.LedgerEntry{},
		&model.Refund{},
		&model.Subscription{},
		&model.RenewalAttempt{},
		&model.DunningSchedule{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func createExtensions(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error
}

// createCustomTypes creates the enum types the models are declared with
func createCustomTypes(db *gorm.DB) error {
	types := map[string][]string{
		"intent_status":       {"created", "requires_action", "processing", "succeeded", "failed", "cancelled"},
		"webhook_status":      {"pending", "processing", "processed", "failed", "ignored"},
		"entry_type":          {"debit", "credit"},
		"order_status":        {"pending", "processing", "paid", "failed", "refunded", "cancelled"},
		"refund_status":       {"pending", "processing", "completed", "failed", "cancelled"},
		"subscription_status": {"trialing", "active", "past_due", "unpaid", "cancelled", "incomplete"},
		"attempt_status":      {"pending", "processing", "succeeded", "failed"},
	}

	for name, values := range types {
		sql := `DO $$ BEGIN CREATE TYPE ` + name + ` AS ENUM (`
		for i, v := range values {
			if i > 0 {
				sql += `, `
			}
			sql += `'` + v + `'`
		}
		sql += `); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`

		if err := db.Exec(sql).Error; err != nil {
			return err
		}
	}

	return nil
}

// createCustomIndexes creates indexes GORM tags do not express
func createCustomIndexes(db *gorm.DB) error {
	// One default payment method per user
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_default_method_per_user ON payment_methods (user_id) WHERE is_default = true AND is_active = true`).Error; err != nil {
		return err
	}

	// One default dunning schedule
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_default_dunning_schedule ON dunning_schedules ((is_default)) WHERE is_default = true AND is_active = true`).Error; err != nil {
		return err
	}

	// Fast path for the expiry reaper
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_payment_intents_expirable ON payment_intents (expires_at) WHERE status IN ('created', 'requires_action')`).Error; err != nil {
		return err
	}

	// Unprocessed webhook triage
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed ON webhook_events (created_at) WHERE status IN ('pending', 'failed')`).Error; err != nil {
		return err
	}

	// One in-flight attempt per subscription; concurrent sweeps race on
	// this index instead of the read-then-write guard
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_in_flight_attempt_per_subscription ON renewal_attempts (subscription_id) WHERE status IN ('pending', 'processing')`).Error; err != nil {
		return err
	}

	// Attempt numbering is strictly monotonic per subscription
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_attempt_number_per_subscription ON renewal_attempts (subscription_id, attempt_number)`).Error; err != nil {
		return err
	}

	return nil
}
