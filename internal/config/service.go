package config

import "time"

// ServiceConfig holds billing engine settings
type ServiceConfig struct {
	Environment string `yaml:"environment"`

	// Base URL providers deliver callbacks to; the per-provider webhook
	// path is appended
	CallbackBaseURL string `yaml:"callback_base_url" validate:"required,url"`

	Worker WorkerConfig `yaml:"worker"`
}

// WorkerConfig controls the background job cadence. Zero values fall
// back to the stock cadence in Normalize.
type WorkerConfig struct {
	RenewalInterval        time.Duration `yaml:"renewal_interval"`
	DunningInterval        time.Duration `yaml:"dunning_interval"`
	ExpiryInterval         time.Duration `yaml:"expiry_interval"`
	ReconciliationHour     int           `yaml:"reconciliation_hour"`
	ReconciliationDisabled bool          `yaml:"reconciliation_disabled"`
}

// Normalize fills in default intervals
func (w *WorkerConfig) Normalize() {
	if w.RenewalInterval <= 0 {
		w.RenewalInterval = time.Hour
	}
	if w.DunningInterval <= 0 {
		w.DunningInterval = 6 * time.Hour
	}
	if w.ExpiryInterval <= 0 {
		w.ExpiryInterval = time.Hour
	}
	if w.ReconciliationHour < 0 || w.ReconciliationHour > 23 {
		w.ReconciliationHour = 1
	}
}
