package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/config"
	"github.com/elimupay/billing/internal/usecase"
)

// Scheduler drives the periodic jobs: renewal sweeps, dunning sweeps,
// intent expiry and nightly reconciliation. Every job tolerates overlap
// with itself on another instance; the database guards do the fencing.
type Scheduler struct {
	cfg            config.WorkerConfig
	intents        *usecase.IntentService
	renewals       *usecase.RenewalService
	dunning        *usecase.DunningService
	reconciliation *usecase.ReconciliationService
	logger         *zap.Logger

	wg sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(
	cfg config.WorkerConfig,
	intents *usecase.IntentService,
	renewals *usecase.RenewalService,
	dunning *usecase.DunningService,
	reconciliation *usecase.ReconciliationService,
	logger *zap.Logger,
) *Scheduler {
	cfg.Normalize()
	return &Scheduler{
		cfg:            cfg,
		intents:        intents,
		renewals:       renewals,
		dunning:        dunning,
		reconciliation: reconciliation,
		logger:         logger,
	}
}

// Start launches the job loops. They run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting billing scheduler",
		zap.Duration("renewal_interval", s.cfg.RenewalInterval),
		zap.Duration("dunning_interval", s.cfg.DunningInterval),
		zap.Duration("expiry_interval", s.cfg.ExpiryInterval),
		zap.Int("reconciliation_hour", s.cfg.ReconciliationHour))

	s.runEvery(ctx, "renewal", s.cfg.RenewalInterval, func(ctx context.Context, now time.Time) error {
		return s.renewals.RunSweep(ctx, now)
	})

	s.runEvery(ctx, "dunning", s.cfg.DunningInterval, func(ctx context.Context, now time.Time) error {
		return s.dunning.RunSweep(ctx, now)
	})

	s.runEvery(ctx, "intent_expiry", s.cfg.ExpiryInterval, func(ctx context.Context, now time.Time) error {
		_, err := s.intents.ExpireStale(ctx, now)
		return err
	})

	if !s.cfg.ReconciliationDisabled {
		s.wg.Add(1)
		go s.runNightly(ctx)
	}
}

// Wait blocks until every job loop has exited
func (s *Scheduler) Wait() {
	s.wg.Wait()
	s.logger.Info("Billing scheduler stopped")
}

func (s *Scheduler) runEvery(ctx context.Context, name string, interval time.Duration, job func(context.Context, time.Time) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := job(ctx, now); err != nil {
					s.logger.Error("Scheduled job failed",
						zap.String("job", name),
						zap.Error(err))
				}
			}
		}
	}()
}

// runNightly fires reconciliation once per day at the configured hour,
// reconciling the previous calendar day
func (s *Scheduler) runNightly(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.ReconciliationHour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case fired := <-timer.C:
			if _, err := s.reconciliation.Run(ctx, fired.AddDate(0, 0, -1)); err != nil {
				s.logger.Error("Scheduled job failed",
					zap.String("job", "reconciliation"),
					zap.Error(err))
			}
		}
	}
}
