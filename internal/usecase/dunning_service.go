package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
	"github.com/elimupay/billing/internal/notify"
)

// episodeLookback finds the failed attempt that opened the current
// dunning episode. Attempts before the period end belong to an earlier
// episode; the hour of slack absorbs clock drift between sweep and
// settlement.
const episodeLookback = time.Hour

// DunningService walks past_due subscriptions every sweep: retries
// collection on the schedule's day offsets and applies the terminal
// action once the grace period runs out.
type DunningService struct {
	subscriptionRepo repository.SubscriptionRepository
	attemptRepo      repository.RenewalAttemptRepository
	scheduleRepo     repository.DunningScheduleRepository
	renewals         *RenewalService
	notifier         notify.Notifier
	logger           *zap.Logger
}

// NewDunningService creates a new dunning service instance
func NewDunningService(
	subscriptionRepo repository.SubscriptionRepository,
	attemptRepo repository.RenewalAttemptRepository,
	scheduleRepo repository.DunningScheduleRepository,
	renewals *RenewalService,
	notifier notify.Notifier,
	logger *zap.Logger,
) *DunningService {
	return &DunningService{
		subscriptionRepo: subscriptionRepo,
		attemptRepo:      attemptRepo,
		scheduleRepo:     scheduleRepo,
		renewals:         renewals,
		notifier:         notifier,
		logger:           logger,
	}
}

// RunSweep processes every past_due subscription. One subscription's
// failure never stops the batch.
func (s *DunningService) RunSweep(ctx context.Context, now time.Time) error {
	schedule, err := s.scheduleRepo.GetDefault(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dunning schedule: %w", err)
	}
	if schedule == nil {
		schedule = &model.DunningSchedule{
			GracePeriodDays: 7,
			TerminalAction:  model.TerminalActionDowngrade,
			NotifyEmail:     true,
			NotifySMS:       true,
		}
	}

	subs, err := s.subscriptionRepo.ListByStatus(ctx, model.SubscriptionStatusPastDue)
	if err != nil {
		return fmt.Errorf("failed to list past_due subscriptions: %w", err)
	}

	if len(subs) == 0 {
		return nil
	}

	s.logger.Info("Dunning sweep starting", zap.Int("past_due", len(subs)))

	for _, sub := range subs {
		if err := s.processOne(ctx, sub, schedule, now); err != nil {
			s.logger.Warn("Dunning step failed",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err))
		}
	}

	return nil
}

func (s *DunningService) processOne(ctx context.Context, sub *model.Subscription, schedule *model.DunningSchedule, now time.Time) error {
	firstFailed, err := s.attemptRepo.GetFirstFailedSince(ctx, sub.ID, sub.CurrentPeriodEnd.Add(-episodeLookback))
	if err != nil {
		return fmt.Errorf("failed to anchor dunning episode: %w", err)
	}
	if firstFailed == nil {
		// past_due without a failed attempt on record; the next renewal
		// sweep or webhook will supply one
		return nil
	}

	graceUntil := firstFailed.CreatedAt.AddDate(0, 0, schedule.GracePeriodDays)
	if sub.GraceUntil == nil {
		if err := s.subscriptionRepo.UpdateFields(ctx, sub.ID, map[string]interface{}{
			"grace_until": graceUntil,
		}); err != nil {
			s.logger.Error("Failed to set grace window",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err))
		}
		sub.GraceUntil = &graceUntil
	}

	// Retries run before the grace check so the retry scheduled for the
	// day the grace period ends still fires on that day's first sweep.
	if err := s.maybeRetry(ctx, sub, schedule, firstFailed, now); err != nil {
		s.logger.Warn("Dunning retry failed",
			zap.Int64("subscription_id", sub.ID),
			zap.Error(err))
	}

	if now.After(*sub.GraceUntil) {
		return s.applyTerminalAction(ctx, sub, schedule, now)
	}

	return nil
}

// maybeRetry cuts one collection attempt when the current day offset is
// on the schedule and nothing has been attempted in that day's window
func (s *DunningService) maybeRetry(ctx context.Context, sub *model.Subscription, schedule *model.DunningSchedule, firstFailed *model.RenewalAttempt, now time.Time) error {
	daysSinceFirstFailure := int(now.Sub(firstFailed.CreatedAt).Hours() / 24)

	due := false
	for _, offset := range schedule.Offsets() {
		if daysSinceFirstFailure == offset {
			due = true
			break
		}
	}
	if !due {
		return nil
	}

	// One retry per offset day: skip if anything was already attempted in
	// this offset's 24h window.
	windowStart := firstFailed.CreatedAt.Add(time.Duration(daysSinceFirstFailure) * 24 * time.Hour)
	already, err := s.attemptRepo.HasAttemptSince(ctx, sub.ID, windowStart)
	if err != nil {
		return fmt.Errorf("failed to check retry window: %w", err)
	}
	if already {
		return nil
	}

	s.logger.Info("Dunning retry due",
		zap.Int64("subscription_id", sub.ID),
		zap.Int("day_offset", daysSinceFirstFailure))

	initiated, err := s.renewals.Collect(ctx, sub, now)
	if err != nil {
		return fmt.Errorf("dunning retry failed: %w", err)
	}
	if !initiated {
		// An attempt is already in flight; nothing was cut, so there is
		// nothing to tell the payer about.
		return nil
	}

	if schedule.NotifyEmail || schedule.NotifySMS {
		s.publish(ctx, notify.Event{
			Type:           notify.EventRenewalRetry,
			UserID:         sub.UserID.String(),
			SubscriptionID: sub.ID,
			Data: map[string]interface{}{
				"day_offset":  daysSinceFirstFailure,
				"grace_until": sub.GraceUntil,
			},
		})
	}

	return nil
}

// applyTerminalAction closes the dunning episode. The status guard makes
// repeated sweeps idempotent: only the sweep that wins the transition
// sends the notification.
func (s *DunningService) applyTerminalAction(ctx context.Context, sub *model.Subscription, schedule *model.DunningSchedule, now time.Time) error {
	target := model.SubscriptionStatusUnpaid
	fields := map[string]interface{}{
		"ended_at": &now,
	}
	if schedule.TerminalAction == model.TerminalActionCancel {
		target = model.SubscriptionStatusCancelled
		fields["cancelled_at"] = &now
	}

	moved, err := s.subscriptionRepo.UpdateStatusIf(ctx, sub.ID,
		[]model.SubscriptionStatus{model.SubscriptionStatusPastDue},
		target, fields)
	if err != nil {
		return fmt.Errorf("failed to apply terminal action: %w", err)
	}
	if !moved {
		return nil
	}

	s.logger.Info("Dunning terminal action applied",
		zap.Int64("subscription_id", sub.ID),
		zap.String("action", string(schedule.TerminalAction)),
		zap.String("status", string(target)))

	s.publish(ctx, notify.Event{
		Type:           notify.EventSubscriptionEnded,
		UserID:         sub.UserID.String(),
		SubscriptionID: sub.ID,
		Data: map[string]interface{}{
			"action": string(schedule.TerminalAction),
			"status": string(target),
		},
	})

	return nil
}

func (s *DunningService) publish(ctx context.Context, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish billing event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
