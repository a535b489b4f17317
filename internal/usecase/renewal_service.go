package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

// inFlightWindow bounds how far back the in-flight attempt guard looks.
// An attempt older than this that is still pending is considered stuck,
// not in flight.
const inFlightWindow = 24 * time.Hour

// RenewalService cuts renewal orders for lapsed subscriptions and pushes
// the collection. Settlement arrives asynchronously through the webhook
// path; this service never waits on the payer.
type RenewalService struct {
	subscriptionRepo repository.SubscriptionRepository
	attemptRepo      repository.RenewalAttemptRepository
	orderRepo        repository.OrderRepository
	intents          *IntentService
	logger           *zap.Logger
}

// NewRenewalService creates a new renewal service instance
func NewRenewalService(
	subscriptionRepo repository.SubscriptionRepository,
	attemptRepo repository.RenewalAttemptRepository,
	orderRepo repository.OrderRepository,
	intents *IntentService,
	logger *zap.Logger,
) *RenewalService {
	return &RenewalService{
		subscriptionRepo: subscriptionRepo,
		attemptRepo:      attemptRepo,
		orderRepo:        orderRepo,
		intents:          intents,
		logger:           logger,
	}
}

// RunSweep collects every subscription whose period has lapsed. A failure
// on one subscription never stops the batch.
func (s *RenewalService) RunSweep(ctx context.Context, now time.Time) error {
	subs, err := s.subscriptionRepo.ListDueForRenewal(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	if len(subs) == 0 {
		return nil
	}

	s.logger.Info("Renewal sweep starting", zap.Int("due", len(subs)))

	var failed int
	for _, sub := range subs {
		if _, err := s.Collect(ctx, sub, now); err != nil {
			failed++
			s.logger.Warn("Renewal collection failed",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Renewal sweep finished",
		zap.Int("due", len(subs)),
		zap.Int("failed", failed))

	return nil
}

// Collect runs one collection attempt for a subscription: order snapshot,
// attempt row, payment push. Dunning retries reuse this path. The returned
// bool reports whether an attempt was actually cut; a skip on the in-flight
// guard or a lost insert race returns false with no error.
func (s *RenewalService) Collect(ctx context.Context, sub *model.Subscription, now time.Time) (bool, error) {
	inFlight, err := s.attemptRepo.GetInFlight(ctx, sub.ID, now.Add(-inFlightWindow))
	if err != nil {
		return false, fmt.Errorf("failed to check in-flight attempts: %w", err)
	}
	if inFlight != nil {
		s.logger.Debug("Skipping subscription with attempt in flight",
			zap.Int64("subscription_id", sub.ID),
			zap.Int64("attempt_id", inFlight.ID))
		return false, nil
	}

	count, err := s.attemptRepo.CountBySubscription(ctx, sub.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	attemptNumber := int(count) + 1

	order := &model.Order{
		UserID:   sub.UserID,
		Status:   model.OrderStatusPending,
		Subtotal: sub.PriceAmount,
		Total:    sub.PriceAmount,
		Currency: sub.PriceCurrency,
		LineItems: []model.LineItem{
			{
				ProductID: sub.ProductID,
				Quantity:  1,
				UnitPrice: sub.PriceAmount,
				Total:     sub.PriceAmount,
			},
		},
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return false, fmt.Errorf("failed to create renewal order: %w", err)
	}

	attempt := &model.RenewalAttempt{
		SubscriptionID: sub.ID,
		AttemptNumber:  attemptNumber,
		Status:         model.AttemptStatusPending,
		OrderID:        &order.ID,
		ScheduledAt:    now,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// A concurrent sweep cut the attempt between the in-flight
			// read and this insert; the unique index serialized us out.
			s.logger.Info("Lost renewal attempt race, skipping",
				zap.Int64("subscription_id", sub.ID))
			return false, nil
		}
		return false, fmt.Errorf("failed to create renewal attempt: %w", err)
	}

	s.logger.Info("Renewal attempt created",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("order_id", order.ID),
		zap.Int("attempt_number", attemptNumber))

	intent, err := s.intents.CreateIntent(ctx, &CreateIntentRequest{
		OrderID:        order.ID,
		UserID:         sub.UserID,
		Description:    fmt.Sprintf("Renewal %d", sub.ID),
		IdempotencyKey: NewIdempotencyKey("renewal", sub.ID, attemptNumber),
	})
	if err != nil {
		s.failAttempt(ctx, attempt, sub, now, err.Error())
		return true, fmt.Errorf("failed to initiate renewal collection: %w", err)
	}

	if err := s.attemptRepo.UpdateFields(ctx, attempt.ID, map[string]interface{}{
		"status":            model.AttemptStatusProcessing,
		"payment_intent_id": &intent.ID,
		"attempted_at":      &now,
	}); err != nil {
		return true, fmt.Errorf("failed to record attempt intent: %w", err)
	}

	return true, nil
}

// failAttempt closes an attempt that never reached the provider and moves
// the subscription into dunning
func (s *RenewalService) failAttempt(ctx context.Context, attempt *model.RenewalAttempt, sub *model.Subscription, now time.Time, reason string) {
	if err := s.attemptRepo.UpdateFields(ctx, attempt.ID, map[string]interface{}{
		"status":        model.AttemptStatusFailed,
		"attempted_at":  &now,
		"error_message": reason,
	}); err != nil {
		s.logger.Error("Failed to mark attempt failed",
			zap.Int64("attempt_id", attempt.ID),
			zap.Error(err))
	}

	moved, err := s.subscriptionRepo.UpdateStatusIf(ctx, sub.ID,
		[]model.SubscriptionStatus{model.SubscriptionStatusActive},
		model.SubscriptionStatusPastDue, nil)
	if err != nil {
		s.logger.Error("Failed to mark subscription past due",
			zap.Int64("subscription_id", sub.ID),
			zap.Error(err))
		return
	}
	if moved {
		s.logger.Info("Subscription entered dunning",
			zap.Int64("subscription_id", sub.ID),
			zap.String("reason", reason))
	}
}
