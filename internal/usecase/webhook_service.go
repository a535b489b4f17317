package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/provider"
	"github.com/elimupay/billing/internal/domain/repository"
	"github.com/elimupay/billing/internal/notify"
)

// ProcessOutcome summarizes what a webhook delivery did
type ProcessOutcome string

const (
	OutcomeSettled   ProcessOutcome = "settled"
	OutcomeFailed    ProcessOutcome = "failed"
	OutcomeDuplicate ProcessOutcome = "duplicate"
	OutcomeIgnored   ProcessOutcome = "ignored"
)

// ProcessResult reports the outcome of one webhook delivery
type ProcessResult struct {
	Outcome   ProcessOutcome `json:"outcome"`
	IntentID  *int64         `json:"intent_id,omitempty"`
	PaymentID *int64         `json:"payment_id,omitempty"`
}

// WebhookService turns provider callbacks into settled payments. Every
// delivery is recorded before any business logic runs; a redelivered
// event hits the dedup insert and never reaches settlement.
type WebhookService struct {
	webhookRepo      repository.WebhookRepository
	intentRepo       repository.IntentRepository
	paymentRepo      repository.PaymentRepository
	orderRepo        repository.OrderRepository
	subscriptionRepo repository.SubscriptionRepository
	attemptRepo      repository.RenewalAttemptRepository
	ledger           *LedgerService
	gateways         GatewayResolver
	notifier         notify.Notifier
	logger           *zap.Logger
}

// NewWebhookService creates a new webhook service instance
func NewWebhookService(
	webhookRepo repository.WebhookRepository,
	intentRepo repository.IntentRepository,
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	subscriptionRepo repository.SubscriptionRepository,
	attemptRepo repository.RenewalAttemptRepository,
	ledger *LedgerService,
	gateways GatewayResolver,
	notifier notify.Notifier,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		webhookRepo:      webhookRepo,
		intentRepo:       intentRepo,
		paymentRepo:      paymentRepo,
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		attemptRepo:      attemptRepo,
		ledger:           ledger,
		gateways:         gateways,
		notifier:         notifier,
		logger:           logger,
	}
}

// ProcessWebhook handles one provider delivery end to end: dedup, intent
// resolution, amount validation, settlement, ledger posting and
// subscription bookkeeping.
func (s *WebhookService) ProcessWebhook(ctx context.Context, providerName string, payload json.RawMessage) (*ProcessResult, error) {
	gw, err := s.gateways.Get(providerName)
	if err != nil {
		return nil, provider.NewError(provider.FailureUnresolvedReference, "UNKNOWN_PROVIDER", "no gateway for provider", providerName)
	}

	result, err := gw.ParseCallback(payload)
	if err != nil {
		s.logger.Warn("Failed to parse webhook payload",
			zap.String("provider", providerName),
			zap.Error(err))
		return nil, err
	}

	var raw model.JSONB
	if err := json.Unmarshal(payload, &raw); err != nil {
		raw = model.JSONB{}
	}

	event := &model.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: fmt.Sprintf("%s_%s", providerName, result.Reference),
		EventType:       "payment.result",
		Payload:         raw,
		Status:          model.WebhookStatusProcessing,
	}

	inserted, err := s.webhookRepo.InsertIfAbsent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}
	if !inserted {
		if derr := s.webhookRepo.IncrementDelivery(ctx, event.ProviderEventID); derr != nil {
			s.logger.Error("Failed to record redelivery",
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(derr))
		}
		s.logger.Info("Duplicate webhook delivery ignored",
			zap.String("provider", providerName),
			zap.String("provider_event_id", event.ProviderEventID))
		return &ProcessResult{Outcome: OutcomeDuplicate}, nil
	}

	intent, err := s.intentRepo.GetByCorrelationRef(ctx, providerName, result.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve intent: %w", err)
	}
	if intent == nil {
		s.markEventFailed(ctx, event.ID, nil, "no intent matches callback reference")
		return nil, provider.NewError(provider.FailureUnresolvedReference, "NO_INTENT",
			"no intent matches callback reference", result.Reference)
	}

	if !result.Success {
		return s.settleFailure(ctx, event, intent, result)
	}

	return s.settleSuccess(ctx, event, intent, result)
}

// settleSuccess validates the callback against the intent and records the
// payment, ledger entries and downstream state in order
func (s *WebhookService) settleSuccess(ctx context.Context, event *model.WebhookEvent, intent *model.PaymentIntent, result *provider.CallbackResult) (*ProcessResult, error) {
	// A provider must confirm the exact amount the intent asked for; a
	// success callback carrying no amount fails the same check. Anything
	// else is held for manual review, no money moves.
	if !result.Amount.Equal(intent.Amount) {
		msg := fmt.Sprintf("callback amount %s does not match intent amount %s", result.Amount, intent.Amount)
		if _, uerr := s.intentRepo.UpdateStatusIf(ctx, intent.ID,
			[]model.IntentStatus{model.IntentStatusCreated, model.IntentStatusRequiresAction, model.IntentStatusProcessing},
			model.IntentStatusFailed,
			map[string]interface{}{"error_message": msg}); uerr != nil {
			s.logger.Error("Failed to fail mismatched intent",
				zap.Int64("intent_id", intent.ID),
				zap.Error(uerr))
		}
		s.markEventFailed(ctx, event.ID, &intent.ID, msg)
		s.logger.Error("Webhook amount mismatch held for review",
			zap.Int64("intent_id", intent.ID),
			zap.String("intent_amount", intent.Amount.String()),
			zap.String("callback_amount", result.Amount.String()))
		return nil, provider.NewError(provider.FailureValidationMismatch, "AMOUNT_MISMATCH", msg, "")
	}

	moved, err := s.intentRepo.UpdateStatusIf(ctx, intent.ID,
		[]model.IntentStatus{model.IntentStatusCreated, model.IntentStatusRequiresAction, model.IntentStatusProcessing},
		model.IntentStatusSucceeded, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to transition intent: %w", err)
	}
	if !moved {
		// Intent already terminal. If a payment exists this is a
		// retransmit under a fresh event id; close the event as ignored.
		existing, gerr := s.paymentRepo.GetByProviderTransactionID(ctx, result.ExternalID)
		if gerr != nil {
			return nil, gerr
		}
		if existing != nil {
			if merr := s.webhookRepo.MarkProcessed(ctx, event.ID, &intent.ID, &existing.ID); merr != nil {
				s.logger.Error("Failed to mark event processed", zap.Int64("event_id", event.ID), zap.Error(merr))
			}
			return &ProcessResult{Outcome: OutcomeIgnored, IntentID: &intent.ID, PaymentID: &existing.ID}, nil
		}
		msg := fmt.Sprintf("intent %d is terminal (%s) with no payment", intent.ID, intent.Status)
		s.markEventFailed(ctx, event.ID, &intent.ID, msg)
		return nil, provider.NewError(provider.FailureValidationMismatch, "TERMINAL_INTENT", msg, "")
	}

	payment := &model.Payment{
		PaymentIntentID:       intent.ID,
		OrderID:               intent.OrderID,
		UserID:                intent.UserID,
		Amount:                intent.Amount,
		Currency:              intent.Currency,
		Provider:              intent.Provider,
		ProviderTransactionID: result.ExternalID,
		ProviderReceiptNumber: result.ReceiptNumber,
		PayerPhone:            result.PhoneNumber,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			existing, gerr := s.paymentRepo.GetByProviderTransactionID(ctx, result.ExternalID)
			if gerr != nil {
				return nil, gerr
			}
			if existing != nil {
				if merr := s.webhookRepo.MarkProcessed(ctx, event.ID, &intent.ID, &existing.ID); merr != nil {
					s.logger.Error("Failed to mark event processed", zap.Int64("event_id", event.ID), zap.Error(merr))
				}
				return &ProcessResult{Outcome: OutcomeIgnored, IntentID: &intent.ID, PaymentID: &existing.ID}, nil
			}
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if err := s.ledger.RecordSettlement(ctx, payment); err != nil {
		// The payment row exists; reconciliation will surface the missing
		// postings. Do not unwind the settlement.
		s.logger.Error("Failed to post settlement to ledger",
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
	}

	now := time.Now()
	if err := s.orderRepo.UpdateFields(ctx, intent.OrderID, map[string]interface{}{
		"status":  model.OrderStatusPaid,
		"paid_at": &now,
	}); err != nil {
		s.logger.Error("Failed to mark order paid",
			zap.Int64("order_id", intent.OrderID),
			zap.Error(err))
	}

	s.applyRenewalSuccess(ctx, intent, now)

	if err := s.webhookRepo.MarkProcessed(ctx, event.ID, &intent.ID, &payment.ID); err != nil {
		s.logger.Error("Failed to mark event processed", zap.Int64("event_id", event.ID), zap.Error(err))
	}

	s.publish(ctx, notify.Event{
		Type:      notify.EventPaymentSucceeded,
		UserID:    intent.UserID.String(),
		PaymentID: payment.ID,
		Data: map[string]interface{}{
			"order_id": intent.OrderID,
			"amount":   intent.Amount.String(),
			"receipt":  result.ReceiptNumber,
		},
	})

	s.logger.Info("Payment settled",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("intent_id", intent.ID),
		zap.String("provider_transaction_id", result.ExternalID))

	return &ProcessResult{Outcome: OutcomeSettled, IntentID: &intent.ID, PaymentID: &payment.ID}, nil
}

// settleFailure records a declined collection
func (s *WebhookService) settleFailure(ctx context.Context, event *model.WebhookEvent, intent *model.PaymentIntent, result *provider.CallbackResult) (*ProcessResult, error) {
	moved, err := s.intentRepo.UpdateStatusIf(ctx, intent.ID,
		[]model.IntentStatus{model.IntentStatusCreated, model.IntentStatusRequiresAction, model.IntentStatusProcessing},
		model.IntentStatusFailed,
		map[string]interface{}{"error_message": result.ResultDesc})
	if err != nil {
		return nil, fmt.Errorf("failed to transition intent: %w", err)
	}
	if !moved {
		if merr := s.webhookRepo.MarkProcessed(ctx, event.ID, &intent.ID, nil); merr != nil {
			s.logger.Error("Failed to mark event processed", zap.Int64("event_id", event.ID), zap.Error(merr))
		}
		return &ProcessResult{Outcome: OutcomeIgnored, IntentID: &intent.ID}, nil
	}

	if err := s.orderRepo.UpdateFields(ctx, intent.OrderID, map[string]interface{}{
		"status": model.OrderStatusFailed,
	}); err != nil {
		s.logger.Error("Failed to mark order failed",
			zap.Int64("order_id", intent.OrderID),
			zap.Error(err))
	}

	s.applyRenewalFailure(ctx, intent, result.ResultDesc)

	if err := s.webhookRepo.MarkProcessed(ctx, event.ID, &intent.ID, nil); err != nil {
		s.logger.Error("Failed to mark event processed", zap.Int64("event_id", event.ID), zap.Error(err))
	}

	s.publish(ctx, notify.Event{
		Type:   notify.EventPaymentFailed,
		UserID: intent.UserID.String(),
		Data: map[string]interface{}{
			"order_id":    intent.OrderID,
			"result_code": result.ResultCode,
			"reason":      result.ResultDesc,
		},
	})

	s.logger.Info("Payment declined",
		zap.Int64("intent_id", intent.ID),
		zap.String("result_code", result.ResultCode),
		zap.String("reason", result.ResultDesc))

	return &ProcessResult{Outcome: OutcomeFailed, IntentID: &intent.ID}, nil
}

// applyRenewalSuccess advances the subscription period when the settled
// intent was collecting a renewal
func (s *WebhookService) applyRenewalSuccess(ctx context.Context, intent *model.PaymentIntent, now time.Time) {
	attempt, err := s.attemptRepo.GetByPaymentIntentID(ctx, intent.ID)
	if err != nil {
		s.logger.Error("Failed to resolve renewal attempt", zap.Int64("intent_id", intent.ID), zap.Error(err))
		return
	}
	if attempt == nil {
		return
	}

	if err := s.attemptRepo.UpdateFields(ctx, attempt.ID, map[string]interface{}{
		"status":       model.AttemptStatusSucceeded,
		"succeeded_at": &now,
	}); err != nil {
		s.logger.Error("Failed to mark attempt succeeded", zap.Int64("attempt_id", attempt.ID), zap.Error(err))
		return
	}

	sub, err := s.subscriptionRepo.GetByID(ctx, attempt.SubscriptionID)
	if err != nil || sub == nil {
		s.logger.Error("Failed to load subscription for renewal",
			zap.Int64("subscription_id", attempt.SubscriptionID),
			zap.Error(err))
		return
	}

	newStart := sub.CurrentPeriodEnd
	newEnd := newStart.AddDate(0, 1, 0)

	moved, err := s.subscriptionRepo.UpdateStatusIf(ctx, sub.ID,
		[]model.SubscriptionStatus{model.SubscriptionStatusActive, model.SubscriptionStatusPastDue},
		model.SubscriptionStatusActive,
		map[string]interface{}{
			"current_period_start": newStart,
			"current_period_end":   newEnd,
			"grace_until":          nil,
		})
	if err != nil {
		s.logger.Error("Failed to advance subscription period",
			zap.Int64("subscription_id", sub.ID),
			zap.Error(err))
		return
	}
	if moved {
		s.logger.Info("Subscription period advanced",
			zap.Int64("subscription_id", sub.ID),
			zap.Time("current_period_end", newEnd))
	}
}

// applyRenewalFailure marks the attempt failed and opens the dunning
// window on the subscription
func (s *WebhookService) applyRenewalFailure(ctx context.Context, intent *model.PaymentIntent, reason string) {
	attempt, err := s.attemptRepo.GetByPaymentIntentID(ctx, intent.ID)
	if err != nil {
		s.logger.Error("Failed to resolve renewal attempt", zap.Int64("intent_id", intent.ID), zap.Error(err))
		return
	}
	if attempt == nil {
		return
	}

	if err := s.attemptRepo.UpdateFields(ctx, attempt.ID, map[string]interface{}{
		"status":        model.AttemptStatusFailed,
		"error_message": reason,
	}); err != nil {
		s.logger.Error("Failed to mark attempt failed", zap.Int64("attempt_id", attempt.ID), zap.Error(err))
		return
	}

	moved, err := s.subscriptionRepo.UpdateStatusIf(ctx, attempt.SubscriptionID,
		[]model.SubscriptionStatus{model.SubscriptionStatusActive},
		model.SubscriptionStatusPastDue, nil)
	if err != nil {
		s.logger.Error("Failed to mark subscription past due",
			zap.Int64("subscription_id", attempt.SubscriptionID),
			zap.Error(err))
		return
	}
	if moved {
		s.logger.Info("Subscription entered dunning",
			zap.Int64("subscription_id", attempt.SubscriptionID))
	}
}

func (s *WebhookService) markEventFailed(ctx context.Context, eventID int64, intentID *int64, msg string) {
	if err := s.webhookRepo.MarkFailed(ctx, eventID, intentID, msg); err != nil {
		s.logger.Error("Failed to mark event failed", zap.Int64("event_id", eventID), zap.Error(err))
	}
}

func (s *WebhookService) publish(ctx context.Context, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish billing event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
