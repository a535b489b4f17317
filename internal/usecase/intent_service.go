package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/provider"
	"github.com/elimupay/billing/internal/domain/repository"
	"github.com/elimupay/billing/internal/pkg/apperr"
)

// intentTTL is how long an intent may sit in created/requires_action
// before the expiry reaper cancels it
const intentTTL = time.Hour

// GatewayResolver looks up a configured payment gateway by name
type GatewayResolver interface {
	Get(name string) (provider.Gateway, error)
}

// CreateIntentRequest carries everything needed to start a collection
type CreateIntentRequest struct {
	OrderID int64     `json:"order_id" validate:"required"`
	UserID  uuid.UUID `json:"user_id" validate:"required"`

	// Provider may be empty, in which case the user's default payment
	// method decides both provider and phone number
	Provider       string    `json:"provider" validate:"omitempty,oneof=mpesa airtel"`
	PhoneNumber    string    `json:"phone_number"`
	Description    string    `json:"description"`
	IdempotencyKey string    `json:"idempotency_key" validate:"required"`
}

// IntentService owns the payment intent lifecycle: idempotent creation,
// gateway initiation and expiry of abandoned intents.
type IntentService struct {
	intentRepo repository.IntentRepository
	orderRepo  repository.OrderRepository
	methodRepo repository.PaymentMethodRepository
	gateways   GatewayResolver
	logger     *zap.Logger
}

// NewIntentService creates a new intent service instance
func NewIntentService(
	intentRepo repository.IntentRepository,
	orderRepo repository.OrderRepository,
	methodRepo repository.PaymentMethodRepository,
	gateways GatewayResolver,
	logger *zap.Logger,
) *IntentService {
	return &IntentService{
		intentRepo: intentRepo,
		orderRepo:  orderRepo,
		methodRepo: methodRepo,
		gateways:   gateways,
		logger:     logger,
	}
}

// NewIdempotencyKey builds a key in the scope_id_attempt_rand form. The
// random suffix keeps keys unique across schedulers restarted mid-cycle.
func NewIdempotencyKey(scope string, id int64, attempt int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%d_%s", scope, id, attempt, suffix)
}

// CreateIntent creates a payment intent and pushes the collection to the
// payer's phone. Replaying with the same idempotency key returns the
// existing intent without a second push.
func (s *IntentService) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*model.PaymentIntent, error) {
	existing, err := s.intentRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if existing != nil {
		s.logger.Info("Idempotent replay, returning existing intent",
			zap.Int64("intent_id", existing.ID),
			zap.String("idempotency_key", req.IdempotencyKey))
		return existing, nil
	}

	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order not found: %d", req.OrderID)
	}
	if order.Status == model.OrderStatusPaid {
		return nil, fmt.Errorf("order %d is already paid", order.ID)
	}

	phone := req.PhoneNumber
	providerName := req.Provider
	if phone == "" || providerName == "" {
		method, err := s.methodRepo.GetDefaultForUser(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load payment method: %w", err)
		}
		if method == nil {
			return nil, fmt.Errorf("no default payment method for user %s", req.UserID)
		}
		if phone == "" {
			phone = method.PhoneNumber
		}
		if providerName == "" {
			providerName = method.MethodType
		}
	}

	intent := &model.PaymentIntent{
		OrderID:        order.ID,
		UserID:         req.UserID,
		Amount:         order.Total,
		Currency:       order.Currency,
		Provider:       providerName,
		Status:         model.IntentStatusCreated,
		NextAction:     model.NextActionNone,
		IdempotencyKey: req.IdempotencyKey,
		ExpiresAt:      time.Now().Add(intentTTL),
	}

	if err := s.intentRepo.Create(ctx, intent); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost the race against a concurrent replay; the winner's row
			// is the canonical one.
			winner, gerr := s.intentRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if gerr != nil {
				return nil, fmt.Errorf("failed to load winning intent: %w", gerr)
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("failed to create intent: %w", err)
	}

	s.logger.Info("Payment intent created",
		zap.Int64("intent_id", intent.ID),
		zap.Int64("order_id", order.ID),
		zap.String("provider", req.Provider),
		zap.String("amount", intent.Amount.String()))

	if err := s.initiate(ctx, intent, phone, req.Description); err != nil {
		return intent, err
	}

	return intent, nil
}

// initiate pushes the collection and records the provider correlation
// references on the intent
func (s *IntentService) initiate(ctx context.Context, intent *model.PaymentIntent, phone, description string) error {
	gw, err := s.gateways.Get(intent.Provider)
	if err != nil {
		return fmt.Errorf("failed to resolve gateway: %w", err)
	}

	resp, err := gw.InitiatePayment(ctx, &provider.InitiateRequest{
		PhoneNumber: phone,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		Reference:   fmt.Sprintf("ORD%d", intent.OrderID),
		Description: description,
	})
	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) && !perr.Retryable() {
			// Business decline is terminal for the intent; transient
			// failures leave it in created for a later re-initiation.
			moved, uerr := s.intentRepo.UpdateStatusIf(ctx, intent.ID,
				[]model.IntentStatus{model.IntentStatusCreated},
				model.IntentStatusFailed,
				map[string]interface{}{"error_message": perr.Message})
			if uerr != nil {
				s.logger.Error("Failed to mark intent failed", zap.Int64("intent_id", intent.ID), zap.Error(uerr))
			}
			if moved {
				intent.Status = model.IntentStatusFailed
				intent.ErrorMessage = perr.Message
			}
		}

		s.logger.Warn("Payment initiation failed",
			zap.Int64("intent_id", intent.ID),
			zap.String("provider", intent.Provider),
			zap.Error(err))
		return err
	}

	fields := map[string]interface{}{
		"provider_transaction_id": resp.ProviderRef,
		"checkout_request_id":     resp.CheckoutRequestID,
		"merchant_request_id":     resp.MerchantRequestID,
		"next_action":             model.NextActionSTKPush,
	}

	moved, err := s.intentRepo.UpdateStatusIf(ctx, intent.ID,
		[]model.IntentStatus{model.IntentStatusCreated},
		model.IntentStatusRequiresAction, fields)
	if err != nil {
		return fmt.Errorf("failed to record initiation: %w", err)
	}
	if !moved {
		// A callback has already settled the intent between push and
		// bookkeeping; the settlement path owns the row from here.
		s.logger.Info("Intent moved before initiation bookkeeping",
			zap.Int64("intent_id", intent.ID))
		return nil
	}

	intent.Status = model.IntentStatusRequiresAction
	intent.ProviderTransactionID = resp.ProviderRef
	intent.CheckoutRequestID = resp.CheckoutRequestID
	intent.MerchantRequestID = resp.MerchantRequestID
	intent.NextAction = model.NextActionSTKPush

	return nil
}

// GetIntent returns an intent by id
func (s *IntentService) GetIntent(ctx context.Context, id int64) (*model.PaymentIntent, error) {
	intent, err := s.intentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	if intent == nil {
		return nil, apperr.NewAppError(apperr.CodeNotFound, fmt.Sprintf("intent not found: %d", id), nil)
	}
	return intent, nil
}

// CancelIntent cancels an intent that has not reached processing
func (s *IntentService) CancelIntent(ctx context.Context, id int64) (*model.PaymentIntent, error) {
	moved, err := s.intentRepo.UpdateStatusIf(ctx, id,
		[]model.IntentStatus{model.IntentStatusCreated, model.IntentStatusRequiresAction},
		model.IntentStatusCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel intent: %w", err)
	}
	if !moved {
		return nil, apperr.NewAppError(apperr.CodeConflict, fmt.Sprintf("intent %d is not cancellable", id), nil)
	}

	return s.GetIntent(ctx, id)
}

// ExpireStale cancels intents past their TTL. Concurrent reapers are
// safe: the conditional update moves each row at most once.
func (s *IntentService) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.intentRepo.CancelExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire intents: %w", err)
	}

	if count > 0 {
		s.logger.Info("Expired stale payment intents", zap.Int64("count", count))
	}

	return count, nil
}
