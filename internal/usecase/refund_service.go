package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
)

// RefundService returns funds for settled payments and posts the
// reversing ledger entries
type RefundService struct {
	refundRepo  repository.RefundRepository
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	ledger      *LedgerService
	gateways    GatewayResolver
	logger      *zap.Logger
}

// NewRefundService creates a new refund service instance
func NewRefundService(
	refundRepo repository.RefundRepository,
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	ledger *LedgerService,
	gateways GatewayResolver,
	logger *zap.Logger,
) *RefundService {
	return &RefundService{
		refundRepo:  refundRepo,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		ledger:      ledger,
		gateways:    gateways,
		logger:      logger,
	}
}

// CreateRefund refunds a settled payment in full or in part
func (s *RefundService) CreateRefund(ctx context.Context, paymentID int64, amount decimal.Decimal, reason string) (*model.Refund, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("payment not found: %d", paymentID)
	}

	if amount.IsZero() {
		amount = payment.Amount
	}
	if amount.GreaterThan(payment.Amount) {
		return nil, fmt.Errorf("refund amount %s exceeds settled amount %s", amount, payment.Amount)
	}

	refund := &model.Refund{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		UserID:    payment.UserID,
		Amount:    amount,
		Currency:  payment.Currency,
		Reason:    reason,
		Status:    model.RefundStatusPending,
	}
	if err := s.refundRepo.Create(ctx, refund); err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	gw, err := s.gateways.Get(payment.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve gateway: %w", err)
	}

	resp, err := gw.Refund(ctx, payment.ProviderTransactionID, amount)
	if err != nil {
		if uerr := s.refundRepo.UpdateFields(ctx, refund.ID, map[string]interface{}{
			"status": model.RefundStatusFailed,
		}); uerr != nil {
			s.logger.Error("Failed to mark refund failed", zap.Int64("refund_id", refund.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("provider refund failed: %w", err)
	}

	now := time.Now()
	if err := s.refundRepo.UpdateFields(ctx, refund.ID, map[string]interface{}{
		"status":             model.RefundStatusCompleted,
		"provider_refund_id": resp.ProviderRefundID,
		"completed_at":       &now,
	}); err != nil {
		return nil, fmt.Errorf("failed to record refund completion: %w", err)
	}
	refund.Status = model.RefundStatusCompleted
	refund.ProviderRefundID = resp.ProviderRefundID
	refund.CompletedAt = &now

	if err := s.ledger.RecordRefund(ctx, refund, payment); err != nil {
		s.logger.Error("Failed to post refund to ledger",
			zap.Int64("refund_id", refund.ID),
			zap.Error(err))
	}

	// Full refunds flip the order; partial refunds leave it paid
	if amount.Equal(payment.Amount) {
		if err := s.orderRepo.UpdateFields(ctx, payment.OrderID, map[string]interface{}{
			"status": model.OrderStatusRefunded,
		}); err != nil {
			s.logger.Error("Failed to mark order refunded",
				zap.Int64("order_id", payment.OrderID),
				zap.Error(err))
		}
	}

	s.logger.Info("Refund completed",
		zap.Int64("refund_id", refund.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("amount", amount.String()))

	return refund, nil
}
