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

// Mismatch is one reconciliation finding
type Mismatch struct {
	PaymentID int64  `json:"payment_id"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
}

// ReconciliationReport summarizes one nightly run
type ReconciliationReport struct {
	WindowStart     time.Time  `json:"window_start"`
	WindowEnd       time.Time  `json:"window_end"`
	PaymentsChecked int        `json:"payments_checked"`
	Mismatches      []Mismatch `json:"mismatches"`
}

// ReconciliationService cross-checks the prior day's payments against
// their intents, orders, webhook events and ledger postings. Findings are
// reported, never repaired; correction is an operator decision.
type ReconciliationService struct {
	paymentRepo repository.PaymentRepository
	intentRepo  repository.IntentRepository
	orderRepo   repository.OrderRepository
	webhookRepo repository.WebhookRepository
	ledgerRepo  repository.LedgerRepository
	notifier    notify.Notifier
	logger      *zap.Logger
}

// NewReconciliationService creates a new reconciliation service instance
func NewReconciliationService(
	paymentRepo repository.PaymentRepository,
	intentRepo repository.IntentRepository,
	orderRepo repository.OrderRepository,
	webhookRepo repository.WebhookRepository,
	ledgerRepo repository.LedgerRepository,
	notifier notify.Notifier,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		paymentRepo: paymentRepo,
		intentRepo:  intentRepo,
		orderRepo:   orderRepo,
		webhookRepo: webhookRepo,
		ledgerRepo:  ledgerRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

// Run reconciles the calendar day containing day. The usual caller passes
// yesterday.
func (s *ReconciliationService) Run(ctx context.Context, day time.Time) (*ReconciliationReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	payments, err := s.paymentRepo.ListCreatedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for window: %w", err)
	}

	report := &ReconciliationReport{
		WindowStart:     start,
		WindowEnd:       end,
		PaymentsChecked: len(payments),
	}

	for _, payment := range payments {
		report.Mismatches = append(report.Mismatches, s.checkPayment(ctx, payment)...)
	}

	s.logger.Info("Reconciliation finished",
		zap.Time("window_start", start),
		zap.Int("payments_checked", report.PaymentsChecked),
		zap.Int("mismatches", len(report.Mismatches)))

	if len(report.Mismatches) > 0 {
		s.alert(ctx, report)
	}

	return report, nil
}

// checkPayment runs the per-payment consistency checks
func (s *ReconciliationService) checkPayment(ctx context.Context, payment *model.Payment) []Mismatch {
	var found []Mismatch

	debits, credits, err := s.ledgerRepo.SumsByPayment(ctx, payment.ID)
	if err != nil {
		found = append(found, Mismatch{payment.ID, "ledger_read_error", err.Error()})
	} else {
		if !debits.Equal(credits) {
			found = append(found, Mismatch{payment.ID, "ledger_unbalanced",
				fmt.Sprintf("debits %s, credits %s", debits, credits)})
		}
		if !debits.Equal(payment.Amount) {
			found = append(found, Mismatch{payment.ID, "ledger_amount_mismatch",
				fmt.Sprintf("posted %s, settled %s", debits, payment.Amount)})
		}
	}

	intent, err := s.intentRepo.GetByID(ctx, payment.PaymentIntentID)
	switch {
	case err != nil:
		found = append(found, Mismatch{payment.ID, "intent_read_error", err.Error()})
	case intent == nil:
		found = append(found, Mismatch{payment.ID, "orphan_payment",
			fmt.Sprintf("intent %d does not exist", payment.PaymentIntentID)})
	case intent.Status != model.IntentStatusSucceeded:
		found = append(found, Mismatch{payment.ID, "intent_status_mismatch",
			fmt.Sprintf("intent %d is %s", intent.ID, intent.Status)})
	}

	order, err := s.orderRepo.GetByID(ctx, payment.OrderID)
	switch {
	case err != nil:
		found = append(found, Mismatch{payment.ID, "order_read_error", err.Error()})
	case order == nil:
		found = append(found, Mismatch{payment.ID, "orphan_payment",
			fmt.Sprintf("order %d does not exist", payment.OrderID)})
	case order.Status != model.OrderStatusPaid && order.Status != model.OrderStatusRefunded:
		found = append(found, Mismatch{payment.ID, "order_status_mismatch",
			fmt.Sprintf("order %d is %s", order.ID, order.Status)})
	}

	hasEvent, err := s.webhookRepo.HasProcessedForPayment(ctx, payment.ID)
	if err != nil {
		found = append(found, Mismatch{payment.ID, "webhook_read_error", err.Error()})
	} else if !hasEvent {
		found = append(found, Mismatch{payment.ID, "missing_webhook_event",
			"no processed webhook event links to this payment"})
	}

	return found
}

// alert sends exactly one notification per run regardless of how many
// mismatches the window held
func (s *ReconciliationService) alert(ctx context.Context, report *ReconciliationReport) {
	if s.notifier == nil {
		return
	}

	err := s.notifier.Publish(ctx, notify.Event{
		Type: notify.EventReconciliationAlert,
		Data: map[string]interface{}{
			"window_start":     report.WindowStart,
			"payments_checked": report.PaymentsChecked,
			"mismatch_count":   len(report.Mismatches),
			"mismatches":       report.Mismatches,
		},
	})
	if err != nil {
		s.logger.Error("Failed to publish reconciliation alert", zap.Error(err))
	}
}
