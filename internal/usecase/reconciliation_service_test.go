package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/notify"
	"github.com/elimupay/billing/internal/usecase"
)

type reconciliationFixture struct {
	paymentRepo *MockPaymentRepository
	intentRepo  *MockIntentRepository
	orderRepo   *MockOrderRepository
	webhookRepo *MockWebhookRepository
	ledgerRepo  *MockLedgerRepository
	notifier    *MockNotifier
	service     *usecase.ReconciliationService
}

func newReconciliationFixture() *reconciliationFixture {
	f := &reconciliationFixture{
		paymentRepo: new(MockPaymentRepository),
		intentRepo:  new(MockIntentRepository),
		orderRepo:   new(MockOrderRepository),
		webhookRepo: new(MockWebhookRepository),
		ledgerRepo:  new(MockLedgerRepository),
		notifier:    new(MockNotifier),
	}
	f.service = usecase.NewReconciliationService(f.paymentRepo, f.intentRepo,
		f.orderRepo, f.webhookRepo, f.ledgerRepo, f.notifier, zap.NewNop())
	return f
}

func TestReconciliationService_Run(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	userID := uuid.New()

	settledPayment := func() *model.Payment {
		return &model.Payment{
			ID:              200,
			PaymentIntentID: 7,
			OrderID:         100,
			UserID:          userID,
			Amount:          decimal.NewFromInt(1000),
			Currency:        "KES",
			Provider:        "mpesa",
		}
	}

	succeededIntent := func() *model.PaymentIntent {
		return &model.PaymentIntent{ID: 7, OrderID: 100, Status: model.IntentStatusSucceeded}
	}

	paidOrder := func() *model.Order {
		return &model.Order{ID: 100, Status: model.OrderStatusPaid}
	}

	t.Run("clean day produces no alert", func(t *testing.T) {
		f := newReconciliationFixture()

		f.paymentRepo.On("ListCreatedBetween", ctx, day, day.AddDate(0, 0, 1)).
			Return([]*model.Payment{settledPayment()}, nil)
		f.ledgerRepo.On("SumsByPayment", ctx, int64(200)).
			Return(decimal.NewFromInt(1000), decimal.NewFromInt(1000), nil)
		f.intentRepo.On("GetByID", ctx, int64(7)).Return(succeededIntent(), nil)
		f.orderRepo.On("GetByID", ctx, int64(100)).Return(paidOrder(), nil)
		f.webhookRepo.On("HasProcessedForPayment", ctx, int64(200)).Return(true, nil)

		report, err := f.service.Run(ctx, day)

		assert.NoError(t, err)
		assert.Equal(t, 1, report.PaymentsChecked)
		assert.Empty(t, report.Mismatches)
		f.notifier.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("one alert per run however many mismatches the window holds", func(t *testing.T) {
		f := newReconciliationFixture()

		f.paymentRepo.On("ListCreatedBetween", ctx, day, day.AddDate(0, 0, 1)).
			Return([]*model.Payment{settledPayment()}, nil)
		// Short-posted ledger and a missing webhook event on the same payment
		f.ledgerRepo.On("SumsByPayment", ctx, int64(200)).
			Return(decimal.NewFromInt(500), decimal.NewFromInt(1000), nil)
		f.intentRepo.On("GetByID", ctx, int64(7)).Return(succeededIntent(), nil)
		f.orderRepo.On("GetByID", ctx, int64(100)).Return(paidOrder(), nil)
		f.webhookRepo.On("HasProcessedForPayment", ctx, int64(200)).Return(false, nil)

		f.notifier.On("Publish", ctx, mock.MatchedBy(func(event notify.Event) bool {
			return event.Type == notify.EventReconciliationAlert &&
				event.Data["mismatch_count"] == 3
		})).Return(nil)

		report, err := f.service.Run(ctx, day)

		assert.NoError(t, err)
		assert.Len(t, report.Mismatches, 3)
		f.notifier.AssertNumberOfCalls(t, "Publish", 1)
	})

	t.Run("findings are reported and nothing is repaired", func(t *testing.T) {
		f := newReconciliationFixture()

		f.paymentRepo.On("ListCreatedBetween", ctx, day, day.AddDate(0, 0, 1)).
			Return([]*model.Payment{settledPayment()}, nil)
		f.ledgerRepo.On("SumsByPayment", ctx, int64(200)).
			Return(decimal.NewFromInt(1000), decimal.NewFromInt(1000), nil)
		// Intent never left requires_action yet a payment exists
		pending := succeededIntent()
		pending.Status = model.IntentStatusRequiresAction
		f.intentRepo.On("GetByID", ctx, int64(7)).Return(pending, nil)
		f.orderRepo.On("GetByID", ctx, int64(100)).Return(paidOrder(), nil)
		f.webhookRepo.On("HasProcessedForPayment", ctx, int64(200)).Return(true, nil)
		f.notifier.On("Publish", ctx, mock.Anything).Return(nil)

		report, err := f.service.Run(ctx, day)

		assert.NoError(t, err)
		assert.Len(t, report.Mismatches, 1)
		assert.Equal(t, "intent_status_mismatch", report.Mismatches[0].Kind)

		f.intentRepo.AssertNotCalled(t, "UpdateStatusIf",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.intentRepo.AssertNotCalled(t, "UpdateFields", mock.Anything, mock.Anything, mock.Anything)
		f.orderRepo.AssertNotCalled(t, "UpdateFields", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("orphan payment without an intent is flagged", func(t *testing.T) {
		f := newReconciliationFixture()

		f.paymentRepo.On("ListCreatedBetween", ctx, day, day.AddDate(0, 0, 1)).
			Return([]*model.Payment{settledPayment()}, nil)
		f.ledgerRepo.On("SumsByPayment", ctx, int64(200)).
			Return(decimal.NewFromInt(1000), decimal.NewFromInt(1000), nil)
		f.intentRepo.On("GetByID", ctx, int64(7)).Return(nil, nil)
		f.orderRepo.On("GetByID", ctx, int64(100)).Return(paidOrder(), nil)
		f.webhookRepo.On("HasProcessedForPayment", ctx, int64(200)).Return(true, nil)
		f.notifier.On("Publish", ctx, mock.Anything).Return(nil)

		report, err := f.service.Run(ctx, day)

		assert.NoError(t, err)
		assert.Len(t, report.Mismatches, 1)
		assert.Equal(t, "orphan_payment", report.Mismatches[0].Kind)
	})

	t.Run("refunded order is consistent with its payment", func(t *testing.T) {
		f := newReconciliationFixture()

		refunded := paidOrder()
		refunded.Status = model.OrderStatusRefunded

		f.paymentRepo.On("ListCreatedBetween", ctx, day, day.AddDate(0, 0, 1)).
			Return([]*model.Payment{settledPayment()}, nil)
		f.ledgerRepo.On("SumsByPayment", ctx, int64(200)).
			Return(decimal.NewFromInt(1000), decimal.NewFromInt(1000), nil)
		f.intentRepo.On("GetByID", ctx, int64(7)).Return(succeededIntent(), nil)
		f.orderRepo.On("GetByID", ctx, int64(100)).Return(refunded, nil)
		f.webhookRepo.On("HasProcessedForPayment", ctx, int64(200)).Return(true, nil)

		report, err := f.service.Run(ctx, day)

		assert.NoError(t, err)
		assert.Empty(t, report.Mismatches)
	})
}
