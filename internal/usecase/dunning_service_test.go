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
	"github.com/elimupay/billing/internal/domain/provider"
	"github.com/elimupay/billing/internal/notify"
	"github.com/elimupay/billing/internal/usecase"
)

type dunningFixture struct {
	subscriptionRepo *MockSubscriptionRepository
	attemptRepo      *MockRenewalAttemptRepository
	scheduleRepo     *MockDunningScheduleRepository
	orderRepo        *MockOrderRepository
	intentRepo       *MockIntentRepository
	methodRepo       *MockPaymentMethodRepository
	gateway          *MockGateway
	notifier         *MockNotifier
	service          *usecase.DunningService
}

func newDunningFixture() *dunningFixture {
	logger := zap.NewNop()
	f := &dunningFixture{
		subscriptionRepo: new(MockSubscriptionRepository),
		attemptRepo:      new(MockRenewalAttemptRepository),
		scheduleRepo:     new(MockDunningScheduleRepository),
		orderRepo:        new(MockOrderRepository),
		intentRepo:       new(MockIntentRepository),
		methodRepo:       new(MockPaymentMethodRepository),
		gateway:          new(MockGateway),
		notifier:         new(MockNotifier),
	}
	intents := usecase.NewIntentService(f.intentRepo, f.orderRepo, f.methodRepo,
		&staticResolver{f.gateway}, logger)
	renewals := usecase.NewRenewalService(f.subscriptionRepo, f.attemptRepo,
		f.orderRepo, intents, logger)
	f.service = usecase.NewDunningService(f.subscriptionRepo, f.attemptRepo,
		f.scheduleRepo, renewals, f.notifier, logger)
	return f
}

// expectCollection wires every mock a full retry collection touches, so
// sweeps in a loop can cut attempt after attempt.
func (f *dunningFixture) expectCollection(ctx context.Context, userID uuid.UUID) {
	f.attemptRepo.On("GetInFlight", ctx, int64(5), mock.Anything).Return(nil, nil)
	f.attemptRepo.On("CountBySubscription", ctx, int64(5)).Return(int64(0), nil)
	f.orderRepo.On("Create", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*model.Order).ID = 100
		}).
		Return(nil)
	f.attemptRepo.On("Create", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*model.RenewalAttempt).ID = 30
		}).
		Return(nil)
	f.intentRepo.On("GetByIdempotencyKey", ctx, mock.Anything).Return(nil, nil)
	f.orderRepo.On("GetByID", ctx, int64(100)).Return(&model.Order{
		ID:       100,
		UserID:   userID,
		Status:   model.OrderStatusPending,
		Total:    decimal.NewFromInt(1500),
		Currency: "KES",
	}, nil)
	f.methodRepo.On("GetDefaultForUser", ctx, userID).Return(&model.PaymentMethod{
		ID:          3,
		UserID:      userID,
		MethodType:  model.MethodTypeMpesa,
		PhoneNumber: "254712345678",
		IsDefault:   true,
		IsActive:    true,
	}, nil)
	f.intentRepo.On("Create", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*model.PaymentIntent).ID = 42
		}).
		Return(nil)
	f.gateway.On("InitiatePayment", ctx, mock.Anything).
		Return(&provider.InitiateResponse{ProviderRef: "ws_CO_456", CheckoutRequestID: "ws_CO_456"}, nil)
	f.intentRepo.On("UpdateStatusIf", ctx, int64(42), mock.Anything,
		model.IntentStatusRequiresAction, mock.Anything).Return(true, nil)
	f.attemptRepo.On("UpdateFields", ctx, int64(30), mock.Anything).Return(nil)
}

func stockSchedule() *model.DunningSchedule {
	return &model.DunningSchedule{
		ID:              1,
		Name:            "standard",
		RetryOffsets:    model.RetryOffsets{0, 1, 3, 7},
		GracePeriodDays: 7,
		TerminalAction:  model.TerminalActionDowngrade,
		NotifyEmail:     true,
		IsActive:        true,
		IsDefault:       true,
	}
}

func TestDunningService_RunSweep(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	periodEnd := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	firstFailedAt := periodEnd.Add(30 * time.Minute)

	pastDueSub := func() *model.Subscription {
		graceUntil := firstFailedAt.AddDate(0, 0, 7)
		return &model.Subscription{
			ID:               5,
			UserID:           userID,
			ProductID:        12,
			Status:           model.SubscriptionStatusPastDue,
			PriceAmount:      decimal.NewFromInt(1500),
			PriceCurrency:    "KES",
			CurrentPeriodEnd: periodEnd,
			GraceUntil:       &graceUntil,
		}
	}

	firstFailed := func() *model.RenewalAttempt {
		return &model.RenewalAttempt{
			ID:             30,
			SubscriptionID: 5,
			Status:         model.AttemptStatusFailed,
			CreatedAt:      firstFailedAt,
		}
	}

	t.Run("retries on days 0, 1, 3 and 7 and ends the episode exactly once", func(t *testing.T) {
		f := newDunningFixture()
		sub := pastDueSub()

		f.scheduleRepo.On("GetDefault", ctx).Return(stockSchedule(), nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{sub}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(firstFailed(), nil)
		f.attemptRepo.On("HasAttemptSince", ctx, int64(5), mock.Anything).Return(false, nil)
		f.expectCollection(ctx, userID)

		var retryNotices, endedNotices int
		f.notifier.On("Publish", ctx, mock.MatchedBy(func(event notify.Event) bool {
			return event.Type == notify.EventRenewalRetry
		})).Run(func(mock.Arguments) { retryNotices++ }).Return(nil)
		f.notifier.On("Publish", ctx, mock.MatchedBy(func(event notify.Event) bool {
			return event.Type == notify.EventSubscriptionEnded
		})).Run(func(mock.Arguments) { endedNotices++ }).Return(nil)

		// The day-7 sweep runs after the grace boundary; the scheduled
		// retry still fires before the terminal action is applied
		f.subscriptionRepo.On("UpdateStatusIf", ctx, int64(5),
			[]model.SubscriptionStatus{model.SubscriptionStatusPastDue},
			model.SubscriptionStatusUnpaid,
			mock.MatchedBy(func(fields map[string]interface{}) bool {
				_, hasEnded := fields["ended_at"]
				return hasEnded
			})).Return(true, nil).Once()

		// One sweep per day, 30 minutes past each day boundary
		for day := 0; day <= 7; day++ {
			now := firstFailedAt.Add(time.Duration(day)*24*time.Hour + 30*time.Minute)
			assert.NoError(t, f.service.RunSweep(ctx, now))
		}

		// Days 0, 1, 3 and 7 retry; days 2, 4, 5 and 6 do not
		f.attemptRepo.AssertNumberOfCalls(t, "Create", 4)
		assert.Equal(t, 4, retryNotices)
		assert.Equal(t, 1, endedNotices)
		f.subscriptionRepo.AssertExpectations(t)
	})

	t.Run("a second sweep on the same offset day does not retry again", func(t *testing.T) {
		f := newDunningFixture()

		f.scheduleRepo.On("GetDefault", ctx).Return(stockSchedule(), nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{pastDueSub()}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(firstFailed(), nil)
		f.attemptRepo.On("HasAttemptSince", ctx, int64(5), mock.Anything).Return(true, nil)

		err := f.service.RunSweep(ctx, firstFailedAt.Add(30*time.Minute))

		assert.NoError(t, err)
		f.attemptRepo.AssertNotCalled(t, "GetInFlight", mock.Anything, mock.Anything, mock.Anything)
		f.notifier.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("a skipped retry publishes no notification", func(t *testing.T) {
		f := newDunningFixture()
		inFlight := &model.RenewalAttempt{ID: 99, SubscriptionID: 5, Status: model.AttemptStatusProcessing}

		f.scheduleRepo.On("GetDefault", ctx).Return(stockSchedule(), nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{pastDueSub()}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(firstFailed(), nil)
		f.attemptRepo.On("HasAttemptSince", ctx, int64(5), mock.Anything).Return(false, nil)
		f.attemptRepo.On("GetInFlight", ctx, int64(5), mock.Anything).Return(inFlight, nil)

		err := f.service.RunSweep(ctx, firstFailedAt.Add(30*time.Minute))

		assert.NoError(t, err)
		f.attemptRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		f.notifier.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("grace expiry downgrades the subscription once", func(t *testing.T) {
		f := newDunningFixture()
		afterGrace := firstFailedAt.AddDate(0, 0, 8).Add(time.Hour)

		f.scheduleRepo.On("GetDefault", ctx).Return(stockSchedule(), nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{pastDueSub()}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(firstFailed(), nil)
		f.subscriptionRepo.On("UpdateStatusIf", ctx, int64(5),
			[]model.SubscriptionStatus{model.SubscriptionStatusPastDue},
			model.SubscriptionStatusUnpaid,
			mock.MatchedBy(func(fields map[string]interface{}) bool {
				_, hasEnded := fields["ended_at"]
				return hasEnded
			})).Return(true, nil).Once()
		f.subscriptionRepo.On("UpdateStatusIf", ctx, int64(5),
			mock.Anything, model.SubscriptionStatusUnpaid, mock.Anything).Return(false, nil).Once()
		f.notifier.On("Publish", ctx, mock.MatchedBy(func(event notify.Event) bool {
			return event.Type == notify.EventSubscriptionEnded
		})).Return(nil)

		// Concurrent sweeps race on the status guard; only the winner notifies
		assert.NoError(t, f.service.RunSweep(ctx, afterGrace))
		assert.NoError(t, f.service.RunSweep(ctx, afterGrace))

		f.notifier.AssertNumberOfCalls(t, "Publish", 1)
		f.subscriptionRepo.AssertExpectations(t)
	})

	t.Run("cancel schedules end the subscription with a cancellation timestamp", func(t *testing.T) {
		f := newDunningFixture()
		schedule := stockSchedule()
		schedule.TerminalAction = model.TerminalActionCancel
		afterGrace := firstFailedAt.AddDate(0, 0, 8).Add(time.Hour)

		f.scheduleRepo.On("GetDefault", ctx).Return(schedule, nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{pastDueSub()}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(firstFailed(), nil)
		f.subscriptionRepo.On("UpdateStatusIf", ctx, int64(5),
			[]model.SubscriptionStatus{model.SubscriptionStatusPastDue},
			model.SubscriptionStatusCancelled,
			mock.MatchedBy(func(fields map[string]interface{}) bool {
				_, hasCancelled := fields["cancelled_at"]
				return hasCancelled
			})).Return(true, nil)
		f.notifier.On("Publish", ctx, mock.Anything).Return(nil)

		err := f.service.RunSweep(ctx, afterGrace)

		assert.NoError(t, err)
		f.subscriptionRepo.AssertExpectations(t)
	})

	t.Run("past_due with no failed attempt on record is left alone", func(t *testing.T) {
		f := newDunningFixture()

		f.scheduleRepo.On("GetDefault", ctx).Return(stockSchedule(), nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{pastDueSub()}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(nil, nil)

		err := f.service.RunSweep(ctx, firstFailedAt.Add(time.Hour))

		assert.NoError(t, err)
		f.notifier.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		f.subscriptionRepo.AssertNotCalled(t, "UpdateStatusIf",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sets the grace window from the first failure on entry", func(t *testing.T) {
		f := newDunningFixture()
		sub := pastDueSub()
		sub.GraceUntil = nil

		f.scheduleRepo.On("GetDefault", ctx).Return(stockSchedule(), nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{sub}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(firstFailed(), nil)
		f.subscriptionRepo.On("UpdateFields", ctx, int64(5), mock.MatchedBy(func(fields map[string]interface{}) bool {
			until, ok := fields["grace_until"].(time.Time)
			return ok && until.Equal(firstFailedAt.AddDate(0, 0, 7))
		})).Return(nil)
		f.attemptRepo.On("HasAttemptSince", ctx, int64(5), mock.Anything).Return(false, nil)
		f.expectCollection(ctx, userID)
		f.notifier.On("Publish", ctx, mock.Anything).Return(nil)

		err := f.service.RunSweep(ctx, firstFailedAt.Add(30*time.Minute))

		assert.NoError(t, err)
		f.subscriptionRepo.AssertExpectations(t)
	})

	t.Run("missing schedule falls back to the stock cadence", func(t *testing.T) {
		f := newDunningFixture()

		f.scheduleRepo.On("GetDefault", ctx).Return(nil, nil)
		f.subscriptionRepo.On("ListByStatus", ctx, model.SubscriptionStatusPastDue).
			Return([]*model.Subscription{pastDueSub()}, nil)
		f.attemptRepo.On("GetFirstFailedSince", ctx, int64(5), mock.Anything).Return(firstFailed(), nil)
		f.attemptRepo.On("HasAttemptSince", ctx, int64(5), mock.Anything).Return(false, nil)
		f.expectCollection(ctx, userID)
		f.notifier.On("Publish", ctx, mock.Anything).Return(nil)

		err := f.service.RunSweep(ctx, firstFailedAt.Add(30*time.Minute))

		assert.NoError(t, err)
		f.attemptRepo.AssertNumberOfCalls(t, "Create", 1)
		f.notifier.AssertNumberOfCalls(t, "Publish", 1)
	})
}
