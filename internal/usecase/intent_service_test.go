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
	"github.com/elimupay/billing/internal/domain/repository"
	"github.com/elimupay/billing/internal/usecase"
)

func TestIntentService_CreateIntent(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	userID := uuid.New()

	pendingOrder := func() *model.Order {
		return &model.Order{
			ID:       100,
			UserID:   userID,
			Status:   model.OrderStatusPending,
			Subtotal: decimal.NewFromInt(1000),
			Total:    decimal.NewFromInt(1000),
			Currency: "KES",
		}
	}

	t.Run("idempotent replay returns existing intent without a second push", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		orderRepo := new(MockOrderRepository)
		methodRepo := new(MockPaymentMethodRepository)
		gateway := new(MockGateway)

		existing := &model.PaymentIntent{
			ID:             7,
			OrderID:        100,
			Status:         model.IntentStatusRequiresAction,
			IdempotencyKey: "renewal_5_1_abcd1234",
		}
		intentRepo.On("GetByIdempotencyKey", ctx, "renewal_5_1_abcd1234").Return(existing, nil)

		service := usecase.NewIntentService(intentRepo, orderRepo, methodRepo, &staticResolver{gateway}, logger)

		intent, err := service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			OrderID:        100,
			UserID:         userID,
			Provider:       "mpesa",
			PhoneNumber:    "254712345678",
			IdempotencyKey: "renewal_5_1_abcd1234",
		})

		assert.NoError(t, err)
		assert.Equal(t, existing, intent)
		intentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		gateway.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything)
		intentRepo.AssertExpectations(t)
	})

	t.Run("creates intent and records provider references after push", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		orderRepo := new(MockOrderRepository)
		methodRepo := new(MockPaymentMethodRepository)
		gateway := new(MockGateway)

		intentRepo.On("GetByIdempotencyKey", ctx, "checkout_100_1_deadbeef").Return(nil, nil)
		orderRepo.On("GetByID", ctx, int64(100)).Return(pendingOrder(), nil)
		intentRepo.On("Create", ctx, mock.AnythingOfType("*model.PaymentIntent")).
			Run(func(args mock.Arguments) {
				args.Get(1).(*model.PaymentIntent).ID = 42
			}).
			Return(nil)
		gateway.On("InitiatePayment", ctx, mock.MatchedBy(func(req *provider.InitiateRequest) bool {
			return req.PhoneNumber == "254712345678" && req.Amount.Equal(decimal.NewFromInt(1000))
		})).Return(&provider.InitiateResponse{
			ProviderRef:       "ws_CO_123",
			CheckoutRequestID: "ws_CO_123",
			MerchantRequestID: "29115-34620561-1",
			NextAction:        "await_stk_pin",
		}, nil)
		intentRepo.On("UpdateStatusIf", ctx, int64(42),
			[]model.IntentStatus{model.IntentStatusCreated},
			model.IntentStatusRequiresAction, mock.Anything).Return(true, nil)

		service := usecase.NewIntentService(intentRepo, orderRepo, methodRepo, &staticResolver{gateway}, logger)

		intent, err := service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			OrderID:        100,
			UserID:         userID,
			Provider:       "mpesa",
			PhoneNumber:    "254712345678",
			IdempotencyKey: "checkout_100_1_deadbeef",
		})

		assert.NoError(t, err)
		assert.Equal(t, model.IntentStatusRequiresAction, intent.Status)
		assert.Equal(t, "ws_CO_123", intent.CheckoutRequestID)
		assert.Equal(t, model.NextActionSTKPush, intent.NextAction)
		assert.True(t, intent.Amount.Equal(decimal.NewFromInt(1000)))
		intentRepo.AssertExpectations(t)
		orderRepo.AssertExpectations(t)
		gateway.AssertExpectations(t)
	})

	t.Run("lost creation race returns the winning intent", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		orderRepo := new(MockOrderRepository)
		methodRepo := new(MockPaymentMethodRepository)
		gateway := new(MockGateway)

		winner := &model.PaymentIntent{
			ID:             9,
			OrderID:        100,
			Status:         model.IntentStatusRequiresAction,
			IdempotencyKey: "checkout_100_1_cafebabe",
		}
		intentRepo.On("GetByIdempotencyKey", ctx, "checkout_100_1_cafebabe").Return(nil, nil).Once()
		orderRepo.On("GetByID", ctx, int64(100)).Return(pendingOrder(), nil)
		intentRepo.On("Create", ctx, mock.AnythingOfType("*model.PaymentIntent")).Return(repository.ErrDuplicateKey)
		intentRepo.On("GetByIdempotencyKey", ctx, "checkout_100_1_cafebabe").Return(winner, nil).Once()

		service := usecase.NewIntentService(intentRepo, orderRepo, methodRepo, &staticResolver{gateway}, logger)

		intent, err := service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			OrderID:        100,
			UserID:         userID,
			Provider:       "mpesa",
			PhoneNumber:    "254712345678",
			IdempotencyKey: "checkout_100_1_cafebabe",
		})

		assert.NoError(t, err)
		assert.Equal(t, winner, intent)
		gateway.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything)
		intentRepo.AssertExpectations(t)
	})

	t.Run("rejects an order that is already paid", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		orderRepo := new(MockOrderRepository)
		methodRepo := new(MockPaymentMethodRepository)
		gateway := new(MockGateway)

		paid := pendingOrder()
		paid.Status = model.OrderStatusPaid

		intentRepo.On("GetByIdempotencyKey", ctx, "checkout_100_2_00000000").Return(nil, nil)
		orderRepo.On("GetByID", ctx, int64(100)).Return(paid, nil)

		service := usecase.NewIntentService(intentRepo, orderRepo, methodRepo, &staticResolver{gateway}, logger)

		intent, err := service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			OrderID:        100,
			UserID:         userID,
			Provider:       "mpesa",
			PhoneNumber:    "254712345678",
			IdempotencyKey: "checkout_100_2_00000000",
		})

		assert.Error(t, err)
		assert.Nil(t, intent)
		assert.Contains(t, err.Error(), "already paid")
		intentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("falls back to the default payment method for provider and phone", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		orderRepo := new(MockOrderRepository)
		methodRepo := new(MockPaymentMethodRepository)
		gateway := new(MockGateway)

		intentRepo.On("GetByIdempotencyKey", ctx, "renewal_5_2_feedface").Return(nil, nil)
		orderRepo.On("GetByID", ctx, int64(100)).Return(pendingOrder(), nil)
		methodRepo.On("GetDefaultForUser", ctx, userID).Return(&model.PaymentMethod{
			ID:          3,
			UserID:      userID,
			MethodType:  model.MethodTypeAirtel,
			PhoneNumber: "254733000111",
			IsDefault:   true,
			IsActive:    true,
		}, nil)
		intentRepo.On("Create", ctx, mock.MatchedBy(func(intent *model.PaymentIntent) bool {
			return intent.Provider == model.MethodTypeAirtel
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*model.PaymentIntent).ID = 43
		}).Return(nil)
		gateway.On("InitiatePayment", ctx, mock.MatchedBy(func(req *provider.InitiateRequest) bool {
			return req.PhoneNumber == "254733000111"
		})).Return(&provider.InitiateResponse{ProviderRef: "ORD100"}, nil)
		intentRepo.On("UpdateStatusIf", ctx, int64(43), mock.Anything,
			model.IntentStatusRequiresAction, mock.Anything).Return(true, nil)

		service := usecase.NewIntentService(intentRepo, orderRepo, methodRepo, &staticResolver{gateway}, logger)

		intent, err := service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			OrderID:        100,
			UserID:         userID,
			IdempotencyKey: "renewal_5_2_feedface",
		})

		assert.NoError(t, err)
		assert.Equal(t, model.MethodTypeAirtel, intent.Provider)
		methodRepo.AssertExpectations(t)
		gateway.AssertExpectations(t)
	})

	t.Run("business decline marks the intent failed", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		orderRepo := new(MockOrderRepository)
		methodRepo := new(MockPaymentMethodRepository)
		gateway := new(MockGateway)

		intentRepo.On("GetByIdempotencyKey", ctx, "checkout_100_3_0badf00d").Return(nil, nil)
		orderRepo.On("GetByID", ctx, int64(100)).Return(pendingOrder(), nil)
		intentRepo.On("Create", ctx, mock.AnythingOfType("*model.PaymentIntent")).
			Run(func(args mock.Arguments) {
				args.Get(1).(*model.PaymentIntent).ID = 44
			}).
			Return(nil)
		gateway.On("InitiatePayment", ctx, mock.Anything).Return(nil,
			provider.NewError(provider.FailureProviderRejected, "1", "insufficient funds", ""))
		intentRepo.On("UpdateStatusIf", ctx, int64(44),
			[]model.IntentStatus{model.IntentStatusCreated},
			model.IntentStatusFailed, mock.Anything).Return(true, nil)

		service := usecase.NewIntentService(intentRepo, orderRepo, methodRepo, &staticResolver{gateway}, logger)

		intent, err := service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			OrderID:        100,
			UserID:         userID,
			Provider:       "mpesa",
			PhoneNumber:    "254712345678",
			IdempotencyKey: "checkout_100_3_0badf00d",
		})

		assert.Error(t, err)
		assert.NotNil(t, intent)
		assert.Equal(t, model.IntentStatusFailed, intent.Status)
		assert.Equal(t, "insufficient funds", intent.ErrorMessage)
		intentRepo.AssertExpectations(t)
	})

	t.Run("transient failure leaves the intent in created", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		orderRepo := new(MockOrderRepository)
		methodRepo := new(MockPaymentMethodRepository)
		gateway := new(MockGateway)

		intentRepo.On("GetByIdempotencyKey", ctx, "checkout_100_4_c0ffee00").Return(nil, nil)
		orderRepo.On("GetByID", ctx, int64(100)).Return(pendingOrder(), nil)
		intentRepo.On("Create", ctx, mock.AnythingOfType("*model.PaymentIntent")).
			Run(func(args mock.Arguments) {
				args.Get(1).(*model.PaymentIntent).ID = 45
			}).
			Return(nil)
		gateway.On("InitiatePayment", ctx, mock.Anything).Return(nil,
			provider.NewError(provider.FailureNetwork, "", "request timed out", ""))

		service := usecase.NewIntentService(intentRepo, orderRepo, methodRepo, &staticResolver{gateway}, logger)

		intent, err := service.CreateIntent(ctx, &usecase.CreateIntentRequest{
			OrderID:        100,
			UserID:         userID,
			Provider:       "mpesa",
			PhoneNumber:    "254712345678",
			IdempotencyKey: "checkout_100_4_c0ffee00",
		})

		assert.Error(t, err)
		assert.NotNil(t, intent)
		assert.Equal(t, model.IntentStatusCreated, intent.Status)
		intentRepo.AssertNotCalled(t, "UpdateStatusIf",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestIntentService_CancelIntent(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("cancels an intent that has not settled", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		cancelled := &model.PaymentIntent{ID: 5, Status: model.IntentStatusCancelled}

		intentRepo.On("UpdateStatusIf", ctx, int64(5),
			[]model.IntentStatus{model.IntentStatusCreated, model.IntentStatusRequiresAction},
			model.IntentStatusCancelled, mock.Anything).Return(true, nil)
		intentRepo.On("GetByID", ctx, int64(5)).Return(cancelled, nil)

		service := usecase.NewIntentService(intentRepo, new(MockOrderRepository),
			new(MockPaymentMethodRepository), nil, logger)

		intent, err := service.CancelIntent(ctx, 5)

		assert.NoError(t, err)
		assert.Equal(t, model.IntentStatusCancelled, intent.Status)
		intentRepo.AssertExpectations(t)
	})

	t.Run("refuses to cancel a settled intent", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		intentRepo.On("UpdateStatusIf", ctx, int64(6),
			mock.Anything, model.IntentStatusCancelled, mock.Anything).Return(false, nil)

		service := usecase.NewIntentService(intentRepo, new(MockOrderRepository),
			new(MockPaymentMethodRepository), nil, logger)

		intent, err := service.CancelIntent(ctx, 6)

		assert.Error(t, err)
		assert.Nil(t, intent)
	})
}

func TestIntentService_ExpireStale(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	now := time.Now()

	t.Run("reports the number of expired intents", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		intentRepo.On("CancelExpired", ctx, now).Return(int64(3), nil)

		service := usecase.NewIntentService(intentRepo, new(MockOrderRepository),
			new(MockPaymentMethodRepository), nil, logger)

		count, err := service.ExpireStale(ctx, now)

		assert.NoError(t, err)
		assert.Equal(t, int64(3), count)
		intentRepo.AssertExpectations(t)
	})

	t.Run("a second reaper pass expires nothing", func(t *testing.T) {
		intentRepo := new(MockIntentRepository)
		intentRepo.On("CancelExpired", ctx, now).Return(int64(0), nil)

		service := usecase.NewIntentService(intentRepo, new(MockOrderRepository),
			new(MockPaymentMethodRepository), nil, logger)

		count, err := service.ExpireStale(ctx, now)

		assert.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

func TestNewIdempotencyKey(t *testing.T) {
	t.Run("keys carry scope, id and attempt and stay unique", func(t *testing.T) {
		a := usecase.NewIdempotencyKey("renewal", 12, 3)
		b := usecase.NewIdempotencyKey("renewal", 12, 3)

		assert.Contains(t, a, "renewal_12_3_")
		assert.NotEqual(t, a, b)
	})
}
