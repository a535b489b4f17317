package usecase_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/provider"
	"github.com/elimupay/billing/internal/notify"
)

// MockIntentRepository is a mock implementation of IntentRepository
type MockIntentRepository struct {
	mock.Mock
}

func (m *MockIntentRepository) Create(ctx context.Context, intent *model.PaymentIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockIntentRepository) GetByID(ctx context.Context, id int64) (*model.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockIntentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockIntentRepository) GetByCorrelationRef(ctx context.Context, providerName, ref string) (*model.PaymentIntent, error) {
	args := m.Called(ctx, providerName, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentIntent), args.Error(1)
}

func (m *MockIntentRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockIntentRepository) UpdateStatusIf(ctx context.Context, id int64, from []model.IntentStatus, to model.IntentStatus, fields map[string]interface{}) (bool, error) {
	args := m.Called(ctx, id, from, to, fields)
	return args.Bool(0), args.Error(1)
}

func (m *MockIntentRepository) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockPaymentRepository is a mock implementation of PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByProviderTransactionID(ctx context.Context, txID string) (*model.Payment, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]*model.Payment, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Payment), args.Error(1)
}

// MockWebhookRepository is a mock implementation of WebhookRepository
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) InsertIfAbsent(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookRepository) IncrementDelivery(ctx context.Context, providerEventID string) error {
	args := m.Called(ctx, providerEventID)
	return args.Error(0)
}

func (m *MockWebhookRepository) MarkProcessed(ctx context.Context, id int64, intentID, paymentID *int64) error {
	args := m.Called(ctx, id, intentID, paymentID)
	return args.Error(0)
}

func (m *MockWebhookRepository) MarkFailed(ctx context.Context, id int64, intentID *int64, errMsg string) error {
	args := m.Called(ctx, id, intentID, errMsg)
	return args.Error(0)
}

func (m *MockWebhookRepository) HasProcessedForPayment(ctx context.Context, paymentID int64) (bool, error) {
	args := m.Called(ctx, paymentID)
	return args.Bool(0), args.Error(1)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) AppendEntries(ctx context.Context, entries []*model.LedgerEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockLedgerRepository) SumsByPayment(ctx context.Context, paymentID int64) (decimal.Decimal, decimal.Decimal, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(decimal.Decimal), args.Get(1).(decimal.Decimal), args.Error(2)
}

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

// MockSubscriptionRepository is a mock implementation of SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListDueForRenewal(ctx context.Context, now time.Time) ([]*model.Subscription, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]*model.Subscription, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) UpdateStatusIf(ctx context.Context, id int64, from []model.SubscriptionStatus, to model.SubscriptionStatus, fields map[string]interface{}) (bool, error) {
	args := m.Called(ctx, id, from, to, fields)
	return args.Bool(0), args.Error(1)
}

// MockRenewalAttemptRepository is a mock implementation of RenewalAttemptRepository
type MockRenewalAttemptRepository struct {
	mock.Mock
}

func (m *MockRenewalAttemptRepository) Create(ctx context.Context, attempt *model.RenewalAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockRenewalAttemptRepository) GetByID(ctx context.Context, id int64) (*model.RenewalAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RenewalAttempt), args.Error(1)
}

func (m *MockRenewalAttemptRepository) CountBySubscription(ctx context.Context, subscriptionID int64) (int64, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRenewalAttemptRepository) GetInFlight(ctx context.Context, subscriptionID int64, since time.Time) (*model.RenewalAttempt, error) {
	args := m.Called(ctx, subscriptionID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RenewalAttempt), args.Error(1)
}

func (m *MockRenewalAttemptRepository) GetFirstFailedSince(ctx context.Context, subscriptionID int64, since time.Time) (*model.RenewalAttempt, error) {
	args := m.Called(ctx, subscriptionID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RenewalAttempt), args.Error(1)
}

func (m *MockRenewalAttemptRepository) GetByPaymentIntentID(ctx context.Context, intentID int64) (*model.RenewalAttempt, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RenewalAttempt), args.Error(1)
}

func (m *MockRenewalAttemptRepository) HasAttemptSince(ctx context.Context, subscriptionID int64, after time.Time) (bool, error) {
	args := m.Called(ctx, subscriptionID, after)
	return args.Bool(0), args.Error(1)
}

func (m *MockRenewalAttemptRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

// MockPaymentMethodRepository is a mock implementation of PaymentMethodRepository
type MockPaymentMethodRepository struct {
	mock.Mock
}

func (m *MockPaymentMethodRepository) GetDefaultForUser(ctx context.Context, userID uuid.UUID) (*model.PaymentMethod, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentMethod), args.Error(1)
}

// MockDunningScheduleRepository is a mock implementation of DunningScheduleRepository
type MockDunningScheduleRepository struct {
	mock.Mock
}

func (m *MockDunningScheduleRepository) GetDefault(ctx context.Context) (*model.DunningSchedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DunningSchedule), args.Error(1)
}

func (m *MockDunningScheduleRepository) Save(ctx context.Context, schedule *model.DunningSchedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

// MockRefundRepository is a mock implementation of RefundRepository
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) Create(ctx context.Context, refund *model.Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) GetByID(ctx context.Context, id int64) (*model.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Refund), args.Error(1)
}

func (m *MockRefundRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

// MockGateway is a mock implementation of provider.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiatePayment(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.InitiateResponse), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, providerRef string) (*provider.StatusResponse, error) {
	args := m.Called(ctx, providerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.StatusResponse), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*provider.RefundResponse, error) {
	args := m.Called(ctx, providerRef, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.RefundResponse), args.Error(1)
}

func (m *MockGateway) ParseCallback(payload json.RawMessage) (*provider.CallbackResult, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CallbackResult), args.Error(1)
}

func (m *MockGateway) Name() string {
	args := m.Called()
	return args.String(0)
}

// staticResolver resolves every provider name to the same gateway
type staticResolver struct {
	gateway *MockGateway
}

func (r *staticResolver) Get(name string) (provider.Gateway, error) {
	return r.gateway, nil
}

// MockNotifier is a mock implementation of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, event notify.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
