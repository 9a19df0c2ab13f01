package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/service/availability"
	"github.com/Domenick1991/slotcart/internal/service/payment"
	"github.com/stretchr/testify/mock"
)

// fakeSagaLog keeps every state a saga was written in and the state each write expected.
type fakeSagaLog struct {
	mu      sync.Mutex
	states  []domain.SagaState
	froms   []domain.SagaState
	writes  []domain.Saga
	last    domain.Saga
	stale   []domain.Saga
	cutoff  time.Time
	failOn  domain.SagaState
	saveErr error
}

func (f *fakeSagaLog) Create(_ context.Context, saga *domain.Saga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, saga.State)
	f.last = *saga
	return nil
}

func (f *fakeSagaLog) Save(_ context.Context, saga *domain.Saga, from domain.SagaState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil && saga.State == f.failOn {
		return f.saveErr
	}
	f.states = append(f.states, saga.State)
	f.froms = append(f.froms, from)
	snapshot := *saga
	snapshot.Bookings = append([]domain.BookingResult(nil), saga.Bookings...)
	f.writes = append(f.writes, snapshot)
	f.last = *saga
	return nil
}

func (f *fakeSagaLog) ListStale(_ context.Context, updatedBefore time.Time, _ int) ([]domain.Saga, error) {
	f.cutoff = updatedBefore
	return f.stale, nil
}

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) GetCart(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *MockCartRepository) AddItem(ctx context.Context, item *domain.CartItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockCartRepository) UpdatePatient(ctx context.Context, owner domain.OwnerKey, itemID string, patient domain.PatientInfo) (*domain.CartItem, error) {
	args := m.Called(ctx, owner, itemID, patient)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartItem), args.Error(1)
}

func (m *MockCartRepository) DeleteItem(ctx context.Context, owner domain.OwnerKey, itemID string) error {
	return m.Called(ctx, owner, itemID).Error(0)
}

func (m *MockCartRepository) DeleteItems(ctx context.Context, owner domain.OwnerKey, itemIDs []string) error {
	return m.Called(ctx, owner, itemIDs).Error(0)
}

func (m *MockCartRepository) SaveDiscounts(ctx context.Context, owner domain.OwnerKey, expectedVersion int64, couponCode string, items []domain.CartItem) (int64, error) {
	args := m.Called(ctx, owner, expectedVersion, couponCode, items)
	return args.Get(0).(int64), args.Error(1)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) GetBySagaID(ctx context.Context, sagaID string) (*domain.Order, error) {
	args := m.Called(ctx, sagaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, items []domain.CartItem) availability.ValidationResult {
	return m.Called(ctx, items).Get(0).(availability.ValidationResult)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) Authorize(ctx context.Context, input payment.AuthorizeInput) domain.PaymentAuthorization {
	return m.Called(ctx, input).Get(0).(domain.PaymentAuthorization)
}

func (m *MockPayments) Capture(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization {
	return m.Called(ctx, auth).Get(0).(domain.PaymentAuthorization)
}

func (m *MockPayments) Cancel(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization {
	return m.Called(ctx, auth).Get(0).(domain.PaymentAuthorization)
}

func (m *MockPayments) EphemeralKey(ctx context.Context, customerID string) (*domain.EphemeralKey, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EphemeralKey), args.Error(1)
}

type MockBookings struct {
	mock.Mock
}

func (m *MockBookings) CreateBulk(ctx context.Context, items []domain.CartItem, userID, userEmail string, onResult func(domain.BookingResult)) []domain.BookingResult {
	return m.Called(ctx, items, userID, userEmail, onResult).Get(0).([]domain.BookingResult)
}

func (m *MockBookings) CancelBulk(ctx context.Context, userID string, results []domain.BookingResult) int {
	return m.Called(ctx, userID, results).Int(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireCheckoutLock(ctx context.Context, owner domain.OwnerKey, token string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, owner, token, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseCheckoutLock(ctx context.Context, owner domain.OwnerKey, token string) error {
	return m.Called(ctx, owner, token).Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	return m.Called(ctx, topic, key, value).Error(0)
}
