package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/repository"
	"github.com/Domenick1991/slotcart/internal/service/availability"
	"github.com/Domenick1991/slotcart/internal/service/cart"
	"github.com/Domenick1991/slotcart/internal/service/checkout"
	"github.com/Domenick1991/slotcart/internal/service/payment"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCartUseCase struct {
	mock.Mock
}

func (m *MockCartUseCase) GetCart(ctx context.Context, owner domain.OwnerKey) (*cart.CartView, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.CartView), args.Error(1)
}

func (m *MockCartUseCase) AddItem(ctx context.Context, owner domain.OwnerKey, input cart.AddItemInput) (*domain.CartItem, error) {
	args := m.Called(ctx, owner, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartItem), args.Error(1)
}

func (m *MockCartUseCase) UpdateItem(ctx context.Context, owner domain.OwnerKey, input cart.UpdateItemInput) (*domain.CartItem, error) {
	args := m.Called(ctx, owner, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartItem), args.Error(1)
}

func (m *MockCartUseCase) DeleteItem(ctx context.Context, owner domain.OwnerKey, itemID string) error {
	return m.Called(ctx, owner, itemID).Error(0)
}

func (m *MockCartUseCase) Summarize(c *domain.Cart) *cart.CartView {
	return m.Called(c).Get(0).(*cart.CartView)
}

type MockDiscountUseCase struct {
	mock.Mock
}

func (m *MockDiscountUseCase) ApplyCoupon(ctx context.Context, owner domain.OwnerKey, code string) (*domain.Cart, error) {
	args := m.Called(ctx, owner, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *MockDiscountUseCase) RemoveCoupon(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

type MockPaymentUseCase struct {
	mock.Mock
}

func (m *MockPaymentUseCase) Authorize(ctx context.Context, input payment.AuthorizeInput) domain.PaymentAuthorization {
	return m.Called(ctx, input).Get(0).(domain.PaymentAuthorization)
}

func (m *MockPaymentUseCase) Capture(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization {
	return m.Called(ctx, auth).Get(0).(domain.PaymentAuthorization)
}

func (m *MockPaymentUseCase) Cancel(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization {
	return m.Called(ctx, auth).Get(0).(domain.PaymentAuthorization)
}

func (m *MockPaymentUseCase) EphemeralKey(ctx context.Context, customerID string) (*domain.EphemeralKey, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EphemeralKey), args.Error(1)
}

type MockCheckoutUseCase struct {
	mock.Mock
}

func (m *MockCheckoutUseCase) CheckoutPayment(ctx context.Context, input checkout.PaymentCheckoutInput) (*checkout.Result, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Result), args.Error(1)
}

func (m *MockCheckoutUseCase) Checkout(ctx context.Context, input checkout.CheckoutInput) (*checkout.Result, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Result), args.Error(1)
}

type handlerMocks struct {
	carts     *MockCartUseCase
	discounts *MockDiscountUseCase
	payments  *MockPaymentUseCase
	checkout  *MockCheckoutUseCase
	handler   *CartHandler
}

func newHandlerMocks() *handlerMocks {
	m := &handlerMocks{
		carts:     &MockCartUseCase{},
		discounts: &MockDiscountUseCase{},
		payments:  &MockPaymentUseCase{},
		checkout:  &MockCheckoutUseCase{},
	}
	m.handler = NewCartHandler(m.carts, m.discounts, m.payments, m.checkout)
	return m
}

var testOwner = domain.OwnerKey{UserID: "u1", OrganizationID: "o1"}

func newTestContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(ctxOwner, testOwner)
	c.Set(ctxEmail, "u1@example.com")
	return c, w
}

type testEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Status status          `json:"status"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) testEnvelope {
	var env testEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func sampleView() *cart.CartView {
	c := &domain.Cart{Owner: testOwner, Version: 3, Items: []domain.CartItem{{
		ID:         "a",
		Owner:      testOwner,
		Slot:       domain.SlotRef{ProductTypeID: 7, Date: "2026-10-20", Time: "09:00", CalendarID: 1},
		Patient:    domain.PatientInfo{FirstName: "Ada", LastName: "L", Email: "ada@example.com"},
		PriceCents: 4500,
		Status:     domain.CartItemStatusActive,
	}}}
	return &cart.CartView{Cart: c, Summary: c.Summary(decimal.RequireFromString("0.13"))}
}

func TestCartHandler_get(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodGet, "/api/v1/cart", nil)
	m.carts.On("GetCart", c.Request.Context(), testOwner).Return(sampleView(), nil).Once()

	m.handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, status{Code: 200, Message: "OK"}, env.Status)
	assert.Contains(t, string(env.Data), `"paymentSummary":[{"label":"subTotal","amount":45.00},{"label":"tax","amount":5.85},{"label":"total","amount":50.85}]`)
	assert.Contains(t, string(env.Data), `"price":45.00`)
	m.carts.AssertExpectations(t)
}

func TestCartHandler_add(t *testing.T) {
	m := newHandlerMocks()
	req := addItemRequest{
		Slot:    domain.SlotRef{ProductTypeID: 7, Date: "2026-10-20", Time: "09:00", CalendarID: 1},
		Patient: domain.PatientInfo{FirstName: "Ada", LastName: "L", Email: "ada@example.com"},
	}
	c, w := newTestContext(http.MethodPost, "/api/v1/cart", req)
	created := &domain.CartItem{ID: "new", Slot: req.Slot, Patient: req.Patient, PriceCents: 4500, Status: domain.CartItemStatusActive}
	m.carts.On("AddItem", c.Request.Context(), testOwner, cart.AddItemInput{Slot: req.Slot, Patient: req.Patient}).Return(created, nil).Once()

	m.handler.add(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var item cartItemResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &item))
	assert.Equal(t, "new", item.ID)
	assert.Equal(t, json.Number("45.00"), item.Price)
	m.carts.AssertExpectations(t)
}

func TestCartHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", domain.NewValidationError("slot.date", "must be YYYY-MM-DD"), http.StatusBadRequest},
		{"cart full", domain.ErrCartFull, http.StatusBadRequest},
		{"not found", repository.ErrNotFound, http.StatusNotFound},
		{"conflict", repository.ErrVersionConflict, http.StatusConflict},
		{"saga taken over", fmt.Errorf("saga s1: record Compensating: %w", repository.ErrSagaConflict), http.StatusConflict},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newHandlerMocks()
			c, w := newTestContext(http.MethodDelete, "/api/v1/cart/a", nil)
			c.Params = gin.Params{{Key: "cartItemId", Value: "a"}}
			m.carts.On("DeleteItem", c.Request.Context(), testOwner, "a").Return(tt.err).Once()

			m.handler.remove(c)

			assert.Equal(t, tt.code, w.Code)
			env := decodeEnvelope(t, w)
			assert.Equal(t, tt.code, env.Status.Code)
			assert.True(t, len(env.Data) == 0 || string(env.Data) == "null")
		})
	}
}

func TestCartHandler_add_MalformedBody(t *testing.T) {
	m := newHandlerMocks()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/cart", bytes.NewBufferString("{not json"))
	c.Request.Header.Set("Content-Type", "application/json")

	m.handler.add(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	m.carts.AssertNotCalled(t, "AddItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestCartHandler_update(t *testing.T) {
	m := newHandlerMocks()
	patient := domain.PatientInfo{FirstName: "Grace", LastName: "H", Email: "grace@example.com"}
	c, w := newTestContext(http.MethodPut, "/api/v1/cart", updateItemRequest{CartItemID: "a", Patient: patient})
	m.carts.On("UpdateItem", c.Request.Context(), testOwner, cart.UpdateItemInput{CartItemID: "a", Patient: patient}).
		Return(&domain.CartItem{ID: "a", Patient: patient, PriceCents: 4500}, nil).Once()

	m.handler.update(c)

	assert.Equal(t, http.StatusOK, w.Code)
	m.carts.AssertExpectations(t)
}

func TestCartHandler_applyCoupon(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodPost, "/api/v1/cart/coupons", couponRequest{CouponCode: "TEN"})

	view := sampleView()
	view.Cart.CouponCode = "TEN"
	view.Cart.Items[0].Discount = &domain.DiscountSnapshot{
		CouponCode: "TEN", DiscountType: domain.DiscountTypeFixed,
		DiscountAmount: decimal.NewFromInt(10), DiscountedPrice: decimal.NewFromInt(35),
	}
	m.discounts.On("ApplyCoupon", c.Request.Context(), testOwner, "TEN").Return(view.Cart, nil).Once()
	m.carts.On("Summarize", view.Cart).Return(view).Once()

	m.handler.applyCoupon(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"discountedPrice":35.00`)
	m.discounts.AssertExpectations(t)
}

func TestCartHandler_applyCoupon_Conflict(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodPost, "/api/v1/cart/coupons", couponRequest{CouponCode: "TEN"})
	m.discounts.On("ApplyCoupon", c.Request.Context(), testOwner, "TEN").Return(nil, repository.ErrVersionConflict).Once()

	m.handler.applyCoupon(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	m.carts.AssertNotCalled(t, "Summarize", mock.Anything)
}

func TestCartHandler_removeCoupon(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodDelete, "/api/v1/cart/coupons", nil)
	view := sampleView()
	m.discounts.On("RemoveCoupon", c.Request.Context(), testOwner).Return(view.Cart, nil).Once()
	m.carts.On("Summarize", view.Cart).Return(view).Once()

	m.handler.removeCoupon(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price":45.00`)
	assert.NotContains(t, w.Body.String(), `"discount"`)
}

func TestCartHandler_ephemeralKey(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodPost, "/api/v1/cart/ephemeral-keys", ephemeralKeyRequest{CustomerID: "cust_1"})
	m.payments.On("EphemeralKey", c.Request.Context(), "cust_1").Return(&domain.EphemeralKey{CustomerID: "cust_1", Secret: "pkey_test"}, nil).Once()

	m.handler.ephemeralKey(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var key domain.EphemeralKey
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &key))
	assert.Equal(t, "pkey_test", key.Secret)
}

func TestCartHandler_checkoutPayment(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodPost, "/api/v1/cart/checkout-payment", checkoutPaymentRequest{CustomerID: "cust_1", PaymentMethodID: "card_bad"})

	auth := domain.PaymentAuthorization{Status: domain.PaymentStatusCanceledIntent, Error: "invalid card"}
	m.checkout.On("CheckoutPayment", c.Request.Context(), checkout.PaymentCheckoutInput{
		CheckoutInput:   checkout.CheckoutInput{Owner: testOwner, Email: "u1@example.com"},
		CustomerID:      "cust_1",
		PaymentMethodID: "card_bad",
	}).Return(&checkout.Result{
		SagaID:  "saga-1",
		State:   domain.SagaPaymentFailed,
		Payment: &auth,
		Cart:    checkout.CartResult{IsValid: true},
	}, nil).Once()

	m.handler.checkoutPayment(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Payment  paymentResponse        `json:"payment"`
		Cart     cartValidityResponse   `json:"cart"`
		Bookings []json.RawMessage      `json:"bookings"`
		SagaID   string                 `json:"sagaId"`
		State    domain.SagaState       `json:"state"`
		Order    map[string]interface{} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &res))
	assert.Equal(t, "canceled_intent", res.Payment.Status)
	assert.False(t, res.Payment.IsValid)
	assert.True(t, res.Cart.IsValid)
	assert.Empty(t, res.Cart.Items)
	assert.NotNil(t, res.Bookings)
	assert.Equal(t, "saga-1", res.SagaID)
	assert.Nil(t, res.Order)
	m.checkout.AssertExpectations(t)
}

func TestCartHandler_checkoutOnly(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodPost, "/api/v1/cart/checkout", nil)

	m.checkout.On("Checkout", c.Request.Context(), checkout.CheckoutInput{Owner: testOwner, Email: "u1@example.com"}).Return(&checkout.Result{
		SagaID: "saga-2",
		State:  domain.SagaCompleted,
		Cart:   checkout.CartResult{IsValid: true, Items: []availability.InvalidItem{}},
		Bookings: []domain.BookingResult{
			{CartItemID: "a", Outcome: domain.Booked{BookingID: "bk-1"}},
		},
		Order: &domain.Order{ID: "ord-1", Total: decimal.RequireFromString("50.85"), CreatedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)},
	}, nil).Once()

	m.handler.checkoutOnly(c)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, `"payment"`)
	assert.Contains(t, body, `{"cartItemId":"a","bookingId":"bk-1","isSuccess":true}`)
	assert.Contains(t, body, `"total":50.85`)
}

func TestCartHandler_checkoutInProgress(t *testing.T) {
	m := newHandlerMocks()
	c, w := newTestContext(http.MethodPost, "/api/v1/cart/checkout", nil)
	m.checkout.On("Checkout", c.Request.Context(), mock.Anything).Return(nil, checkout.ErrCheckoutInProgress).Once()

	m.handler.checkoutOnly(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}
