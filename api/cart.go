package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/service/availability"
	"github.com/Domenick1991/slotcart/internal/service/cart"
	"github.com/Domenick1991/slotcart/internal/service/checkout"
	"github.com/Domenick1991/slotcart/internal/service/discount"
	"github.com/Domenick1991/slotcart/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type CartHandler struct {
	carts     cart.CartUseCase
	discounts discount.DiscountUseCase
	payments  payment.PaymentUseCase
	checkout  checkout.CheckoutUseCase
}

func NewCartHandler(carts cart.CartUseCase, discounts discount.DiscountUseCase, payments payment.PaymentUseCase, checkout checkout.CheckoutUseCase) *CartHandler {
	return &CartHandler{carts: carts, discounts: discounts, payments: payments, checkout: checkout}
}

func (h *CartHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.get)
	router.POST("", h.add)
	router.PUT("", h.update)
	router.DELETE("/:cartItemId", h.remove)
	router.POST("/coupons", h.applyCoupon)
	router.DELETE("/coupons", h.removeCoupon)
	router.POST("/ephemeral-keys", h.ephemeralKey)
	router.POST("/checkout-payment", h.checkoutPayment)
	router.POST("/checkout", h.checkoutOnly)
}

type addItemRequest struct {
	Slot    domain.SlotRef     `json:"slot"`
	Patient domain.PatientInfo `json:"patient"`
}

type updateItemRequest struct {
	CartItemID string             `json:"cartItemId"`
	Patient    domain.PatientInfo `json:"patient"`
}

type couponRequest struct {
	CouponCode string `json:"couponCode"`
}

type ephemeralKeyRequest struct {
	CustomerID string `json:"customerId"`
}

type checkoutPaymentRequest struct {
	CustomerID      string `json:"customerId"`
	PaymentMethodID string `json:"paymentMethodId"`
}

type discountResponse struct {
	CouponCode      string              `json:"couponCode"`
	DiscountType    domain.DiscountType `json:"discountType,omitempty"`
	DiscountAmount  json.Number         `json:"discountAmount"`
	DiscountedPrice json.Number         `json:"discountedPrice"`
	Error           string              `json:"error,omitempty"`
}

type cartItemResponse struct {
	ID        string             `json:"id"`
	Slot      domain.SlotRef     `json:"slot"`
	Patient   domain.PatientInfo `json:"patient"`
	Price     json.Number        `json:"price"`
	Discount  *discountResponse  `json:"discount,omitempty"`
	Status    string             `json:"status"`
	CreatedAt string             `json:"createdAt"`
	UpdatedAt string             `json:"updatedAt"`
}

type summaryLineResponse struct {
	Label  string      `json:"label"`
	Amount json.Number `json:"amount"`
}

type cartResponse struct {
	CartItems      []cartItemResponse    `json:"cartItems"`
	CouponCode     string                `json:"couponCode,omitempty"`
	PaymentSummary []summaryLineResponse `json:"paymentSummary"`
	Version        int64                 `json:"version"`
}

type paymentResponse struct {
	IntentID     string `json:"intentId"`
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret"`
	IsValid      bool   `json:"isValid"`
	Error        string `json:"error,omitempty"`
}

type cartValidityResponse struct {
	IsValid bool                       `json:"isValid"`
	Items   []availability.InvalidItem `json:"items"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	PaymentIntentID string                `json:"paymentIntentId,omitempty"`
	Total           json.Number           `json:"total"`
	Bookings        []domain.OrderBooking `json:"bookings"`
	CreatedAt       string                `json:"createdAt"`
}

type checkoutResponse struct {
	Payment  *paymentResponse       `json:"payment,omitempty"`
	Cart     cartValidityResponse   `json:"cart"`
	Bookings []domain.BookingResult `json:"bookings"`
	Order    *orderResponse         `json:"order,omitempty"`
	SagaID   string                 `json:"sagaId"`
	State    domain.SagaState       `json:"state"`
}

func (h *CartHandler) get(c *gin.Context) {
	view, err := h.carts.GetCart(c.Request.Context(), ownerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) add(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	item, err := h.carts.AddItem(c.Request.Context(), ownerFrom(c), cart.AddItemInput{Slot: req.Slot, Patient: req.Patient})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, toCartItemResponse(*item))
}

func (h *CartHandler) update(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	item, err := h.carts.UpdateItem(c.Request.Context(), ownerFrom(c), cart.UpdateItemInput{CartItemID: req.CartItemID, Patient: req.Patient})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCartItemResponse(*item))
}

func (h *CartHandler) remove(c *gin.Context) {
	if err := h.carts.DeleteItem(c.Request.Context(), ownerFrom(c), c.Param("cartItemId")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"cartItemId": c.Param("cartItemId")})
}

func (h *CartHandler) applyCoupon(c *gin.Context) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	updated, err := h.discounts.ApplyCoupon(c.Request.Context(), ownerFrom(c), req.CouponCode)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCartResponse(h.carts.Summarize(updated)))
}

func (h *CartHandler) removeCoupon(c *gin.Context) {
	updated, err := h.discounts.RemoveCoupon(c.Request.Context(), ownerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCartResponse(h.carts.Summarize(updated)))
}

func (h *CartHandler) ephemeralKey(c *gin.Context) {
	var req ephemeralKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	key, err := h.payments.EphemeralKey(c.Request.Context(), req.CustomerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, key)
}

func (h *CartHandler) checkoutPayment(c *gin.Context) {
	var req checkoutPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	result, err := h.checkout.CheckoutPayment(c.Request.Context(), checkout.PaymentCheckoutInput{
		CheckoutInput:   checkout.CheckoutInput{Owner: ownerFrom(c), Email: emailFrom(c)},
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCheckoutResponse(result))
}

func (h *CartHandler) checkoutOnly(c *gin.Context) {
	result, err := h.checkout.Checkout(c.Request.Context(), checkout.CheckoutInput{Owner: ownerFrom(c), Email: emailFrom(c)})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCheckoutResponse(result))
}

func toCartItemResponse(item domain.CartItem) cartItemResponse {
	res := cartItemResponse{
		ID:        item.ID,
		Slot:      item.Slot,
		Patient:   item.Patient,
		Price:     amount(item.Price()),
		Status:    string(item.Status),
		CreatedAt: item.CreatedAt.Format(time.RFC3339),
		UpdatedAt: item.UpdatedAt.Format(time.RFC3339),
	}
	if d := item.Discount; d != nil {
		res.Discount = &discountResponse{
			CouponCode:      d.CouponCode,
			DiscountType:    d.DiscountType,
			DiscountAmount:  amount(d.DiscountAmount),
			DiscountedPrice: amount(d.DiscountedPrice),
			Error:           d.Error,
		}
	}
	return res
}

func toCartResponse(view *cart.CartView) cartResponse {
	res := cartResponse{
		CartItems:      make([]cartItemResponse, 0, len(view.Cart.Items)),
		CouponCode:     view.Cart.CouponCode,
		PaymentSummary: make([]summaryLineResponse, 0, len(view.Summary)),
		Version:        view.Cart.Version,
	}
	for _, item := range view.Cart.Items {
		res.CartItems = append(res.CartItems, toCartItemResponse(item))
	}
	for _, line := range view.Summary {
		res.PaymentSummary = append(res.PaymentSummary, summaryLineResponse{Label: line.Label, Amount: amount(line.Amount)})
	}
	return res
}

func toCheckoutResponse(result *checkout.Result) checkoutResponse {
	res := checkoutResponse{
		Cart:     cartValidityResponse{IsValid: result.Cart.IsValid, Items: result.Cart.Items},
		Bookings: result.Bookings,
		SagaID:   result.SagaID,
		State:    result.State,
	}
	if res.Cart.Items == nil {
		res.Cart.Items = []availability.InvalidItem{}
	}
	if res.Bookings == nil {
		res.Bookings = []domain.BookingResult{}
	}
	if p := result.Payment; p != nil {
		res.Payment = &paymentResponse{
			IntentID:     p.IntentID,
			Status:       string(p.Status),
			ClientSecret: p.ClientSecret,
			IsValid:      p.IsValid(),
			Error:        p.Error,
		}
	}
	if o := result.Order; o != nil {
		res.Order = &orderResponse{
			ID:              o.ID,
			PaymentIntentID: o.PaymentIntentID,
			Total:           amount(o.Total),
			Bookings:        o.Bookings,
			CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		}
	}
	return res
}
