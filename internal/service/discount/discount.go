package discount

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/Domenick1991/slotcart/internal/coupons"
	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/repository"
	"github.com/shopspring/decimal"
)

const messageCheckFailed = "Coupon Check Failed: Try Again"

type DiscountUseCase interface {
	ApplyCoupon(ctx context.Context, owner domain.OwnerKey, code string) (*domain.Cart, error)
	RemoveCoupon(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error)
}

type Engine struct {
	carts   repository.CartRepository
	checker coupons.Checker
}

func NewEngine(carts repository.CartRepository, checker coupons.Checker) *Engine {
	return &Engine{carts: carts, checker: checker}
}

// ApplyCoupon prices every item against the coupon independently. A rejection for one
// item is recorded in its snapshot and does not stop the others. The write fails with
// repository.ErrVersionConflict if the cart changed since it was read.
func (e *Engine) ApplyCoupon(ctx context.Context, owner domain.OwnerKey, code string) (*domain.Cart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.NewValidationError("couponCode", "is required")
	}

	cart, err := e.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	for i := range cart.Items {
		cart.Items[i].Discount = e.snapshot(ctx, code, cart.Items[i])
	}

	version, err := e.carts.SaveDiscounts(ctx, owner, cart.Version, code, cart.Items)
	if err != nil {
		return nil, err
	}
	cart.Version = version
	cart.CouponCode = code
	return cart, nil
}

func (e *Engine) snapshot(ctx context.Context, code string, item domain.CartItem) *domain.DiscountSnapshot {
	snap := &domain.DiscountSnapshot{CouponCode: code, DiscountedPrice: item.Price()}

	policy, err := e.checker.CheckCoupon(ctx, code, item.Slot.ProductTypeID)
	if err != nil {
		var rejection *coupons.Rejection
		if errors.As(err, &rejection) {
			snap.Error = rejection.Reason
		} else {
			log.Printf("discount: coupon %s for item %s: %v", code, item.ID, err)
			snap.Error = messageCheckFailed
		}
		snap.DiscountAmount = decimal.Zero
		return snap
	}

	snap.DiscountType = policy.DiscountType
	snap.DiscountAmount = policy.DiscountAmount
	snap.DiscountedPrice = policy.Apply(item.Price())
	return snap
}

func (e *Engine) RemoveCoupon(ctx context.Context, owner domain.OwnerKey) (*domain.Cart, error) {
	cart, err := e.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 && cart.CouponCode == "" {
		return cart, nil
	}

	for i := range cart.Items {
		cart.Items[i].Discount = nil
	}

	version, err := e.carts.SaveDiscounts(ctx, owner, cart.Version, "", cart.Items)
	if err != nil {
		return nil, err
	}
	cart.Version = version
	cart.CouponCode = ""
	return cart, nil
}

var _ DiscountUseCase = (*Engine)(nil)
