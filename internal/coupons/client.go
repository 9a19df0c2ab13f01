// Package coupons checks coupon codes against the external coupon policy service.
package coupons

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/rest"
	"github.com/shopspring/decimal"
)

// Rejection is the policy service refusing a code for a product type (invalid, expired, usage exceeded).
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

type Checker interface {
	CheckCoupon(ctx context.Context, code string, productTypeID int64) (*domain.CouponPolicy, error)
}

type Client struct {
	rest *rest.Client
	now  func() time.Time
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{rest: rest.NewClient(baseURL, apiKey, timeout), now: time.Now}
}

type checkResponse struct {
	DiscountType   domain.DiscountType `json:"discountType"`
	DiscountAmount decimal.Decimal     `json:"discountAmount"`
	Expiration     *time.Time          `json:"expiration"`
}

func (c *Client) CheckCoupon(ctx context.Context, code string, productTypeID int64) (*domain.CouponPolicy, error) {
	query := url.Values{}
	query.Set("productTypeId", strconv.FormatInt(productTypeID, 10))

	var res checkResponse
	err := c.rest.Do(ctx, http.MethodGet, "/coupons/"+url.PathEscape(code)+"/check", query, nil, &res)
	if err != nil {
		var statusErr *rest.StatusError
		if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			return nil, &Rejection{Reason: statusErr.Message}
		}
		return nil, fmt.Errorf("check coupon %s: %w", code, err)
	}

	switch res.DiscountType {
	case domain.DiscountTypePercentage, domain.DiscountTypeFixed:
	default:
		return nil, fmt.Errorf("check coupon %s: unknown discount type %q", code, res.DiscountType)
	}

	policy := &domain.CouponPolicy{
		Code:           code,
		ProductTypeID:  productTypeID,
		DiscountType:   res.DiscountType,
		DiscountAmount: res.DiscountAmount,
		Expiration:     res.Expiration,
	}
	if policy.Expired(c.now()) {
		return nil, &Rejection{Reason: "Coupon has expired"}
	}
	return policy, nil
}

type Cache interface {
	GetCouponPolicy(ctx context.Context, code string, productTypeID int64) (*domain.CouponPolicy, error)
	SetCouponPolicy(ctx context.Context, policy domain.CouponPolicy) error
}

// CachedChecker serves accepted policies from the cache; rejections are never cached.
type CachedChecker struct {
	next  Checker
	cache Cache
	now   func() time.Time
}

func NewCachedChecker(next Checker, cache Cache) *CachedChecker {
	return &CachedChecker{next: next, cache: cache, now: time.Now}
}

func (c *CachedChecker) CheckCoupon(ctx context.Context, code string, productTypeID int64) (*domain.CouponPolicy, error) {
	if c.cache != nil {
		cached, err := c.cache.GetCouponPolicy(ctx, code, productTypeID)
		if err != nil {
			log.Printf("coupons: cache read failed for %s/%d: %v", code, productTypeID, err)
		} else if cached != nil && !cached.Expired(c.now()) {
			return cached, nil
		}
	}

	policy, err := c.next.CheckCoupon(ctx, code, productTypeID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetCouponPolicy(ctx, *policy); err != nil {
			log.Printf("coupons: cache write failed for %s/%d: %v", code, productTypeID, err)
		}
	}
	return policy, nil
}

var (
	_ Checker = (*Client)(nil)
	_ Checker = (*CachedChecker)(nil)
)
