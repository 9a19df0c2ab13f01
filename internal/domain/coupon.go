package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponPolicy struct {
	Code           string          `json:"code"`
	ProductTypeID  int64           `json:"productTypeId"`
	DiscountType   DiscountType    `json:"discountType"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Expiration     *time.Time      `json:"expiration,omitempty"`
}

func (p CouponPolicy) Expired(now time.Time) bool {
	return p.Expiration != nil && now.After(*p.Expiration)
}

// Apply returns price reduced by the policy, floored at zero and rounded to cents.
func (p CouponPolicy) Apply(price decimal.Decimal) decimal.Decimal {
	var discounted decimal.Decimal
	switch p.DiscountType {
	case DiscountTypePercentage:
		discounted = price.Sub(price.Mul(p.DiscountAmount).Div(decimal.NewFromInt(100)))
	default:
		discounted = price.Sub(p.DiscountAmount)
	}
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted.Round(2)
}
