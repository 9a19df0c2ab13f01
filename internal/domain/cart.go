package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxCartItems bounds the number of line items an owner may hold.
const MaxCartItems = 50

type OwnerKey struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
}

func (o OwnerKey) String() string {
	return o.UserID + ":" + o.OrganizationID
}

// SlotRef identifies one bookable time on a calendar. It never changes once an item is created.
type SlotRef struct {
	ProductTypeID int64  `json:"productTypeId"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	CalendarID    int64  `json:"calendarId"`
	Timezone      string `json:"timezone"`
}

type PatientInfo struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type DiscountSnapshot struct {
	CouponCode      string          `json:"couponCode"`
	DiscountType    DiscountType    `json:"discountType,omitempty"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
	Error           string          `json:"error,omitempty"`
}

type CartItemStatus string

const (
	CartItemStatusActive CartItemStatus = "ACTIVE"
)

type CartItem struct {
	ID         string
	Owner      OwnerKey
	Slot       SlotRef
	Patient    PatientInfo
	PriceCents int64
	Discount   *DiscountSnapshot
	Status     CartItemStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (i CartItem) Price() decimal.Decimal {
	return decimal.New(i.PriceCents, -2)
}

// EffectivePrice is the discounted price when a coupon applied cleanly, otherwise the base price.
func (i CartItem) EffectivePrice() decimal.Decimal {
	if i.Discount != nil && i.Discount.Error == "" {
		return i.Discount.DiscountedPrice
	}
	return i.Price()
}

type Cart struct {
	Owner      OwnerKey
	Items      []CartItem
	CouponCode string
	Version    int64
	UpdatedAt  time.Time
}

func (c *Cart) ItemIDs() []string {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (c *Cart) Total(taxRate decimal.Decimal) decimal.Decimal {
	return c.Summary(taxRate).Total()
}

type SummaryLine struct {
	Label  string
	Amount decimal.Decimal
}

type PaymentSummary []SummaryLine

const (
	SummarySubTotal = "subTotal"
	SummaryTax      = "tax"
	SummaryTotal    = "total"
)

// Summary returns subTotal, tax and total, each rounded half-up to cents.
func (c *Cart) Summary(taxRate decimal.Decimal) PaymentSummary {
	subTotal := decimal.Zero
	for _, item := range c.Items {
		subTotal = subTotal.Add(item.EffectivePrice())
	}
	subTotal = subTotal.Round(2)
	tax := subTotal.Mul(taxRate).Round(2)
	return PaymentSummary{
		{Label: SummarySubTotal, Amount: subTotal},
		{Label: SummaryTax, Amount: tax},
		{Label: SummaryTotal, Amount: subTotal.Add(tax)},
	}
}

func (s PaymentSummary) Total() decimal.Decimal {
	for _, line := range s {
		if line.Label == SummaryTotal {
			return line.Amount
		}
	}
	return decimal.Zero
}
