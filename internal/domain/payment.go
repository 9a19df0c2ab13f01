package domain

import "github.com/shopspring/decimal"

type PaymentStatus string

const (
	PaymentStatusNotProcessed    PaymentStatus = "not_processed"
	PaymentStatusRequiresCapture PaymentStatus = "requires_capture"
	PaymentStatusSucceeded       PaymentStatus = "succeeded"
	PaymentStatusCanceledIntent  PaymentStatus = "canceled_intent"
	PaymentStatusCanceled        PaymentStatus = "canceled"
)

type PaymentAuthorization struct {
	IntentID     string
	Status       PaymentStatus
	ClientSecret string
	Amount       decimal.Decimal
	Error        string
}

func NewPaymentAuthorization() PaymentAuthorization {
	return PaymentAuthorization{Status: PaymentStatusNotProcessed}
}

// IsValid reports whether the intent holds or has collected funds.
func (p PaymentAuthorization) IsValid() bool {
	return p.Status == PaymentStatusRequiresCapture || p.Status == PaymentStatusSucceeded
}

type EphemeralKey struct {
	CustomerID string `json:"customerId"`
	Secret     string `json:"secret"`
}

type IntentRequest struct {
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Description     string
	Reference       string
}

// PaymentIntent is the processor's view of an intent, already mapped to PaymentStatus.
type PaymentIntent struct {
	ID           string
	Status       PaymentStatus
	ClientSecret string
	Error        string
}
