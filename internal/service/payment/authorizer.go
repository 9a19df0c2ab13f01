package payment

import (
	"context"
	"log"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/shopspring/decimal"
)

type Processor interface {
	CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error)
	CaptureIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
	EphemeralKey(ctx context.Context, customerID string) (*domain.EphemeralKey, error)
}

type PaymentUseCase interface {
	Authorize(ctx context.Context, input AuthorizeInput) domain.PaymentAuthorization
	Capture(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization
	Cancel(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization
	EphemeralKey(ctx context.Context, customerID string) (*domain.EphemeralKey, error)
}

type AuthorizeInput struct {
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Reference       string
}

// Authorizer never returns processor failures as errors; they are folded into the
// authorization's status and Error so the saga can decide what to do.
type Authorizer struct {
	processor Processor
}

func NewAuthorizer(processor Processor) *Authorizer {
	return &Authorizer{processor: processor}
}

func (a *Authorizer) Authorize(ctx context.Context, input AuthorizeInput) domain.PaymentAuthorization {
	auth := domain.NewPaymentAuthorization()
	auth.Amount = input.Amount

	cents := input.Amount.Round(2).Shift(2).IntPart()
	if cents <= 0 {
		auth.Status = domain.PaymentStatusCanceledIntent
		auth.Error = "amount must be positive"
		return auth
	}

	intent, err := a.processor.CreateIntent(ctx, domain.IntentRequest{
		CustomerID:      input.CustomerID,
		PaymentMethodID: input.PaymentMethodID,
		AmountCents:     cents,
		Description:     "checkout " + input.Reference,
		Reference:       input.Reference,
	})
	if err != nil {
		log.Printf("payment: create intent for %s failed: %v", input.Reference, err)
		auth.Status = domain.PaymentStatusCanceledIntent
		auth.Error = err.Error()
		return auth
	}

	auth.IntentID = intent.ID
	auth.Status = intent.Status
	auth.ClientSecret = intent.ClientSecret
	auth.Error = intent.Error
	return auth
}

func (a *Authorizer) Capture(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization {
	if auth.Status != domain.PaymentStatusRequiresCapture || auth.IntentID == "" {
		auth.Error = "payment intent is not awaiting capture"
		return auth
	}

	intent, err := a.processor.CaptureIntent(ctx, auth.IntentID)
	if err != nil {
		log.Printf("payment: capture %s failed: %v", auth.IntentID, err)
		// The capture may have landed before the error came back.
		current, lookupErr := a.processor.GetIntent(ctx, auth.IntentID)
		if lookupErr != nil || current.Status != domain.PaymentStatusSucceeded {
			auth.Error = err.Error()
			return auth
		}
		intent = current
	}

	auth.Status = intent.Status
	auth.Error = intent.Error
	return auth
}

// Cancel releases an authorization. Intents that were never created or are already
// canceled are returned unchanged.
func (a *Authorizer) Cancel(ctx context.Context, auth domain.PaymentAuthorization) domain.PaymentAuthorization {
	if auth.IntentID == "" {
		return auth
	}
	if auth.Status == domain.PaymentStatusCanceledIntent || auth.Status == domain.PaymentStatusCanceled {
		return auth
	}

	intent, err := a.processor.CancelIntent(ctx, auth.IntentID)
	if err != nil {
		log.Printf("payment: cancel %s failed: %v", auth.IntentID, err)
		auth.Error = err.Error()
		return auth
	}

	auth.Status = intent.Status
	if intent.Error != "" {
		auth.Error = intent.Error
	}
	return auth
}

func (a *Authorizer) EphemeralKey(ctx context.Context, customerID string) (*domain.EphemeralKey, error) {
	if customerID == "" {
		return nil, domain.NewValidationError("customerId", "is required")
	}
	return a.processor.EphemeralKey(ctx, customerID)
}

var _ PaymentUseCase = (*Authorizer)(nil)
