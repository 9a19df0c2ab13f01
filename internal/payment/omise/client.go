// Package omise adapts the Omise charge API to authorize-then-capture payment intents.
package omise

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

type Client struct {
	omc       *omise.Client
	publicKey string
	currency  string
}

func NewClient(publicKey, secretKey, currency string) (*Client, error) {
	if currency == "" {
		return nil, errors.New("payment currency is required")
	}
	omc, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("init omise client: %w", err)
	}
	return &Client{omc: omc, publicKey: publicKey, currency: currency}, nil
}

// CreateIntent authorizes the charge without capturing it.
func (c *Client) CreateIntent(_ context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error) {
	ch := &omise.Charge{}
	op := &operations.CreateCharge{
		Customer:    req.CustomerID,
		Card:        req.PaymentMethodID,
		Amount:      req.AmountCents,
		Currency:    c.currency,
		Description: req.Description,
		DontCapture: true,
		Metadata:    map[string]any{"reference": req.Reference},
	}
	if err := c.omc.Do(ch, op); err != nil {
		return nil, err
	}
	return toIntent(ch), nil
}

// CaptureIntent captures an authorized charge. A charge that was already captured is
// reported as succeeded instead of being captured twice.
func (c *Client) CaptureIntent(_ context.Context, intentID string) (*domain.PaymentIntent, error) {
	current := &omise.Charge{}
	if err := c.omc.Do(current, &operations.RetrieveCharge{ChargeID: intentID}); err != nil {
		return nil, err
	}
	if captured(current) {
		return toIntent(current), nil
	}

	ch := &omise.Charge{}
	if err := c.omc.Do(ch, &operations.CaptureCharge{ChargeID: intentID}); err != nil {
		return nil, err
	}
	return toIntent(ch), nil
}

func (c *Client) GetIntent(_ context.Context, intentID string) (*domain.PaymentIntent, error) {
	ch := &omise.Charge{}
	if err := c.omc.Do(ch, &operations.RetrieveCharge{ChargeID: intentID}); err != nil {
		return nil, err
	}
	return toIntent(ch), nil
}

// CancelIntent reverses an authorized, uncaptured charge so the hold is released.
func (c *Client) CancelIntent(_ context.Context, intentID string) (*domain.PaymentIntent, error) {
	ch := &omise.Charge{}
	if err := c.omc.Do(ch, &operations.ReverseCharge{ChargeID: intentID}); err != nil {
		return nil, err
	}
	return toIntent(ch), nil
}

// EphemeralKey hands the client the public key scoped to an existing customer, which is
// what card tokenization on the device needs.
func (c *Client) EphemeralKey(_ context.Context, customerID string) (*domain.EphemeralKey, error) {
	cust := &omise.Customer{}
	if err := c.omc.Do(cust, &operations.RetrieveCustomer{CustomerID: customerID}); err != nil {
		return nil, err
	}
	return &domain.EphemeralKey{CustomerID: cust.ID, Secret: c.publicKey}, nil
}

func toIntent(ch *omise.Charge) *domain.PaymentIntent {
	intent := &domain.PaymentIntent{ID: ch.ID, ClientSecret: ch.AuthorizeURI}
	switch string(ch.Status) {
	case "pending":
		intent.Status = domain.PaymentStatusRequiresCapture
	case "successful":
		intent.Status = domain.PaymentStatusSucceeded
	case "reversed":
		intent.Status = domain.PaymentStatusCanceledIntent
	case "expired":
		intent.Status = domain.PaymentStatusCanceled
	case "failed":
		intent.Status = domain.PaymentStatusCanceledIntent
		intent.Error = failureMessage(ch)
	default:
		intent.Status = domain.PaymentStatusCanceledIntent
		intent.Error = fmt.Sprintf("unexpected charge status %q", ch.Status)
	}
	return intent
}

func captured(ch *omise.Charge) bool {
	return string(ch.Status) == "successful"
}

func failureMessage(ch *omise.Charge) string {
	if ch.FailureMessage != nil && *ch.FailureMessage != "" {
		return *ch.FailureMessage
	}
	if ch.FailureCode != nil {
		return *ch.FailureCode
	}
	return "payment failed"
}
