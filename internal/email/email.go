package email

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Domenick1991/slotcart/internal/kafka"
)

// Transport delivers a rendered message. The default transport writes to the log.
type Transport interface {
	Deliver(ctx context.Context, to, subject, body string) error
}

type logTransport struct{}

func (logTransport) Deliver(_ context.Context, to, subject, body string) error {
	log.Printf("email: to=%s subject=%q body=%q", to, subject, body)
	return nil
}

type Sender struct {
	transport Transport
}

func NewSender() *Sender {
	return &Sender{transport: logTransport{}}
}

func NewSenderWithTransport(t Transport) *Sender {
	return &Sender{transport: t}
}

// Send renders a checkout notification; events without a recipient are dropped.
func (s *Sender) Send(ctx context.Context, event kafka.CheckoutEvent) error {
	if event.Email == "" {
		return nil
	}
	subject, body := render(event)
	if subject == "" {
		return nil
	}
	return s.transport.Deliver(ctx, event.Email, subject, body)
}

func render(event kafka.CheckoutEvent) (string, string) {
	switch event.Type {
	case kafka.EventCheckoutCompleted:
		body := fmt.Sprintf("Your order %s is confirmed with %d booking(s): %s.",
			event.OrderID, len(event.BookingIDs), strings.Join(event.BookingIDs, ", "))
		if event.Total != "" {
			body += fmt.Sprintf(" Total charged: %s.", event.Total)
		}
		return "Your booking is confirmed", body
	case kafka.EventCheckoutFailed:
		return "We could not complete your booking",
			"Your checkout could not be completed and no charge was made. Any held appointments were released."
	case kafka.EventCheckoutPaymentFailed:
		return "Payment was declined", "Your payment method was declined. Please try another card."
	default:
		return "", ""
	}
}
