package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventCheckoutCompleted     = "checkout_completed"
	EventCheckoutFailed        = "checkout_failed"
	EventCheckoutInvalid       = "checkout_invalid"
	EventCheckoutPaymentFailed = "checkout_payment_failed"
)

type CheckoutEvent struct {
	Type            string    `json:"type"`
	SagaID          string    `json:"saga_id"`
	Flow            string    `json:"flow"`
	State           string    `json:"state"`
	UserID          string    `json:"user_id"`
	OrganizationID  string    `json:"organization_id"`
	Email           string    `json:"email"`
	OrderID         string    `json:"order_id,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	BookingIDs      []string  `json:"booking_ids,omitempty"`
	Total           string    `json:"total,omitempty"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type Producer struct {
	brokers []string
	writer  *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	log.Printf("kafka: published topic=%s key=%s", topic, key)
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and lists partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	log.Printf("kafka: connected, %d partitions visible", len(partitions))
	return nil
}
