package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// ConsumeCheckoutEvents blocks until ctx is canceled or handler fails.
func (c *Consumer) ConsumeCheckoutEvents(ctx context.Context, handler func(context.Context, CheckoutEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		if err := dispatchCheckoutEvent(ctx, msg, handler); err != nil {
			return err
		}
	}
}

// dispatchCheckoutEvent skips messages that do not decode; they would never succeed on redelivery.
func dispatchCheckoutEvent(ctx context.Context, msg kafka.Message, handler func(context.Context, CheckoutEvent) error) error {
	var event CheckoutEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("kafka: skip undecodable message topic=%s offset=%d: %v", msg.Topic, msg.Offset, err)
		return nil
	}
	return handler(ctx, event)
}
