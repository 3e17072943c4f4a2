package consumers

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"

	"costguard/internal/adapters/kafka"
	"costguard/internal/notify"
	"costguard/pkg/logger"
)

// Sender delivers a rendered notification to its destination channel
type Sender interface {
	Send(ctx context.Context, n notify.Notification) error
}

// NotificationConsumer drains the notifications topic and forwards
// each alert to the configured sender. Malformed or undeliverable
// messages are logged and skipped, never retried.
type NotificationConsumer struct {
	consumer *kafka.Consumer
	sender   Sender
	log      *logger.Logger
}

// NewNotificationConsumer creates a notification consumer
func NewNotificationConsumer(consumer *kafka.Consumer, sender Sender) *NotificationConsumer {
	return &NotificationConsumer{
		consumer: consumer,
		sender:   sender,
		log:      logger.Get().With("component", "notification_consumer"),
	}
}

// Run consumes until the context is cancelled
func (c *NotificationConsumer) Run(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handle)
}

func (c *NotificationConsumer) handle(ctx context.Context, msg kafkago.Message) error {
	var n notify.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		c.log.Errorf("Skipping malformed notification: %v", err)
		return nil
	}

	if err := c.sender.Send(ctx, n); err != nil {
		c.log.Errorf("Failed to deliver %s notification: %v", n.Kind, err)
		return nil
	}

	return nil
}

// Close releases the underlying Kafka reader
func (c *NotificationConsumer) Close() error {
	return c.consumer.Close()
}
