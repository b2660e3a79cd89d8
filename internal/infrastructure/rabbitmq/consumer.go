package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ordersaga/internal/metrics"
)

const consumerPrefetch = 16

// MessageHandler processes one delivery. Returning nil acknowledges the
// message; this includes duplicates and malformed payloads, which must not
// be redelivered. Returning an error sends the delivery back through the
// broker's requeue path until the attempt budget runs out.
type MessageHandler func(ctx context.Context, msg amqp.Delivery) error

// AttemptCounter tracks redelivery attempts per message so poison messages
// can be dead-lettered instead of looping forever.
type AttemptCounter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Consumer is one queue subscription with manual acknowledgment.
type Consumer interface {
	Start(ctx context.Context, handler MessageHandler) error
}

type amqpConsumer struct {
	channel     *amqp.Channel
	queue       string
	attempts    AttemptCounter
	maxAttempts int
	attemptTTL  time.Duration
	logger      *zap.Logger
}

// NewConsumer subscribes to queue on a dedicated channel. maxAttempts of
// zero disables the redelivery cap.
func NewConsumer(ch *amqp.Channel, queue string, attempts AttemptCounter, maxAttempts int, attemptTTL time.Duration, logger *zap.Logger) Consumer {
	return &amqpConsumer{
		channel:     ch,
		queue:       queue,
		attempts:    attempts,
		maxAttempts: maxAttempts,
		attemptTTL:  attemptTTL,
		logger:      logger,
	}
}

func (c *amqpConsumer) Start(ctx context.Context, handler MessageHandler) error {
	if err := c.channel.Qos(consumerPrefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS on queue %s: %w", c.queue, err)
	}

	deliveries, err := c.channel.ConsumeWithContext(ctx,
		c.queue,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", c.queue, err)
	}

	c.logger.Info("Consumer started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer context cancelled, closing channel.", zap.String("queue", c.queue))
			return c.channel.Close()
		case msg, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("delivery channel closed for queue %s", c.queue)
			}
			c.handleDelivery(ctx, msg, handler)
		}
	}
}

func (c *amqpConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery, handler MessageHandler) {
	err := handler(ctx, msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("Failed to ack message",
				zap.String("queue", c.queue),
				zap.String("message_id", msg.MessageId),
				zap.Error(ackErr))
		}
		return
	}

	c.logger.Error("Handler failed for delivery",
		zap.String("queue", c.queue),
		zap.String("message_id", msg.MessageId),
		zap.String("routing_key", msg.RoutingKey),
		zap.Error(err))

	if nackErr := msg.Nack(false, c.shouldRequeue(ctx, msg)); nackErr != nil {
		c.logger.Error("Failed to nack message",
			zap.String("queue", c.queue),
			zap.String("message_id", msg.MessageId),
			zap.Error(nackErr))
	}
}

// shouldRequeue burns one attempt from the message's budget. Messages
// without an id cannot be counted and keep requeueing, matching the
// unbounded mode.
func (c *amqpConsumer) shouldRequeue(ctx context.Context, msg amqp.Delivery) bool {
	if c.maxAttempts <= 0 || c.attempts == nil || msg.MessageId == "" {
		return true
	}

	attempts, err := c.attempts.Increment(ctx, "retry:"+msg.MessageId, c.attemptTTL)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Error("Failed to count delivery attempt, requeueing",
				zap.String("message_id", msg.MessageId),
				zap.Error(err))
		}
		return true
	}

	if attempts < int64(c.maxAttempts) {
		return true
	}

	metrics.ConsumerDeadLetteredTotal.Inc()
	c.logger.Warn("Delivery attempts exhausted, dead-lettering message",
		zap.String("queue", c.queue),
		zap.String("message_id", msg.MessageId),
		zap.String("routing_key", msg.RoutingKey),
		zap.Int64("attempts", attempts))
	return false
}
