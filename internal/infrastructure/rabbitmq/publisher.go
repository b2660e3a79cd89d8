package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is the transport contract the outbox relay publishes through.
type Publisher interface {
	Publish(ctx context.Context, messageID, routingKey string, payload []byte) error
}

type amqpPublisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher wraps a dedicated channel for publishing to one service
// exchange. The channel must not be shared with a consumer.
func NewPublisher(ch *amqp.Channel, exchange string, logger *zap.Logger) Publisher {
	return &amqpPublisher{channel: ch, exchange: exchange, logger: logger}
}

func (p *amqpPublisher) Publish(ctx context.Context, messageID, routingKey string, payload []byte) error {
	err := p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    messageID,
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message %s to %s: %w", messageID, p.exchange, err)
	}

	p.logger.Debug("Message published",
		zap.String("message_id", messageID),
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey))
	return nil
}
