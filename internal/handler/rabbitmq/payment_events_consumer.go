package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ordersaga/internal/app/orders"
	"ordersaga/internal/cache"
	"ordersaga/internal/domain/event"
	"ordersaga/internal/idempotency"
	rabbitmq_infra "ordersaga/internal/infrastructure/rabbitmq"
	"ordersaga/internal/metrics"
)

// PaymentEventsMessageHandler handles payment.succeeded and payment.failed
// deliveries on the order service. The outcome events carry no event id, so
// the dedup identity is order id plus outcome kind.
func PaymentEventsMessageHandler(
	orderService orders.OrderService,
	gate idempotency.Gate,
	dedupTTL time.Duration,
	logger *zap.Logger,
) rabbitmq_infra.MessageHandler {
	return func(ctx context.Context, msg amqp.Delivery) error {
		decoded, err := event.Decode(msg.RoutingKey, msg.Body)
		if err != nil {
			metrics.ConsumerMalformedTotal.Inc()
			logger.Warn("Dropping undecodable delivery",
				zap.String("routing_key", msg.RoutingKey),
				zap.String("message_id", msg.MessageId),
				zap.Error(err))
			return nil
		}

		var dedupKey string
		var orderID int64
		switch evt := decoded.(type) {
		case event.PaymentSucceeded:
			orderID = evt.OrderID
			dedupKey = cache.OutcomeDedupKey(evt.OrderID, event.TypePaymentSucceeded)
		case event.PaymentFailed:
			orderID = evt.OrderID
			dedupKey = cache.OutcomeDedupKey(evt.OrderID, event.TypePaymentFailed)
		default:
			metrics.ConsumerMalformedTotal.Inc()
			logger.Warn("Dropping unexpected event type on payment events queue",
				zap.String("routing_key", msg.RoutingKey))
			return nil
		}

		admitted, err := gate.Admit(ctx, dedupKey, dedupTTL)
		if err != nil {
			return fmt.Errorf("dedup gate check failed for order %d: %w", orderID, err)
		}
		if !admitted {
			metrics.ConsumerDuplicatesTotal.Inc()
			logger.Warn("Duplicate payment outcome ignored",
				zap.Int64("order_id", orderID),
				zap.String("routing_key", msg.RoutingKey))
			return nil
		}

		logger.Info("Applying payment outcome",
			zap.Int64("order_id", orderID),
			zap.String("routing_key", msg.RoutingKey))

		if err := orderService.ApplyPaymentOutcome(ctx, decoded); err != nil {
			if relErr := gate.Release(ctx, dedupKey); relErr != nil {
				logger.Error("Failed to release dedup key after handler failure",
					zap.Int64("order_id", orderID),
					zap.Error(relErr))
			}
			return fmt.Errorf("failed to apply payment outcome for order %d: %w", orderID, err)
		}
		return nil
	}
}
