// Package rabbitmq contains the per-service consumer message handlers: they
// decode deliveries at the broker boundary, gate them through the dedup
// gate and dispatch to the saga handlers.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ordersaga/internal/app/payments"
	"ordersaga/internal/cache"
	"ordersaga/internal/domain/event"
	"ordersaga/internal/idempotency"
	rabbitmq_infra "ordersaga/internal/infrastructure/rabbitmq"
	"ordersaga/internal/metrics"
)

// OrderCreatedMessageHandler handles order.created deliveries on the payment
// service. Returning nil acknowledges (success, duplicate or malformed);
// returning an error requeues the delivery.
func OrderCreatedMessageHandler(
	paymentService payments.PaymentService,
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

		evt, ok := decoded.(event.OrderCreated)
		if !ok {
			metrics.ConsumerMalformedTotal.Inc()
			logger.Warn("Dropping unexpected event type on order events queue",
				zap.String("routing_key", msg.RoutingKey))
			return nil
		}

		dedupKey := cache.PaymentDedupKey(evt.EventID)
		admitted, err := gate.Admit(ctx, dedupKey, dedupTTL)
		if err != nil {
			return fmt.Errorf("dedup gate check failed for event %s: %w", evt.EventID, err)
		}
		if !admitted {
			metrics.ConsumerDuplicatesTotal.Inc()
			logger.Warn("Duplicate OrderCreated event ignored",
				zap.String("event_id", evt.EventID),
				zap.Int64("order_id", evt.OrderID))
			return nil
		}

		logger.Info("Processing OrderCreated event",
			zap.String("event_id", evt.EventID),
			zap.Int64("order_id", evt.OrderID),
			zap.Float64("amount", evt.TotalAmount))

		if err := paymentService.ProcessPayment(ctx, evt); err != nil {
			// Give the redelivery a chance to be admitted again.
			if relErr := gate.Release(ctx, dedupKey); relErr != nil {
				logger.Error("Failed to release dedup key after handler failure",
					zap.String("event_id", evt.EventID),
					zap.Error(relErr))
			}
			return fmt.Errorf("failed to process OrderCreated event %s: %w", evt.EventID, err)
		}
		return nil
	}
}
