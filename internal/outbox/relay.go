// Package outbox implements the transactional-outbox relay: a background
// loop that drains Pending outbox rows to the broker, giving at-least-once
// delivery without a shared transaction between database and broker.
package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ordersaga/internal/domain/event"
	"ordersaga/internal/infrastructure/rabbitmq"
	"ordersaga/internal/metrics"
	"ordersaga/internal/repository/outbox_repo"
)

// Relay polls one service's outbox table and publishes pending rows to that
// service's exchange. A row only becomes Processed after a successful
// publish; every failure leaves it Pending for the next tick.
type Relay struct {
	outboxRepo   outbox_repo.OutboxRepository
	publisher    rabbitmq.Publisher
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	logger       *zap.Logger
}

func NewRelay(
	outboxRepo outbox_repo.OutboxRepository,
	publisher rabbitmq.Publisher,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Relay {
	return &Relay{
		outboxRepo:   outboxRepo,
		publisher:    publisher,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Run drives the poll/publish/mark cycle until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("Outbox relay started",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize))

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopping.")
			return
		case <-ticker.C:
			r.processBatch(ctx)
		}
	}
}

func (r *Relay) processBatch(ctx context.Context) {
	batchCtx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	messages, err := r.outboxRepo.GetPendingMessages(batchCtx, r.batchSize)
	if err != nil {
		r.logger.Error("Failed to fetch pending outbox messages", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	r.logger.Debug("Processing pending outbox messages", zap.Int("count", len(messages)))

	// A failing row never blocks the rest of the batch; it stays Pending
	// and is retried on a later tick.
	for _, msg := range messages {
		routingKey := event.RoutingKeyFor(msg.EventType)
		if routingKey == event.RoutingKeyUnknown {
			metrics.OutboxUnknownEventTypeTotal.Inc()
			r.logger.Warn("Unknown outbox event type, publishing to catch-all key",
				zap.String("message_id", msg.ID),
				zap.String("event_type", msg.EventType))
		}

		if err := r.publisher.Publish(batchCtx, msg.ID, routingKey, msg.Payload); err != nil {
			metrics.OutboxPublishFailuresTotal.Inc()
			r.logger.Error("Failed to publish outbox message, will retry next tick",
				zap.String("message_id", msg.ID),
				zap.String("routing_key", routingKey),
				zap.Error(err))
			continue
		}

		if err := r.outboxRepo.MarkMessageProcessed(batchCtx, msg.ID); err != nil {
			// The message may be republished next tick; the consumer's
			// dedup gate absorbs the duplicate.
			r.logger.Error("Failed to mark outbox message as processed",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}

		metrics.OutboxPublishedTotal.Inc()
		r.logger.Info("Outbox message published",
			zap.String("message_id", msg.ID),
			zap.String("event_type", msg.EventType),
			zap.String("routing_key", routingKey))
	}
}
