package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"ordersaga/internal/domain/event"
)

// Fixed broker topology shared by both services.
const (
	OrderExchange   = "order_exchange"
	PaymentExchange = "payment_exchange"

	OrderEventsQueue   = "order_events"
	PaymentEventsQueue = "payment_events"

	DeadLetterExchange = "saga.dlx"
	DeadLetterQueue    = "saga.dlq"
)

// DeclareOrderServiceTopology declares everything the order service touches:
// its own exchange for publishing, the counterpart exchange, and the queue
// receiving payment outcomes under both outcome routing keys. All
// declarations are idempotent and repeated on every startup.
func DeclareOrderServiceTopology(ch *amqp.Channel) error {
	if err := declareExchanges(ch); err != nil {
		return err
	}
	return declareBoundQueue(ch, PaymentEventsQueue, PaymentExchange,
		event.RoutingKeyPaymentSucceeded, event.RoutingKeyPaymentFailed)
}

// DeclarePaymentServiceTopology declares the payment service side: both
// exchanges and the queue receiving order.created events.
func DeclarePaymentServiceTopology(ch *amqp.Channel) error {
	if err := declareExchanges(ch); err != nil {
		return err
	}
	return declareBoundQueue(ch, OrderEventsQueue, OrderExchange,
		event.RoutingKeyOrderCreated)
}

func declareExchanges(ch *amqp.Channel) error {
	for _, exchange := range []string{OrderExchange, PaymentExchange} {
		if err := ch.ExchangeDeclare(
			exchange,
			"direct",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	// Dead-letter fallback so poison messages leave the redelivery loop
	// once a consumer gives up on them.
	if err := ch.ExchangeDeclare(DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", DeadLetterExchange, err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", DeadLetterQueue, err)
	}
	if err := ch.QueueBind(DeadLetterQueue, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", DeadLetterQueue, err)
	}
	return nil
}

func declareBoundQueue(ch *amqp.Channel, queue, exchange string, routingKeys ...string) error {
	args := amqp.Table{"x-dead-letter-exchange": DeadLetterExchange}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s with key %s: %w", queue, exchange, key, err)
		}
	}
	return nil
}
