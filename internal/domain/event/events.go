// Package event defines the wire envelopes exchanged between the order and
// payment services and decodes broker deliveries into a closed set of typed
// events keyed by routing key.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Outbox event types and the routing keys they publish under.
const (
	TypeOrderCreated     = "OrderCreated"
	TypePaymentSucceeded = "PaymentSucceeded"
	TypePaymentFailed    = "PaymentFailed"

	RoutingKeyOrderCreated     = "order.created"
	RoutingKeyPaymentSucceeded = "payment.succeeded"
	RoutingKeyPaymentFailed    = "payment.failed"

	// RoutingKeyUnknown is the catch-all for outbox rows carrying an event
	// type outside the fixed mapping. Messages still get published so the
	// row never sticks in Pending, but consumers will not pick them up.
	RoutingKeyUnknown = "event.unknown"
)

// ErrMalformed marks deliveries whose payload cannot be decoded into the
// event type its routing key promises. Redelivery cannot fix these, so
// consumers acknowledge and drop them.
var ErrMalformed = errors.New("malformed event payload")

// Event is the closed set of saga events. Only types in this package
// implement it.
type Event interface {
	eventType() string
}

// OrderCreated announces a new order awaiting payment. EventID is the
// saga-level idempotency token, unique per business action rather than per
// delivery attempt.
type OrderCreated struct {
	EventID      string  `json:"event_id"`
	OrderID      int64   `json:"order_id"`
	CustomerName string  `json:"customer_name"`
	TotalAmount  float64 `json:"total_amount"`
}

// PaymentSucceeded announces a successful payment for an order.
type PaymentSucceeded struct {
	OrderID int64   `json:"order_id"`
	Amount  float64 `json:"amount"`
}

// PaymentFailed announces a declined payment for an order.
type PaymentFailed struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

func (OrderCreated) eventType() string     { return TypeOrderCreated }
func (PaymentSucceeded) eventType() string { return TypePaymentSucceeded }
func (PaymentFailed) eventType() string    { return TypePaymentFailed }

// RoutingKeyFor maps an outbox event type to its fixed routing key. Unknown
// types route to the catch-all key.
func RoutingKeyFor(eventType string) string {
	switch eventType {
	case TypeOrderCreated:
		return RoutingKeyOrderCreated
	case TypePaymentSucceeded:
		return RoutingKeyPaymentSucceeded
	case TypePaymentFailed:
		return RoutingKeyPaymentFailed
	default:
		return RoutingKeyUnknown
	}
}

// Decode parses a delivery body into the event type its routing key
// announces. Unknown routing keys and undecodable or incomplete payloads
// return an error wrapping ErrMalformed.
func Decode(routingKey string, body []byte) (Event, error) {
	switch routingKey {
	case RoutingKeyOrderCreated:
		var evt OrderCreated
		if err := json.Unmarshal(body, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, routingKey, err)
		}
		if evt.EventID == "" || evt.OrderID == 0 {
			return nil, fmt.Errorf("%w: %s: missing event_id or order_id", ErrMalformed, routingKey)
		}
		return evt, nil
	case RoutingKeyPaymentSucceeded:
		var evt PaymentSucceeded
		if err := json.Unmarshal(body, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, routingKey, err)
		}
		if evt.OrderID == 0 {
			return nil, fmt.Errorf("%w: %s: missing order_id", ErrMalformed, routingKey)
		}
		return evt, nil
	case RoutingKeyPaymentFailed:
		var evt PaymentFailed
		if err := json.Unmarshal(body, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, routingKey, err)
		}
		if evt.OrderID == 0 {
			return nil, fmt.Errorf("%w: %s: missing order_id", ErrMalformed, routingKey)
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("%w: unknown routing key %q", ErrMalformed, routingKey)
	}
}
