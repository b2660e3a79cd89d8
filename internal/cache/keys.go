package cache

import "fmt"

// Cache key builders. One namespace per concern so invalidation and TTLs
// stay independent.

// OrderIdempotencyKey guards client retries of the create-order request.
func OrderIdempotencyKey(eventID string) string {
	return "order:idem:" + eventID
}

// OrderDetailsKey holds the read view for one order.
func OrderDetailsKey(orderID int64) string {
	return fmt.Sprintf("order:details:%d", orderID)
}

// PaymentDedupKey admits exactly one processing of an OrderCreated event.
func PaymentDedupKey(eventID string) string {
	return "payment:idem:" + eventID
}

// OutcomeDedupKey admits exactly one application of a payment outcome. The
// outcome events carry no event id of their own, so identity is the order
// plus the outcome kind.
func OutcomeDedupKey(orderID int64, eventType string) string {
	return fmt.Sprintf("order:outcome:%d:%s", orderID, eventType)
}

// PaymentResultKey holds the read-optimized payment result projection.
func PaymentResultKey(orderID int64) string {
	return fmt.Sprintf("payment:result:%d", orderID)
}
