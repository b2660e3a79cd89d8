package payment_repo

import (
	"context"

	"ordersaga/internal/domain"
)

// PaymentRepository persists payment outcomes. Payments are immutable: one
// insert per admitted OrderCreated event, committed together with the outbox
// row announcing the outcome.
type PaymentRepository interface {
	// CreatePaymentWithOutbox inserts the payment and its outcome outbox
	// row in one transaction and returns the new payment id.
	CreatePaymentWithOutbox(ctx context.Context, payment *domain.Payment, msg *domain.OutboxMessage) (int64, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error)
}
