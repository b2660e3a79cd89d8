package order_repo

import (
	"context"

	"ordersaga/internal/domain"
)

// OrderRepository persists orders for the order service. The create path is
// a single unit of work: the order row and the outbox row announcing it
// commit together or not at all.
type OrderRepository interface {
	// CreateOrderWithOutbox inserts the order, hands the store-assigned id
	// to makeMessage and inserts the resulting outbox row in the same
	// transaction. Returns the new order id.
	CreateOrderWithOutbox(ctx context.Context, order *domain.Order, makeMessage func(orderID int64) (*domain.OutboxMessage, error)) (int64, error)
	GetOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, order *domain.Order) error
}
