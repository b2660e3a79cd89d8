package domain

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PendingPayment"
	OrderStatusPaid           OrderStatus = "Paid"
	OrderStatusCancelled      OrderStatus = "Cancelled"
)

var (
	ErrInvalidOrderAmount = errors.New("order amount must be greater than zero")
	ErrOrderFinalized     = errors.New("order is already in a terminal status")
)

// Order is owned by the order service. It is created in PendingPayment and
// moves to exactly one of the terminal statuses Paid or Cancelled.
type Order struct {
	ID           int64
	CustomerName string
	TotalAmount  float64
	Status       OrderStatus
	CreatedAt    time.Time
}

func NewOrder(customerName string, totalAmount float64) (*Order, error) {
	if totalAmount <= 0 {
		return nil, ErrInvalidOrderAmount
	}
	return &Order{
		CustomerName: customerName,
		TotalAmount:  totalAmount,
		Status:       OrderStatusPendingPayment,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// IsTerminal reports whether no further status transition is valid.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusCancelled
}

// MarkPaid transitions the order to Paid. Re-applying the same terminal
// status is a no-op so duplicate event deliveries stay harmless.
func (o *Order) MarkPaid() error {
	if o.Status == OrderStatusPaid {
		return nil
	}
	if o.Status == OrderStatusCancelled {
		return ErrOrderFinalized
	}
	o.Status = OrderStatusPaid
	return nil
}

// MarkCancelled transitions the order to Cancelled. Re-applying the same
// terminal status is a no-op.
func (o *Order) MarkCancelled() error {
	if o.Status == OrderStatusCancelled {
		return nil
	}
	if o.Status == OrderStatusPaid {
		return ErrOrderFinalized
	}
	o.Status = OrderStatusCancelled
	return nil
}
