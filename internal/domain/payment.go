package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "Succeeded"
	PaymentStatusFailed    PaymentStatus = "Failed"
)

// Payment records the terminal outcome of a single payment attempt. Exactly
// one payment is created per admitted OrderCreated event and it is never
// mutated afterwards.
type Payment struct {
	ID        int64
	OrderID   int64
	Amount    float64
	Status    PaymentStatus
	CreatedAt time.Time
}

func NewPayment(orderID int64, amount float64, status PaymentStatus) *Payment {
	return &Payment{
		OrderID:   orderID,
		Amount:    amount,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}
