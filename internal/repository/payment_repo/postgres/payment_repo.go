package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/payment_repo"
)

type pgPaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPaymentRepository(db *sql.DB, l *zap.Logger) payment_repo.PaymentRepository {
	return &pgPaymentRepository{db: db, logger: l}
}

func (r *pgPaymentRepository) CreatePaymentWithOutbox(ctx context.Context, payment *domain.Payment, msg *domain.OutboxMessage) (paymentID int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction for payment creation", zap.Int64("order_id", payment.OrderID), zap.Error(err))
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback payment creation transaction", zap.Int64("order_id", payment.OrderID), zap.Error(rbErr))
			}
		} else {
			if err = tx.Commit(); err != nil {
				r.logger.Error("Failed to commit payment creation transaction", zap.Int64("order_id", payment.OrderID), zap.Error(err))
			}
		}
	}()

	paymentQuery := `INSERT INTO payments (order_id, amount, status, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err = tx.QueryRowContext(ctx, paymentQuery, payment.OrderID, payment.Amount, payment.Status, payment.CreatedAt).Scan(&paymentID)
	if err != nil {
		return 0, fmt.Errorf("tx failed to insert payment: %w", err)
	}

	outboxQuery := `INSERT INTO outbox_messages (id, event_type, payload, status, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = tx.ExecContext(ctx, outboxQuery, msg.ID, msg.EventType, msg.Payload, msg.Status, msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("tx failed to insert outbox message: %w", err)
	}

	r.logger.Debug("Payment and outbox message inserted in one transaction",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", payment.OrderID),
		zap.String("message_id", msg.ID))
	return paymentID, err
}

func (r *pgPaymentRepository) GetPaymentByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	payment := &domain.Payment{}
	query := `SELECT id, order_id, amount, status, created_at FROM payments WHERE order_id = $1 ORDER BY created_at ASC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(&payment.ID, &payment.OrderID, &payment.Amount, &payment.Status, &payment.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		r.logger.Error("Failed to get payment by order ID", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get payment for order %d: %w", orderID, err)
	}
	return payment, nil
}
