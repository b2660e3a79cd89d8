package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/order_repo"
)

type pgOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, l *zap.Logger) order_repo.OrderRepository {
	return &pgOrderRepository{db: db, logger: l}
}

func (r *pgOrderRepository) CreateOrderWithOutbox(ctx context.Context, order *domain.Order, makeMessage func(orderID int64) (*domain.OutboxMessage, error)) (orderID int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction for order creation", zap.Error(err))
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback order creation transaction", zap.Error(rbErr))
			}
		} else {
			if err = tx.Commit(); err != nil {
				r.logger.Error("Failed to commit order creation transaction", zap.Int64("order_id", orderID), zap.Error(err))
			}
		}
	}()

	orderQuery := `INSERT INTO orders (customer_name, total_amount, status, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err = tx.QueryRowContext(ctx, orderQuery, order.CustomerName, order.TotalAmount, order.Status, order.CreatedAt).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("tx failed to insert order: %w", err)
	}

	msg, err := makeMessage(orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to build outbox message for order %d: %w", orderID, err)
	}

	outboxQuery := `INSERT INTO outbox_messages (id, event_type, payload, status, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = tx.ExecContext(ctx, outboxQuery, msg.ID, msg.EventType, msg.Payload, msg.Status, msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("tx failed to insert outbox message: %w", err)
	}

	r.logger.Debug("Order and outbox message inserted in one transaction",
		zap.Int64("order_id", orderID),
		zap.String("message_id", msg.ID))
	return orderID, err
}

func (r *pgOrderRepository) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	order := &domain.Order{}
	query := `SELECT id, customer_name, total_amount, status, created_at FROM orders WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&order.ID, &order.CustomerName, &order.TotalAmount, &order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		r.logger.Error("Failed to get order by ID", zap.Int64("order_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get order by ID %d: %w", id, err)
	}
	return order, nil
}

func (r *pgOrderRepository) UpdateOrderStatus(ctx context.Context, order *domain.Order) error {
	query := `UPDATE orders SET status = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, order.ID, order.Status)
	if err != nil {
		r.logger.Error("Failed to update order status", zap.Int64("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to update order %d: %w", order.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("No rows affected when updating order status", zap.Int64("order_id", order.ID))
		return sql.ErrNoRows
	}
	r.logger.Debug("Order status updated",
		zap.Int64("order_id", order.ID),
		zap.String("new_status", string(order.Status)))
	return nil
}
