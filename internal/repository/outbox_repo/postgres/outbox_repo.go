package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ordersaga/internal/domain"
	"ordersaga/internal/repository/outbox_repo"
)

type pgOutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, l *zap.Logger) outbox_repo.OutboxRepository {
	return &pgOutboxRepository{db: db, logger: l}
}

func (r *pgOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	var messages []*domain.OutboxMessage
	query := `SELECT id, event_type, payload, status, created_at, processed_at FROM outbox_messages WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, domain.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var processedAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.EventType, &msg.Payload, &msg.Status, &msg.CreatedAt, &processedAt); err != nil {
			r.logger.Error("Failed to scan outbox message row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan outbox message row: %w", err)
		}
		if processedAt.Valid {
			msg.ProcessedAt = &processedAt.Time
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return messages, nil
}

func (r *pgOutboxRepository) MarkMessageProcessed(ctx context.Context, id string) error {
	query := `UPDATE outbox_messages SET status = $1, processed_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, domain.OutboxStatusProcessed, time.Now().UTC(), id, domain.OutboxStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark outbox message as processed", zap.String("message_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark outbox message %s as processed: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("No rows affected when marking outbox message processed, it might be already processed", zap.String("message_id", id))
	} else {
		r.logger.Debug("Outbox message marked as processed", zap.String("message_id", id))
	}
	return nil
}
