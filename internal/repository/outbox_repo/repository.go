package outbox_repo

import (
	"context"

	"ordersaga/internal/domain"
)

// OutboxRepository is the relay's view of the outbox table. Rows are
// inserted by the entity repositories inside their unit-of-work
// transactions; the relay only reads Pending rows and marks them Processed.
type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	MarkMessageProcessed(ctx context.Context, id string) error
}
