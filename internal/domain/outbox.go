package domain

import "time"

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "Pending"
	OutboxStatusProcessed OutboxStatus = "Processed"
)

// OutboxMessage is one domain event awaiting broker delivery. A row is
// inserted in the same database transaction as the entity change it
// announces, transitions Pending -> Processed exactly once and is retained
// afterwards for audit.
type OutboxMessage struct {
	ID          string
	EventType   string
	Payload     []byte
	Status      OutboxStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

func NewOutboxMessage(id, eventType string, payload []byte) *OutboxMessage {
	return &OutboxMessage{
		ID:        id,
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}
