package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ordersaga/internal/domain"
	"ordersaga/internal/domain/event"
)

type memoryOutboxRepo struct {
	mu       sync.Mutex
	messages []*domain.OutboxMessage
}

func (r *memoryOutboxRepo) add(msg *domain.OutboxMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *memoryOutboxRepo) GetPendingMessages(_ context.Context, limit int) ([]*domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*domain.OutboxMessage
	for _, msg := range r.messages {
		if msg.Status == domain.OutboxStatusPending {
			pending = append(pending, msg)
			if len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (r *memoryOutboxRepo) MarkMessageProcessed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id && msg.Status == domain.OutboxStatusPending {
			now := time.Now().UTC()
			msg.Status = domain.OutboxStatusProcessed
			msg.ProcessedAt = &now
			return nil
		}
	}
	return nil
}

func (r *memoryOutboxRepo) statusOf(id string) domain.OutboxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			return msg.Status
		}
	}
	return ""
}

type published struct {
	messageID  string
	routingKey string
	payload    []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	published []published
	failWhile map[string]int
}

func (p *fakePublisher) Publish(_ context.Context, messageID, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWhile[messageID] > 0 {
		p.failWhile[messageID]--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, published{messageID: messageID, routingKey: routingKey, payload: payload})
	return nil
}

func newTestRelay(repo *memoryOutboxRepo, pub *fakePublisher) *Relay {
	return NewRelay(repo, pub, 10*time.Millisecond, time.Second, 10, zap.NewNop())
}

func TestRelay_PublishesPendingAndMarksProcessed(t *testing.T) {
	t.Parallel()

	repo := &memoryOutboxRepo{}
	pub := &fakePublisher{}
	msg := domain.NewOutboxMessage("msg-1", event.TypeOrderCreated, []byte(`{"order_id":1}`))
	repo.add(msg)

	relay := newTestRelay(repo, pub)
	relay.processBatch(context.Background())

	require.Len(t, pub.published, 1)
	assert.Equal(t, "msg-1", pub.published[0].messageID)
	assert.Equal(t, event.RoutingKeyOrderCreated, pub.published[0].routingKey)
	assert.Equal(t, domain.OutboxStatusProcessed, repo.statusOf("msg-1"))
}

func TestRelay_FailedPublishStaysPending(t *testing.T) {
	t.Parallel()

	repo := &memoryOutboxRepo{}
	pub := &fakePublisher{failWhile: map[string]int{"msg-1": 1}}
	repo.add(domain.NewOutboxMessage("msg-1", event.TypePaymentSucceeded, []byte(`{"order_id":1}`)))

	relay := newTestRelay(repo, pub)

	relay.processBatch(context.Background())
	assert.Empty(t, pub.published)
	assert.Equal(t, domain.OutboxStatusPending, repo.statusOf("msg-1"))

	// Next tick retries and succeeds.
	relay.processBatch(context.Background())
	require.Len(t, pub.published, 1)
	assert.Equal(t, event.RoutingKeyPaymentSucceeded, pub.published[0].routingKey)
	assert.Equal(t, domain.OutboxStatusProcessed, repo.statusOf("msg-1"))
}

func TestRelay_FailingRowDoesNotBlockBatch(t *testing.T) {
	t.Parallel()

	repo := &memoryOutboxRepo{}
	pub := &fakePublisher{failWhile: map[string]int{"msg-1": 100}}
	repo.add(domain.NewOutboxMessage("msg-1", event.TypeOrderCreated, []byte(`{"order_id":1}`)))
	repo.add(domain.NewOutboxMessage("msg-2", event.TypeOrderCreated, []byte(`{"order_id":2}`)))

	relay := newTestRelay(repo, pub)
	relay.processBatch(context.Background())

	require.Len(t, pub.published, 1)
	assert.Equal(t, "msg-2", pub.published[0].messageID)
	assert.Equal(t, domain.OutboxStatusPending, repo.statusOf("msg-1"))
	assert.Equal(t, domain.OutboxStatusProcessed, repo.statusOf("msg-2"))
}

func TestRelay_UnknownEventTypePublishedToCatchAll(t *testing.T) {
	t.Parallel()

	repo := &memoryOutboxRepo{}
	pub := &fakePublisher{}
	repo.add(domain.NewOutboxMessage("msg-1", "LegacyEvent", []byte(`{}`)))

	relay := newTestRelay(repo, pub)
	relay.processBatch(context.Background())

	require.Len(t, pub.published, 1)
	assert.Equal(t, event.RoutingKeyUnknown, pub.published[0].routingKey)
	assert.Equal(t, domain.OutboxStatusProcessed, repo.statusOf("msg-1"))
}

func TestRelay_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &memoryOutboxRepo{}
	pub := &fakePublisher{}
	repo.add(domain.NewOutboxMessage("msg-1", event.TypeOrderCreated, []byte(`{"order_id":1}`)))

	relay := newTestRelay(repo, pub)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return repo.statusOf("msg-1") == domain.OutboxStatusProcessed
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after context cancellation")
	}
}
