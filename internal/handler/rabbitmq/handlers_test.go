package rabbitmq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ordersaga/internal/app/orders"
	"ordersaga/internal/app/payments"
	"ordersaga/internal/cache"
	"ordersaga/internal/domain/event"
)

type memoryGate struct {
	mu       sync.Mutex
	keys     map[string]bool
	admitErr error
}

func newMemoryGate() *memoryGate {
	return &memoryGate{keys: make(map[string]bool)}
}

func (g *memoryGate) Admit(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.admitErr != nil {
		return false, g.admitErr
	}
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

func (g *memoryGate) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

func (g *memoryGate) held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[key]
}

type fakePaymentService struct {
	mu        sync.Mutex
	processed []event.OrderCreated
	err       error
}

func (s *fakePaymentService) ProcessPayment(_ context.Context, evt event.OrderCreated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.processed = append(s.processed, evt)
	return nil
}

func (s *fakePaymentService) GetPaymentResult(context.Context, int64) (*payments.PaymentResultResponse, error) {
	return nil, payments.ErrResultNotFound
}

type fakeOrderService struct {
	mu       sync.Mutex
	outcomes []event.Event
	err      error
}

func (s *fakeOrderService) CreateOrder(context.Context, *orders.CreateOrderRequest, string) (*orders.OrderResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeOrderService) GetOrder(context.Context, int64) (*orders.OrderResponse, error) {
	return nil, orders.ErrOrderNotFound
}

func (s *fakeOrderService) ApplyPaymentOutcome(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.outcomes = append(s.outcomes, evt)
	return nil
}

func orderCreatedDelivery(eventID string, orderID int64) amqp.Delivery {
	return amqp.Delivery{
		MessageId:  "msg-" + eventID,
		RoutingKey: event.RoutingKeyOrderCreated,
		Body: []byte(`{"event_id":"` + eventID + `","order_id":` +
			strconv.FormatInt(orderID, 10) + `,"customer_name":"alice","total_amount":50}`),
	}
}

func TestOrderCreatedMessageHandler(t *testing.T) {
	t.Parallel()

	t.Run("processes admitted event", func(t *testing.T) {
		t.Parallel()
		svc := &fakePaymentService{}
		handler := OrderCreatedMessageHandler(svc, newMemoryGate(), time.Minute, zap.NewNop())

		err := handler(context.Background(), orderCreatedDelivery("evt-1", 7))
		require.NoError(t, err)
		require.Len(t, svc.processed, 1)
		assert.Equal(t, int64(7), svc.processed[0].OrderID)
	})

	t.Run("duplicate delivery acknowledged without processing", func(t *testing.T) {
		t.Parallel()
		svc := &fakePaymentService{}
		handler := OrderCreatedMessageHandler(svc, newMemoryGate(), time.Minute, zap.NewNop())

		require.NoError(t, handler(context.Background(), orderCreatedDelivery("evt-1", 7)))
		require.NoError(t, handler(context.Background(), orderCreatedDelivery("evt-1", 7)))
		assert.Len(t, svc.processed, 1)
	})

	t.Run("malformed delivery acknowledged without processing", func(t *testing.T) {
		t.Parallel()
		svc := &fakePaymentService{}
		handler := OrderCreatedMessageHandler(svc, newMemoryGate(), time.Minute, zap.NewNop())

		err := handler(context.Background(), amqp.Delivery{
			RoutingKey: event.RoutingKeyOrderCreated,
			Body:       []byte(`{broken`),
		})
		assert.NoError(t, err)
		assert.Empty(t, svc.processed)
	})

	t.Run("handler failure releases dedup key and requeues", func(t *testing.T) {
		t.Parallel()
		svc := &fakePaymentService{err: errors.New("db unavailable")}
		gate := newMemoryGate()
		handler := OrderCreatedMessageHandler(svc, gate, time.Minute, zap.NewNop())

		err := handler(context.Background(), orderCreatedDelivery("evt-1", 7))
		require.Error(t, err)
		assert.False(t, gate.held(cache.PaymentDedupKey("evt-1")))

		// The redelivery must be admitted and processed.
		svc.err = nil
		require.NoError(t, handler(context.Background(), orderCreatedDelivery("evt-1", 7)))
		assert.Len(t, svc.processed, 1)
	})

	t.Run("gate failure requeues delivery", func(t *testing.T) {
		t.Parallel()
		svc := &fakePaymentService{}
		gate := newMemoryGate()
		gate.admitErr = errors.New("redis unavailable")
		handler := OrderCreatedMessageHandler(svc, gate, time.Minute, zap.NewNop())

		err := handler(context.Background(), orderCreatedDelivery("evt-1", 7))
		assert.Error(t, err)
		assert.Empty(t, svc.processed)
	})
}

func TestPaymentEventsMessageHandler(t *testing.T) {
	t.Parallel()

	succeededDelivery := amqp.Delivery{
		MessageId:  "msg-1",
		RoutingKey: event.RoutingKeyPaymentSucceeded,
		Body:       []byte(`{"order_id":7,"amount":50}`),
	}
	failedDelivery := amqp.Delivery{
		MessageId:  "msg-2",
		RoutingKey: event.RoutingKeyPaymentFailed,
		Body:       []byte(`{"order_id":7,"reason":"insufficient balance"}`),
	}

	t.Run("applies admitted outcome", func(t *testing.T) {
		t.Parallel()
		svc := &fakeOrderService{}
		handler := PaymentEventsMessageHandler(svc, newMemoryGate(), time.Minute, zap.NewNop())

		require.NoError(t, handler(context.Background(), succeededDelivery))
		require.Len(t, svc.outcomes, 1)
		evt, ok := svc.outcomes[0].(event.PaymentSucceeded)
		require.True(t, ok)
		assert.Equal(t, int64(7), evt.OrderID)
	})

	t.Run("duplicate outcome acknowledged without applying", func(t *testing.T) {
		t.Parallel()
		svc := &fakeOrderService{}
		handler := PaymentEventsMessageHandler(svc, newMemoryGate(), time.Minute, zap.NewNop())

		require.NoError(t, handler(context.Background(), failedDelivery))
		require.NoError(t, handler(context.Background(), failedDelivery))
		assert.Len(t, svc.outcomes, 1)
	})

	t.Run("succeeded and failed dedup independently", func(t *testing.T) {
		t.Parallel()
		svc := &fakeOrderService{}
		handler := PaymentEventsMessageHandler(svc, newMemoryGate(), time.Minute, zap.NewNop())

		require.NoError(t, handler(context.Background(), succeededDelivery))
		require.NoError(t, handler(context.Background(), failedDelivery))
		assert.Len(t, svc.outcomes, 2)
	})

	t.Run("malformed delivery acknowledged", func(t *testing.T) {
		t.Parallel()
		svc := &fakeOrderService{}
		handler := PaymentEventsMessageHandler(svc, newMemoryGate(), time.Minute, zap.NewNop())

		err := handler(context.Background(), amqp.Delivery{
			RoutingKey: event.RoutingKeyPaymentSucceeded,
			Body:       []byte(`{"amount":50}`),
		})
		assert.NoError(t, err)
		assert.Empty(t, svc.outcomes)
	})

	t.Run("handler failure releases dedup key and requeues", func(t *testing.T) {
		t.Parallel()
		svc := &fakeOrderService{err: errors.New("db unavailable")}
		gate := newMemoryGate()
		handler := PaymentEventsMessageHandler(svc, gate, time.Minute, zap.NewNop())

		err := handler(context.Background(), succeededDelivery)
		require.Error(t, err)
		assert.False(t, gate.held(cache.OutcomeDedupKey(7, event.TypePaymentSucceeded)))

		svc.err = nil
		require.NoError(t, handler(context.Background(), succeededDelivery))
		assert.Len(t, svc.outcomes, 1)
	})
}
