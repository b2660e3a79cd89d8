package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ordersaga/internal/cache"
	"ordersaga/internal/domain"
	"ordersaga/internal/domain/event"
	"ordersaga/internal/repository/order_repo"
	"ordersaga/internal/util"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order data")
)

type OrderService interface {
	// CreateOrder creates an order in PendingPayment and enqueues the
	// OrderCreated outbox row in the same transaction. eventID is the
	// saga-level idempotency token; repeating a call with the same
	// eventID returns the original result without creating anything.
	CreateOrder(ctx context.Context, req *CreateOrderRequest, eventID string) (*OrderResponse, error)
	GetOrder(ctx context.Context, orderID int64) (*OrderResponse, error)
	// ApplyPaymentOutcome finalizes the order per the payment outcome
	// event. Safe to apply more than once: repeating a terminal status is
	// a no-op and an outcome for an already-finalized order is ignored.
	ApplyPaymentOutcome(ctx context.Context, evt event.Event) error
}

type orderService struct {
	orderRepo      order_repo.OrderRepository
	cache          cache.Cache
	idempotencyTTL time.Duration
	detailsTTL     time.Duration
	logger         *zap.Logger
}

func NewOrderService(
	orderRepo order_repo.OrderRepository,
	c cache.Cache,
	idempotencyTTL time.Duration,
	detailsTTL time.Duration,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orderRepo:      orderRepo,
		cache:          c,
		idempotencyTTL: idempotencyTTL,
		detailsTTL:     detailsTTL,
		logger:         logger,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, req *CreateOrderRequest, eventID string) (*OrderResponse, error) {
	idemKey := cache.OrderIdempotencyKey(eventID)
	if cached, err := s.cache.Get(ctx, idemKey); err == nil {
		var res OrderResponse
		if err := json.Unmarshal(cached, &res); err == nil {
			s.logger.Warn("Idempotency hit, returning existing order",
				zap.Int64("order_id", res.ID),
				zap.String("event_id", eventID))
			return &res, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Error("Idempotency cache lookup failed, proceeding with create",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	order, err := domain.NewOrder(req.CustomerName, req.TotalAmount)
	if err != nil {
		s.logger.Warn("Rejected invalid order request",
			zap.Float64("total_amount", req.TotalAmount),
			zap.Error(err))
		return nil, ErrInvalidOrder
	}

	orderID, err := s.orderRepo.CreateOrderWithOutbox(ctx, order, func(orderID int64) (*domain.OutboxMessage, error) {
		payload, err := json.Marshal(event.OrderCreated{
			EventID:      eventID,
			OrderID:      orderID,
			CustomerName: order.CustomerName,
			TotalAmount:  order.TotalAmount,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal OrderCreated event: %w", err)
		}
		return domain.NewOutboxMessage(util.GenerateUUID(), event.TypeOrderCreated, payload), nil
	})
	if err != nil {
		s.logger.Error("Failed to save order and outbox message", zap.String("event_id", eventID), zap.Error(err))
		return nil, errors.New("failed to initiate payment process")
	}
	order.ID = orderID

	res := mapOrderToResponse(order)

	// Best effort: losing this entry only costs one duplicate create
	// attempt, which the consumer-side dedup gate still absorbs.
	if body, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, idemKey, body, s.idempotencyTTL); err != nil {
			s.logger.Error("Failed to cache idempotency result", zap.String("event_id", eventID), zap.Error(err))
		}
	}

	s.logger.Info("Order created and OrderCreated event added to outbox",
		zap.Int64("order_id", orderID),
		zap.String("event_id", eventID))
	return res, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*OrderResponse, error) {
	detailsKey := cache.OrderDetailsKey(orderID)
	if cached, err := s.cache.Get(ctx, detailsKey); err == nil {
		var res OrderResponse
		if err := json.Unmarshal(cached, &res); err == nil {
			s.logger.Debug("Order details cache hit", zap.Int64("order_id", orderID))
			return &res, nil
		}
	}

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		s.logger.Error("Failed to get order from repository", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, errors.New("internal server error")
	}

	res := mapOrderToResponse(order)
	if body, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, detailsKey, body, s.detailsTTL); err != nil {
			s.logger.Error("Failed to populate order details cache", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	return res, nil
}

func (s *orderService) ApplyPaymentOutcome(ctx context.Context, evt event.Event) error {
	var orderID int64
	var transition func(*domain.Order) error

	switch outcome := evt.(type) {
	case event.PaymentSucceeded:
		orderID = outcome.OrderID
		transition = (*domain.Order).MarkPaid
	case event.PaymentFailed:
		orderID = outcome.OrderID
		transition = (*domain.Order).MarkCancelled
		s.logger.Warn("Payment failed for order",
			zap.Int64("order_id", outcome.OrderID),
			zap.String("reason", outcome.Reason))
	default:
		s.logger.Warn("Ignoring unexpected event type in payment outcome handler")
		return nil
	}

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Order not found for payment outcome, ignoring", zap.Int64("order_id", orderID))
			return nil
		}
		return fmt.Errorf("failed to load order %d for payment outcome: %w", orderID, err)
	}

	previousStatus := order.Status
	if err := transition(order); err != nil {
		// An outcome arriving for an order finalized the other way is an
		// anomaly worth flagging, but re-applying is never valid.
		s.logger.Warn("Ignoring payment outcome for finalized order",
			zap.Int64("order_id", orderID),
			zap.String("status", string(order.Status)),
			zap.Error(err))
		return nil
	}
	if order.Status == previousStatus {
		s.logger.Info("Order already in outcome status, no update needed",
			zap.Int64("order_id", orderID),
			zap.String("status", string(order.Status)))
		return nil
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, order); err != nil {
		return fmt.Errorf("failed to update order %d status: %w", orderID, err)
	}

	if err := s.cache.Delete(ctx, cache.OrderDetailsKey(orderID)); err != nil {
		s.logger.Error("Failed to invalidate order details cache", zap.Int64("order_id", orderID), zap.Error(err))
	}

	s.logger.Info("Order finalized from payment outcome",
		zap.Int64("order_id", orderID),
		zap.String("old_status", string(previousStatus)),
		zap.String("new_status", string(order.Status)))
	return nil
}

func mapOrderToResponse(order *domain.Order) *OrderResponse {
	return &OrderResponse{
		ID:           order.ID,
		CustomerName: order.CustomerName,
		TotalAmount:  order.TotalAmount,
		Status:       string(order.Status),
		CreatedAt:    order.CreatedAt,
	}
}
