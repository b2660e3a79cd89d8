package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"ordersaga/internal/cache"
	"ordersaga/internal/domain"
	"ordersaga/internal/domain/event"
	"ordersaga/internal/repository/payment_repo"
	"ordersaga/internal/util"
)

var ErrResultNotFound = errors.New("payment result not found")

// DecisionFunc decides whether a payment attempt succeeds. Production wires
// DefaultDecision; tests inject a fixed outcome.
type DecisionFunc func(evt event.OrderCreated) bool

// DefaultDecision approves roughly 70% of payments.
func DefaultDecision(event.OrderCreated) bool {
	return rand.Intn(100) >= 30
}

// PaymentResultResponse is the read-optimized projection of a payment
// outcome. The payments table stays authoritative; this view may lag.
type PaymentResultResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

type PaymentService interface {
	// ProcessPayment records the payment decision for one admitted
	// OrderCreated event: a terminal Payment row plus the matching
	// outcome outbox row, committed together.
	ProcessPayment(ctx context.Context, evt event.OrderCreated) error
	GetPaymentResult(ctx context.Context, orderID int64) (*PaymentResultResponse, error)
}

type paymentService struct {
	paymentRepo payment_repo.PaymentRepository
	cache       cache.Cache
	decide      DecisionFunc
	resultTTL   time.Duration
	logger      *zap.Logger
}

func NewPaymentService(
	paymentRepo payment_repo.PaymentRepository,
	c cache.Cache,
	decide DecisionFunc,
	resultTTL time.Duration,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		cache:       c,
		decide:      decide,
		resultTTL:   resultTTL,
		logger:      logger,
	}
}

func (s *paymentService) ProcessPayment(ctx context.Context, evt event.OrderCreated) error {
	s.logger.Info("Payment process started",
		zap.Int64("order_id", evt.OrderID),
		zap.Float64("amount", evt.TotalAmount))

	status := domain.PaymentStatusFailed
	if s.decide(evt) {
		status = domain.PaymentStatusSucceeded
	}

	payload, eventType, err := outcomePayload(evt, status)
	if err != nil {
		return err
	}

	payment := domain.NewPayment(evt.OrderID, evt.TotalAmount, status)
	msg := domain.NewOutboxMessage(util.GenerateUUID(), eventType, payload)

	paymentID, err := s.paymentRepo.CreatePaymentWithOutbox(ctx, payment, msg)
	if err != nil {
		return fmt.Errorf("failed to record payment for order %d: %w", evt.OrderID, err)
	}

	s.logger.Info("Payment recorded and outcome event added to outbox",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", evt.OrderID),
		zap.String("status", string(status)))

	// Projection only. A failed cache write is logged and not retried;
	// readers fall back to the payments table.
	result := PaymentResultResponse{OrderID: evt.OrderID, Status: resultStatus(status)}
	if body, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, cache.PaymentResultKey(evt.OrderID), body, s.resultTTL); err != nil {
			s.logger.Error("Failed to cache payment result projection",
				zap.Int64("order_id", evt.OrderID),
				zap.Error(err))
		}
	}

	return nil
}

func (s *paymentService) GetPaymentResult(ctx context.Context, orderID int64) (*PaymentResultResponse, error) {
	if cached, err := s.cache.Get(ctx, cache.PaymentResultKey(orderID)); err == nil {
		var res PaymentResultResponse
		if err := json.Unmarshal(cached, &res); err == nil {
			s.logger.Debug("Payment result cache hit", zap.Int64("order_id", orderID))
			return &res, nil
		}
	}

	payment, err := s.paymentRepo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		s.logger.Error("Failed to get payment from repository", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, errors.New("internal server error")
	}

	return &PaymentResultResponse{OrderID: payment.OrderID, Status: resultStatus(payment.Status)}, nil
}

func outcomePayload(evt event.OrderCreated, status domain.PaymentStatus) ([]byte, string, error) {
	if status == domain.PaymentStatusSucceeded {
		payload, err := json.Marshal(event.PaymentSucceeded{OrderID: evt.OrderID, Amount: evt.TotalAmount})
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal PaymentSucceeded event: %w", err)
		}
		return payload, event.TypePaymentSucceeded, nil
	}
	payload, err := json.Marshal(event.PaymentFailed{OrderID: evt.OrderID, Reason: "insufficient balance"})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal PaymentFailed event: %w", err)
	}
	return payload, event.TypePaymentFailed, nil
}

func resultStatus(status domain.PaymentStatus) string {
	if status == domain.PaymentStatusSucceeded {
		return "PaymentSucceeded"
	}
	return "PaymentFailed"
}
