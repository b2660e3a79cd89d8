package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	app "ordersaga/internal/app/payments"
	"ordersaga/internal/domain/event"
)

type stubPaymentService struct {
	result *app.PaymentResultResponse
	err    error
}

func (s *stubPaymentService) ProcessPayment(context.Context, event.OrderCreated) error {
	return nil
}

func (s *stubPaymentService) GetPaymentResult(context.Context, int64) (*app.PaymentResultResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newRouter(svc app.PaymentService) chi.Router {
	r := chi.NewRouter()
	RegisterRoutes(r, svc, zap.NewNop())
	return r
}

func TestGetPaymentResultEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("returns result", func(t *testing.T) {
		t.Parallel()
		svc := &stubPaymentService{result: &app.PaymentResultResponse{OrderID: 7, Status: "PaymentSucceeded"}}
		router := newRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/payments/result/7", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var res app.PaymentResultResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, int64(7), res.OrderID)
		assert.Equal(t, "PaymentSucceeded", res.Status)
	})

	t.Run("unknown order returns 404", func(t *testing.T) {
		t.Parallel()
		svc := &stubPaymentService{err: app.ErrResultNotFound}
		router := newRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/payments/result/999", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-numeric id returns 400", func(t *testing.T) {
		t.Parallel()
		svc := &stubPaymentService{}
		router := newRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/payments/result/abc", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
