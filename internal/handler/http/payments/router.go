package payments

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ordersaga/internal/app/payments"
)

func RegisterRoutes(r chi.Router, s payments.PaymentService, l *zap.Logger) {
	handler := NewPaymentHandler(s, l.With(zap.String("component", "PaymentHTTPHandler")))

	r.Route("/payments", func(r chi.Router) {
		r.Get("/result/{orderID}", handler.GetPaymentResult)
	})
}
