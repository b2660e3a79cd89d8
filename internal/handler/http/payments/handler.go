package payments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ordersaga/internal/app/payments"
)

type PaymentHandler struct {
	service payments.PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(s payments.PaymentService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l}
}

func (h *PaymentHandler) GetPaymentResult(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		h.logger.Warn("Invalid order ID in GetPaymentResult request", zap.Error(err))
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	res, err := h.service.GetPaymentResult(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, payments.ErrResultNotFound) {
			http.Error(w, "Payment result not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Error getting payment result", zap.Int64("order_id", orderID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
