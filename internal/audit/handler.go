package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/dsrph/payment-disbursement/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// PaymentTrail handles GET /api/v1/payments/{paymentId}/audit
func (h *Handler) PaymentTrail(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	entries, err := h.Service.TrailForPayment(paymentID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payment_id": paymentID,
		"entries":    entries,
	})
}

// BatchTrail handles GET /api/v1/batches/{batchId}/audit
func (h *Handler) BatchTrail(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	entries, err := h.Service.TrailForBatch(batchID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"entries":  entries,
	})
}
