package payment

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	errors "github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/internal/fsp"
	"github.com/dsrph/payment-disbursement/internal/transport"
)

// maxWebhookBody caps callback payload reads.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	*transport.BaseHandler
	paymentService *Service
	registry       *fsp.Registry
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService *Service, registry *fsp.Registry, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		registry:       registry,
		logger:         logger,
	}
}

type PaymentCallbackResponse struct {
	Status          string `json:"status"`
	PaymentID       string `json:"payment_id"`
	ReferenceNumber string `json:"reference_number"`
	PaymentStatus   string `json:"payment_status"`
}

// HandlePaymentCallback handles POST /api/v1/payment/callback/{fspCode}.
// The adapter owns signature verification and payload parsing; the engine
// owns correlation and the resulting transition.
func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	fspCode := strings.ToUpper(chi.URLParam(r, "fspCode"))

	adapter, err := h.registry.Get(fspCode)
	if err != nil {
		h.logger.Warn("callback for unknown FSP", "fsp_code", fspCode)
		h.HandleServiceError(w, err)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read callback body", "fsp_code", fspCode, "error", err)
		h.HandleError(w, errors.NewValidationError("unreadable request body", errors.ErrCodeInvalidWebhook))
		return
	}

	event, err := adapter.ProcessWebhook(payload, r.Header)
	if err != nil {
		h.logger.Error("callback rejected by adapter", "fsp_code", fspCode, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.logger.Info("received payment callback",
		"fsp_code", event.FSPCode,
		"fsp_reference", event.FSPReferenceNumber,
		"correlation_id", event.CorrelationID,
		"status", event.Status)

	p, err := h.paymentService.ApplyWebhookEvent(r.Context(), event)
	if err != nil {
		h.logger.Error("failed to apply payment callback",
			"fsp_code", event.FSPCode,
			"correlation_id", event.CorrelationID,
			"error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PaymentCallbackResponse{
		Status:          "accepted",
		PaymentID:       p.ID,
		ReferenceNumber: p.InternalReferenceNumber,
		PaymentStatus:   p.Status,
	})
}
