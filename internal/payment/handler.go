package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	PaymentService *Service
	Logger         *slog.Logger
}

func NewHandler(paymentService *Service, logger *slog.Logger) *Handler {
	return &Handler{
		PaymentService: paymentService,
		Logger:         logger,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var dto CreatePaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreatePayment: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	p, err := h.PaymentService.CreatePayment(r.Context(), dto)
	if err != nil {
		h.Logger.Error("CreatePayment: service error", "error", err, "household_id", dto.HouseholdID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToResponse(p))
}

// GetPayment handles GET /api/v1/payments/{paymentId}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.PaymentService.GetPaymentByID(paymentID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

// GetPaymentByReference handles GET /api/v1/payments/reference/{referenceNumber}
func (h *Handler) GetPaymentByReference(w http.ResponseWriter, r *http.Request) {
	referenceNumber := chi.URLParam(r, "referenceNumber")

	p, err := h.PaymentService.GetPaymentByReferenceNumber(referenceNumber)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

// ListHouseholdPayments handles GET /api/v1/payments/household/{householdId}
func (h *Handler) ListHouseholdPayments(w http.ResponseWriter, r *http.Request) {
	householdID := chi.URLParam(r, "householdId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	payments, total, err := h.PaymentService.GetPaymentsByHouseholdID(householdID, limit, offset)
	if err != nil {
		h.Logger.Error("ListHouseholdPayments: service error", "error", err, "household_id", householdID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PaymentListResponse{
		Payments: ToResponseList(payments),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// ProcessPayment handles POST /api/v1/payments/{paymentId}/process
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.PaymentService.ProcessPayment(r.Context(), paymentID)
	if err != nil {
		h.Logger.Error("ProcessPayment: service error", "error", err, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

// UpdateStatus handles PATCH /api/v1/payments/{paymentId}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	var dto UpdateStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateStatus: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.PaymentService.UpdatePaymentStatus(r.Context(), paymentID, dto.Status, dto.Reason)
	if err != nil {
		h.Logger.Error("UpdateStatus: service error", "error", err, "payment_id", paymentID, "status", dto.Status)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

// CancelPayment handles POST /api/v1/payments/{paymentId}/cancel
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	var dto CancelPaymentDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error("CancelPayment: failed to parse request body", "error", err)
			h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
			return
		}
	}

	p, err := h.PaymentService.CancelPayment(r.Context(), paymentID, dto.Reason)
	if err != nil {
		h.Logger.Error("CancelPayment: service error", "error", err, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

// RetryPayment handles POST /api/v1/payments/{paymentId}/retry
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.PaymentService.RetryPayment(r.Context(), paymentID)
	if err != nil {
		h.Logger.Error("RetryPayment: service error", "error", err, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

// CheckStatus handles POST /api/v1/payments/{paymentId}/check-status
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.PaymentService.CheckPaymentStatusWithFSP(r.Context(), paymentID)
	if err != nil {
		h.Logger.Error("CheckStatus: service error", "error", err, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

// Statistics handles GET /api/v1/payments/statistics
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.PaymentService.GetPaymentStatistics()
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"statistics": stats})
}

// StatisticsByFSP handles GET /api/v1/payments/statistics/fsp
func (h *Handler) StatisticsByFSP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.PaymentService.GetPaymentStatisticsByFSP()
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"statistics": stats})
}

// DailyVolume handles GET /api/v1/payments/statistics/daily
func (h *Handler) DailyVolume(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	volume, err := h.PaymentService.GetDailyPaymentVolume(days)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"daily_volume": volume})
}
