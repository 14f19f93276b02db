package batch

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/internal/payment"
	"github.com/dsrph/payment-disbursement/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	BatchService *Service
	Logger       *slog.Logger
}

func NewHandler(batchService *Service, logger *slog.Logger) *Handler {
	return &Handler{
		BatchService: batchService,
		Logger:       logger,
	}
}

// CreateBatch handles POST /api/v1/batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var dto CreateBatchDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateBatch: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	b, err := h.BatchService.CreateBatch(r.Context(), dto)
	if err != nil {
		h.Logger.Error("CreateBatch: service error", "error", err, "program_id", dto.ProgramID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToResponse(b))
}

// GetBatch handles GET /api/v1/batches/{batchId}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	b, err := h.BatchService.GetBatchByID(batchID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(b))
}

// GetBatchByNumber handles GET /api/v1/batches/number/{batchNumber}
func (h *Handler) GetBatchByNumber(w http.ResponseWriter, r *http.Request) {
	batchNumber := chi.URLParam(r, "batchNumber")

	b, err := h.BatchService.GetBatchByNumber(batchNumber)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(b))
}

// ListBatches handles GET /api/v1/batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	batches, total, err := h.BatchService.ListBatches(status, limit, offset)
	if err != nil {
		h.Logger.Error("ListBatches: service error", "error", err, "status", status)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, BatchListResponse{
		Batches: ToResponseList(batches),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// ListBatchPayments handles GET /api/v1/batches/{batchId}/payments
func (h *Handler) ListBatchPayments(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")
	status := r.URL.Query().Get("status")

	children, err := h.BatchService.GetBatchPayments(batchID, status)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payment.ToResponseList(children),
		"count":    len(children),
	})
}

// StartProcessing handles POST /api/v1/batches/{batchId}/start
func (h *Handler) StartProcessing(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	b, err := h.BatchService.StartBatchProcessing(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("StartProcessing: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(b))
}

// Progress handles GET /api/v1/batches/{batchId}/progress
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	progress, err := h.BatchService.MonitorBatchProgress(batchID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, progress)
}

// RetryFailed handles POST /api/v1/batches/{batchId}/retry-failed
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	retried, err := h.BatchService.RetryFailedPayments(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("RetryFailed: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RetryFailedResponse{
		BatchID:      batchID,
		RetriedCount: retried,
	})
}

// Pause handles POST /api/v1/batches/{batchId}/pause
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	b, err := h.BatchService.PauseBatch(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("Pause: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(b))
}

// Resume handles POST /api/v1/batches/{batchId}/resume
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	b, err := h.BatchService.ResumeBatch(r.Context(), batchID)
	if err != nil {
		h.Logger.Error("Resume: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(b))
}

// Cancel handles POST /api/v1/batches/{batchId}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	var dto CancelBatchDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error("Cancel: failed to parse request body", "error", err)
			h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
			return
		}
	}

	b, err := h.BatchService.CancelBatch(r.Context(), batchID, dto.Reason)
	if err != nil {
		h.Logger.Error("Cancel: service error", "error", err, "batch_id", batchID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(b))
}

// Report handles GET /api/v1/batches/{batchId}/report
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	report, err := h.BatchService.GenerateBatchReport(batchID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, report)
}
