package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsrph/payment-disbursement/internal"
	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
	batchmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/batch"
	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
	"github.com/dsrph/payment-disbursement/internal/core/events"
	"github.com/dsrph/payment-disbursement/internal/payment"
)

// RepositoryAPI is the persistence surface of the batch orchestrator. Create
// inserts the batch row, all of its payment rows and their audit entries in
// one transaction. TransitionStatus applies the from-status guard and writes
// the audit entry atomically, mirroring the payment repository.
type RepositoryAPI interface {
	Create(b *batchmodel.PaymentBatch, payments []*paymentmodel.Payment, entries []*auditmodel.Entry) error
	GetByID(id string) (*batchmodel.PaymentBatch, error)
	GetByBatchNumber(batchNumber string) (*batchmodel.PaymentBatch, error)
	List(status string, limit, offset int) ([]*batchmodel.PaymentBatch, int64, error)
	GetScheduledDue(asOf time.Time, limit int) ([]*batchmodel.PaymentBatch, error)
	TransitionStatus(id, fromStatus, toStatus string, updates map[string]interface{}, entry *auditmodel.Entry) error
	CountPaymentsByStatus(batchID string) (map[string]int64, error)
	GetBatchPayments(batchID, status string) ([]*paymentmodel.Payment, error)
}

// PaymentEngineAPI is the slice of the disbursement engine the orchestrator
// drives. Child payments keep their own state machine; the batch only
// observes the outcomes.
type PaymentEngineAPI interface {
	ProcessPayment(ctx context.Context, paymentID string) (*paymentmodel.Payment, error)
	RetryPayment(ctx context.Context, paymentID string) (*paymentmodel.Payment, error)
	CancelPayment(ctx context.Context, paymentID, reason string) (*paymentmodel.Payment, error)
}

// BatchProgress is a live snapshot of a batch run, recomputed from the
// payments table on every call.
type BatchProgress struct {
	BatchID             string     `json:"batch_id"`
	BatchNumber         string     `json:"batch_number"`
	Status              string     `json:"status"`
	TotalPayments       int        `json:"total_payments"`
	PendingCount        int64      `json:"pending_count"`
	ProcessingCount     int64      `json:"processing_count"`
	CompletedCount      int64      `json:"completed_count"`
	FailedCount         int64      `json:"failed_count"`
	CancelledCount      int64      `json:"cancelled_count"`
	ProgressPercent     float64    `json:"progress_percent"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

type StatusBreakdown struct {
	Status      string          `json:"status"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type FSPBreakdown struct {
	FSPCode     string          `json:"fsp_code"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Completed   int64           `json:"completed"`
}

// BatchReport is the disbursement summary for one batch: totals, per-status
// and per-FSP breakdowns over its payments at generation time.
type BatchReport struct {
	BatchID       string            `json:"batch_id"`
	BatchNumber   string            `json:"batch_number"`
	ProgramID     string            `json:"program_id"`
	ProgramName   string            `json:"program_name"`
	Status        string            `json:"status"`
	TotalPayments int               `json:"total_payments"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	StatusSummary []StatusBreakdown `json:"status_summary"`
	FSPSummary    []FSPBreakdown    `json:"fsp_summary"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// Service orchestrates payment batches: bulk creation, fan-out through the
// worker pool, pause/resume/cancel, retry of failed children and the
// finalization that rolls child outcomes up into a terminal batch status.
type Service struct {
	repo      RepositoryAPI
	engine    PaymentEngineAPI
	processor *Processor
	eventBus  *events.EventBus
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, engine PaymentEngineAPI, processor *Processor, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		engine:    engine,
		processor: processor,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// CreateBatch validates the instruction list and stores the batch with all
// of its payments as PENDING in one transaction. Nothing is dispatched until
// StartBatchProcessing, or the scheduler once scheduled_date arrives.
func (s *Service) CreateBatch(ctx context.Context, dto CreateBatchDTO) (*batchmodel.PaymentBatch, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("batch validation failed", "error", err, "program_id", dto.ProgramID)
		return nil, err
	}

	actor := internal.ActorFromContext(ctx)

	b := &batchmodel.PaymentBatch{
		ID:            uuid.New().String(),
		BatchNumber:   generateBatchNumber(),
		ProgramID:     dto.ProgramID,
		ProgramName:   dto.ProgramName,
		ScheduledDate: dto.ScheduledDate,
		TotalPayments: len(dto.Payments),
		Status:        batchmodel.StatusPending,
		Metadata:      dto.Metadata,
		CreatedBy:     actor,
		UpdatedBy:     actor,
	}

	payments := make([]*paymentmodel.Payment, 0, len(dto.Payments))
	entries := make([]*auditmodel.Entry, 0, len(dto.Payments)+1)
	entries = append(entries, auditmodel.ForBatch(b.ID, auditmodel.EventBatchCreated, "", batchmodel.StatusPending,
		fmt.Sprintf("Batch created with %d payments", len(dto.Payments)), actor))

	total := decimal.Zero
	for i := range dto.Payments {
		item := dto.Payments[i]
		item.BatchID = &b.ID
		p := payment.NewPaymentFromDTO(item, actor)
		payments = append(payments, p)
		entries = append(entries, auditmodel.ForPayment(p.ID, auditmodel.EventPaymentCreated, "",
			paymentmodel.StatusPending, "Payment created", actor))
		total = total.Add(item.Amount)
	}
	b.TotalAmount = total

	if err := s.repo.Create(b, payments, entries); err != nil {
		s.logger.Error("failed to create batch", "error", err, "program_id", dto.ProgramID)
		return nil, internal.NewInternalError("failed to create batch", err)
	}

	s.eventBus.Publish(ctx, events.NewBatchCreatedEvent(b.ID, b.BatchNumber, b.TotalPayments, b.TotalAmount))

	s.logger.Info("batch created",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"program_id", b.ProgramID,
		"total_payments", b.TotalPayments,
		"total_amount", b.TotalAmount.String())

	return b, nil
}

// GetBatchByID retrieves a batch by its identifier.
func (s *Service) GetBatchByID(id string) (*batchmodel.PaymentBatch, error) {
	b, err := s.repo.GetByID(id)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}
	return b, nil
}

// GetBatchByNumber retrieves a batch by its BATCH-<year>-<n> reference.
func (s *Service) GetBatchByNumber(batchNumber string) (*batchmodel.PaymentBatch, error) {
	b, err := s.repo.GetByBatchNumber(batchNumber)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}
	return b, nil
}

// ListBatches lists batches newest first, optionally filtered by status.
func (s *Service) ListBatches(status string, limit, offset int) ([]*batchmodel.PaymentBatch, int64, error) {
	if status != "" && !validBatchStatus(status) {
		return nil, 0, internal.NewValidationFieldError("status",
			fmt.Sprintf("unknown batch status %s", status), internal.ErrCodeInvalidBatchStatus)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	batches, total, err := s.repo.List(status, limit, offset)
	if err != nil {
		s.logger.Error("failed to list batches", "error", err)
		return nil, 0, internal.NewInternalError("failed to list batches", err)
	}
	return batches, total, nil
}

// GetBatchPayments lists the child payments of a batch, optionally filtered
// by payment status.
func (s *Service) GetBatchPayments(batchID, status string) ([]*paymentmodel.Payment, error) {
	if _, err := s.repo.GetByID(batchID); err != nil {
		return nil, internal.ErrBatchNotFound
	}
	if status != "" && !paymentmodel.ValidStatus(status) {
		return nil, internal.NewValidationFieldError("status",
			fmt.Sprintf("unknown payment status %s", status), internal.ErrCodeValidationFailed)
	}

	children, err := s.repo.GetBatchPayments(batchID, status)
	if err != nil {
		s.logger.Error("failed to list batch payments", "error", err, "batch_id", batchID)
		return nil, internal.NewInternalError("failed to list batch payments", err)
	}
	return children, nil
}

// StartBatchProcessing moves a PENDING batch to PROCESSING and enqueues all
// of its pending payments on the worker pool. Payments the full queue
// rejects stay PENDING; ResumeBatch or the scheduler picks them up later.
func (s *Service) StartBatchProcessing(ctx context.Context, batchID string) (*batchmodel.PaymentBatch, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}

	if b.Status != batchmodel.StatusPending {
		return nil, internal.NewConflictError(
			fmt.Sprintf("batch %s cannot start processing from status %s", b.BatchNumber, b.Status),
			internal.ErrCodeInvalidBatchStatus)
	}

	actor := internal.ActorFromContext(ctx)
	now := time.Now()
	updates := map[string]interface{}{
		"started_at": now,
		"updated_by": actor,
	}
	entry := auditmodel.ForBatch(b.ID, auditmodel.EventBatchStarted, batchmodel.StatusPending,
		batchmodel.StatusProcessing, "Batch processing started", actor)

	if err := s.repo.TransitionStatus(b.ID, batchmodel.StatusPending, batchmodel.StatusProcessing, updates, entry); err != nil {
		s.logger.Error("failed to start batch", "batch_id", b.ID, "error", err)
		return nil, err
	}

	queued := s.enqueuePending(b.ID)
	s.logger.Info("batch processing started",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"queued", queued,
		"total_payments", b.TotalPayments)

	return s.GetBatchByID(b.ID)
}

// StartDueBatches starts every PENDING batch whose scheduled_date has
// arrived. The scheduler calls this on a cron cadence.
func (s *Service) StartDueBatches(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.repo.GetScheduledDue(asOf, 20)
	if err != nil {
		s.logger.Error("failed to query due batches", "error", err)
		return 0, internal.NewInternalError("failed to query due batches", err)
	}

	started := 0
	for _, b := range due {
		if _, err := s.StartBatchProcessing(ctx, b.ID); err != nil {
			s.logger.Warn("scheduled batch did not start", "batch_id", b.ID, "batch_number", b.BatchNumber, "error", err)
			continue
		}
		started++
	}

	if started > 0 {
		s.logger.Info("scheduled batches started", "count", started, "as_of", asOf)
	}
	return started, nil
}

// enqueuePending pushes every PENDING child of the batch onto the pool and
// returns how many were accepted.
func (s *Service) enqueuePending(batchID string) int {
	children, err := s.repo.GetBatchPayments(batchID, paymentmodel.StatusPending)
	if err != nil {
		s.logger.Error("failed to load pending batch payments", "batch_id", batchID, "error", err)
		return 0
	}

	queued := 0
	for _, p := range children {
		if err := s.processor.Enqueue(Job{PaymentID: p.ID, BatchID: batchID}); err != nil {
			s.logger.Warn("payment not queued", "payment_id", p.ID, "batch_id", batchID, "error", err)
			continue
		}
		queued++
	}
	return queued
}

// MonitorBatchProgress recomputes batch progress from the payments table.
// The completion estimate extrapolates the observed settlement rate over the
// remaining payments and is only present while the batch is PROCESSING.
func (s *Service) MonitorBatchProgress(batchID string) (*BatchProgress, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}

	counts, err := s.repo.CountPaymentsByStatus(b.ID)
	if err != nil {
		s.logger.Error("failed to count batch payments", "batch_id", b.ID, "error", err)
		return nil, internal.NewInternalError("failed to compute batch progress", err)
	}

	progress := &BatchProgress{
		BatchID:         b.ID,
		BatchNumber:     b.BatchNumber,
		Status:          b.Status,
		TotalPayments:   b.TotalPayments,
		PendingCount:    counts[paymentmodel.StatusPending],
		ProcessingCount: counts[paymentmodel.StatusProcessing],
		CompletedCount:  counts[paymentmodel.StatusCompleted],
		FailedCount:     counts[paymentmodel.StatusFailed],
		CancelledCount:  counts[paymentmodel.StatusCancelled],
		StartedAt:       b.StartedAt,
	}

	settled := progress.CompletedCount + progress.FailedCount + progress.CancelledCount
	if b.TotalPayments > 0 {
		progress.ProgressPercent = math.Round(float64(settled)/float64(b.TotalPayments)*10000) / 100
	}

	if b.Status == batchmodel.StatusProcessing && b.StartedAt != nil && settled > 0 {
		remaining := int64(b.TotalPayments) - settled
		if remaining > 0 {
			elapsed := time.Since(*b.StartedAt)
			eta := time.Now().Add(time.Duration(int64(elapsed) / settled * remaining))
			progress.EstimatedCompletion = &eta
		}
	}

	return progress, nil
}

// FinalizeIfDone rolls the batch up into its terminal status once every
// child payment has settled. COMPLETED when all succeeded, FAILED when none
// did, CANCELLED when the children were cancelled to the last one, and
// PARTIALLY_COMPLETED for any mix with at least one success. Returns false
// without touching the batch while children are still in flight or the
// batch is not PROCESSING.
func (s *Service) FinalizeIfDone(ctx context.Context, batchID string) (bool, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return false, internal.ErrBatchNotFound
	}
	if b.Status != batchmodel.StatusProcessing {
		return false, nil
	}

	counts, err := s.repo.CountPaymentsByStatus(b.ID)
	if err != nil {
		s.logger.Error("failed to count batch payments", "batch_id", b.ID, "error", err)
		return false, internal.NewInternalError("failed to finalize batch", err)
	}

	if counts[paymentmodel.StatusPending] > 0 || counts[paymentmodel.StatusProcessing] > 0 {
		return false, nil
	}

	completed := counts[paymentmodel.StatusCompleted]
	failed := counts[paymentmodel.StatusFailed]
	cancelled := counts[paymentmodel.StatusCancelled]

	var final string
	switch {
	case completed == int64(b.TotalPayments):
		final = batchmodel.StatusCompleted
	case completed > 0:
		final = batchmodel.StatusPartiallyCompleted
	case failed > 0:
		final = batchmodel.StatusFailed
	default:
		final = batchmodel.StatusCancelled
	}

	actor := internal.ActorFromContext(ctx)
	now := time.Now()
	updates := map[string]interface{}{
		"completed_at": now,
		"updated_by":   actor,
	}
	reason := fmt.Sprintf("Batch finalized: %d completed, %d failed, %d cancelled", completed, failed, cancelled)
	entry := auditmodel.ForBatch(b.ID, auditmodel.EventBatchFinalized, batchmodel.StatusProcessing, final, reason, actor)

	if err := s.repo.TransitionStatus(b.ID, batchmodel.StatusProcessing, final, updates, entry); err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Code == internal.ErrCodeInvalidTransition {
			// lost the race to a concurrent finalize or cancel
			return false, nil
		}
		s.logger.Error("failed to finalize batch", "batch_id", b.ID, "error", err)
		return false, err
	}

	s.eventBus.Publish(ctx, events.NewBatchFinalizedEvent(b.ID, final, int(completed), int(failed), int(cancelled)))

	s.logger.Info("batch finalized",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"final_status", final,
		"completed", completed,
		"failed", failed,
		"cancelled", cancelled)

	return true, nil
}

// RetryFailedPayments re-dispatches every FAILED child of the batch and
// returns how many retries were accepted. Individual rejections are logged
// and skipped. Paused and cancelled batches refuse the sweep.
func (s *Service) RetryFailedPayments(ctx context.Context, batchID string) (int, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return 0, internal.ErrBatchNotFound
	}

	if b.Status == batchmodel.StatusCancelled || b.Status == batchmodel.StatusPaused {
		return 0, internal.NewConflictError(
			fmt.Sprintf("batch %s cannot retry payments while %s", b.BatchNumber, b.Status),
			internal.ErrCodeInvalidBatchStatus)
	}

	children, err := s.repo.GetBatchPayments(b.ID, paymentmodel.StatusFailed)
	if err != nil {
		s.logger.Error("failed to load failed batch payments", "batch_id", b.ID, "error", err)
		return 0, internal.NewInternalError("failed to load failed payments", err)
	}

	retried := 0
	for _, p := range children {
		if _, err := s.engine.RetryPayment(ctx, p.ID); err != nil {
			s.logger.Warn("batch payment retry rejected", "payment_id", p.ID, "batch_id", b.ID, "error", err)
			continue
		}
		retried++
	}

	s.logger.Info("batch retry sweep finished",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"failed_payments", len(children),
		"retried", retried)

	return retried, nil
}

// PauseBatch stops a PROCESSING batch from dispatching further payments.
// Workers re-check the batch before each job, so payments still queued stay
// PENDING; payments already at a provider run to completion.
func (s *Service) PauseBatch(ctx context.Context, batchID string) (*batchmodel.PaymentBatch, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}

	if !batchmodel.CanTransition(b.Status, batchmodel.StatusPaused) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("batch %s cannot pause from status %s", b.BatchNumber, b.Status),
			internal.ErrCodeInvalidBatchStatus)
	}

	actor := internal.ActorFromContext(ctx)
	entry := auditmodel.ForBatch(b.ID, auditmodel.EventBatchPaused, b.Status, batchmodel.StatusPaused, "Batch paused", actor)
	if err := s.repo.TransitionStatus(b.ID, b.Status, batchmodel.StatusPaused,
		map[string]interface{}{"updated_by": actor}, entry); err != nil {
		s.logger.Error("failed to pause batch", "batch_id", b.ID, "error", err)
		return nil, err
	}

	s.logger.Info("batch paused", "batch_id", b.ID, "batch_number", b.BatchNumber, "actor", actor)
	return s.GetBatchByID(b.ID)
}

// ResumeBatch moves a PAUSED batch back to PROCESSING and re-enqueues its
// remaining PENDING payments.
func (s *Service) ResumeBatch(ctx context.Context, batchID string) (*batchmodel.PaymentBatch, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}

	if b.Status != batchmodel.StatusPaused {
		return nil, internal.NewConflictError(
			fmt.Sprintf("batch %s cannot resume from status %s", b.BatchNumber, b.Status),
			internal.ErrCodeInvalidBatchStatus)
	}

	actor := internal.ActorFromContext(ctx)
	entry := auditmodel.ForBatch(b.ID, auditmodel.EventBatchResumed, batchmodel.StatusPaused,
		batchmodel.StatusProcessing, "Batch resumed", actor)
	if err := s.repo.TransitionStatus(b.ID, batchmodel.StatusPaused, batchmodel.StatusProcessing,
		map[string]interface{}{"updated_by": actor}, entry); err != nil {
		s.logger.Error("failed to resume batch", "batch_id", b.ID, "error", err)
		return nil, err
	}

	queued := s.enqueuePending(b.ID)
	s.logger.Info("batch resumed", "batch_id", b.ID, "batch_number", b.BatchNumber, "queued", queued)

	return s.GetBatchByID(b.ID)
}

// CancelBatch cancels the batch and every child payment that has not been
// dispatched yet. The batch moves to CANCELLED first so workers stop picking
// up its queued jobs; payments already at a provider run to completion and
// settle through webhooks as usual.
func (s *Service) CancelBatch(ctx context.Context, batchID, reason string) (*batchmodel.PaymentBatch, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}

	if !batchmodel.CanTransition(b.Status, batchmodel.StatusCancelled) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("batch %s cannot be cancelled from status %s", b.BatchNumber, b.Status),
			internal.ErrCodeInvalidBatchStatus)
	}

	auditReason := "Batch cancelled"
	if reason != "" {
		auditReason = fmt.Sprintf("Batch cancelled: %s", reason)
	}

	actor := internal.ActorFromContext(ctx)
	entry := auditmodel.ForBatch(b.ID, auditmodel.EventBatchCancelled, b.Status, batchmodel.StatusCancelled, auditReason, actor)
	if err := s.repo.TransitionStatus(b.ID, b.Status, batchmodel.StatusCancelled,
		map[string]interface{}{"updated_by": actor}, entry); err != nil {
		s.logger.Error("failed to cancel batch", "batch_id", b.ID, "error", err)
		return nil, err
	}

	pending, err := s.repo.GetBatchPayments(b.ID, paymentmodel.StatusPending)
	if err != nil {
		s.logger.Error("failed to load pending payments of cancelled batch", "batch_id", b.ID, "error", err)
	}
	cancelled := 0
	for _, p := range pending {
		if _, err := s.engine.CancelPayment(ctx, p.ID, "Batch cancelled"); err != nil {
			s.logger.Warn("batch child payment not cancelled", "payment_id", p.ID, "batch_id", b.ID, "error", err)
			continue
		}
		cancelled++
	}

	s.logger.Info("batch cancelled",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"cancelled_payments", cancelled,
		"actor", actor)

	return s.GetBatchByID(b.ID)
}

// GenerateBatchReport aggregates the batch's payments into per-status and
// per-FSP breakdowns. Payments the router never assigned to a provider are
// reported under UNASSIGNED.
func (s *Service) GenerateBatchReport(batchID string) (*BatchReport, error) {
	b, err := s.repo.GetByID(batchID)
	if err != nil {
		return nil, internal.ErrBatchNotFound
	}

	children, err := s.repo.GetBatchPayments(b.ID, "")
	if err != nil {
		s.logger.Error("failed to load batch payments for report", "batch_id", b.ID, "error", err)
		return nil, internal.NewInternalError("failed to generate batch report", err)
	}

	byStatus := make(map[string]*StatusBreakdown)
	byFSP := make(map[string]*FSPBreakdown)
	for _, p := range children {
		sb, ok := byStatus[p.Status]
		if !ok {
			sb = &StatusBreakdown{Status: p.Status, TotalAmount: decimal.Zero}
			byStatus[p.Status] = sb
		}
		sb.Count++
		sb.TotalAmount = sb.TotalAmount.Add(p.Amount)

		code := "UNASSIGNED"
		if p.FSPCode != nil {
			code = *p.FSPCode
		}
		fb, ok := byFSP[code]
		if !ok {
			fb = &FSPBreakdown{FSPCode: code, TotalAmount: decimal.Zero}
			byFSP[code] = fb
		}
		fb.Count++
		fb.TotalAmount = fb.TotalAmount.Add(p.Amount)
		if p.Status == paymentmodel.StatusCompleted {
			fb.Completed++
		}
	}

	report := &BatchReport{
		BatchID:       b.ID,
		BatchNumber:   b.BatchNumber,
		ProgramID:     b.ProgramID,
		ProgramName:   b.ProgramName,
		Status:        b.Status,
		TotalPayments: b.TotalPayments,
		TotalAmount:   b.TotalAmount,
		StatusSummary: make([]StatusBreakdown, 0, len(byStatus)),
		FSPSummary:    make([]FSPBreakdown, 0, len(byFSP)),
		StartedAt:     b.StartedAt,
		CompletedAt:   b.CompletedAt,
		GeneratedAt:   time.Now(),
	}
	for _, sb := range byStatus {
		report.StatusSummary = append(report.StatusSummary, *sb)
	}
	for _, fb := range byFSP {
		report.FSPSummary = append(report.FSPSummary, *fb)
	}
	sort.Slice(report.StatusSummary, func(i, j int) bool {
		return report.StatusSummary[i].Status < report.StatusSummary[j].Status
	})
	sort.Slice(report.FSPSummary, func(i, j int) bool {
		return report.FSPSummary[i].FSPCode < report.FSPSummary[j].FSPCode
	})

	return report, nil
}

func validBatchStatus(status string) bool {
	switch status {
	case batchmodel.StatusPending, batchmodel.StatusProcessing, batchmodel.StatusPaused,
		batchmodel.StatusCompleted, batchmodel.StatusPartiallyCompleted,
		batchmodel.StatusFailed, batchmodel.StatusCancelled:
		return true
	}
	return false
}

// generateBatchNumber builds the BATCH-<year>-<6 digits> reference. The
// unique index on the column catches the rare collision.
func generateBatchNumber() string {
	return fmt.Sprintf("BATCH-%d-%06d", time.Now().Year(), rand.Intn(1000000))
}
