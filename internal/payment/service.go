package payment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsrph/payment-disbursement/internal"
	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
	"github.com/dsrph/payment-disbursement/internal/core/events"
	"github.com/dsrph/payment-disbursement/internal/fsp"
)

// RepositoryAPI is the persistence surface of the disbursement engine. All
// status changes go through TransitionStatus, which applies the from-status
// guard and writes the audit entry in the same transaction; a guard miss
// changes nothing.
type RepositoryAPI interface {
	Create(p *paymentmodel.Payment, entry *auditmodel.Entry) error
	GetByID(id string) (*paymentmodel.Payment, error)
	GetByReferenceNumber(referenceNumber string) (*paymentmodel.Payment, error)
	GetByFSPReference(fspCode, fspReference string) (*paymentmodel.Payment, error)
	GetByHouseholdID(householdID string, limit, offset int) ([]*paymentmodel.Payment, int64, error)
	GetByStatus(status string, limit int) ([]*paymentmodel.Payment, error)
	GetStuckProcessing(olderThan time.Time, limit int) ([]*paymentmodel.Payment, error)
	TransitionStatus(id, fromStatus, toStatus string, updates map[string]interface{}, entry *auditmodel.Entry) error
}

// StatsRepositoryAPI serves the reporting queries. These are read-only
// aggregates over the payments table and never participate in transitions.
type StatsRepositoryAPI interface {
	CountByStatus() ([]StatusStatistics, error)
	CountByFSP() ([]FSPStatistics, error)
	DailyVolume(since time.Time) ([]DailyVolume, error)
}

type StatusStatistics struct {
	Status      string          `json:"status" db:"status"`
	Count       int64           `json:"count" db:"count"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
}

type FSPStatistics struct {
	FSPCode     string          `json:"fsp_code" db:"fsp_code"`
	Count       int64           `json:"count" db:"count"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
}

type DailyVolume struct {
	Date        string          `json:"date" db:"date"`
	Count       int64           `json:"count" db:"count"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
}

// ReconciliationResult summarizes one sweep over payments stuck in
// PROCESSING.
type ReconciliationResult struct {
	CheckedCount    int       `json:"checked_count"`
	ReconciledCount int       `json:"reconciled_count"`
	Discrepancies   []string  `json:"discrepancies"`
	ReconciledAt    time.Time `json:"reconciled_at"`
}

// Service is the disbursement engine. It owns the payment lifecycle:
// creation, routing to an FSP, the transient-retry submit loop, webhook
// application, cancellation and manual retries. Every transition it makes is
// audited through the repository.
type Service struct {
	repo     RepositoryAPI
	stats    StatsRepositoryAPI
	registry *fsp.Registry
	eventBus *events.EventBus
	cfg      internal.PaymentConfig
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, stats StatsRepositoryAPI, registry *fsp.Registry, eventBus *events.EventBus, cfg internal.PaymentConfig, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		stats:    stats,
		registry: registry,
		eventBus: eventBus,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreatePayment validates the instruction and stores it as PENDING. Nothing
// is sent to a provider until ProcessPayment picks the payment up.
func (s *Service) CreatePayment(ctx context.Context, dto CreatePaymentDTO) (*paymentmodel.Payment, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("payment validation failed", "error", err, "household_id", dto.HouseholdID)
		return nil, err
	}

	if dto.FSPCode != nil {
		adapter, err := s.registry.Get(*dto.FSPCode)
		if err != nil {
			return nil, err
		}
		if !fsp.SupportsMethod(adapter, dto.PaymentMethod) {
			return nil, internal.NewValidationFieldError("fsp_code",
				fmt.Sprintf("FSP %s does not support payment method %s", *dto.FSPCode, dto.PaymentMethod),
				internal.ErrCodeInvalidMethod)
		}
	}

	actor := internal.ActorFromContext(ctx)
	p := NewPaymentFromDTO(dto, actor)

	entry := auditmodel.ForPayment(p.ID, auditmodel.EventPaymentCreated, "", paymentmodel.StatusPending, "Payment created", actor)
	if err := s.repo.Create(p, entry); err != nil {
		s.logger.Error("failed to create payment", "error", err, "household_id", dto.HouseholdID)
		return nil, internal.NewInternalError("failed to create payment", err)
	}

	s.eventBus.Publish(ctx, events.NewPaymentCreatedEvent(
		p.ID, p.InternalReferenceNumber, p.HouseholdID, p.Amount, p.Currency, p.PaymentMethod))

	s.logger.Info("payment created",
		"payment_id", p.ID,
		"reference_number", p.InternalReferenceNumber,
		"household_id", p.HouseholdID,
		"amount", p.Amount.String())

	return p, nil
}

// GetPaymentByID retrieves a payment by its identifier.
func (s *Service) GetPaymentByID(id string) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, internal.ErrPaymentNotFound
	}
	return p, nil
}

// GetPaymentByReferenceNumber retrieves a payment by its internal reference.
func (s *Service) GetPaymentByReferenceNumber(referenceNumber string) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByReferenceNumber(referenceNumber)
	if err != nil {
		return nil, internal.ErrPaymentNotFound
	}
	return p, nil
}

// GetPaymentsByHouseholdID lists a household's payments, newest first.
func (s *Service) GetPaymentsByHouseholdID(householdID string, limit, offset int) ([]*paymentmodel.Payment, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	payments, total, err := s.repo.GetByHouseholdID(householdID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list household payments", "error", err, "household_id", householdID)
		return nil, 0, internal.NewInternalError("failed to list payments", err)
	}
	return payments, total, nil
}

// ProcessPayment submits a PENDING payment to an FSP. On acknowledgment the
// payment moves to PROCESSING carrying the provider reference; a definitive
// rejection or an exhausted retry budget moves it to FAILED. Providers that
// settle synchronously produce a second transition straight to COMPLETED.
func (s *Service) ProcessPayment(ctx context.Context, paymentID string) (*paymentmodel.Payment, error) {
	p, err := s.GetPaymentByID(paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status != paymentmodel.StatusPending {
		return nil, internal.NewConflictError(
			fmt.Sprintf("payment %s is %s, only PENDING payments can be processed", p.InternalReferenceNumber, p.Status),
			internal.ErrCodeInvalidTransition)
	}

	return s.dispatch(ctx, p, paymentmodel.StatusPending, auditmodel.EventPaymentSubmitted, p.RetryCount)
}

// RetryPayment re-submits a FAILED payment. The retry budget is the per-FSP
// configured maximum when the payment already carries a provider, otherwise
// the engine default.
func (s *Service) RetryPayment(ctx context.Context, paymentID string) (*paymentmodel.Payment, error) {
	p, err := s.GetPaymentByID(paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status != paymentmodel.StatusFailed {
		return nil, internal.NewConflictError(
			fmt.Sprintf("payment %s is %s, only FAILED payments can be retried", p.InternalReferenceNumber, p.Status),
			internal.ErrCodeInvalidTransition)
	}

	if p.RetryCount >= s.maxRetriesFor(p) {
		s.logger.Warn("retry budget exhausted",
			"payment_id", p.ID, "retry_count", p.RetryCount, "max_retries", s.maxRetriesFor(p))
		return nil, internal.ErrMaxRetriesExceeded
	}

	attempt := p.RetryCount + 1
	actor := internal.ActorFromContext(ctx)
	s.eventBus.Publish(ctx, events.NewPaymentRetriedEvent(p.ID, attempt, actor))
	s.logger.Info("retrying payment",
		"payment_id", p.ID, "reference_number", p.InternalReferenceNumber, "attempt", attempt)

	return s.dispatch(ctx, p, paymentmodel.StatusFailed, auditmodel.EventPaymentRetried, attempt)
}

// dispatch routes the payment to an adapter, runs the submit loop and records
// the outcome as a single guarded transition from fromStatus. retryCount is
// persisted with the outcome so a failed retry still consumes budget.
func (s *Service) dispatch(ctx context.Context, p *paymentmodel.Payment, fromStatus, eventType string, retryCount int) (*paymentmodel.Payment, error) {
	adapter, err := s.selectAdapter(p)
	if err != nil {
		s.logger.Error("no adapter for payment",
			"payment_id", p.ID, "payment_method", p.PaymentMethod, "error", err)
		if markErr := s.markDispatchFailed(ctx, p, fromStatus, eventType, err.Error(), retryCount, nil); markErr != nil {
			return nil, markErr
		}
		return nil, err
	}

	code := adapter.FSPCode()
	req := &fsp.SubmitRequest{
		PaymentID:               p.ID,
		InternalReferenceNumber: p.InternalReferenceNumber,
		Amount:                  p.Amount,
		Currency:                p.Currency,
		PaymentMethod:           p.PaymentMethod,
		RecipientAccountNumber:  p.RecipientAccountNumber,
		RecipientBankCode:       p.RecipientBankCode,
		BeneficiaryName:         p.RecipientAccountName,
		CorrelationID:           p.InternalReferenceNumber,
	}
	if p.RecipientMobileNumber != nil {
		req.RecipientMobileNumber = *p.RecipientMobileNumber
	}
	if p.Description != nil {
		req.Description = *p.Description
	}

	resp, err := s.submitWithRetry(ctx, code, req)
	if err != nil {
		if markErr := s.markDispatchFailed(ctx, p, fromStatus, eventType, err.Error(), retryCount, &code); markErr != nil {
			return nil, markErr
		}
		return nil, err
	}

	actor := internal.ActorFromContext(ctx)

	if !resp.Success {
		reason := fmt.Sprintf("%s: %s", code, resp.StatusMessage)
		if err := s.markDispatchFailed(ctx, p, fromStatus, eventType, reason, retryCount, &code); err != nil {
			return nil, err
		}
		s.logger.Warn("payment rejected by provider",
			"payment_id", p.ID, "fsp_code", code, "reason", resp.StatusMessage)
		return s.GetPaymentByID(p.ID)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"fsp_code":             code,
		"fsp_reference_number": resp.FSPReferenceNumber,
		"submitted_at":         now,
		"failure_reason":       nil,
		"retry_count":          retryCount,
		"updated_by":           actor,
	}
	reason := fmt.Sprintf("Payment submitted to %s", code)
	if eventType == auditmodel.EventPaymentRetried {
		reason = fmt.Sprintf("Payment retry attempt #%d", retryCount)
	}
	entry := auditmodel.ForPayment(p.ID, eventType, fromStatus, paymentmodel.StatusProcessing, reason, actor)

	if err := s.repo.TransitionStatus(p.ID, fromStatus, paymentmodel.StatusProcessing, updates, entry); err != nil {
		s.logger.Error("failed to record submission",
			"payment_id", p.ID, "fsp_code", code, "fsp_reference", resp.FSPReferenceNumber, "error", err)
		return nil, err
	}

	s.eventBus.Publish(ctx, events.NewPaymentProcessingEvent(p.ID, code, resp.FSPReferenceNumber))
	s.logger.Info("payment submitted",
		"payment_id", p.ID,
		"reference_number", p.InternalReferenceNumber,
		"fsp_code", code,
		"fsp_reference", resp.FSPReferenceNumber)

	if resp.Status == fsp.ProviderStatusCompleted {
		completed := map[string]interface{}{
			"completed_at": time.Now(),
			"updated_by":   internal.SystemActor,
		}
		completedEntry := auditmodel.ForPayment(p.ID, auditmodel.EventStatusChanged,
			paymentmodel.StatusProcessing, paymentmodel.StatusCompleted, "Confirmed completed by FSP", internal.SystemActor)
		if err := s.repo.TransitionStatus(p.ID, paymentmodel.StatusProcessing, paymentmodel.StatusCompleted, completed, completedEntry); err != nil {
			s.logger.Error("failed to record synchronous completion", "payment_id", p.ID, "error", err)
			return nil, err
		}
		s.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(p.ID, batchIDOf(p), p.Amount, code, resp.FSPReferenceNumber))
	}

	return s.GetPaymentByID(p.ID)
}

// selectAdapter honors a pinned FSP when it can still carry the payment and
// falls back to fee-based routing otherwise, so retries re-route around a
// provider that got deactivated or marked unhealthy after the first attempt.
func (s *Service) selectAdapter(p *paymentmodel.Payment) (fsp.Adapter, error) {
	if p.FSPCode != nil && *p.FSPCode != "" {
		adapter, err := s.registry.Get(*p.FSPCode)
		if err == nil && s.registry.IsHealthy(*p.FSPCode) &&
			fsp.SupportsMethod(adapter, p.PaymentMethod) && adapter.SupportsAmount(p.Amount) {
			return adapter, nil
		}
		s.logger.Warn("pinned FSP cannot carry payment, re-routing",
			"payment_id", p.ID, "fsp_code", *p.FSPCode)
	}
	return s.registry.GetBestFSP(p.PaymentMethod, p.Amount)
}

// submitWithRetry calls the provider, re-trying transient failures with the
// configured delay. Definitive rejections come back as a response, not an
// error, and are never retried here.
func (s *Service) submitWithRetry(ctx context.Context, code string, req *fsp.SubmitRequest) (*fsp.ProviderResponse, error) {
	maxAttempts := s.cfg.MaxRetryAttempts
	delay := s.cfg.RetryDelay
	if cfg, err := s.registry.ConfigFor(code); err == nil {
		if cfg.MaxRetryAttempts > 0 {
			maxAttempts = cfg.MaxRetryAttempts
		}
		if cfg.RetryDelayMS > 0 {
			delay = cfg.RetryDelay()
		}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := s.registry.SubmitPayment(ctx, code, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		appErr, ok := internal.IsAppError(err)
		if !ok || !appErr.IsTransient() || attempt == maxAttempts {
			break
		}

		s.logger.Warn("transient provider error, will retry",
			"fsp_code", code,
			"correlation_id", req.CorrelationID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, internal.NewInternalError("payment submission aborted", ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// markDispatchFailed records a failed submission as a guarded transition to
// FAILED. fspCode is recorded when the failure came from a provider we
// actually reached.
func (s *Service) markDispatchFailed(ctx context.Context, p *paymentmodel.Payment, fromStatus, eventType, reason string, retryCount int, fspCode *string) error {
	actor := internal.ActorFromContext(ctx)
	updates := map[string]interface{}{
		"failure_reason": reason,
		"retry_count":    retryCount,
		"updated_by":     actor,
	}
	if fspCode != nil {
		updates["fsp_code"] = *fspCode
	}

	auditReason := fmt.Sprintf("Payment processing failed: %s", reason)
	if eventType == auditmodel.EventPaymentRetried {
		auditReason = fmt.Sprintf("Payment retry attempt #%d failed: %s", retryCount, reason)
	}
	entry := auditmodel.ForPayment(p.ID, eventType, fromStatus, paymentmodel.StatusFailed, auditReason, actor)

	if err := s.repo.TransitionStatus(p.ID, fromStatus, paymentmodel.StatusFailed, updates, entry); err != nil {
		s.logger.Error("failed to record dispatch failure", "payment_id", p.ID, "error", err)
		return err
	}

	s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(p.ID, batchIDOf(p), reason, retryCount))
	return nil
}

// UpdatePaymentStatus applies an explicit status change, rejecting moves the
// state machine does not allow. An illegal request leaves the payment and its
// audit trail untouched.
func (s *Service) UpdatePaymentStatus(ctx context.Context, paymentID, newStatus, reason string) (*paymentmodel.Payment, error) {
	p, err := s.GetPaymentByID(paymentID)
	if err != nil {
		return nil, err
	}

	if !paymentmodel.CanTransition(p.Status, newStatus) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("cannot transition payment from %s to %s", p.Status, newStatus),
			internal.ErrCodeInvalidTransition)
	}

	actor := internal.ActorFromContext(ctx)
	updates := map[string]interface{}{
		"updated_by": actor,
	}
	switch newStatus {
	case paymentmodel.StatusCompleted:
		updates["completed_at"] = time.Now()
	case paymentmodel.StatusFailed:
		if reason != "" {
			updates["failure_reason"] = reason
		}
	}

	auditReason := reason
	if auditReason == "" {
		auditReason = "Status changed"
	}
	entry := auditmodel.ForPayment(p.ID, auditmodel.EventStatusChanged, p.Status, newStatus, auditReason, actor)

	if err := s.repo.TransitionStatus(p.ID, p.Status, newStatus, updates, entry); err != nil {
		s.logger.Error("failed to update payment status",
			"payment_id", p.ID, "from", p.Status, "to", newStatus, "error", err)
		return nil, err
	}

	s.publishStatusEvent(ctx, p, newStatus, reason, actor)
	s.logger.Info("payment status updated",
		"payment_id", p.ID, "from", p.Status, "to", newStatus, "actor", actor)

	return s.GetPaymentByID(p.ID)
}

// CancelPayment cancels a PENDING or PROCESSING payment. The local transition
// is recorded first; for an in-flight payment the provider-side cancel is
// best effort and a provider refusal does not undo the local state.
func (s *Service) CancelPayment(ctx context.Context, paymentID, reason string) (*paymentmodel.Payment, error) {
	p, err := s.GetPaymentByID(paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status != paymentmodel.StatusPending && p.Status != paymentmodel.StatusProcessing {
		return nil, internal.NewConflictError(
			fmt.Sprintf("payment %s is %s and cannot be cancelled", p.InternalReferenceNumber, p.Status),
			internal.ErrCodeInvalidTransition)
	}

	actor := internal.ActorFromContext(ctx)
	auditReason := reason
	if auditReason == "" {
		auditReason = "Payment cancelled"
	}
	updates := map[string]interface{}{
		"updated_by": actor,
	}
	entry := auditmodel.ForPayment(p.ID, auditmodel.EventPaymentCancelled, p.Status, paymentmodel.StatusCancelled, auditReason, actor)

	if err := s.repo.TransitionStatus(p.ID, p.Status, paymentmodel.StatusCancelled, updates, entry); err != nil {
		s.logger.Error("failed to cancel payment", "payment_id", p.ID, "error", err)
		return nil, err
	}

	s.eventBus.Publish(ctx, events.NewPaymentCancelledEvent(p.ID, batchIDOf(p), auditReason, actor))

	if p.Status == paymentmodel.StatusProcessing && p.FSPCode != nil && p.FSPReferenceNumber != nil {
		if resp, err := s.registry.CancelPayment(ctx, *p.FSPCode, *p.FSPReferenceNumber); err != nil {
			s.logger.Warn("provider-side cancel failed",
				"payment_id", p.ID, "fsp_code", *p.FSPCode, "fsp_reference", *p.FSPReferenceNumber, "error", err)
		} else if !resp.Success {
			s.logger.Warn("provider refused cancellation",
				"payment_id", p.ID, "fsp_code", *p.FSPCode, "fsp_reference", *p.FSPReferenceNumber, "message", resp.StatusMessage)
		}
	}

	s.logger.Info("payment cancelled", "payment_id", p.ID, "actor", actor, "reason", auditReason)
	return s.GetPaymentByID(p.ID)
}

// ApplyWebhookEvent applies a verified provider callback to the payment it
// correlates with. Replays of a callback the payment already reflects are
// no-ops; contradictory callbacks for settled payments are conflicts.
func (s *Service) ApplyWebhookEvent(ctx context.Context, event *fsp.WebhookEvent) (*paymentmodel.Payment, error) {
	p, err := s.findByWebhook(event)
	if err != nil {
		return nil, err
	}

	target := localStatus(event.Status)

	if p.Status == target {
		s.logger.Info("webhook replay ignored",
			"payment_id", p.ID, "fsp_code", event.FSPCode, "status", target)
		return p, nil
	}

	// A provider can settle before the submit acknowledgment lands. Record
	// the submission leg first so the trail keeps one entry per transition.
	if p.Status == paymentmodel.StatusPending && target == paymentmodel.StatusCompleted {
		updates := map[string]interface{}{
			"fsp_code":             event.FSPCode,
			"fsp_reference_number": event.FSPReferenceNumber,
			"submitted_at":         time.Now(),
			"updated_by":           internal.SystemActor,
		}
		entry := auditmodel.ForPayment(p.ID, auditmodel.EventPaymentSubmitted,
			paymentmodel.StatusPending, paymentmodel.StatusProcessing,
			fmt.Sprintf("Payment submitted to %s", event.FSPCode), internal.SystemActor)
		if err := s.repo.TransitionStatus(p.ID, paymentmodel.StatusPending, paymentmodel.StatusProcessing, updates, entry); err != nil {
			return nil, err
		}
		p, err = s.GetPaymentByID(p.ID)
		if err != nil {
			return nil, err
		}
	}

	if !paymentmodel.CanTransition(p.Status, target) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("webhook status %s conflicts with payment status %s", event.Status, p.Status),
			internal.ErrCodeInvalidTransition)
	}

	updates := map[string]interface{}{
		"updated_by": internal.SystemActor,
	}
	if p.FSPReferenceNumber == nil && event.FSPReferenceNumber != "" {
		updates["fsp_reference_number"] = event.FSPReferenceNumber
	}
	switch target {
	case paymentmodel.StatusCompleted:
		updates["completed_at"] = event.ReceivedAt
	case paymentmodel.StatusFailed:
		reason := event.StatusMessage
		if reason == "" {
			reason = fmt.Sprintf("reported failed by %s", event.FSPCode)
		}
		updates["failure_reason"] = reason
	}

	auditReason := fmt.Sprintf("Webhook from %s", event.FSPCode)
	if event.StatusMessage != "" {
		auditReason = fmt.Sprintf("Webhook from %s: %s", event.FSPCode, event.StatusMessage)
	}
	entry := auditmodel.ForPayment(p.ID, auditmodel.EventWebhookReceived, p.Status, target, auditReason, internal.SystemActor)

	if err := s.repo.TransitionStatus(p.ID, p.Status, target, updates, entry); err != nil {
		s.logger.Error("failed to apply webhook",
			"payment_id", p.ID, "fsp_code", event.FSPCode, "target_status", target, "error", err)
		return nil, err
	}

	updated, err := s.GetPaymentByID(p.ID)
	if err != nil {
		return nil, err
	}

	s.publishStatusEvent(ctx, updated, target, event.StatusMessage, internal.SystemActor)
	s.logger.Info("webhook applied",
		"payment_id", p.ID,
		"fsp_code", event.FSPCode,
		"fsp_reference", event.FSPReferenceNumber,
		"from", p.Status,
		"to", target)

	return updated, nil
}

// CheckPaymentStatusWithFSP queries the provider for the current status of a
// submitted payment and reconciles local drift.
func (s *Service) CheckPaymentStatusWithFSP(ctx context.Context, paymentID string) (*paymentmodel.Payment, error) {
	p, err := s.GetPaymentByID(paymentID)
	if err != nil {
		return nil, err
	}

	if p.FSPCode == nil || p.FSPReferenceNumber == nil {
		return nil, internal.NewValidationError(
			"payment has not been submitted to an FSP", internal.ErrCodeValidationFailed)
	}

	resp, err := s.registry.CheckPaymentStatus(ctx, *p.FSPCode, *p.FSPReferenceNumber)
	if err != nil {
		s.logger.Error("status check failed",
			"payment_id", p.ID, "fsp_code", *p.FSPCode, "fsp_reference", *p.FSPReferenceNumber, "error", err)
		return nil, err
	}

	target := localStatus(resp.Status)
	if target == p.Status || !paymentmodel.CanTransition(p.Status, target) {
		return p, nil
	}

	updates := map[string]interface{}{
		"updated_by": internal.SystemActor,
	}
	switch target {
	case paymentmodel.StatusCompleted:
		updates["completed_at"] = time.Now()
	case paymentmodel.StatusFailed:
		reason := resp.StatusMessage
		if reason == "" {
			reason = fmt.Sprintf("reported failed by %s", *p.FSPCode)
		}
		updates["failure_reason"] = reason
	}

	entry := auditmodel.ForPayment(p.ID, auditmodel.EventStatusChanged, p.Status, target,
		"Status reconciled with FSP", internal.SystemActor)

	if err := s.repo.TransitionStatus(p.ID, p.Status, target, updates, entry); err != nil {
		s.logger.Error("failed to reconcile payment status", "payment_id", p.ID, "error", err)
		return nil, err
	}

	updated, err := s.GetPaymentByID(p.ID)
	if err != nil {
		return nil, err
	}

	s.publishStatusEvent(ctx, updated, target, resp.StatusMessage, internal.SystemActor)
	s.logger.Info("payment status reconciled",
		"payment_id", p.ID, "fsp_code", *p.FSPCode, "from", p.Status, "to", target)

	return updated, nil
}

// ReconcileStuckPayments sweeps payments sitting in PROCESSING longer than
// the configured threshold and asks their provider what actually happened.
// Per-payment failures are recorded as discrepancies and do not stop the
// sweep.
func (s *Service) ReconcileStuckPayments(ctx context.Context) (*ReconciliationResult, error) {
	cutoff := time.Now().Add(-s.cfg.StuckAfter)
	stuck, err := s.repo.GetStuckProcessing(cutoff, 100)
	if err != nil {
		s.logger.Error("failed to load stuck payments", "error", err)
		return nil, internal.NewInternalError("failed to load stuck payments", err)
	}

	result := &ReconciliationResult{
		CheckedCount:  len(stuck),
		Discrepancies: []string{},
		ReconciledAt:  time.Now(),
	}

	for _, p := range stuck {
		updated, err := s.CheckPaymentStatusWithFSP(ctx, p.ID)
		if err != nil {
			result.Discrepancies = append(result.Discrepancies,
				fmt.Sprintf("%s: %v", p.InternalReferenceNumber, err))
			continue
		}
		if updated.Status != p.Status {
			result.ReconciledCount++
		}
	}

	s.logger.Info("stuck payment sweep finished",
		"checked", result.CheckedCount,
		"reconciled", result.ReconciledCount,
		"discrepancies", len(result.Discrepancies))

	return result, nil
}

// GetPaymentStatistics aggregates payment counts and amounts per status.
func (s *Service) GetPaymentStatistics() ([]StatusStatistics, error) {
	stats, err := s.stats.CountByStatus()
	if err != nil {
		s.logger.Error("failed to load status statistics", "error", err)
		return nil, internal.NewInternalError("failed to load statistics", err)
	}
	return stats, nil
}

// GetPaymentStatisticsByFSP aggregates per provider, covering only payments
// that reached one.
func (s *Service) GetPaymentStatisticsByFSP() ([]FSPStatistics, error) {
	stats, err := s.stats.CountByFSP()
	if err != nil {
		s.logger.Error("failed to load FSP statistics", "error", err)
		return nil, internal.NewInternalError("failed to load statistics", err)
	}
	return stats, nil
}

// GetDailyPaymentVolume returns per-day counts and totals for the trailing
// window.
func (s *Service) GetDailyPaymentVolume(days int) ([]DailyVolume, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	volume, err := s.stats.DailyVolume(since)
	if err != nil {
		s.logger.Error("failed to load daily volume", "error", err)
		return nil, internal.NewInternalError("failed to load statistics", err)
	}
	return volume, nil
}

func (s *Service) maxRetriesFor(p *paymentmodel.Payment) int {
	if p.FSPCode != nil {
		if cfg, err := s.registry.ConfigFor(*p.FSPCode); err == nil && cfg.MaxRetryAttempts > 0 {
			return cfg.MaxRetryAttempts
		}
	}
	return s.cfg.MaxRetryAttempts
}

func (s *Service) publishStatusEvent(ctx context.Context, p *paymentmodel.Payment, newStatus, detail, actor string) {
	switch newStatus {
	case paymentmodel.StatusCompleted:
		fspCode, fspRef := "", ""
		if p.FSPCode != nil {
			fspCode = *p.FSPCode
		}
		if p.FSPReferenceNumber != nil {
			fspRef = *p.FSPReferenceNumber
		}
		s.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(p.ID, batchIDOf(p), p.Amount, fspCode, fspRef))
	case paymentmodel.StatusFailed:
		s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(p.ID, batchIDOf(p), detail, p.RetryCount))
	case paymentmodel.StatusCancelled:
		s.eventBus.Publish(ctx, events.NewPaymentCancelledEvent(p.ID, batchIDOf(p), detail, actor))
	}
}

func batchIDOf(p *paymentmodel.Payment) string {
	if p.BatchID != nil {
		return *p.BatchID
	}
	return ""
}

// localStatus maps a provider-reported status onto the payment state
// machine. Anything unrecognized is treated as still in flight.
func localStatus(providerStatus string) string {
	switch providerStatus {
	case fsp.ProviderStatusCompleted:
		return paymentmodel.StatusCompleted
	case fsp.ProviderStatusFailed:
		return paymentmodel.StatusFailed
	case fsp.ProviderStatusCancelled:
		return paymentmodel.StatusCancelled
	default:
		return paymentmodel.StatusProcessing
	}
}

// generateReferenceNumber builds the PAY-<year>-<6 digits> internal
// reference. The unique index on the column catches the rare collision.
func generateReferenceNumber() string {
	return fmt.Sprintf("PAY-%d-%06d", time.Now().Year(), rand.Intn(1000000))
}

// NewPaymentFromDTO builds a PENDING payment row from a validated
// instruction. The caller persists it; batch creation uses this to insert
// all rows of a batch in one transaction.
func NewPaymentFromDTO(dto CreatePaymentDTO, actor string) *paymentmodel.Payment {
	currency := dto.Currency
	if currency == "" {
		currency = "PHP"
	}
	return &paymentmodel.Payment{
		ID:                      uuid.New().String(),
		InternalReferenceNumber: generateReferenceNumber(),
		BatchID:                 dto.BatchID,
		HouseholdID:             dto.HouseholdID,
		ProgramName:             dto.ProgramName,
		Amount:                  dto.Amount,
		Currency:                currency,
		PaymentMethod:           dto.PaymentMethod,
		RecipientAccountNumber:  dto.RecipientAccountNumber,
		RecipientBankCode:       dto.RecipientBankCode,
		RecipientAccountName:    dto.RecipientAccountName,
		RecipientMobileNumber:   dto.RecipientMobileNumber,
		Description:             dto.Description,
		Status:                  paymentmodel.StatusPending,
		FSPCode:                 dto.FSPCode,
		CreatedBy:               actor,
		UpdatedBy:               actor,
	}
}

func (s *Service) findByWebhook(event *fsp.WebhookEvent) (*paymentmodel.Payment, error) {
	if event.CorrelationID != "" {
		if p, err := s.repo.GetByReferenceNumber(event.CorrelationID); err == nil {
			return p, nil
		}
	}
	if event.FSPReferenceNumber != "" {
		if p, err := s.repo.GetByFSPReference(event.FSPCode, event.FSPReferenceNumber); err == nil {
			return p, nil
		}
	}
	s.logger.Warn("webhook does not correlate with any payment",
		"fsp_code", event.FSPCode,
		"correlation_id", event.CorrelationID,
		"fsp_reference", event.FSPReferenceNumber)
	return nil, internal.ErrPaymentNotFound
}
