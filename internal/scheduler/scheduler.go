package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/internal/payment"
)

// BatchStarter begins processing for scheduled batches whose date arrived.
type BatchStarter interface {
	StartDueBatches(ctx context.Context, asOf time.Time) (int, error)
}

// StuckReconciler re-checks payments that stayed in PROCESSING too long.
type StuckReconciler interface {
	ReconcileStuckPayments(ctx context.Context) (*payment.ReconciliationResult, error)
}

// Scheduler owns the background cadence of the disbursement engine: starting
// scheduled batches and sweeping stuck payments. Both jobs share one cron so
// shutdown drains them together.
type Scheduler struct {
	batches    BatchStarter
	reconciler StuckReconciler
	cfg        internal.PaymentConfig
	timeout    time.Duration
	cron       *cron.Cron
	logger     *slog.Logger
}

func New(batches BatchStarter, reconciler StuckReconciler, cfg internal.PaymentConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		batches:    batches,
		reconciler: reconciler,
		cfg:        cfg,
		timeout:    5 * time.Minute,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start registers both jobs and runs each once immediately, so overdue
// batches and payments stranded across a restart are picked up before the
// first tick.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.DispatchSchedule, s.runDispatch); err != nil {
		return fmt.Errorf("dispatch schedule %q: %w", s.cfg.DispatchSchedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, s.runReconcile); err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", s.cfg.ReconcileSchedule, err)
	}

	go s.runDispatch()
	go s.runReconcile()
	s.cron.Start()
	s.logger.Info("scheduler started",
		"dispatch_schedule", s.cfg.DispatchSchedule,
		"reconcile_schedule", s.cfg.ReconcileSchedule)
	return nil
}

// Stop halts the schedule and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runDispatch() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started, err := s.batches.StartDueBatches(ctx, time.Now())
	if err != nil {
		s.logger.Error("scheduled batch dispatch failed", "error", err)
		return
	}
	if started > 0 {
		s.logger.Info("scheduled batches started", "count", started)
	}
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.reconciler.ReconcileStuckPayments(ctx)
	if err != nil {
		s.logger.Error("stuck payment reconciliation failed", "error", err)
		return
	}
	if result.CheckedCount > 0 {
		s.logger.Info("stuck payments reconciled",
			"checked", result.CheckedCount,
			"reconciled", result.ReconciledCount,
			"discrepancies", len(result.Discrepancies))
	}
}
