package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsrph/payment-disbursement/internal/batch"
	batchpg "github.com/dsrph/payment-disbursement/internal/batch/postgres"
	"github.com/dsrph/payment-disbursement/internal/core/events"
	"github.com/dsrph/payment-disbursement/internal/fsp"
	fsppg "github.com/dsrph/payment-disbursement/internal/fsp/postgres"
	"github.com/dsrph/payment-disbursement/internal/payment"
	paymentpg "github.com/dsrph/payment-disbursement/internal/payment/postgres"
	"github.com/dsrph/payment-disbursement/internal/scheduler"
	"github.com/dsrph/payment-disbursement/pkg/logger"
	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start worker pools for background processing",
	Long:  `Start and manage the background processes: the batch disbursement worker pool and the event bus worker.`,
}

// Batch worker command
var batchWorkerCmd = &cobra.Command{
	Use:   "batch",
	Short: "Start the batch disbursement worker",
	Long:  `Run the batch worker pool together with the FSP health monitor and the scheduled-batch dispatcher, without the HTTP API.`,
	Run: func(cmd *cobra.Command, args []string) {
		startBatchWorker()
	},
}

// Event Bus worker command
var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start event bus worker",
	Long:  `Start the event bus `,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var (
	workerPoolSize int
	jobQueueSize   int
)

func startBatchWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.ForComponent("batch-worker")

	// Use command line flags if provided, otherwise use config values
	config.Payment.WorkerPoolSize = getIntFlag(workerPoolSize, config.Payment.WorkerPoolSize)
	config.Payment.JobQueueSize = getIntFlag(jobQueueSize, config.Payment.JobQueueSize)

	log.Info("starting batch worker",
		"worker_pool_size", config.Payment.WorkerPoolSize,
		"job_queue_size", config.Payment.JobQueueSize,
		"dispatch_schedule", config.Payment.DispatchSchedule,
		"reconcile_schedule", config.Payment.ReconcileSchedule)

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	cipher, err := secrets.NewCipher(config.FSP.CredentialsKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FSP credentials key: %v\n", err)
		os.Exit(1)
	}

	registry, err := fsp.LoadRegistry(fsppg.NewConfigRepository(gormDB), cipher, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load FSP registry: %v\n", err)
		os.Exit(1)
	}

	eventBus := events.NewEventBus(log)

	paymentService := payment.NewService(
		paymentpg.NewPaymentRepository(gormDB),
		paymentpg.NewStatsRepository(db),
		registry, eventBus, config.Payment, log)

	batchRepo := batchpg.NewBatchRepository(gormDB)
	processor := batch.NewProcessor(paymentService, batchRepo, config.Payment, log)
	batchService := batch.NewService(batchRepo, paymentService, processor, eventBus, log)
	batch.RegisterEventHandlers(eventBus, batchService, log)

	healthMonitor := fsp.NewHealthMonitor(registry, config.FSP.HealthCheckSchedule, log)
	if err := healthMonitor.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start FSP health monitor: %v\n", err)
		os.Exit(1)
	}

	sched := scheduler.New(batchService, paymentService, config.Payment, log)
	if err := sched.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start scheduler: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("batch worker is running. Press Ctrl+C to stop.")

	// wait for shutdown signal
	sig := <-sigChan
	log.Info("received signal, shutting down batch worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	healthMonitor.Stop()

	shutdownDone := make(chan struct{})
	go func() {
		processor.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("batch worker pool shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}

	if err := db.Close(); err != nil {
		log.Error("database close error", "error", err)
	}
}

func startEventWorker() {
	_, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()

	eventBus := events.NewEventBus(log)

	eventBus.Subscribe("test.event", func(ctx context.Context, event events.Event) error {
		log.Info("received test event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	log.Info("event bus worker started. Waiting for events...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("event bus is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Info("received signal, shutting down event bus", "signal", sig)
	log.Info("event bus shutdown complete")
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	batchWorkerCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Number of workers in the pool (overrides config)")
	batchWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")

	workerCmd.AddCommand(batchWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
