package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/internal/audit"
	auditpg "github.com/dsrph/payment-disbursement/internal/audit/postgres"
	"github.com/dsrph/payment-disbursement/internal/batch"
	batchpg "github.com/dsrph/payment-disbursement/internal/batch/postgres"
	"github.com/dsrph/payment-disbursement/internal/core/events"
	"github.com/dsrph/payment-disbursement/internal/fsp"
	fsppg "github.com/dsrph/payment-disbursement/internal/fsp/postgres"
	"github.com/dsrph/payment-disbursement/internal/payment"
	paymentpg "github.com/dsrph/payment-disbursement/internal/payment/postgres"
	"github.com/dsrph/payment-disbursement/internal/scheduler"
	"github.com/dsrph/payment-disbursement/internal/transport"
	"github.com/dsrph/payment-disbursement/internal/transport/rest"
	"github.com/dsrph/payment-disbursement/pkg/logger"
	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	GormDB         *gorm.DB
	Router         *chi.Mux
	Registry       *fsp.Registry
	HealthMonitor  *fsp.HealthMonitor
	Processor      *batch.Processor
	Scheduler      *scheduler.Scheduler
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	BatchHandler   *batch.Handler
	AuditHandler   *audit.Handler
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	if err := deps.HealthMonitor.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start FSP health monitor: %v\n", err)
		os.Exit(1)
	}
	if err := deps.Scheduler.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start scheduler: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		shutdown(deps, server)
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

// shutdown drains in flight work in dependency order: no new schedules, no
// new requests, workers finish their jobs, then the pool closes.
func shutdown(deps *Dependencies, server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps.Scheduler.Stop()
	deps.HealthMonitor.Stop()

	if err := server.Shutdown(ctx); err != nil {
		deps.Logger.Error("server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		deps.Processor.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		deps.Logger.Warn("worker pool did not drain before timeout")
	}

	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("database close error", "error", err)
	}
}

func setupRoutes(deps *Dependencies) {
	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Config.Server.AllowedOrigins,
		deps.PaymentHandler, deps.WebhookHandler, deps.BatchHandler, deps.AuditHandler, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	cipher, err := secrets.NewCipher(config.FSP.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("fsp credentials key: %w", err)
	}

	registry, err := fsp.LoadRegistry(fsppg.NewConfigRepository(gormDB), cipher, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load FSP registry: %w", err)
	}

	eventBus := events.NewEventBus(log)

	paymentRepo := paymentpg.NewPaymentRepository(gormDB)
	statsRepo := paymentpg.NewStatsRepository(db)
	paymentService := payment.NewService(paymentRepo, statsRepo, registry, eventBus, config.Payment, log)

	batchRepo := batchpg.NewBatchRepository(gormDB)
	processor := batch.NewProcessor(paymentService, batchRepo, config.Payment, log)
	batchService := batch.NewService(batchRepo, paymentService, processor, eventBus, log)
	batch.RegisterEventHandlers(eventBus, batchService, log)

	auditService := audit.NewService(auditpg.NewAuditRepository(gormDB), log)

	return &Dependencies{
		Config:         config,
		DB:             db,
		GormDB:         gormDB,
		Router:         chi.NewRouter(),
		Registry:       registry,
		HealthMonitor:  fsp.NewHealthMonitor(registry, config.FSP.HealthCheckSchedule, log),
		Processor:      processor,
		Scheduler:      scheduler.New(batchService, paymentService, config.Payment, log),
		PaymentHandler: payment.NewHandler(paymentService, log),
		WebhookHandler: payment.NewWebhookHandler(transport.NewBaseHandler(log), paymentService, registry, log),
		BatchHandler:   batch.NewHandler(batchService, log),
		AuditHandler:   audit.NewHandler(auditService, log),
		Logger:         log,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers the ORM over the shared connection pool so sqlx and gorm
// see one set of pool limits.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open orm session: %w", err)
	}
	return gormDB, nil
}
