package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/dsrph/payment-disbursement/internal/audit"
	"github.com/dsrph/payment-disbursement/internal/batch"
	"github.com/dsrph/payment-disbursement/internal/payment"
	"github.com/dsrph/payment-disbursement/internal/transport/middleware"
	"github.com/dsrph/payment-disbursement/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, allowedOrigins string, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, batchHandler *batch.Handler, auditHandler *audit.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.ActorContext)

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// FSP callbacks come in per provider, outside the payments subtree
		if webhookHandler != nil {
			r.Post("/payment/callback/{fspCode}", webhookHandler.HandlePaymentCallback)
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.CreatePayment)
				pr.Get("/statistics", paymentHandler.Statistics)
				pr.Get("/statistics/fsp", paymentHandler.StatisticsByFSP)
				pr.Get("/statistics/daily", paymentHandler.DailyVolume)
				pr.Get("/reference/{referenceNumber}", paymentHandler.GetPaymentByReference)
				pr.Get("/household/{householdId}", paymentHandler.ListHouseholdPayments)
				pr.Get("/{paymentId}", paymentHandler.GetPayment)
				pr.Post("/{paymentId}/process", paymentHandler.ProcessPayment)
				pr.Patch("/{paymentId}/status", paymentHandler.UpdateStatus)
				pr.Post("/{paymentId}/cancel", paymentHandler.CancelPayment)
				pr.Post("/{paymentId}/retry", paymentHandler.RetryPayment)
				pr.Post("/{paymentId}/check-status", paymentHandler.CheckStatus)

				if auditHandler != nil {
					pr.Get("/{paymentId}/audit", auditHandler.PaymentTrail)
				}
			})
		}

		if batchHandler != nil {
			r.Route("/batches", func(br chi.Router) {
				br.Post("/", batchHandler.CreateBatch)
				br.Get("/", batchHandler.ListBatches)
				br.Get("/number/{batchNumber}", batchHandler.GetBatchByNumber)
				br.Get("/{batchId}", batchHandler.GetBatch)
				br.Get("/{batchId}/payments", batchHandler.ListBatchPayments)
				br.Post("/{batchId}/start", batchHandler.StartProcessing)
				br.Get("/{batchId}/progress", batchHandler.Progress)
				br.Post("/{batchId}/retry-failed", batchHandler.RetryFailed)
				br.Post("/{batchId}/pause", batchHandler.Pause)
				br.Post("/{batchId}/resume", batchHandler.Resume)
				br.Post("/{batchId}/cancel", batchHandler.Cancel)
				br.Get("/{batchId}/report", batchHandler.Report)

				if auditHandler != nil {
					br.Get("/{batchId}/audit", auditHandler.BatchTrail)
				}
			})
		}
	})
}
