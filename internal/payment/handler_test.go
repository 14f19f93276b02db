package payment_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dsrph/payment-disbursement/internal"
	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
	"github.com/dsrph/payment-disbursement/internal/core/events"
	"github.com/dsrph/payment-disbursement/internal/fsp"
	paymentPkg "github.com/dsrph/payment-disbursement/internal/payment"
	"github.com/dsrph/payment-disbursement/internal/transport"
)

var _ = ginkgo.Describe("PaymentHandler", func() {
	var (
		router   *chi.Mux
		mockRepo *mockPaymentRepository
		registry *fsp.Registry
		adapter  *scriptedAdapter
		logger   *slog.Logger
		hSeq     int
	)

	seedPayment := func(status string) *paymentmodel.Payment {
		hSeq++
		p := &paymentmodel.Payment{
			ID:                      fmt.Sprintf("hpay-%04d", hSeq),
			InternalReferenceNumber: fmt.Sprintf("PAY-2026-8%05d", hSeq),
			HouseholdID:             "HH-2026-000123",
			ProgramName:             "4Ps Regular Cash Grant",
			Amount:                  decimal.NewFromFloat(1400.00),
			Currency:                "PHP",
			PaymentMethod:           paymentmodel.MethodBankTransfer,
			RecipientAccountNumber:  "0012345678",
			RecipientAccountName:    "Juan Dela Cruz",
			Status:                  status,
			CreatedBy:               "planner",
		}
		mockRepo.payments[p.ID] = p
		return p
	}

	do := func(method, target string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			gomega.Expect(json.NewEncoder(&buf).Encode(body)).To(gomega.Succeed())
		}
		req := httptest.NewRequest(method, target, &buf)
		req.Header.Set("Content-Type", "application/json")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	decodePayment := func(recorder *httptest.ResponseRecorder) paymentPkg.PaymentResponse {
		var resp paymentPkg.PaymentResponse
		gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
		return resp
	}

	ginkgo.BeforeEach(func() {
		mockRepo = newMockPaymentRepository()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		registry = fsp.NewRegistry(logger)

		adapter = &scriptedAdapter{
			code:    "LANDBANK",
			methods: []string{paymentmodel.MethodBankTransfer, paymentmodel.MethodCashPickup},
			fee:     decimal.NewFromInt(10),
			submitFn: func(req *fsp.SubmitRequest) (*fsp.ProviderResponse, error) {
				return &fsp.ProviderResponse{
					FSPReferenceNumber: "LBP-HTTP0001",
					Status:             fsp.ProviderStatusSubmitted,
					Success:            true,
				}, nil
			},
		}
		cfg := &fspmodel.FSPConfiguration{
			FSPCode:      "LANDBANK",
			Name:         "LANDBANK",
			APIBaseURL:   "http://localhost:9",
			RetryDelayMS: 1,
			FeeType:      fspmodel.FeeTypeFixed,
			FeeValue:     decimal.NewFromInt(10),
			MinAmount:    decimal.NewFromInt(1),
			IsActive:     true,
		}
		gomega.Expect(registry.Register(adapter, cfg)).To(gomega.Succeed())

		service := paymentPkg.NewService(mockRepo, &mockStatsRepository{}, registry, events.NewEventBus(logger), internal.PaymentConfig{
			MaxRetryAttempts: 3,
			RetryDelay:       time.Millisecond,
			StuckAfter:       30 * time.Minute,
		}, logger)

		handler := paymentPkg.NewHandler(service, logger)
		webhookHandler := paymentPkg.NewWebhookHandler(transport.NewBaseHandler(logger), service, registry, logger)

		router = chi.NewRouter()
		router.Route("/api/v1/payments", func(r chi.Router) {
			r.Post("/", handler.CreatePayment)
			r.Get("/statistics", handler.Statistics)
			r.Get("/statistics/fsp", handler.StatisticsByFSP)
			r.Get("/statistics/daily", handler.DailyVolume)
			r.Get("/reference/{referenceNumber}", handler.GetPaymentByReference)
			r.Get("/household/{householdId}", handler.ListHouseholdPayments)
			r.Get("/{paymentId}", handler.GetPayment)
			r.Post("/{paymentId}/process", handler.ProcessPayment)
			r.Patch("/{paymentId}/status", handler.UpdateStatus)
			r.Post("/{paymentId}/cancel", handler.CancelPayment)
			r.Post("/{paymentId}/retry", handler.RetryPayment)
			r.Post("/{paymentId}/check-status", handler.CheckStatus)
		})
		router.Post("/api/v1/payment/callback/{fspCode}", webhookHandler.HandlePaymentCallback)
	})

	ginkgo.Context("CreatePayment", func() {
		ginkgo.When("the instruction is valid", func() {
			ginkgo.It("should respond 201 with the stored payment", func() {
				body := map[string]interface{}{
					"household_id":             "HH-2026-000123",
					"program_name":             "4Ps Regular Cash Grant",
					"amount":                   "1400.00",
					"payment_method":           "BANK_TRANSFER",
					"recipient_account_number": "0012345678",
					"recipient_account_name":   "Juan Dela Cruz",
				}

				recorder := do("POST", "/api/v1/payments", body)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
				resp := decodePayment(recorder)
				gomega.Expect(resp.Status).To(gomega.Equal(paymentmodel.StatusPending))
				gomega.Expect(resp.InternalReferenceNumber).To(gomega.MatchRegexp(`^PAY-\d{4}-\d{6}$`))
				gomega.Expect(resp.Currency).To(gomega.Equal("PHP"))
			})
		})

		ginkgo.When("the request body is not JSON", func() {
			ginkgo.It("should respond 400", func() {
				req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewBufferString("not json"))
				recorder := httptest.NewRecorder()
				router.ServeHTTP(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			})
		})

		ginkgo.When("a required field is missing", func() {
			ginkgo.It("should respond 400 with the validation details", func() {
				body := map[string]interface{}{
					"program_name":             "4Ps Regular Cash Grant",
					"amount":                   "1400.00",
					"payment_method":           "BANK_TRANSFER",
					"recipient_account_number": "0012345678",
					"recipient_account_name":   "Juan Dela Cruz",
				}

				recorder := do("POST", "/api/v1/payments", body)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
				var resp struct {
					Error struct {
						Code    string `json:"code"`
						Details struct {
							Errors []struct {
								Field string `json:"field"`
							} `json:"errors"`
						} `json:"details"`
					} `json:"error"`
				}
				gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
				gomega.Expect(resp.Error.Code).To(gomega.Equal("VALIDATION_FAILED"))
				gomega.Expect(resp.Error.Details.Errors[0].Field).To(gomega.Equal("household_id"))
			})
		})
	})

	ginkgo.Context("GetPayment", func() {
		ginkgo.It("should return a stored payment", func() {
			p := seedPayment(paymentmodel.StatusPending)

			recorder := do("GET", "/api/v1/payments/"+p.ID, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodePayment(recorder).ID).To(gomega.Equal(p.ID))
		})

		ginkgo.It("should respond 404 for an unknown payment", func() {
			recorder := do("GET", "/api/v1/payments/missing", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})

	ginkgo.Context("GetPaymentByReference", func() {
		ginkgo.It("should resolve the internal reference", func() {
			p := seedPayment(paymentmodel.StatusPending)

			recorder := do("GET", "/api/v1/payments/reference/"+p.InternalReferenceNumber, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodePayment(recorder).ID).To(gomega.Equal(p.ID))
		})
	})

	ginkgo.Context("ListHouseholdPayments", func() {
		ginkgo.It("should page the household payments", func() {
			seedPayment(paymentmodel.StatusPending)
			seedPayment(paymentmodel.StatusCompleted)

			recorder := do("GET", "/api/v1/payments/household/HH-2026-000123?limit=1&offset=0", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp paymentPkg.PaymentListResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Total).To(gomega.Equal(int64(2)))
			gomega.Expect(resp.Payments).To(gomega.HaveLen(1))
			gomega.Expect(resp.Limit).To(gomega.Equal(1))
		})
	})

	ginkgo.Context("ProcessPayment", func() {
		ginkgo.It("should submit a PENDING payment", func() {
			p := seedPayment(paymentmodel.StatusPending)

			recorder := do("POST", "/api/v1/payments/"+p.ID+"/process", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			resp := decodePayment(recorder)
			gomega.Expect(resp.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
			gomega.Expect(*resp.FSPCode).To(gomega.Equal("LANDBANK"))
		})

		ginkgo.It("should respond 409 when the payment is not PENDING", func() {
			p := seedPayment(paymentmodel.StatusCompleted)

			recorder := do("POST", "/api/v1/payments/"+p.ID+"/process", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
		})
	})

	ginkgo.Context("UpdateStatus", func() {
		ginkgo.It("should apply a legal transition", func() {
			p := seedPayment(paymentmodel.StatusProcessing)

			recorder := do("PATCH", "/api/v1/payments/"+p.ID+"/status", map[string]string{
				"status": "COMPLETED",
				"reason": "settlement file confirmed",
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodePayment(recorder).Status).To(gomega.Equal(paymentmodel.StatusCompleted))
		})

		ginkgo.It("should respond 409 on an illegal transition", func() {
			p := seedPayment(paymentmodel.StatusCompleted)

			recorder := do("PATCH", "/api/v1/payments/"+p.ID+"/status", map[string]string{
				"status": "PROCESSING",
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
		})

		ginkgo.It("should respond 400 on an unknown status", func() {
			p := seedPayment(paymentmodel.StatusProcessing)

			recorder := do("PATCH", "/api/v1/payments/"+p.ID+"/status", map[string]string{
				"status": "SHIPPED",
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Context("CancelPayment", func() {
		ginkgo.It("should cancel with the supplied reason", func() {
			p := seedPayment(paymentmodel.StatusPending)

			recorder := do("POST", "/api/v1/payments/"+p.ID+"/cancel", map[string]string{
				"reason": "household delisted",
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodePayment(recorder).Status).To(gomega.Equal(paymentmodel.StatusCancelled))
			gomega.Expect(mockRepo.entriesFor(p.ID)[0].Reason).To(gomega.Equal("household delisted"))
		})

		ginkgo.It("should cancel without a body", func() {
			p := seedPayment(paymentmodel.StatusPending)

			recorder := do("POST", "/api/v1/payments/"+p.ID+"/cancel", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodePayment(recorder).Status).To(gomega.Equal(paymentmodel.StatusCancelled))
		})
	})

	ginkgo.Context("RetryPayment", func() {
		ginkgo.It("should respond 409 when the retry budget is spent", func() {
			p := seedPayment(paymentmodel.StatusFailed)
			p.RetryCount = 3

			recorder := do("POST", "/api/v1/payments/"+p.ID+"/retry", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
		})

		ginkgo.It("should re-submit a FAILED payment", func() {
			p := seedPayment(paymentmodel.StatusFailed)

			recorder := do("POST", "/api/v1/payments/"+p.ID+"/retry", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			resp := decodePayment(recorder)
			gomega.Expect(resp.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
			gomega.Expect(resp.RetryCount).To(gomega.Equal(1))
		})
	})

	ginkgo.Context("CheckStatus", func() {
		ginkgo.It("should reconcile against the provider", func() {
			p := seedPayment(paymentmodel.StatusProcessing)
			code, ref := "LANDBANK", "LBP-CHECK001"
			p.FSPCode = &code
			p.FSPReferenceNumber = &ref
			adapter.statusFn = func(fspReference string) (*fsp.ProviderResponse, error) {
				return &fsp.ProviderResponse{FSPReferenceNumber: fspReference, Status: fsp.ProviderStatusCompleted, Success: true}, nil
			}

			recorder := do("POST", "/api/v1/payments/"+p.ID+"/check-status", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodePayment(recorder).Status).To(gomega.Equal(paymentmodel.StatusCompleted))
		})
	})

	ginkgo.Context("Statistics", func() {
		ginkgo.It("should wrap the per-status aggregates", func() {
			recorder := do("GET", "/api/v1/payments/statistics", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp map[string]interface{}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp).To(gomega.HaveKey("statistics"))
		})

		ginkgo.It("should wrap the daily volume", func() {
			recorder := do("GET", "/api/v1/payments/statistics/daily?days=7", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp map[string]interface{}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp).To(gomega.HaveKey("daily_volume"))
		})
	})

	ginkgo.Context("HandlePaymentCallback", func() {
		ginkgo.BeforeEach(func() {
			adapter.webhookFn = func(payload []byte, headers http.Header) (*fsp.WebhookEvent, error) {
				var body struct {
					Reference     string `json:"reference"`
					CorrelationID string `json:"correlation_id"`
					Status        string `json:"status"`
				}
				if err := json.Unmarshal(payload, &body); err != nil {
					return nil, internal.NewValidationError("malformed callback payload", internal.ErrCodeInvalidWebhook)
				}
				return &fsp.WebhookEvent{
					FSPCode:            "LANDBANK",
					FSPReferenceNumber: body.Reference,
					CorrelationID:      body.CorrelationID,
					Status:             body.Status,
					ReceivedAt:         time.Now(),
				}, nil
			}
		})

		ginkgo.It("should apply a completion callback", func() {
			p := seedPayment(paymentmodel.StatusProcessing)
			code, ref := "LANDBANK", "LBP-CB000001"
			p.FSPCode = &code
			p.FSPReferenceNumber = &ref

			recorder := do("POST", "/api/v1/payment/callback/landbank", map[string]string{
				"reference":      ref,
				"correlation_id": p.InternalReferenceNumber,
				"status":         fsp.ProviderStatusCompleted,
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp paymentPkg.PaymentCallbackResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Status).To(gomega.Equal("accepted"))
			gomega.Expect(resp.PaymentStatus).To(gomega.Equal(paymentmodel.StatusCompleted))
		})

		ginkgo.It("should respond 404 for an unregistered FSP", func() {
			recorder := do("POST", "/api/v1/payment/callback/ghostbank", map[string]string{
				"reference": "X",
				"status":    fsp.ProviderStatusCompleted,
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})

		ginkgo.It("should respond 404 when the callback correlates with nothing", func() {
			recorder := do("POST", "/api/v1/payment/callback/landbank", map[string]string{
				"reference":      "LBP-NOBODY01",
				"correlation_id": "PAY-2026-999999",
				"status":         fsp.ProviderStatusCompleted,
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})

		ginkgo.It("should respond 400 when the adapter rejects the payload", func() {
			req := httptest.NewRequest("POST", "/api/v1/payment/callback/landbank", bytes.NewBufferString("not json"))
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})
})
