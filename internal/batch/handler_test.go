package batch_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dsrph/payment-disbursement/internal"
	batchPkg "github.com/dsrph/payment-disbursement/internal/batch"
	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
	batchmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/batch"
	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
	"github.com/dsrph/payment-disbursement/internal/core/events"
)

var _ = ginkgo.Describe("BatchHandler", func() {
	var (
		router    *chi.Mux
		mockRepo  *mockBatchRepository
		engine    *mockPaymentEngine
		processor *batchPkg.Processor
		hSeq      int
	)

	seedBatch := func(status string, childStatuses ...string) *batchmodel.PaymentBatch {
		hSeq++
		total := decimal.Zero
		b := &batchmodel.PaymentBatch{
			ID:            fmt.Sprintf("hbatch-%04d", hSeq),
			BatchNumber:   fmt.Sprintf("BATCH-2026-9%05d", hSeq),
			ProgramID:     "4PS-2026-Q3",
			ProgramName:   "4Ps Regular Cash Grant",
			TotalPayments: len(childStatuses),
			Status:        status,
			CreatedBy:     "planner",
		}
		mockRepo.batches[b.ID] = b
		mockRepo.batchOrder = append(mockRepo.batchOrder, b.ID)

		for i, cs := range childStatuses {
			hSeq++
			amount := decimal.NewFromFloat(1400.00)
			p := &paymentmodel.Payment{
				ID:                      fmt.Sprintf("hpay-%04d", hSeq),
				InternalReferenceNumber: fmt.Sprintf("PAY-2026-9%05d", hSeq),
				BatchID:                 &b.ID,
				HouseholdID:             fmt.Sprintf("HH-2026-%06d", i+1),
				ProgramName:             b.ProgramName,
				Amount:                  amount,
				Currency:                "PHP",
				PaymentMethod:           paymentmodel.MethodBankTransfer,
				RecipientAccountNumber:  fmt.Sprintf("0045-%06d", i+1),
				RecipientAccountName:    fmt.Sprintf("Recipient %d", i+1),
				Status:                  cs,
				CreatedBy:               "planner",
			}
			mockRepo.payments[p.ID] = p
			mockRepo.childOrder = append(mockRepo.childOrder, p.ID)
			total = total.Add(amount)
		}
		b.TotalAmount = total
		return b
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

	decodeBatch := func(recorder *httptest.ResponseRecorder) batchPkg.BatchResponse {
		var resp batchPkg.BatchResponse
		gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
		return resp
	}

	makeItems := func(n int) []map[string]interface{} {
		items := make([]map[string]interface{}, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, map[string]interface{}{
				"household_id":             fmt.Sprintf("HH-2026-%06d", i+1),
				"program_name":             "4Ps Regular Cash Grant",
				"amount":                   "1400.00",
				"payment_method":           "BANK_TRANSFER",
				"recipient_account_number": fmt.Sprintf("0045-%06d", i+1),
				"recipient_account_name":   fmt.Sprintf("Recipient %d", i+1),
			})
		}
		return items
	}

	ginkgo.BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		mockRepo = newMockBatchRepository()
		engine = newMockPaymentEngine(mockRepo)
		processor = batchPkg.NewProcessor(engine, mockRepo, internal.PaymentConfig{
			WorkerPoolSize: 2,
			JobQueueSize:   16,
		}, logger)
		service := batchPkg.NewService(mockRepo, engine, processor, events.NewEventBus(logger), logger)
		handler := batchPkg.NewHandler(service, logger)

		router = chi.NewRouter()
		router.Route("/api/v1/batches", func(r chi.Router) {
			r.Post("/", handler.CreateBatch)
			r.Get("/", handler.ListBatches)
			r.Get("/number/{batchNumber}", handler.GetBatchByNumber)
			r.Get("/{batchId}", handler.GetBatch)
			r.Get("/{batchId}/payments", handler.ListBatchPayments)
			r.Post("/{batchId}/start", handler.StartProcessing)
			r.Get("/{batchId}/progress", handler.Progress)
			r.Post("/{batchId}/retry-failed", handler.RetryFailed)
			r.Post("/{batchId}/pause", handler.Pause)
			r.Post("/{batchId}/resume", handler.Resume)
			r.Post("/{batchId}/cancel", handler.Cancel)
			r.Get("/{batchId}/report", handler.Report)
		})
	})

	ginkgo.AfterEach(func() {
		processor.Shutdown()
	})

	ginkgo.Context("CreateBatch", func() {
		ginkgo.When("the request is valid", func() {
			ginkgo.It("should respond 201 with the stored batch", func() {
				body := map[string]interface{}{
					"program_id":   "4PS-2026-Q3",
					"program_name": "4Ps Regular Cash Grant",
					"payments":     makeItems(2),
				}

				recorder := do("POST", "/api/v1/batches", body)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
				resp := decodeBatch(recorder)
				gomega.Expect(resp.Status).To(gomega.Equal(batchmodel.StatusPending))
				gomega.Expect(resp.BatchNumber).To(gomega.MatchRegexp(`^BATCH-\d{4}-\d{6}$`))
				gomega.Expect(resp.TotalPayments).To(gomega.Equal(2))
				gomega.Expect(resp.TotalAmount.Equal(decimal.NewFromFloat(2800.00))).To(gomega.BeTrue())
				gomega.Expect(mockRepo.childIDs(resp.ID)).To(gomega.HaveLen(2))
			})
		})

		ginkgo.When("the request body is not JSON", func() {
			ginkgo.It("should respond 400", func() {
				req := httptest.NewRequest("POST", "/api/v1/batches", bytes.NewBufferString("not json"))
				recorder := httptest.NewRecorder()
				router.ServeHTTP(recorder, req)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			})
		})

		ginkgo.When("the payment list is empty", func() {
			ginkgo.It("should respond 400 naming the payments field", func() {
				body := map[string]interface{}{
					"program_id":   "4PS-2026-Q3",
					"program_name": "4Ps Regular Cash Grant",
					"payments":     []map[string]interface{}{},
				}

				recorder := do("POST", "/api/v1/batches", body)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
				var resp struct {
					Error struct {
						Code    string `json:"code"`
						Details struct {
							Errors []struct {
								Field string `json:"field"`
								Code  string `json:"code"`
							} `json:"errors"`
						} `json:"details"`
					} `json:"error"`
				}
				gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
				gomega.Expect(resp.Error.Code).To(gomega.Equal("VALIDATION_FAILED"))
				gomega.Expect(resp.Error.Details.Errors[0].Field).To(gomega.Equal("payments"))
				gomega.Expect(resp.Error.Details.Errors[0].Code).To(gomega.Equal("EMPTY_BATCH"))
			})
		})

		ginkgo.When("one instruction is incomplete", func() {
			ginkgo.It("should respond 400 pointing at the offending item", func() {
				items := makeItems(2)
				delete(items[1], "household_id")
				body := map[string]interface{}{
					"program_id":   "4PS-2026-Q3",
					"program_name": "4Ps Regular Cash Grant",
					"payments":     items,
				}

				recorder := do("POST", "/api/v1/batches", body)

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
				var resp struct {
					Error struct {
						Details struct {
							Errors []struct {
								Field string `json:"field"`
							} `json:"errors"`
						} `json:"details"`
					} `json:"error"`
				}
				gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
				gomega.Expect(resp.Error.Details.Errors[0].Field).To(gomega.Equal("payments[1].household_id"))
			})
		})
	})

	ginkgo.Context("GetBatch", func() {
		ginkgo.It("should return a stored batch", func() {
			b := seedBatch(batchmodel.StatusPending, paymentmodel.StatusPending)

			recorder := do("GET", "/api/v1/batches/"+b.ID, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBatch(recorder).ID).To(gomega.Equal(b.ID))
		})

		ginkgo.It("should respond 404 for an unknown batch", func() {
			recorder := do("GET", "/api/v1/batches/missing", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})

	ginkgo.Context("GetBatchByNumber", func() {
		ginkgo.It("should resolve the batch reference", func() {
			b := seedBatch(batchmodel.StatusPending)

			recorder := do("GET", "/api/v1/batches/number/"+b.BatchNumber, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBatch(recorder).ID).To(gomega.Equal(b.ID))
		})
	})

	ginkgo.Context("ListBatches", func() {
		ginkgo.It("should filter by status and page", func() {
			seedBatch(batchmodel.StatusPending)
			seedBatch(batchmodel.StatusPending)
			seedBatch(batchmodel.StatusProcessing, paymentmodel.StatusProcessing)

			recorder := do("GET", "/api/v1/batches?status=PENDING&limit=1&offset=0", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp batchPkg.BatchListResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Total).To(gomega.Equal(int64(2)))
			gomega.Expect(resp.Batches).To(gomega.HaveLen(1))
			gomega.Expect(resp.Limit).To(gomega.Equal(1))
		})

		ginkgo.It("should respond 400 for an unknown status filter", func() {
			recorder := do("GET", "/api/v1/batches?status=ARCHIVED", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Context("ListBatchPayments", func() {
		ginkgo.It("should list the children, optionally by status", func() {
			b := seedBatch(batchmodel.StatusProcessing,
				paymentmodel.StatusCompleted, paymentmodel.StatusFailed, paymentmodel.StatusFailed)

			recorder := do("GET", "/api/v1/batches/"+b.ID+"/payments?status=FAILED", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp struct {
				Payments []json.RawMessage `json:"payments"`
				Count    int               `json:"count"`
			}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Count).To(gomega.Equal(2))
			gomega.Expect(resp.Payments).To(gomega.HaveLen(2))
		})

		ginkgo.It("should respond 404 for an unknown batch", func() {
			recorder := do("GET", "/api/v1/batches/missing/payments", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})

	ginkgo.Context("StartProcessing", func() {
		ginkgo.It("should move a PENDING batch into processing", func() {
			b := seedBatch(batchmodel.StatusPending,
				paymentmodel.StatusPending, paymentmodel.StatusPending)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/start", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBatch(recorder).Status).To(gomega.Equal(batchmodel.StatusProcessing))

			children := mockRepo.childIDs(b.ID)
			gomega.Eventually(engine.Processed).Should(gomega.ConsistOf(children))
		})

		ginkgo.It("should respond 409 when the batch already started", func() {
			b := seedBatch(batchmodel.StatusProcessing, paymentmodel.StatusProcessing)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/start", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
		})
	})

	ginkgo.Context("Progress", func() {
		ginkgo.It("should report the settlement counters", func() {
			b := seedBatch(batchmodel.StatusProcessing,
				paymentmodel.StatusCompleted, paymentmodel.StatusCompleted,
				paymentmodel.StatusFailed, paymentmodel.StatusPending)

			recorder := do("GET", "/api/v1/batches/"+b.ID+"/progress", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp batchPkg.BatchProgress
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.BatchID).To(gomega.Equal(b.ID))
			gomega.Expect(resp.CompletedCount).To(gomega.Equal(int64(2)))
			gomega.Expect(resp.FailedCount).To(gomega.Equal(int64(1)))
			gomega.Expect(resp.PendingCount).To(gomega.Equal(int64(1)))
			gomega.Expect(resp.ProgressPercent).To(gomega.Equal(75.0))
		})
	})

	ginkgo.Context("RetryFailed", func() {
		ginkgo.It("should re-submit the failed children", func() {
			b := seedBatch(batchmodel.StatusPartiallyCompleted,
				paymentmodel.StatusCompleted, paymentmodel.StatusFailed)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/retry-failed", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp batchPkg.RetryFailedResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.RetriedCount).To(gomega.Equal(1))
			gomega.Expect(engine.Retried()).To(gomega.HaveLen(1))
		})

		ginkgo.It("should respond 409 for a cancelled batch", func() {
			b := seedBatch(batchmodel.StatusCancelled, paymentmodel.StatusCancelled)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/retry-failed", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
		})
	})

	ginkgo.Context("Pause and Resume", func() {
		ginkgo.It("should pause a running batch and resume it later", func() {
			b := seedBatch(batchmodel.StatusProcessing, paymentmodel.StatusPending)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/pause", nil)
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBatch(recorder).Status).To(gomega.Equal(batchmodel.StatusPaused))

			recorder = do("POST", "/api/v1/batches/"+b.ID+"/resume", nil)
			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBatch(recorder).Status).To(gomega.Equal(batchmodel.StatusProcessing))
		})

		ginkgo.It("should respond 409 when resuming a batch that is not paused", func() {
			b := seedBatch(batchmodel.StatusProcessing, paymentmodel.StatusPending)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/resume", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
		})
	})

	ginkgo.Context("Cancel", func() {
		ginkgo.It("should cancel with the supplied reason", func() {
			b := seedBatch(batchmodel.StatusPending, paymentmodel.StatusPending)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/cancel", map[string]string{
				"reason": "funding source withdrawn",
			})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBatch(recorder).Status).To(gomega.Equal(batchmodel.StatusCancelled))

			entries := mockRepo.batchEntries(b.ID)
			gomega.Expect(entries).To(gomega.HaveLen(1))
			gomega.Expect(entries[0].EventType).To(gomega.Equal(auditmodel.EventBatchCancelled))
			gomega.Expect(entries[0].Reason).To(gomega.Equal("Batch cancelled: funding source withdrawn"))
		})

		ginkgo.It("should cancel without a body", func() {
			b := seedBatch(batchmodel.StatusPending, paymentmodel.StatusPending)

			req := httptest.NewRequest("POST", "/api/v1/batches/"+b.ID+"/cancel", nil)
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBatch(recorder).Status).To(gomega.Equal(batchmodel.StatusCancelled))
		})

		ginkgo.It("should respond 409 for a finished batch", func() {
			b := seedBatch(batchmodel.StatusCompleted, paymentmodel.StatusCompleted)

			recorder := do("POST", "/api/v1/batches/"+b.ID+"/cancel", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
		})
	})

	ginkgo.Context("Report", func() {
		ginkgo.It("should summarise the batch by status and provider", func() {
			b := seedBatch(batchmodel.StatusCompleted,
				paymentmodel.StatusCompleted, paymentmodel.StatusCompleted)

			recorder := do("GET", "/api/v1/batches/"+b.ID+"/report", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp batchPkg.BatchReport
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.BatchID).To(gomega.Equal(b.ID))
			gomega.Expect(resp.StatusSummary).To(gomega.HaveLen(1))
			gomega.Expect(resp.StatusSummary[0].Status).To(gomega.Equal(paymentmodel.StatusCompleted))
			gomega.Expect(resp.StatusSummary[0].Count).To(gomega.Equal(int64(2)))
			gomega.Expect(resp.FSPSummary).To(gomega.HaveLen(1))
			gomega.Expect(resp.FSPSummary[0].FSPCode).To(gomega.Equal("UNASSIGNED"))
		})
	})
})
