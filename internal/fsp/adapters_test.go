package fsp_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/dsrph/payment-disbursement/internal"
	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
	"github.com/dsrph/payment-disbursement/internal/fsp"
	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

func newTestCipher() *secrets.Cipher {
	key, err := secrets.GenerateKey()
	Expect(err).NotTo(HaveOccurred())
	cipher, err := secrets.NewCipher(key)
	Expect(err).NotTo(HaveOccurred())
	return cipher
}

func sealedConfig(cipher *secrets.Cipher, code, baseURL, webhookSecret string) *fspmodel.FSPConfiguration {
	apiKey, err := cipher.Seal(strings.ToLower(code) + "-sandbox-key")
	Expect(err).NotTo(HaveOccurred())
	apiSecret, err := cipher.Seal(strings.ToLower(code) + "-sandbox-secret")
	Expect(err).NotTo(HaveOccurred())

	cfg := &fspmodel.FSPConfiguration{
		FSPCode:          code,
		Name:             code + " sandbox",
		APIBaseURL:       baseURL,
		APIKeySealed:     apiKey,
		APISecretSealed:  apiSecret,
		ConnectTimeoutMS: 2000,
		ReadTimeoutMS:    2000,
		FeeType:          fspmodel.FeeTypeFixed,
		FeeValue:         decimal.NewFromInt(10),
		MinAmount:        decimal.NewFromInt(1),
		MaxAmount:        decimal.NewFromInt(100000),
		IsActive:         true,
	}
	if webhookSecret != "" {
		sealed, err := cipher.Seal(webhookSecret)
		Expect(err).NotTo(HaveOccurred())
		cfg.WebhookSecret = sealed
	}
	return cfg
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("LandBankAdapter", func() {
	var (
		logger *slog.Logger
		cipher *secrets.Cipher
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		cipher = newTestCipher()
	})

	Describe("SubmitPayment", func() {
		It("should map an accepted disbursement to a submitted response", func() {
			var gotAuth string
			var gotBody map[string]interface{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/disbursements"))
				gotAuth = r.Header.Get("Authorization")
				Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(map[string]string{
					"txn_ref": "LBP-A1B2C3D4",
					"state":   "ACCEPTED",
					"remarks": "queued for posting",
				})
			}))
			defer server.Close()

			cfg := sealedConfig(cipher, "LBP", server.URL, "")
			adapter := fsp.NewLandBankAdapter(cfg, cipher, logger)

			resp, err := adapter.SubmitPayment(context.Background(), &fsp.SubmitRequest{
				PaymentID:               "0d1f9f0e-7b1f-4f7e-9a95-0a1b2c3d4e5f",
				InternalReferenceNumber: "PAY-2026-000001",
				Amount:                  decimal.NewFromFloat(1400.00),
				Currency:                "PHP",
				PaymentMethod:           "BANK_TRANSFER",
				RecipientAccountNumber:  "0012345678",
				BeneficiaryName:         "Juan Dela Cruz",
				CorrelationID:           "PAY-2026-000001",
			}, cfg)

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Success).To(BeTrue())
			Expect(resp.FSPReferenceNumber).To(Equal("LBP-A1B2C3D4"))
			Expect(resp.Status).To(Equal(fsp.ProviderStatusSubmitted))

			// the adapter authenticates with a bearer assertion
			Expect(gotAuth).To(HavePrefix("Bearer "))
			// and converts pesos to centavos on the LBP wire format
			Expect(gotBody["amount_centavos"]).To(BeNumerically("==", 140000))
			Expect(gotBody["payee_name"]).To(Equal("Juan Dela Cruz"))
		})

		It("should surface a provider rejection as a definitive failure, not an error", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]string{
					"state":      "REJECTED",
					"error_code": "ACCOUNT_CLOSED",
					"remarks":    "beneficiary account is closed",
				})
			}))
			defer server.Close()

			cfg := sealedConfig(cipher, "LBP", server.URL, "")
			adapter := fsp.NewLandBankAdapter(cfg, cipher, logger)

			resp, err := adapter.SubmitPayment(context.Background(), &fsp.SubmitRequest{
				Amount:        decimal.NewFromInt(500),
				Currency:      "PHP",
				PaymentMethod: "BANK_TRANSFER",
				CorrelationID: "PAY-2026-000002",
			}, cfg)

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Success).To(BeFalse())
			Expect(resp.Status).To(Equal(fsp.ProviderStatusFailed))
			Expect(resp.StatusMessage).To(ContainSubstring("ACCOUNT_CLOSED"))
		})

		It("should classify a 5xx as a transient provider error", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream core banking outage", http.StatusBadGateway)
			}))
			defer server.Close()

			cfg := sealedConfig(cipher, "LBP", server.URL, "")
			adapter := fsp.NewLandBankAdapter(cfg, cipher, logger)

			_, err := adapter.SubmitPayment(context.Background(), &fsp.SubmitRequest{
				Amount:        decimal.NewFromInt(500),
				Currency:      "PHP",
				CorrelationID: "PAY-2026-000003",
			}, cfg)

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeExternalProvider))
			Expect(appErr.IsTransient()).To(BeTrue())
		})

		It("should classify an unreachable host as a transient provider error", func() {
			cfg := sealedConfig(cipher, "LBP", "http://127.0.0.1:1", "")
			adapter := fsp.NewLandBankAdapter(cfg, cipher, logger)

			_, err := adapter.SubmitPayment(context.Background(), &fsp.SubmitRequest{
				Amount:        decimal.NewFromInt(500),
				CorrelationID: "PAY-2026-000004",
			}, cfg)

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.IsTransient()).To(BeTrue())
		})
	})

	Describe("ValidateConfiguration", func() {
		It("should reject a configuration whose code belongs to another provider", func() {
			cfg := sealedConfig(cipher, "GCASH", "http://localhost:0", "")
			adapter := fsp.NewLandBankAdapter(cfg, cipher, logger)

			err := adapter.ValidateConfiguration(cfg)

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeInvalidFSPConfig))
		})

		It("should reject an unknown fee type", func() {
			cfg := sealedConfig(cipher, "LBP", "http://localhost:0", "")
			cfg.FeeType = "TIERED"
			adapter := fsp.NewLandBankAdapter(cfg, cipher, logger)

			Expect(adapter.ValidateConfiguration(cfg)).To(HaveOccurred())
		})
	})

	Describe("ProcessWebhook", func() {
		var (
			adapter *fsp.LandBankAdapter
		)

		BeforeEach(func() {
			cfg := sealedConfig(cipher, "LBP", "http://localhost:0", "lbp-webhook-secret")
			adapter = fsp.NewLandBankAdapter(cfg, cipher, logger)
		})

		It("should parse a signed callback", func() {
			payload := []byte(`{"txn_ref":"LBP-A1B2C3D4","client_ref":"PAY-2026-000001","state":"POSTED","remarks":"credited"}`)
			headers := http.Header{}
			headers.Set("X-Webhook-Signature", signPayload(payload, "lbp-webhook-secret"))

			event, err := adapter.ProcessWebhook(payload, headers)

			Expect(err).NotTo(HaveOccurred())
			Expect(event.FSPCode).To(Equal("LBP"))
			Expect(event.FSPReferenceNumber).To(Equal("LBP-A1B2C3D4"))
			Expect(event.CorrelationID).To(Equal("PAY-2026-000001"))
			Expect(event.Status).To(Equal(fsp.ProviderStatusCompleted))
		})

		It("should reject a bad signature", func() {
			payload := []byte(`{"txn_ref":"LBP-A1B2C3D4","client_ref":"PAY-2026-000001","state":"POSTED"}`)
			headers := http.Header{}
			headers.Set("X-Webhook-Signature", "deadbeef")

			_, err := adapter.ProcessWebhook(payload, headers)

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeInvalidSignature))
		})

		It("should reject a payload without references", func() {
			payload := []byte(`{"state":"POSTED"}`)
			headers := http.Header{}
			headers.Set("X-Webhook-Signature", signPayload(payload, "lbp-webhook-secret"))

			_, err := adapter.ProcessWebhook(payload, headers)

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeInvalidWebhook))
		})
	})
})

var _ = Describe("GCashAdapter", func() {
	var (
		logger *slog.Logger
		cipher *secrets.Cipher
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		cipher = newTestCipher()
	})

	Describe("SubmitPayment", func() {
		It("should require a mobile number for e-wallet payouts", func() {
			cfg := sealedConfig(cipher, "GCASH", "http://localhost:0", "")
			adapter := fsp.NewGCashAdapter(cfg, cipher, logger)

			_, err := adapter.SubmitPayment(context.Background(), &fsp.SubmitRequest{
				Amount:          decimal.NewFromInt(750),
				Currency:        "PHP",
				PaymentMethod:   "E_WALLET",
				BeneficiaryName: "Maria Santos",
				CorrelationID:   "PAY-2026-000005",
			}, cfg)

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("should submit a wallet credit and map the queued status", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/payouts"))
				var body map[string]interface{}
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["payout_type"]).To(Equal("WALLET_CREDIT"))
				Expect(body["mobile_number"]).To(Equal("+639171234567"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(map[string]string{
					"payout_id": "GC-9F8E7D6C",
					"status":    "QUEUED",
					"message":   "payout queued",
				})
			}))
			defer server.Close()

			cfg := sealedConfig(cipher, "GCASH", server.URL, "")
			adapter := fsp.NewGCashAdapter(cfg, cipher, logger)

			mobile := "+639171234567"
			resp, err := adapter.SubmitPayment(context.Background(), &fsp.SubmitRequest{
				Amount:                decimal.NewFromInt(750),
				Currency:              "PHP",
				PaymentMethod:         "E_WALLET",
				RecipientMobileNumber: mobile,
				BeneficiaryName:       "Maria Santos",
				CorrelationID:         "PAY-2026-000006",
			}, cfg)

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Success).To(BeTrue())
			Expect(resp.FSPReferenceNumber).To(Equal("GC-9F8E7D6C"))
			Expect(resp.Status).To(Equal(fsp.ProviderStatusSubmitted))
		})
	})

	Describe("TestConnection", func() {
		It("should succeed against a live status endpoint", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/status"))
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := sealedConfig(cipher, "GCASH", server.URL, "")
			adapter := fsp.NewGCashAdapter(cfg, cipher, logger)

			Expect(adapter.TestConnection(context.Background(), cfg)).To(Succeed())
		})
	})
})
