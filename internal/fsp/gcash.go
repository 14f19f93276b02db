package fsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsrph/payment-disbursement/internal"
	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

const CodeGCash = "GCASH"

// GCashAdapter integrates the GCash payout sandbox for e-wallet credits and
// cash pickup codes. E-wallet payouts require the recipient mobile number.
type GCashAdapter struct {
	cfg    *fspmodel.FSPConfiguration
	client *apiClient
	logger *slog.Logger
}

func NewGCashAdapter(cfg *fspmodel.FSPConfiguration, cipher *secrets.Cipher, logger *slog.Logger) *GCashAdapter {
	return &GCashAdapter{
		cfg:    cfg,
		client: newAPIClient(cipher, logger),
		logger: logger,
	}
}

type gcashPayoutRequest struct {
	RequestID    string `json:"request_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	PayoutType   string `json:"payout_type"`
	MobileNumber string `json:"mobile_number,omitempty"`
	AccountName  string `json:"account_name"`
	Note         string `json:"note,omitempty"`
}

type gcashPayoutResponse struct {
	PayoutID     string `json:"payout_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	FailureCode  string `json:"failure_code,omitempty"`
}

type gcashWebhookPayload struct {
	PayoutID  string `json:"payout_id"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (a *GCashAdapter) FSPCode() string {
	return CodeGCash
}

func (a *GCashAdapter) SupportedPaymentMethods() []string {
	return []string{"E_WALLET", "CASH_PICKUP"}
}

func (a *GCashAdapter) SupportsAmount(amount decimal.Decimal) bool {
	return a.cfg.SupportsAmount(amount)
}

func (a *GCashAdapter) TransactionFee(amount decimal.Decimal, method string) decimal.Decimal {
	return a.cfg.CalculateFee(amount)
}

func (a *GCashAdapter) SubmitPayment(ctx context.Context, req *SubmitRequest, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	if req.PaymentMethod == "E_WALLET" && req.RecipientMobileNumber == "" {
		return nil, internal.NewValidationFieldError("recipient_mobile_number",
			"mobile number is required for e-wallet payouts", internal.ErrCodeInvalidRecipient)
	}

	payoutType := "WALLET_CREDIT"
	if req.PaymentMethod == "CASH_PICKUP" {
		payoutType = "CASH_PICKUP"
	}

	body, err := json.Marshal(gcashPayoutRequest{
		RequestID:    req.CorrelationID,
		Amount:       req.Amount.StringFixed(2),
		Currency:     req.Currency,
		PayoutType:   payoutType,
		MobileNumber: req.RecipientMobileNumber,
		AccountName:  req.BeneficiaryName,
		Note:         req.Description,
	})
	if err != nil {
		return nil, internal.NewInternalError("marshal gcash request", err)
	}

	status, respBody, err := a.client.doJSON(ctx, http.MethodPost, cfg.APIBaseURL+"/payouts", body, cfg)
	if err != nil {
		return nil, err
	}

	var resp gcashPayoutResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("GCash response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	if status != http.StatusOK && status != http.StatusCreated {
		a.logger.Warn("gcash declined payout",
			"request_id", req.CorrelationID, "failure_code", resp.FailureCode, "message", resp.Message)
		return &ProviderResponse{
			FSPReferenceNumber: resp.PayoutID,
			Status:             ProviderStatusFailed,
			StatusMessage:      rejectionMessage(resp.FailureCode, resp.Message),
			Success:            false,
		}, nil
	}

	return &ProviderResponse{
		FSPReferenceNumber: resp.PayoutID,
		Status:             a.mapStatus(resp.Status),
		StatusMessage:      resp.Message,
		Success:            true,
	}, nil
}

func (a *GCashAdapter) CheckPaymentStatus(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	url := fmt.Sprintf("%s/payouts/%s", cfg.APIBaseURL, fspReference)
	status, respBody, err := a.client.doJSON(ctx, http.MethodGet, url, nil, cfg)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, internal.NewNotFoundError(fmt.Sprintf("GCash has no record of %s", fspReference), internal.ErrCodePaymentNotFound)
	}

	var resp gcashPayoutResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("GCash response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	return &ProviderResponse{
		FSPReferenceNumber: resp.PayoutID,
		Status:             a.mapStatus(resp.Status),
		StatusMessage:      resp.Message,
		Success:            resp.Status != "FAILED",
	}, nil
}

func (a *GCashAdapter) CancelPayment(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	url := fmt.Sprintf("%s/payouts/%s/cancel", cfg.APIBaseURL, fspReference)
	status, respBody, err := a.client.doJSON(ctx, http.MethodPost, url, nil, cfg)
	if err != nil {
		return nil, err
	}

	var resp gcashPayoutResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("GCash response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	if status != http.StatusOK {
		return &ProviderResponse{
			FSPReferenceNumber: fspReference,
			Status:             a.mapStatus(resp.Status),
			StatusMessage:      rejectionMessage(resp.FailureCode, resp.Message),
			Success:            false,
		}, nil
	}

	return &ProviderResponse{
		FSPReferenceNumber: fspReference,
		Status:             ProviderStatusCancelled,
		StatusMessage:      resp.Message,
		Success:            true,
	}, nil
}

func (a *GCashAdapter) TestConnection(ctx context.Context, cfg *fspmodel.FSPConfiguration) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()

	status, _, err := a.client.doJSON(ctx, http.MethodGet, cfg.APIBaseURL+"/status", nil, cfg)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return internal.NewExternalProviderError(fmt.Sprintf("GCash status returned HTTP %d", status), internal.ErrCodeFSPUnhealthy, true)
	}
	return nil
}

func (a *GCashAdapter) ValidateConfiguration(cfg *fspmodel.FSPConfiguration) error {
	return validateAdapterConfig(CodeGCash, cfg)
}

func (a *GCashAdapter) CanRetry(fspReference string) bool {
	return fspReference != ""
}

func (a *GCashAdapter) ProcessWebhook(payload []byte, headers http.Header) (*WebhookEvent, error) {
	secret := ""
	if a.cfg.WebhookSecret != "" {
		var err error
		secret, err = a.client.cipher.Open(a.cfg.WebhookSecret)
		if err != nil {
			return nil, internal.NewInternalError("unseal GCash webhook secret", err)
		}
	}
	if !verifyWebhookSignature(payload, headers.Get("X-Webhook-Signature"), secret) {
		return nil, internal.NewValidationError("GCash webhook signature mismatch", internal.ErrCodeInvalidSignature)
	}

	var wh gcashWebhookPayload
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, internal.NewValidationError("GCash webhook payload malformed", internal.ErrCodeInvalidWebhook).WithCause(err)
	}
	if wh.PayoutID == "" || wh.RequestID == "" {
		return nil, internal.NewValidationError("GCash webhook missing references", internal.ErrCodeInvalidWebhook)
	}

	return &WebhookEvent{
		FSPCode:            CodeGCash,
		FSPReferenceNumber: wh.PayoutID,
		CorrelationID:      wh.RequestID,
		Status:             a.mapStatus(wh.Status),
		StatusMessage:      wh.Message,
		ReceivedAt:         time.Now(),
	}, nil
}

func (a *GCashAdapter) mapStatus(status string) string {
	switch status {
	case "QUEUED":
		return ProviderStatusSubmitted
	case "PROCESSING":
		return ProviderStatusProcessing
	case "SUCCESS":
		return ProviderStatusCompleted
	case "FAILED":
		return ProviderStatusFailed
	case "CANCELLED":
		return ProviderStatusCancelled
	default:
		return ProviderStatusProcessing
	}
}
