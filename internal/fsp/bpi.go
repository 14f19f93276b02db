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

const CodeBPI = "BPI"

// BPIAdapter integrates the BPI fund-transfer sandbox. BPI only carries
// account-to-account bank transfers.
type BPIAdapter struct {
	cfg    *fspmodel.FSPConfiguration
	client *apiClient
	logger *slog.Logger
}

func NewBPIAdapter(cfg *fspmodel.FSPConfiguration, cipher *secrets.Cipher, logger *slog.Logger) *BPIAdapter {
	return &BPIAdapter{
		cfg:    cfg,
		client: newAPIClient(cipher, logger),
		logger: logger,
	}
}

type bpiTransferRequest struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	Amount                string `json:"amount"`
	CurrencyCode          string `json:"currencyCode"`
	BeneficiaryAccountNo  string `json:"beneficiaryAccountNo"`
	BeneficiaryName       string `json:"beneficiaryName"`
	Remarks               string `json:"remarks,omitempty"`
}

type bpiTransferResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	StatusDetail  string `json:"statusDetail"`
	ReasonCode    string `json:"reasonCode,omitempty"`
}

type bpiWebhookPayload struct {
	TransactionID         string `json:"transactionId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	Status                string `json:"status"`
	StatusDetail          string `json:"statusDetail"`
}

func (a *BPIAdapter) FSPCode() string {
	return CodeBPI
}

func (a *BPIAdapter) SupportedPaymentMethods() []string {
	return []string{"BANK_TRANSFER"}
}

func (a *BPIAdapter) SupportsAmount(amount decimal.Decimal) bool {
	return a.cfg.SupportsAmount(amount)
}

func (a *BPIAdapter) TransactionFee(amount decimal.Decimal, method string) decimal.Decimal {
	return a.cfg.CalculateFee(amount)
}

func (a *BPIAdapter) SubmitPayment(ctx context.Context, req *SubmitRequest, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	body, err := json.Marshal(bpiTransferRequest{
		MerchantTransactionID: req.CorrelationID,
		Amount:                req.Amount.StringFixed(2),
		CurrencyCode:          req.Currency,
		BeneficiaryAccountNo:  req.RecipientAccountNumber,
		BeneficiaryName:       req.BeneficiaryName,
		Remarks:               req.Description,
	})
	if err != nil {
		return nil, internal.NewInternalError("marshal bpi request", err)
	}

	status, respBody, err := a.client.doJSON(ctx, http.MethodPost, cfg.APIBaseURL+"/api/v2/fund-transfers", body, cfg)
	if err != nil {
		return nil, err
	}

	var resp bpiTransferResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("BPI response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	if status != http.StatusOK && status != http.StatusCreated {
		a.logger.Warn("bpi declined transfer",
			"merchant_transaction_id", req.CorrelationID, "reason_code", resp.ReasonCode, "detail", resp.StatusDetail)
		return &ProviderResponse{
			FSPReferenceNumber: resp.TransactionID,
			Status:             ProviderStatusFailed,
			StatusMessage:      rejectionMessage(resp.ReasonCode, resp.StatusDetail),
			Success:            false,
		}, nil
	}

	return &ProviderResponse{
		FSPReferenceNumber: resp.TransactionID,
		Status:             a.mapStatus(resp.Status),
		StatusMessage:      resp.StatusDetail,
		Success:            true,
	}, nil
}

func (a *BPIAdapter) CheckPaymentStatus(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	url := fmt.Sprintf("%s/api/v2/fund-transfers/%s", cfg.APIBaseURL, fspReference)
	status, respBody, err := a.client.doJSON(ctx, http.MethodGet, url, nil, cfg)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, internal.NewNotFoundError(fmt.Sprintf("BPI has no record of %s", fspReference), internal.ErrCodePaymentNotFound)
	}

	var resp bpiTransferResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("BPI response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	return &ProviderResponse{
		FSPReferenceNumber: resp.TransactionID,
		Status:             a.mapStatus(resp.Status),
		StatusMessage:      resp.StatusDetail,
		Success:            resp.Status != "FAILED",
	}, nil
}

func (a *BPIAdapter) CancelPayment(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	url := fmt.Sprintf("%s/api/v2/fund-transfers/%s/void", cfg.APIBaseURL, fspReference)
	status, respBody, err := a.client.doJSON(ctx, http.MethodPost, url, nil, cfg)
	if err != nil {
		return nil, err
	}

	var resp bpiTransferResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("BPI response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	if status != http.StatusOK {
		return &ProviderResponse{
			FSPReferenceNumber: fspReference,
			Status:             a.mapStatus(resp.Status),
			StatusMessage:      rejectionMessage(resp.ReasonCode, resp.StatusDetail),
			Success:            false,
		}, nil
	}

	return &ProviderResponse{
		FSPReferenceNumber: fspReference,
		Status:             ProviderStatusCancelled,
		StatusMessage:      resp.StatusDetail,
		Success:            true,
	}, nil
}

func (a *BPIAdapter) TestConnection(ctx context.Context, cfg *fspmodel.FSPConfiguration) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()

	status, _, err := a.client.doJSON(ctx, http.MethodGet, cfg.APIBaseURL+"/api/v2/health", nil, cfg)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return internal.NewExternalProviderError(fmt.Sprintf("BPI health returned HTTP %d", status), internal.ErrCodeFSPUnhealthy, true)
	}
	return nil
}

func (a *BPIAdapter) ValidateConfiguration(cfg *fspmodel.FSPConfiguration) error {
	return validateAdapterConfig(CodeBPI, cfg)
}

func (a *BPIAdapter) CanRetry(fspReference string) bool {
	return fspReference != ""
}

func (a *BPIAdapter) ProcessWebhook(payload []byte, headers http.Header) (*WebhookEvent, error) {
	secret := ""
	if a.cfg.WebhookSecret != "" {
		var err error
		secret, err = a.client.cipher.Open(a.cfg.WebhookSecret)
		if err != nil {
			return nil, internal.NewInternalError("unseal BPI webhook secret", err)
		}
	}
	if !verifyWebhookSignature(payload, headers.Get("X-Webhook-Signature"), secret) {
		return nil, internal.NewValidationError("BPI webhook signature mismatch", internal.ErrCodeInvalidSignature)
	}

	var wh bpiWebhookPayload
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, internal.NewValidationError("BPI webhook payload malformed", internal.ErrCodeInvalidWebhook).WithCause(err)
	}
	if wh.TransactionID == "" || wh.MerchantTransactionID == "" {
		return nil, internal.NewValidationError("BPI webhook missing references", internal.ErrCodeInvalidWebhook)
	}

	return &WebhookEvent{
		FSPCode:            CodeBPI,
		FSPReferenceNumber: wh.TransactionID,
		CorrelationID:      wh.MerchantTransactionID,
		Status:             a.mapStatus(wh.Status),
		StatusMessage:      wh.StatusDetail,
		ReceivedAt:         time.Now(),
	}, nil
}

func (a *BPIAdapter) mapStatus(status string) string {
	switch status {
	case "RECEIVED":
		return ProviderStatusSubmitted
	case "PENDING", "PROCESSING":
		return ProviderStatusProcessing
	case "SUCCESS":
		return ProviderStatusCompleted
	case "FAILED":
		return ProviderStatusFailed
	case "VOIDED":
		return ProviderStatusCancelled
	default:
		return ProviderStatusProcessing
	}
}
