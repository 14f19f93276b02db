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

const CodeLandBank = "LBP"

// LandBankAdapter talks to the Land Bank of the Philippines disbursement
// sandbox. LBP carries bank transfers and over-the-counter checks.
type LandBankAdapter struct {
	cfg    *fspmodel.FSPConfiguration
	client *apiClient
	logger *slog.Logger
}

func NewLandBankAdapter(cfg *fspmodel.FSPConfiguration, cipher *secrets.Cipher, logger *slog.Logger) *LandBankAdapter {
	return &LandBankAdapter{
		cfg:    cfg,
		client: newAPIClient(cipher, logger),
		logger: logger,
	}
}

type lbpDisbursementRequest struct {
	ClientRef      string `json:"client_ref"`
	AmountCentavos int64  `json:"amount_centavos"`
	Currency       string `json:"currency"`
	Channel        string `json:"channel"`
	AccountNo      string `json:"account_no"`
	BankCode       string `json:"bank_code,omitempty"`
	PayeeName      string `json:"payee_name"`
	Remarks        string `json:"remarks,omitempty"`
}

type lbpDisbursementResponse struct {
	TxnRef    string `json:"txn_ref"`
	State     string `json:"state"`
	Remarks   string `json:"remarks"`
	ErrorCode string `json:"error_code,omitempty"`
}

type lbpWebhookPayload struct {
	TxnRef    string `json:"txn_ref"`
	ClientRef string `json:"client_ref"`
	State     string `json:"state"`
	Remarks   string `json:"remarks"`
}

func (a *LandBankAdapter) FSPCode() string {
	return CodeLandBank
}

func (a *LandBankAdapter) SupportedPaymentMethods() []string {
	return []string{"BANK_TRANSFER", "CHECK"}
}

func (a *LandBankAdapter) SupportsAmount(amount decimal.Decimal) bool {
	return a.cfg.SupportsAmount(amount)
}

func (a *LandBankAdapter) TransactionFee(amount decimal.Decimal, method string) decimal.Decimal {
	return a.cfg.CalculateFee(amount)
}

func (a *LandBankAdapter) SubmitPayment(ctx context.Context, req *SubmitRequest, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	channel := "PESONET"
	if req.PaymentMethod == "CHECK" {
		channel = "CHECK"
	}

	body, err := json.Marshal(lbpDisbursementRequest{
		ClientRef:      req.CorrelationID,
		AmountCentavos: req.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:       req.Currency,
		Channel:        channel,
		AccountNo:      req.RecipientAccountNumber,
		BankCode:       req.RecipientBankCode,
		PayeeName:      req.BeneficiaryName,
		Remarks:        req.Description,
	})
	if err != nil {
		return nil, internal.NewInternalError("marshal lbp request", err)
	}

	status, respBody, err := a.client.doJSON(ctx, http.MethodPost, cfg.APIBaseURL+"/v1/disbursements", body, cfg)
	if err != nil {
		return nil, err
	}

	var resp lbpDisbursementResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("LBP response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	if status != http.StatusOK && status != http.StatusCreated {
		a.logger.Warn("lbp rejected disbursement",
			"client_ref", req.CorrelationID, "error_code", resp.ErrorCode, "remarks", resp.Remarks)
		return &ProviderResponse{
			FSPReferenceNumber: resp.TxnRef,
			Status:             ProviderStatusFailed,
			StatusMessage:      rejectionMessage(resp.ErrorCode, resp.Remarks),
			Success:            false,
		}, nil
	}

	return &ProviderResponse{
		FSPReferenceNumber: resp.TxnRef,
		Status:             a.mapState(resp.State),
		StatusMessage:      resp.Remarks,
		Success:            true,
	}, nil
}

func (a *LandBankAdapter) CheckPaymentStatus(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	url := fmt.Sprintf("%s/v1/disbursements/%s", cfg.APIBaseURL, fspReference)
	status, respBody, err := a.client.doJSON(ctx, http.MethodGet, url, nil, cfg)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, internal.NewNotFoundError(fmt.Sprintf("LBP has no record of %s", fspReference), internal.ErrCodePaymentNotFound)
	}

	var resp lbpDisbursementResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("LBP response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	return &ProviderResponse{
		FSPReferenceNumber: resp.TxnRef,
		Status:             a.mapState(resp.State),
		StatusMessage:      resp.Remarks,
		Success:            resp.State != "REJECTED" && resp.State != "RETURNED",
	}, nil
}

func (a *LandBankAdapter) CancelPayment(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error) {
	url := fmt.Sprintf("%s/v1/disbursements/%s/cancel", cfg.APIBaseURL, fspReference)
	status, respBody, err := a.client.doJSON(ctx, http.MethodPost, url, nil, cfg)
	if err != nil {
		return nil, err
	}

	var resp lbpDisbursementResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, internal.NewExternalProviderError("LBP response malformed", internal.ErrCodeProviderRejected, false).WithCause(err)
	}

	if status != http.StatusOK {
		return &ProviderResponse{
			FSPReferenceNumber: fspReference,
			Status:             a.mapState(resp.State),
			StatusMessage:      rejectionMessage(resp.ErrorCode, resp.Remarks),
			Success:            false,
		}, nil
	}

	return &ProviderResponse{
		FSPReferenceNumber: fspReference,
		Status:             ProviderStatusCancelled,
		StatusMessage:      resp.Remarks,
		Success:            true,
	}, nil
}

func (a *LandBankAdapter) TestConnection(ctx context.Context, cfg *fspmodel.FSPConfiguration) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()

	status, _, err := a.client.doJSON(ctx, http.MethodGet, cfg.APIBaseURL+"/v1/ping", nil, cfg)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return internal.NewExternalProviderError(fmt.Sprintf("LBP ping returned HTTP %d", status), internal.ErrCodeFSPUnhealthy, true)
	}
	return nil
}

func (a *LandBankAdapter) ValidateConfiguration(cfg *fspmodel.FSPConfiguration) error {
	return validateAdapterConfig(CodeLandBank, cfg)
}

func (a *LandBankAdapter) CanRetry(fspReference string) bool {
	// A disbursement LBP never acknowledged has nothing to retry on their
	// side; the engine may still re-route it.
	return fspReference != ""
}

func (a *LandBankAdapter) ProcessWebhook(payload []byte, headers http.Header) (*WebhookEvent, error) {
	secret, err := a.webhookSecret()
	if err != nil {
		return nil, err
	}
	if !verifyWebhookSignature(payload, headers.Get("X-Webhook-Signature"), secret) {
		return nil, internal.NewValidationError("LBP webhook signature mismatch", internal.ErrCodeInvalidSignature)
	}

	var wh lbpWebhookPayload
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, internal.NewValidationError("LBP webhook payload malformed", internal.ErrCodeInvalidWebhook).WithCause(err)
	}
	if wh.TxnRef == "" || wh.ClientRef == "" {
		return nil, internal.NewValidationError("LBP webhook missing references", internal.ErrCodeInvalidWebhook)
	}

	return &WebhookEvent{
		FSPCode:            CodeLandBank,
		FSPReferenceNumber: wh.TxnRef,
		CorrelationID:      wh.ClientRef,
		Status:             a.mapState(wh.State),
		StatusMessage:      wh.Remarks,
		ReceivedAt:         time.Now(),
	}, nil
}

func (a *LandBankAdapter) webhookSecret() (string, error) {
	if a.cfg.WebhookSecret == "" {
		return "", nil
	}
	secret, err := a.client.cipher.Open(a.cfg.WebhookSecret)
	if err != nil {
		return "", internal.NewInternalError("unseal LBP webhook secret", err)
	}
	return secret, nil
}

// mapState folds LBP disbursement states onto the uniform provider statuses.
func (a *LandBankAdapter) mapState(state string) string {
	switch state {
	case "ACCEPTED":
		return ProviderStatusSubmitted
	case "IN_PROCESS":
		return ProviderStatusProcessing
	case "POSTED":
		return ProviderStatusCompleted
	case "REJECTED", "RETURNED":
		return ProviderStatusFailed
	case "CANCELLED":
		return ProviderStatusCancelled
	default:
		return ProviderStatusProcessing
	}
}

func rejectionMessage(code, remarks string) string {
	if code == "" {
		return remarks
	}
	if remarks == "" {
		return code
	}
	return fmt.Sprintf("%s: %s", code, remarks)
}

// validateAdapterConfig holds the checks common to all adapters: a
// configuration wired to the wrong fspCode must never be accepted.
func validateAdapterConfig(expectedCode string, cfg *fspmodel.FSPConfiguration) error {
	if cfg == nil {
		return internal.NewValidationError("FSP configuration is required", internal.ErrCodeInvalidFSPConfig)
	}
	if cfg.FSPCode != expectedCode {
		return internal.NewValidationError(
			fmt.Sprintf("configuration fsp_code %s does not match adapter %s", cfg.FSPCode, expectedCode),
			internal.ErrCodeInvalidFSPConfig)
	}
	if cfg.APIBaseURL == "" {
		return internal.NewValidationFieldError("api_base_url", "api_base_url is required", internal.ErrCodeInvalidFSPConfig)
	}
	if cfg.FeeType != fspmodel.FeeTypeFixed && cfg.FeeType != fspmodel.FeeTypePercentage {
		return internal.NewValidationFieldError("fee_type", fmt.Sprintf("unknown fee_type %s", cfg.FeeType), internal.ErrCodeInvalidFSPConfig)
	}
	if cfg.MinAmount.IsNegative() {
		return internal.NewValidationFieldError("min_amount", "min_amount cannot be negative", internal.ErrCodeInvalidFSPConfig)
	}
	if !cfg.MaxAmount.IsZero() && cfg.MaxAmount.LessThan(cfg.MinAmount) {
		return internal.NewValidationFieldError("max_amount", "max_amount cannot be below min_amount", internal.ErrCodeInvalidFSPConfig)
	}
	return nil
}
