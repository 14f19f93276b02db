package fsp

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
)

// Provider status values every adapter maps its wire format onto.
const (
	ProviderStatusSubmitted  = "SUBMITTED"
	ProviderStatusProcessing = "PROCESSING"
	ProviderStatusCompleted  = "COMPLETED"
	ProviderStatusFailed     = "FAILED"
	ProviderStatusCancelled  = "CANCELLED"
)

// SubmitRequest is the uniform disbursement instruction handed to an
// adapter. CorrelationID is echoed back by provider webhooks and is how a
// callback finds its payment.
type SubmitRequest struct {
	PaymentID               string          `json:"payment_id"`
	InternalReferenceNumber string          `json:"internal_reference_number"`
	Amount                  decimal.Decimal `json:"amount"`
	Currency                string          `json:"currency"`
	PaymentMethod           string          `json:"payment_method"`
	RecipientAccountNumber  string          `json:"recipient_account_number"`
	RecipientBankCode       string          `json:"recipient_bank_code,omitempty"`
	RecipientMobileNumber   string          `json:"recipient_mobile_number,omitempty"`
	BeneficiaryName         string          `json:"beneficiary_name"`
	Description             string          `json:"description,omitempty"`
	CorrelationID           string          `json:"correlation_id"`
}

// ProviderResponse is the uniform submit/status/cancel outcome. Success false
// with a FAILED status is a definitive rejection; transport-level problems
// surface as errors instead and are treated as transient.
type ProviderResponse struct {
	FSPReferenceNumber string `json:"fsp_reference_number"`
	Status             string `json:"status"`
	StatusMessage      string `json:"status_message"`
	Success            bool   `json:"success"`
}

// WebhookEvent is a provider callback after adapter-specific parsing and
// signature verification.
type WebhookEvent struct {
	FSPCode            string
	FSPReferenceNumber string
	CorrelationID      string
	Status             string
	StatusMessage      string
	ReceivedAt         time.Time
}

// Adapter is the capability surface one external provider integration
// exposes. Implementations translate between the uniform types above and
// their provider's own wire protocol; they hold no payment state.
type Adapter interface {
	FSPCode() string
	SupportedPaymentMethods() []string
	SupportsAmount(amount decimal.Decimal) bool
	TransactionFee(amount decimal.Decimal, method string) decimal.Decimal

	SubmitPayment(ctx context.Context, req *SubmitRequest, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error)
	CheckPaymentStatus(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error)
	CancelPayment(ctx context.Context, fspReference string, cfg *fspmodel.FSPConfiguration) (*ProviderResponse, error)

	TestConnection(ctx context.Context, cfg *fspmodel.FSPConfiguration) error
	ValidateConfiguration(cfg *fspmodel.FSPConfiguration) error
	CanRetry(fspReference string) bool
	ProcessWebhook(payload []byte, headers http.Header) (*WebhookEvent, error)
}

// SupportsMethod is a convenience over SupportedPaymentMethods.
func SupportsMethod(a Adapter, method string) bool {
	for _, m := range a.SupportedPaymentMethods() {
		if m == method {
			return true
		}
	}
	return false
}
