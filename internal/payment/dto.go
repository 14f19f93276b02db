package payment

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/internal/core/common/validation"
	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
)

// CreatePaymentDTO is the disbursement instruction as submitted by a caller.
// FSPCode pins the payment to one provider; when absent the engine routes by
// fee at processing time.
type CreatePaymentDTO struct {
	BatchID                *string         `json:"batch_id,omitempty"`
	HouseholdID            string          `json:"household_id"`
	ProgramName            string          `json:"program_name"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency,omitempty"`
	PaymentMethod          string          `json:"payment_method"`
	RecipientAccountNumber string          `json:"recipient_account_number"`
	RecipientBankCode      string          `json:"recipient_bank_code,omitempty"`
	RecipientAccountName   string          `json:"recipient_account_name"`
	RecipientMobileNumber  *string         `json:"recipient_mobile_number,omitempty"`
	Description            *string         `json:"description,omitempty"`
	FSPCode                *string         `json:"fsp_code,omitempty"`
}

func (d *CreatePaymentDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("household_id", d.HouseholdID).Required().MaxLength(64)
	v.Field("program_name", d.ProgramName).Required().MaxLength(120)
	v.Field("amount", d.Amount).Required().Positive(errors.ErrCodeInvalidAmount)
	v.Field("payment_method", d.PaymentMethod).Required().OneOf(paymentmodel.Methods, errors.ErrCodeInvalidMethod)
	v.Field("recipient_account_number", d.RecipientAccountNumber).Required().MinLength(4).MaxLength(34)
	v.Field("recipient_account_name", d.RecipientAccountName).Required().MinLength(2).MaxLength(120)
	v.Field("recipient_mobile_number", d.RecipientMobileNumber).Custom(func(interface{}) *errors.AppError {
		if d.PaymentMethod == paymentmodel.MethodEWallet && (d.RecipientMobileNumber == nil || *d.RecipientMobileNumber == "") {
			return errors.NewValidationFieldError("recipient_mobile_number",
				"recipient_mobile_number is required for e-wallet payments", errors.ErrCodeInvalidRecipient)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateStatusDTO drives the explicit status-change endpoint.
type UpdateStatusDTO struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (d *UpdateStatusDTO) Validate() error {
	statuses := []string{
		paymentmodel.StatusPending,
		paymentmodel.StatusProcessing,
		paymentmodel.StatusCompleted,
		paymentmodel.StatusFailed,
		paymentmodel.StatusCancelled,
	}
	v := validation.NewValidator()
	v.Field("status", d.Status).Required().OneOf(statuses, errors.ErrCodeValidationFailed)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CancelPaymentDTO struct {
	Reason string `json:"reason,omitempty"`
}

// PaymentResponse is the API view of a payment.
type PaymentResponse struct {
	ID                      string          `json:"id"`
	InternalReferenceNumber string          `json:"internal_reference_number"`
	BatchID                 *string         `json:"batch_id,omitempty"`
	HouseholdID             string          `json:"household_id"`
	ProgramName             string          `json:"program_name"`
	Amount                  decimal.Decimal `json:"amount"`
	Currency                string          `json:"currency"`
	PaymentMethod           string          `json:"payment_method"`
	RecipientAccountNumber  string          `json:"recipient_account_number"`
	RecipientBankCode       string          `json:"recipient_bank_code,omitempty"`
	RecipientAccountName    string          `json:"recipient_account_name"`
	RecipientMobileNumber   *string         `json:"recipient_mobile_number,omitempty"`
	Description             *string         `json:"description,omitempty"`
	Status                  string          `json:"status"`
	FSPCode                 *string         `json:"fsp_code,omitempty"`
	FSPReferenceNumber      *string         `json:"fsp_reference_number,omitempty"`
	FailureReason           *string         `json:"failure_reason,omitempty"`
	RetryCount              int             `json:"retry_count"`
	SubmittedAt             *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt             *time.Time      `json:"completed_at,omitempty"`
	CreatedBy               string          `json:"created_by"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

func ToResponse(p *paymentmodel.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                      p.ID,
		InternalReferenceNumber: p.InternalReferenceNumber,
		BatchID:                 p.BatchID,
		HouseholdID:             p.HouseholdID,
		ProgramName:             p.ProgramName,
		Amount:                  p.Amount,
		Currency:                p.Currency,
		PaymentMethod:           p.PaymentMethod,
		RecipientAccountNumber:  p.RecipientAccountNumber,
		RecipientBankCode:       p.RecipientBankCode,
		RecipientAccountName:    p.RecipientAccountName,
		RecipientMobileNumber:   p.RecipientMobileNumber,
		Description:             p.Description,
		Status:                  p.Status,
		FSPCode:                 p.FSPCode,
		FSPReferenceNumber:      p.FSPReferenceNumber,
		FailureReason:           p.FailureReason,
		RetryCount:              p.RetryCount,
		SubmittedAt:             p.SubmittedAt,
		CompletedAt:             p.CompletedAt,
		CreatedBy:               p.CreatedBy,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func ToResponseList(payments []*paymentmodel.Payment) []*PaymentResponse {
	out := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, ToResponse(p))
	}
	return out
}

// PaymentListResponse wraps a household page.
type PaymentListResponse struct {
	Payments []*PaymentResponse `json:"payments"`
	Total    int64              `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}
