package batch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/dsrph/payment-disbursement/internal"
	"github.com/dsrph/payment-disbursement/internal/core/common/validation"
	batchmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/batch"
	"github.com/dsrph/payment-disbursement/internal/payment"
)

// CreateBatchDTO is a bulk disbursement instruction: one batch header plus
// the full list of payments to create under it. ScheduledDate defers
// dispatch to the scheduler; without it the batch waits for an explicit
// start call.
type CreateBatchDTO struct {
	ProgramID     string                     `json:"program_id"`
	ProgramName   string                     `json:"program_name"`
	ScheduledDate *time.Time                 `json:"scheduled_date,omitempty"`
	Metadata      json.RawMessage            `json:"metadata,omitempty"`
	Payments      []payment.CreatePaymentDTO `json:"payments"`
}

func (d *CreateBatchDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("program_id", d.ProgramID).Required().MaxLength(64)
	v.Field("program_name", d.ProgramName).Required().MaxLength(120)
	if d.ScheduledDate != nil {
		v.Field("scheduled_date", *d.ScheduledDate).NotPast()
	}
	v.Field("payments", "").Custom(func(interface{}) *errors.AppError {
		if len(d.Payments) == 0 {
			return errors.NewValidationFieldError("payments",
				"batch must contain at least one payment", errors.ErrCodeEmptyBatch)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return err
	}

	for i := range d.Payments {
		if err := d.Payments[i].Validate(); err != nil {
			if appErr, ok := errors.IsAppError(err); ok {
				return prefixItemErrors(i, appErr)
			}
			return err
		}
	}
	return nil
}

// prefixItemErrors rewrites the field names of one invalid instruction as
// payments[i].<field> so the caller can locate the offending row.
func prefixItemErrors(i int, appErr *errors.AppError) *errors.AppError {
	details, ok := appErr.Details.(errors.ValidationErrors)
	if !ok {
		return appErr
	}
	prefixed := make([]errors.ValidationError, 0, len(details.Errors))
	for _, fieldErr := range details.Errors {
		fieldErr.Field = fmt.Sprintf("payments[%d].%s", i, fieldErr.Field)
		prefixed = append(prefixed, fieldErr)
	}
	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
		WithDetails(errors.ValidationErrors{Errors: prefixed})
}

type CancelBatchDTO struct {
	Reason string `json:"reason,omitempty"`
}

// BatchResponse is the API view of a batch.
type BatchResponse struct {
	ID            string          `json:"id"`
	BatchNumber   string          `json:"batch_number"`
	ProgramID     string          `json:"program_id"`
	ProgramName   string          `json:"program_name"`
	ScheduledDate *time.Time      `json:"scheduled_date,omitempty"`
	TotalPayments int             `json:"total_payments"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func ToResponse(b *batchmodel.PaymentBatch) *BatchResponse {
	return &BatchResponse{
		ID:            b.ID,
		BatchNumber:   b.BatchNumber,
		ProgramID:     b.ProgramID,
		ProgramName:   b.ProgramName,
		ScheduledDate: b.ScheduledDate,
		TotalPayments: b.TotalPayments,
		TotalAmount:   b.TotalAmount,
		Status:        b.Status,
		Metadata:      b.Metadata,
		StartedAt:     b.StartedAt,
		CompletedAt:   b.CompletedAt,
		CreatedBy:     b.CreatedBy,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func ToResponseList(batches []*batchmodel.PaymentBatch) []*BatchResponse {
	out := make([]*BatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, ToResponse(b))
	}
	return out
}

// BatchListResponse wraps a batch listing page.
type BatchListResponse struct {
	Batches []*BatchResponse `json:"batches"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// RetryFailedResponse reports the outcome of a batch retry sweep.
type RetryFailedResponse struct {
	BatchID      string `json:"batch_id"`
	RetriedCount int    `json:"retried_count"`
}
