package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCreated    = "payment.created"
	EventTypePaymentProcessing = "payment.processing"
	EventTypePaymentCompleted  = "payment.completed"
	EventTypePaymentFailed     = "payment.failed"
	EventTypePaymentCancelled  = "payment.cancelled"
	EventTypePaymentRetried    = "payment.retried"
	EventTypeBatchCreated      = "batch.created"
	EventTypeBatchFinalized    = "batch.finalized"
)

type PaymentCreatedEvent struct {
	BaseEvent
	PaymentID       string          `json:"payment_id"`
	ReferenceNumber string          `json:"reference_number"`
	HouseholdID     string          `json:"household_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethod   string          `json:"payment_method"`
}

func NewPaymentCreatedEvent(paymentID, referenceNumber, householdID string, amount decimal.Decimal, currency, method string) *PaymentCreatedEvent {
	return &PaymentCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCreated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":       paymentID,
				"reference_number": referenceNumber,
				"household_id":     householdID,
				"amount":           amount.String(),
				"currency":         currency,
				"payment_method":   method,
			},
		},
		PaymentID:       paymentID,
		ReferenceNumber: referenceNumber,
		HouseholdID:     householdID,
		Amount:          amount,
		Currency:        currency,
		PaymentMethod:   method,
	}
}

type PaymentProcessingEvent struct {
	BaseEvent
	PaymentID    string `json:"payment_id"`
	FSPCode      string `json:"fsp_code"`
	FSPReference string `json:"fsp_reference"`
}

func NewPaymentProcessingEvent(paymentID, fspCode, fspReference string) *PaymentProcessingEvent {
	return &PaymentProcessingEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentProcessing,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":    paymentID,
				"fsp_code":      fspCode,
				"fsp_reference": fspReference,
			},
		},
		PaymentID:    paymentID,
		FSPCode:      fspCode,
		FSPReference: fspReference,
	}
}

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID    string          `json:"payment_id"`
	BatchID      string          `json:"batch_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	FSPCode      string          `json:"fsp_code"`
	FSPReference string          `json:"fsp_reference"`
}

func NewPaymentCompletedEvent(paymentID, batchID string, amount decimal.Decimal, fspCode, fspReference string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":    paymentID,
				"batch_id":      batchID,
				"amount":        amount.String(),
				"fsp_code":      fspCode,
				"fsp_reference": fspReference,
			},
		},
		PaymentID:    paymentID,
		BatchID:      batchID,
		Amount:       amount,
		FSPCode:      fspCode,
		FSPReference: fspReference,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     string `json:"payment_id"`
	BatchID       string `json:"batch_id,omitempty"`
	FailureReason string `json:"failure_reason"`
	RetryCount    int    `json:"retry_count"`
}

func NewPaymentFailedEvent(paymentID, batchID, failureReason string, retryCount int) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"batch_id":       batchID,
				"failure_reason": failureReason,
				"retry_count":    retryCount,
			},
		},
		PaymentID:     paymentID,
		BatchID:       batchID,
		FailureReason: failureReason,
		RetryCount:    retryCount,
	}
}

type PaymentCancelledEvent struct {
	BaseEvent
	PaymentID string `json:"payment_id"`
	BatchID   string `json:"batch_id,omitempty"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor"`
}

func NewPaymentCancelledEvent(paymentID, batchID, reason, actor string) *PaymentCancelledEvent {
	return &PaymentCancelledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCancelled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id": paymentID,
				"batch_id":   batchID,
				"reason":     reason,
				"actor":      actor,
			},
		},
		PaymentID: paymentID,
		BatchID:   batchID,
		Reason:    reason,
		Actor:     actor,
	}
}

type PaymentRetriedEvent struct {
	BaseEvent
	PaymentID  string `json:"payment_id"`
	RetryCount int    `json:"retry_count"`
	Actor      string `json:"actor"`
}

func NewPaymentRetriedEvent(paymentID string, retryCount int, actor string) *PaymentRetriedEvent {
	return &PaymentRetriedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRetried,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":  paymentID,
				"retry_count": retryCount,
				"actor":       actor,
			},
		},
		PaymentID:  paymentID,
		RetryCount: retryCount,
		Actor:      actor,
	}
}

type BatchCreatedEvent struct {
	BaseEvent
	BatchID       string          `json:"batch_id"`
	BatchNumber   string          `json:"batch_number"`
	TotalPayments int             `json:"total_payments"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

func NewBatchCreatedEvent(batchID, batchNumber string, totalPayments int, totalAmount decimal.Decimal) *BatchCreatedEvent {
	return &BatchCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBatchCreated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"batch_id":       batchID,
				"batch_number":   batchNumber,
				"total_payments": totalPayments,
				"total_amount":   totalAmount.String(),
			},
		},
		BatchID:       batchID,
		BatchNumber:   batchNumber,
		TotalPayments: totalPayments,
		TotalAmount:   totalAmount,
	}
}

type BatchFinalizedEvent struct {
	BaseEvent
	BatchID     string `json:"batch_id"`
	FinalStatus string `json:"final_status"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	Cancelled   int    `json:"cancelled"`
}

func NewBatchFinalizedEvent(batchID, finalStatus string, successful, failed, cancelled int) *BatchFinalizedEvent {
	return &BatchFinalizedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBatchFinalized,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"batch_id":     batchID,
				"final_status": finalStatus,
				"successful":   successful,
				"failed":       failed,
				"cancelled":    cancelled,
			},
		},
		BatchID:     batchID,
		FinalStatus: finalStatus,
		Successful:  successful,
		Failed:      failed,
		Cancelled:   cancelled,
	}
}
