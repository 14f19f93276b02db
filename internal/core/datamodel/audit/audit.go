package audit

import "time"

const (
	EventPaymentCreated   = "PAYMENT_CREATED"
	EventPaymentSubmitted = "PAYMENT_SUBMITTED"
	EventStatusChanged    = "STATUS_CHANGED"
	EventWebhookReceived  = "WEBHOOK_RECEIVED"
	EventPaymentCancelled = "PAYMENT_CANCELLED"
	EventPaymentRetried   = "PAYMENT_RETRIED"
	EventBatchCreated     = "BATCH_CREATED"
	EventBatchStarted     = "BATCH_STARTED"
	EventBatchPaused      = "BATCH_PAUSED"
	EventBatchResumed     = "BATCH_RESUMED"
	EventBatchCancelled   = "BATCH_CANCELLED"
	EventBatchFinalized   = "BATCH_FINALIZED"
)

// Entry is one immutable audit record. Rows are inserted in the same
// transaction as the status change they describe and never touched again.
type Entry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PaymentID *string   `gorm:"column:payment_id;index"`
	BatchID   *string   `gorm:"column:batch_id;index"`
	EventType string    `gorm:"column:event_type;not null"`
	OldStatus *string   `gorm:"column:old_status"`
	NewStatus string    `gorm:"column:new_status;not null"`
	Reason    string    `gorm:"column:reason"`
	Actor     string    `gorm:"column:actor;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Entry) TableName() string {
	return "payment_audit_log"
}

// ForPayment builds an entry describing a payment transition. oldStatus may
// be empty for creation events.
func ForPayment(paymentID, eventType, oldStatus, newStatus, reason, actor string) *Entry {
	e := &Entry{
		PaymentID: &paymentID,
		EventType: eventType,
		NewStatus: newStatus,
		Reason:    reason,
		Actor:     actor,
	}
	if oldStatus != "" {
		e.OldStatus = &oldStatus
	}
	return e
}

// ForBatch builds an entry describing a batch lifecycle event.
func ForBatch(batchID, eventType, oldStatus, newStatus, reason, actor string) *Entry {
	e := &Entry{
		BatchID:   &batchID,
		EventType: eventType,
		NewStatus: newStatus,
		Reason:    reason,
		Actor:     actor,
	}
	if oldStatus != "" {
		e.OldStatus = &oldStatus
	}
	return e
}
