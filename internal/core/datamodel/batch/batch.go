package batch

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending            = "PENDING"
	StatusProcessing         = "PROCESSING"
	StatusPaused             = "PAUSED"
	StatusCompleted          = "COMPLETED"
	StatusPartiallyCompleted = "PARTIALLY_COMPLETED"
	StatusFailed             = "FAILED"
	StatusCancelled          = "CANCELLED"
)

type PaymentBatch struct {
	ID            string          `gorm:"primaryKey;column:id"`
	BatchNumber   string          `gorm:"column:batch_number;not null;uniqueIndex"`
	ProgramID     string          `gorm:"column:program_id;not null;index"`
	ProgramName   string          `gorm:"column:program_name;not null"`
	ScheduledDate *time.Time      `gorm:"column:scheduled_date;index"`
	TotalPayments int             `gorm:"column:total_payments;not null"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:numeric(15,2);not null"`
	Status        string          `gorm:"column:status;not null;default:PENDING;index"`
	Metadata      json.RawMessage `gorm:"column:metadata;type:jsonb"`
	StartedAt     *time.Time      `gorm:"column:started_at"`
	CompletedAt   *time.Time      `gorm:"column:completed_at"`
	CreatedBy     string          `gorm:"column:created_by;not null"`
	UpdatedBy     string          `gorm:"column:updated_by"`
	Version       int64           `gorm:"column:version;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentBatch) TableName() string {
	return "payment_batches"
}

var transitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaused, StatusCompleted, StatusPartiallyCompleted, StatusFailed, StatusCancelled},
	StatusPaused:     {StatusProcessing, StatusCancelled},
	// terminal
	StatusCompleted:          {},
	StatusPartiallyCompleted: {},
	StatusFailed:             {},
	StatusCancelled:          {},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusPartiallyCompleted ||
		status == StatusFailed || status == StatusCancelled
}
