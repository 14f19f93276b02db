package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

const (
	MethodBankTransfer = "BANK_TRANSFER"
	MethodEWallet      = "E_WALLET"
	MethodCashPickup   = "CASH_PICKUP"
	MethodCheck        = "CHECK"
	MethodPrepaidCard  = "PREPAID_CARD"
)

// Methods lists every payment method the engine accepts at creation time.
// Whether a registered FSP can actually carry it is decided at routing time.
var Methods = []string{
	MethodBankTransfer,
	MethodEWallet,
	MethodCashPickup,
	MethodCheck,
	MethodPrepaidCard,
}

type Payment struct {
	ID                      string          `gorm:"primaryKey;column:id"`
	InternalReferenceNumber string          `gorm:"column:internal_reference_number;not null;uniqueIndex"`
	BatchID                 *string         `gorm:"column:batch_id;index"`
	HouseholdID             string          `gorm:"column:household_id;not null;index"`
	ProgramName             string          `gorm:"column:program_name;not null"`
	Amount                  decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null"`
	Currency                string          `gorm:"column:currency;not null;default:PHP"`
	PaymentMethod           string          `gorm:"column:payment_method;not null"`
	RecipientAccountNumber  string          `gorm:"column:recipient_account_number;not null"`
	RecipientBankCode       string          `gorm:"column:recipient_bank_code"`
	RecipientAccountName    string          `gorm:"column:recipient_account_name;not null"`
	RecipientMobileNumber   *string         `gorm:"column:recipient_mobile_number"`
	Description             *string         `gorm:"column:description"`
	Status                  string          `gorm:"column:status;not null;default:PENDING;index"`
	FSPCode                 *string         `gorm:"column:fsp_code;index"`
	FSPReferenceNumber      *string         `gorm:"column:fsp_reference_number;index"`
	FailureReason           *string         `gorm:"column:failure_reason"`
	RetryCount              int             `gorm:"column:retry_count;not null;default:0"`
	SubmittedAt             *time.Time      `gorm:"column:submitted_at"`
	CompletedAt             *time.Time      `gorm:"column:completed_at"`
	CreatedBy               string          `gorm:"column:created_by;not null"`
	UpdatedBy               string          `gorm:"column:updated_by"`
	Version                 int64           `gorm:"column:version;not null;default:0"`
	CreatedAt               time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsTerminal reports whether a status accepts no further transitions for
// batch roll-up purposes. FAILED counts: it only leaves via an explicit retry.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusFailed
}

var transitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:     {StatusProcessing},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidMethod reports whether the engine accepts the payment method tag.
func ValidMethod(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

// ValidStatus reports whether the tag names a payment status.
func ValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}
