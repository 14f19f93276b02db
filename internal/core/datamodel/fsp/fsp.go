package fsp

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FeeTypeFixed      = "FIXED"
	FeeTypePercentage = "PERCENTAGE"
)

// FSPConfiguration is the operational record for one provider. Credential
// columns hold sealed values; the registry unseals them just before a call.
type FSPConfiguration struct {
	FSPCode          string          `gorm:"primaryKey;column:fsp_code"`
	Name             string          `gorm:"column:name;not null"`
	APIBaseURL       string          `gorm:"column:api_base_url;not null"`
	APIKeySealed     string          `gorm:"column:api_key_sealed"`
	APISecretSealed  string          `gorm:"column:api_secret_sealed"`
	WebhookSecret    string          `gorm:"column:webhook_secret_sealed"`
	ConnectTimeoutMS int             `gorm:"column:connect_timeout_ms;not null;default:5000"`
	ReadTimeoutMS    int             `gorm:"column:read_timeout_ms;not null;default:30000"`
	MaxRetryAttempts int             `gorm:"column:max_retry_attempts;not null;default:3"`
	RetryDelayMS     int             `gorm:"column:retry_delay_ms;not null;default:5000"`
	FeeType          string          `gorm:"column:fee_type;not null;default:FIXED"`
	FeeValue         decimal.Decimal `gorm:"column:fee_value;type:numeric(10,4);not null"`
	MinAmount        decimal.Decimal `gorm:"column:min_amount;type:numeric(15,2);not null"`
	MaxAmount        decimal.Decimal `gorm:"column:max_amount;type:numeric(15,2);not null"`
	IsActive         bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (FSPConfiguration) TableName() string {
	return "fsp_configurations"
}

func (c *FSPConfiguration) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c *FSPConfiguration) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

func (c *FSPConfiguration) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// CalculateFee returns the transaction fee for an amount under this
// configuration. Percentage values are expressed as percent, not fraction.
func (c *FSPConfiguration) CalculateFee(amount decimal.Decimal) decimal.Decimal {
	if c.FeeType == FeeTypePercentage {
		return amount.Mul(c.FeeValue).Div(decimal.NewFromInt(100)).Round(2)
	}
	return c.FeeValue
}

// SupportsAmount reports whether the amount falls inside the configured
// window. A zero MaxAmount means no upper bound.
func (c *FSPConfiguration) SupportsAmount(amount decimal.Decimal) bool {
	if amount.LessThan(c.MinAmount) {
		return false
	}
	if !c.MaxAmount.IsZero() && amount.GreaterThan(c.MaxAmount) {
		return false
	}
	return true
}
