package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeConflict           ErrorType = "CONFLICT"
	ErrorTypeServiceUnavailable ErrorType = "SERVICE_UNAVAILABLE"
	ErrorTypeExternalProvider   ErrorType = "EXTERNAL_PROVIDER_ERROR"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidRecipient ErrorCode = "INVALID_RECIPIENT"
	ErrCodeInvalidMethod    ErrorCode = "INVALID_PAYMENT_METHOD"
	ErrCodeEmptyBatch       ErrorCode = "EMPTY_BATCH"
	ErrCodeInvalidFSPConfig ErrorCode = "INVALID_FSP_CONFIGURATION"
	ErrCodeInvalidWebhook   ErrorCode = "INVALID_WEBHOOK"
	ErrCodeInvalidSignature ErrorCode = "INVALID_WEBHOOK_SIGNATURE"

	ErrCodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeBatchNotFound   ErrorCode = "BATCH_NOT_FOUND"
	ErrCodeFSPNotFound     ErrorCode = "FSP_NOT_FOUND"

	ErrCodeInvalidTransition  ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeInvalidBatchStatus ErrorCode = "INVALID_BATCH_STATUS"
	ErrCodeMaxRetriesExceeded ErrorCode = "MAX_RETRIES_EXCEEDED"

	ErrCodeNoSuitableProvider ErrorCode = "NO_SUITABLE_PROVIDER"
	ErrCodeFSPUnhealthy       ErrorCode = "FSP_UNHEALTHY"
	ErrCodeQueueFull          ErrorCode = "QUEUE_FULL"

	ErrCodeProviderRejected ErrorCode = "PROVIDER_REJECTED"
	ErrCodeProviderTimeout  ErrorCode = "PROVIDER_TIMEOUT"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {

			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewServiceUnavailableError covers routing dead ends: no registered
// provider can take the payment right now, or the named one is unhealthy.
// Callers may retry later; the engine does not retry these on its own.
func NewServiceUnavailableError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeServiceUnavailable,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewExternalProviderError covers failures reported by an FSP during
// submit/status/cancel. Transient covers timeouts and 5xx-style outages,
// which the engine retries with the configured delay; definitive rejections
// (invalid account, limits) are final.
func NewExternalProviderError(message string, code ErrorCode, transient bool) *AppError {
	return &AppError{
		Type:       ErrorTypeExternalProvider,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Details:    map[string]bool{"transient": transient},
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsTransient reports whether an external-provider error is worth an
// automatic retry. Anything that is not an external-provider error is not.
func (e *AppError) IsTransient() bool {
	if e.Type != ErrorTypeExternalProvider {
		return false
	}
	if details, ok := e.Details.(map[string]bool); ok {
		return details["transient"]
	}
	return false
}

var (
	ErrPaymentNotFound = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrBatchNotFound   = NewNotFoundError("Payment batch not found", ErrCodeBatchNotFound)
	ErrFSPNotFound     = NewNotFoundError("FSP service not found", ErrCodeFSPNotFound)

	ErrNoSuitableProvider = NewServiceUnavailableError("no suitable FSP available for this payment", ErrCodeNoSuitableProvider)
	ErrMaxRetriesExceeded = NewConflictError("max retries exceeded", ErrCodeMaxRetriesExceeded)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
