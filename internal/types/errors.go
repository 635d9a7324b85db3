package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. The prefix of each code selects its HTTP status,
// see ErrorCode.HTTPStatus.
const (
	// Configuration (400). Operator-fixable, never retried successfully.
	ErrCodeConfigSecretMissing ErrorCode = "config_webhook_secret_missing"

	// Parse / validation (400)
	ErrCodeValidationEmptyBody        ErrorCode = "validation_empty_body"
	ErrCodeValidationMissingSignature ErrorCode = "validation_missing_signature"
	ErrCodeValidationInvalidJSON      ErrorCode = "validation_invalid_json"
	ErrCodeValidationMissingData      ErrorCode = "validation_missing_required_data"
	ErrCodeValidationInvalidInvoice   ErrorCode = "validation_invalid_invoice"
	ErrCodeValidationBodyTooLarge     ErrorCode = "validation_body_too_large"

	// Auth (401)
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_signature_invalid"

	// Business rules (400)
	ErrCodeBusinessPaymentNotCompleted ErrorCode = "business_payment_not_completed"

	// Availability (503)
	ErrCodeUnavailableGateway ErrorCode = "unavailable_gateway_inactive"
	ErrCodeUnavailableLedger  ErrorCode = "unavailable_ledger"

	// Internal (500)
	ErrCodeInternalDB                ErrorCode = "internal_database_error"
	ErrCodeInternalPaymentProcessing ErrorCode = "internal_payment_processing_failed"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "config_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "business_"):
		return http.StatusBadRequest // 400
	case s == string(ErrCodeUnavailableLedger):
		// The ledger being down is a processing failure from the provider's
		// point of view; 500 keeps redelivery going.
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "unavailable_"):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Category returns the error family recorded as error_category on rejection
// audit entries.
func (c ErrorCode) Category() string {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "config_"):
		return "configuration"
	case strings.HasPrefix(s, "auth_"):
		return "authentication"
	case c == ErrCodeValidationInvalidJSON:
		return "parse"
	case strings.HasPrefix(s, "validation_"):
		return "validation"
	case strings.HasPrefix(s, "business_"):
		return "business_rule"
	case strings.HasPrefix(s, "unavailable_"):
		return "availability"
	default:
		return "processing"
	}
}

// AppError is the standard application error type used throughout the service.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
