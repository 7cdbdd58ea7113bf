package types

import "fmt"

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeAuthorization     ErrorType = "authorization"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeConflict          ErrorType = "conflict"
	ErrorTypeInvalidState      ErrorType = "invalid_state"
	ErrorTypeInternal          ErrorType = "internal"
	ErrorTypeLedgerUnavailable ErrorType = "ledger_unavailable"
)

// ServiceError represents a structured error in the consent engine
type ServiceError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(code, message string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeAuthorization,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
	}
}

// NewInvalidStateError creates a new invalid state transition error
func NewInvalidStateError(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeInvalidState,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewLedgerUnavailableError creates a soft ledger failure error
func NewLedgerUnavailableError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeLedgerUnavailable,
		Code:    ErrCodeLedgerUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// IsErrorType reports whether err is a ServiceError of the given type
func IsErrorType(err error, t ErrorType) bool {
	se, ok := err.(*ServiceError)
	return ok && se.Type == t
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeLedgerUnavailable = "LEDGER_UNAVAILABLE"
	ErrCodeIntegrityMismatch = "INTEGRITY_MISMATCH"
)

// LedgerWarning reports a soft ledger failure to the caller. The
// off-chain state committed before the ledger call was attempted, so
// the triggering operation still succeeds with this warning attached.
type LedgerWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PendingLedgerConfirmation builds the warning returned when an
// operation succeeded off-chain but its ledger mirror did not land.
func PendingLedgerConfirmation(op string, cause error) *LedgerWarning {
	return &LedgerWarning{
		Code:    ErrCodeLedgerUnavailable,
		Message: fmt.Sprintf("%s committed off-chain, pending ledger confirmation: %v", op, cause),
	}
}
