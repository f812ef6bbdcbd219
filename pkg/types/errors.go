package types

import (
	"errors"
	"fmt"
)

// ErrorKind represents the categories of ledger errors
type ErrorKind string

const (
	ErrorKindNotFound           ErrorKind = "not_found"
	ErrorKindAlreadyExists      ErrorKind = "already_exists"
	ErrorKindUnauthorizedRole   ErrorKind = "unauthorized_role"
	ErrorKindUnauthorizedAccess ErrorKind = "unauthorized_access"
	ErrorKindAccessDenied       ErrorKind = "access_denied"
	ErrorKindAccessExpired      ErrorKind = "access_expired"
	ErrorKindPoolFull           ErrorKind = "pool_full"
	ErrorKindAlreadyPaid        ErrorKind = "already_paid"
	ErrorKindInvalidState       ErrorKind = "invalid_state"
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindInternal           ErrorKind = "internal"
)

// LedgerError represents a structured error in the MediLock ledger core
type LedgerError struct {
	Kind    ErrorKind              `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// KindOf extracts the ErrorKind from an error chain, ErrorKindInternal otherwise
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrorKindInternal
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindNotFound, Code: code, Message: message}
}

// NewAlreadyExistsError creates a new key collision error
func NewAlreadyExistsError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindAlreadyExists, Code: code, Message: message}
}

// NewUnauthorizedRoleError creates a new role mismatch error
func NewUnauthorizedRoleError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindUnauthorizedRole, Code: code, Message: message}
}

// NewUnauthorizedAccessError creates a new controlling-identity mismatch error
func NewUnauthorizedAccessError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindUnauthorizedAccess, Code: code, Message: message}
}

// NewAccessDeniedError creates a new access denied error
func NewAccessDeniedError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindAccessDenied, Code: code, Message: message}
}

// NewAccessExpiredError creates a new lapsed authorization error
func NewAccessExpiredError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindAccessExpired, Code: code, Message: message}
}

// NewPoolFullError creates a new pool capacity error
func NewPoolFullError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindPoolFull, Code: code, Message: message}
}

// NewAlreadyPaidError creates a new double-withdrawal error
func NewAlreadyPaidError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindAlreadyPaid, Code: code, Message: message}
}

// NewInvalidStateError creates a new lifecycle state error
func NewInvalidStateError(code, message string) *LedgerError {
	return &LedgerError{Kind: ErrorKindInvalidState, Code: code, Message: message}
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *LedgerError {
	return &LedgerError{Kind: ErrorKindValidation, Code: code, Message: message, Details: details}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *LedgerError {
	return &LedgerError{Kind: ErrorKindInternal, Code: code, Message: message, Cause: cause}
}

// Common error codes
const (
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeAlreadyRegistered     = "ALREADY_REGISTERED"
	ErrCodeParticipantNotFound   = "PARTICIPANT_NOT_FOUND"
	ErrCodeRecordExists          = "RECORD_EXISTS"
	ErrCodeRecordNotFound        = "RECORD_NOT_FOUND"
	ErrCodeRequestExists         = "ACCESS_REQUEST_EXISTS"
	ErrCodeRequestNotFound       = "ACCESS_REQUEST_NOT_FOUND"
	ErrCodeRequestNotPending     = "ACCESS_REQUEST_NOT_PENDING"
	ErrCodeLogEntryExists        = "ACCESS_LOG_ENTRY_EXISTS"
	ErrCodeUnauthorizedRole      = "UNAUTHORIZED_ROLE"
	ErrCodeUnauthorizedAccess    = "UNAUTHORIZED_ACCESS"
	ErrCodeAccessDenied          = "ACCESS_DENIED"
	ErrCodeAccessExpired         = "ACCESS_EXPIRED"
	ErrCodePoolExists            = "POOL_EXISTS"
	ErrCodePoolNotFound          = "POOL_NOT_FOUND"
	ErrCodePoolFull              = "POOL_FULL"
	ErrCodeContributionExists    = "CONTRIBUTION_EXISTS"
	ErrCodeContributionNotFound  = "CONTRIBUTION_NOT_FOUND"
	ErrCodeAlreadyPaid           = "ALREADY_PAID"
	ErrCodeInsufficientEscrow    = "INSUFFICIENT_ESCROW"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)
