package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Transient marks failures caused by contention that a caller may retry.
	Transient bool           `json:"transient,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, shared.ErrNotFound) matches any NOT_FOUND error.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error carrying an extra detail entry
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Transient: e.Transient, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewTransientError creates a domain error that callers may retry
func NewTransientError(code, message string) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Transient: true,
	}
}

// Error codes
const (
	CodeNotFound                   = "NOT_FOUND"
	CodeInvalidInput               = "INVALID_INPUT"
	CodeConcurrencyConflict        = "CONCURRENCY_CONFLICT"
	CodeUnauthorized               = "UNAUTHORIZED"
	CodeInvalidQuantity            = "INVALID_QUANTITY"
	CodeInvalidCost                = "INVALID_COST"
	CodeInvalidItem                = "INVALID_ITEM"
	CodeInvalidExpiry              = "INVALID_EXPIRY"
	CodeInvalidReason              = "INVALID_REASON"
	CodeMissingReason              = "MISSING_REASON"
	CodeInsufficientAvailableStock = "INSUFFICIENT_AVAILABLE_STOCK"
	CodeInsufficientReleasedStock  = "INSUFFICIENT_RELEASED_STOCK"
	CodeOverConsumption            = "OVER_CONSUMPTION"
	CodeInvalidTransition          = "INVALID_TRANSITION"
	CodeNoDefaultWarehouse         = "NO_DEFAULT_WAREHOUSE"
	CodeStockBusy                  = "STOCK_BUSY"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict = NewTransientError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrStockBusy           = NewTransientError(CodeStockBusy, "Stock is busy, please retry")
)

// IsTransient reports whether err (or anything it wraps) is a retryable domain error
func IsTransient(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Transient
	}
	return false
}

// ErrorCode returns the domain error code carried by err, or empty string
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
