package dto

import (
	"net/http"

	"github.com/erp/stockengine/internal/domain/shared"
)

// Transport error codes. Domain codes from the shared package pass through
// unchanged.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid    = "INVALID_TOKEN"
	ErrCodeTokenNotYet     = "TOKEN_NOT_VALID"
	ErrCodeTokenRevoked    = "TOKEN_REVOKED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
	// ErrCodeUnauthenticated is returned when no usable credentials were sent.
	// A missing capability is the domain UNAUTHORIZED code instead.
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeForbidden:       http.StatusForbidden,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeTokenInvalid:    http.StatusUnauthorized,
	ErrCodeTokenNotYet:     http.StatusUnauthorized,
	ErrCodeTokenRevoked:    http.StatusUnauthorized,
	ErrCodeUnauthenticated: http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,

	// Input errors -> 400 Bad Request
	shared.CodeInvalidInput:    http.StatusBadRequest,
	shared.CodeInvalidQuantity: http.StatusBadRequest,
	shared.CodeInvalidCost:     http.StatusBadRequest,
	shared.CodeInvalidItem:     http.StatusBadRequest,
	shared.CodeInvalidExpiry:   http.StatusBadRequest,
	shared.CodeInvalidReason:   http.StatusBadRequest,
	shared.CodeMissingReason:   http.StatusBadRequest,

	shared.CodeUnauthorized: http.StatusForbidden,
	shared.CodeNotFound:     http.StatusNotFound,

	// Business rule errors -> 422 Unprocessable Entity
	shared.CodeInsufficientAvailableStock: http.StatusUnprocessableEntity,
	shared.CodeInsufficientReleasedStock:  http.StatusUnprocessableEntity,
	shared.CodeOverConsumption:            http.StatusUnprocessableEntity,
	shared.CodeInvalidTransition:          http.StatusUnprocessableEntity,
	shared.CodeNoDefaultWarehouse:         http.StatusUnprocessableEntity,

	// Contention
	shared.CodeStockBusy:           http.StatusServiceUnavailable,
	shared.CodeConcurrencyConflict: http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
