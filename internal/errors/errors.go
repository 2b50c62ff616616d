// Package errors categorizes failures into the kinds the HTTP layer and the
// payment flows report: validation, not found, conflict, authorization,
// collaborator (provider) and store (database) failures.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/web3-storefront/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents input rejected before any external call
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents missing or invalid identity
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents missing records
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents uniqueness violations
	CategoryConflict ErrorCategory = "conflict"
	// CategoryRateLimit represents throttled callers
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryProvider represents card-payment, identity or chain RPC failures
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents record store failures
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents everything else
	CategorySystem ErrorCategory = "system"
)

// statusByCategory is the HTTP status each category maps to unless a
// constructor says otherwise
var statusByCategory = map[ErrorCategory]int{
	CategoryValidation:    http.StatusBadRequest,
	CategoryAuthorization: http.StatusUnauthorized,
	CategoryNotFound:      http.StatusNotFound,
	CategoryConflict:      http.StatusConflict,
	CategoryRateLimit:     http.StatusTooManyRequests,
	CategoryProvider:      http.StatusBadGateway,
	CategoryDatabase:      http.StatusInternalServerError,
	CategorySystem:        http.StatusInternalServerError,
}

// CategorizedError is a failure with the category, status and short message
// the API reports. Cause keeps the underlying error for logs and errors.Is.
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// with attaches a detail and returns e
func (e *CategorizedError) with(key string, value interface{}) *CategorizedError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(category ErrorCategory, code, message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   category,
		StatusCode: statusByCategory[category],
		Code:       code,
		Message:    message,
		Cause:      cause,
	}
}

// NewValidationError creates a validation error with a user-facing message
func NewValidationError(code, message string) *CategorizedError {
	return newError(CategoryValidation, code, message, nil)
}

// NewInvalidParameterError reports a request field that failed validation
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return newError(CategoryValidation, "INVALID_PARAMETER", fmt.Sprintf("invalid parameter '%s': %s", param, reason), nil).
		with("parameter", param).
		with("reason", reason)
}

// NewUnauthorizedError reports a missing or invalid identity
func NewUnauthorizedError(message string) *CategorizedError {
	return newError(CategoryAuthorization, "UNAUTHORIZED", message, nil)
}

// NewForbiddenError reports an identity acting on something it does not own
func NewForbiddenError(message string) *CategorizedError {
	e := newError(CategoryAuthorization, "FORBIDDEN", message, nil)
	e.StatusCode = http.StatusForbidden
	return e
}

// NewNotFoundError reports a missing record
func NewNotFoundError(resource string, id string) *CategorizedError {
	return newError(CategoryNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id), nil).
		with("resource", resource).
		with("id", id)
}

// NewConflictError reports an account already held by another user
func NewConflictError(message string, cause error) *CategorizedError {
	return newError(CategoryConflict, "CONFLICT", message, cause)
}

// NewRateLimitError reports a throttled caller and its tier
func NewRateLimitError(tier types.UserTier) *CategorizedError {
	return newError(CategoryRateLimit, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Please try again later.", nil).
		with("tier", tier)
}

// NewProviderError creates a collaborator error. message is the short text shown to the user.
func NewProviderError(provider string, message string, cause error) *CategorizedError {
	return newError(CategoryProvider, "PROVIDER_ERROR", message, cause).
		with("provider", provider)
}

// NewDatabaseError creates a record store error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return newError(CategoryDatabase, "DATABASE_ERROR", fmt.Sprintf("database error during %s", operation), cause).
		with("operation", operation)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return newError(CategorySystem, "INTERNAL_ERROR", message, cause)
}

// Categorize returns the first CategorizedError in err's chain, or wraps err
// as an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}
	return NewInternalError("An internal error occurred", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError reports a 4xx error
func IsUserError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError reports a 5xx error
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 500
}
