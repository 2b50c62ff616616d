package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/service"
)

// ErrorBody is the structured error payload
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondMessage sends the flat {"error": message} body the checkout page reads
func respondMessage(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodePaymentRequired    = "PAYMENT_REQUIRED"
	ErrCodePaymentFailed      = "PAYMENT_FAILED"
)

// respondServiceError maps a service error to its HTTP status. Server-side
// failures are logged with their cause and reported with the short message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var failure *service.PaymentFailure
	if errors.As(err, &failure) {
		respondError(w, http.StatusBadRequest, ErrCodePaymentFailed, failure.Message, map[string]interface{}{
			"kind": failure.Kind,
		})
		return
	}

	catErr := apperrors.Categorize(err)
	if apperrors.IsSystemError(catErr) {
		logging.FromContext(r.Context()).
			WithError(err).
			WithField("category", string(catErr.Category)).
			Error("Request failed")
	}

	message := catErr.Message
	if catErr.Category == apperrors.CategorySystem {
		message = "An internal error occurred"
	}
	respondError(w, catErr.StatusCode, catErr.Code, message, catErr.Details)
}
