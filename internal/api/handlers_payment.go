package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/payment"
	"github.com/web3-storefront/internal/service"
)

// handleCreatePaymentIntent handles POST /api/create-payment-intent.
// The checkout page reads {clientSecret} on success and {error} otherwise.
func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	intent, err := s.deps.Cards.CreateIntent(r.Context(), IdentityFromContext(r.Context()), req.Amount)
	if err != nil {
		if errors.Is(err, payment.ErrBelowMinimum) {
			respondMessage(w, http.StatusBadRequest, payment.MinimumMessage)
			return
		}
		if errors.Is(err, payment.ErrAmountTooLarge) {
			respondMessage(w, http.StatusBadRequest, "Amount is too large")
			return
		}

		logging.FromContext(r.Context()).WithError(err).Error("Failed to create payment intent")
		respondMessage(w, http.StatusInternalServerError, apperrors.Categorize(err).Message)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"clientSecret": intent.ClientSecret})
}

// handleConfirmCardPayment handles POST /api/payments/card/confirm
func (s *Server) handleConfirmCardPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentIntentID string `json:"paymentIntentId"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	result, err := s.deps.Cards.ConfirmIntent(r.Context(), IdentityFromContext(r.Context()), req.PaymentIntentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetPaymentIntent handles GET /api/payment-intents/{id}
func (s *Server) handleGetPaymentIntent(w http.ResponseWriter, r *http.Request) {
	intentID := mux.Vars(r)["id"]

	status, err := s.deps.Cards.IntentStatus(r.Context(), intentID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":     intentID,
		"status": status,
	})
}

// handleVerifyCryptoPayment handles POST /api/payments/crypto/verify
func (s *Server) handleVerifyCryptoPayment(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyRequest

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	req.UserID = IdentityFromContext(r.Context())

	result, err := s.deps.Crypto.Verify(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
