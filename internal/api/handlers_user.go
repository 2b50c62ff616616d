package api

import (
	"net/http"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/service"
)

// handleSession handles POST /api/session. It reconciles the signed-in
// identity with its stored record and always answers with the landing redirect.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	identityID := IdentityFromContext(r.Context())
	logger := logging.FromContext(r.Context())

	if s.deps.Directory == nil {
		logger.Warn("Identity directory not configured; skipping reconciliation")
		respondJSON(w, http.StatusOK, &service.ReconcileResult{Redirect: service.LandingPath})
		return
	}

	ident, err := s.deps.Directory.GetUser(r.Context(), identityID)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch identity profile")
		respondJSON(w, http.StatusOK, &service.ReconcileResult{Redirect: service.LandingPath})
		return
	}

	result, err := s.deps.Accounts.Reconcile(r.Context(), ident)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetMe handles GET /api/users/me
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Accounts.GetUser(r.Context(), IdentityFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// handleAttachWallet handles POST /api/users/me/wallets
func (s *Server) handleAttachWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address          string `json:"address"`
		WalletClientType string `json:"walletClientType,omitempty"`
		ConnectorType    string `json:"connectorType,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	identityID := IdentityFromContext(r.Context())
	user, err := s.deps.Accounts.AttachWallet(r.Context(), identityID, req.Address, &service.WalletMeta{
		WalletClientType: req.WalletClientType,
		ConnectorType:    req.ConnectorType,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if user == nil {
		respondServiceError(w, r, apperrors.NewNotFoundError("user", identityID))
		return
	}

	respondJSON(w, http.StatusOK, user)
}
