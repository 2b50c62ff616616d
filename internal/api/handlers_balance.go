package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/web3-storefront/internal/types"
)

// handleGetBalance handles GET /api/balances/{chainId}/{address} and returns
// the address's USDC balance on that chain with two decimals.
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	chainID, err := types.ParseChainID(vars["chainId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid chain id", nil)
		return
	}
	address := vars["address"]

	balance, err := s.deps.Crypto.Balance(r.Context(), chainID, address)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chainId":  chainID,
		"address":  address,
		"balance":  balance,
		"currency": types.CurrencyUSDC,
	})
}
