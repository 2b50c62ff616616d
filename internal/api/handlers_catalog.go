package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/web3-storefront/internal/catalog"
	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/networks"
)

// handleListNetworks handles GET /api/networks
func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"networks":        networks.Supported(),
		"merchantAddress": networks.MerchantAddress,
	})
}

// handleListProducts handles GET /api/products
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"products": s.deps.Catalog.List(),
	})
}

func (s *Server) productFromPath(w http.ResponseWriter, r *http.Request) (catalog.Product, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid product id", nil)
		return catalog.Product{}, false
	}

	product, ok := s.deps.Catalog.Get(id)
	if !ok {
		respondServiceError(w, r, apperrors.NewNotFoundError("product", raw))
		return catalog.Product{}, false
	}
	return product, true
}

// handleGetProduct handles GET /api/products/{id}
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, ok := s.productFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// handleDownloadProduct handles GET /api/products/{id}/download. Only users
// with a completed payment receive a link.
func (s *Server) handleDownloadProduct(w http.ResponseWriter, r *http.Request) {
	product, ok := s.productFromPath(w, r)
	if !ok {
		return
	}

	if s.deps.Downloads == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Downloads are not available", nil)
		return
	}

	user, err := s.deps.Accounts.GetUser(r.Context(), IdentityFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	link, err := s.deps.Downloads.URL(r.Context(), product, user)
	switch {
	case errors.Is(err, catalog.ErrNotDownloadable):
		respondError(w, http.StatusNotFound, "NOT_DOWNLOADABLE", "This product has no download", nil)
		return
	case errors.Is(err, catalog.ErrPaymentRequired):
		respondError(w, http.StatusPaymentRequired, ErrCodePaymentRequired, "Complete a payment to download this product", nil)
		return
	case err != nil:
		respondServiceError(w, r, apperrors.NewProviderError("object_storage", "Could not create a download link", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"productId": product.ID,
		"url":       link,
		"expiresIn": int(catalog.DownloadLinkTTL.Seconds()),
	})
}
