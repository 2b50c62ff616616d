package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/web3-storefront/internal/identity"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/service"
)

// TokenVerifier checks identity session tokens
type TokenVerifier interface {
	Verify(token string) (*identity.Claims, error)
}

type identityKey struct{}

// IdentityFromContext returns the caller's identity id, or "" for anonymous requests
func IdentityFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}

func withIdentity(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// AuthMiddleware resolves a bearer token into the caller's identity. Requests
// without a token continue anonymously; a token that fails verification is
// rejected.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(r.Context()).WithError(err).Debug("Rejected identity token")
				respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, service.MsgSignIn, nil)
				return
			}

			ctx := withIdentity(r.Context(), claims.Subject)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithIdentity(claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity rejects anonymous requests
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, service.MsgSignIn, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
