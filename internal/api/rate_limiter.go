package api

import (
	"context"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/web3-storefront/internal/errors"
	"github.com/web3-storefront/internal/types"
)

// TierFunc resolves the rate-limit tier of an identity
type TierFunc func(ctx context.Context, identityID string) types.UserTier

// tieredLimiter is a limiter together with the tier it was built for
type tieredLimiter struct {
	limiter *rate.Limiter
	tier    types.UserTier
}

// RateLimiter manages rate limiting for API requests
type RateLimiter struct {
	limiters map[string]tieredLimiter
	mu       sync.RWMutex

	// Rate limits per tier (requests per second)
	freeTierLimit rate.Limit
	paidTierLimit rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// defaultBurst is the burst size when none is configured
const defaultBurst = 10

// NewRateLimiter creates a new rate limiter. burst <= 0 uses the default.
func NewRateLimiter(freeTierRPS, paidTierRPS, burst int) *RateLimiter {
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RateLimiter{
		limiters:      make(map[string]tieredLimiter),
		freeTierLimit: rate.Limit(freeTierRPS),
		paidTierLimit: rate.Limit(paidTierRPS),
		burstSize:     burst,
	}
}

func (rl *RateLimiter) limitFor(tier types.UserTier) rate.Limit {
	if tier == types.TierPaid {
		return rl.paidTierLimit
	}
	return rl.freeTierLimit
}

// getLimiter returns the limiter for a caller. A caller whose tier changed
// (a completed payment) gets a fresh limiter at the new rate.
func (rl *RateLimiter) getLimiter(key string, tier types.UserTier) *rate.Limiter {
	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists && entry.tier == tier {
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if entry, exists := rl.limiters[key]; exists && entry.tier == tier {
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.limitFor(tier), rl.burstSize)
	rl.limiters[key] = tieredLimiter{limiter: limiter, tier: tier}
	return limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware limits signed-in callers per identity and anonymous
// callers per client address. It must run after AuthMiddleware.
func RateLimitMiddleware(rl *RateLimiter, tierOf TierFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			tier := types.TierFree

			if id := IdentityFromContext(r.Context()); id != "" {
				key = "id:" + id
				if tierOf != nil {
					tier = tierOf(r.Context(), id)
				}
			}

			limiter := rl.getLimiter(key, tier)
			if !limiter.Allow() {
				limitErr := apperrors.NewRateLimitError(tier)
				limitErr.Details["limit"] = float64(limiter.Limit())
				respondServiceError(w, r, limitErr)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
