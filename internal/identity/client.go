package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/web3-storefront/internal/circuitbreaker"
	"github.com/web3-storefront/internal/retry"
)

// ErrUserNotFound is returned when the provider has no such user
var ErrUserNotFound = errors.New("identity user not found")

// LinkedAccount is one authentication method the provider reports
type LinkedAccount struct {
	Type             string
	Address          *string
	FirstVerifiedAt  *time.Time
	LatestVerifiedAt *time.Time
	WalletClientType *string
	ConnectorType    *string
}

// PrivyUser is the provider's user object
type PrivyUser struct {
	ID             string
	CreatedAt      time.Time
	LinkedAccounts []LinkedAccount
}

// Client calls the provider's REST API. Transient failures are retried and
// a provider that keeps failing is skipped until its breaker cools down.
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
	retry      *retry.Config
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new provider API client
func NewClient(baseURL, appID, appSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appID:     appID,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:   retry.DefaultConfig(),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("identity")),
	}
}

// WithRetry replaces the backoff used for transient failures
func (c *Client) WithRetry(cfg *retry.Config) *Client {
	c.retry = cfg
	return c
}

// WithBreaker replaces the provider circuit breaker
func (c *Client) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Client {
	c.breaker = cb
	return c
}

// GetUser fetches a user by identity id
func (c *Client) GetUser(ctx context.Context, id string) (*PrivyUser, error) {
	var user *PrivyUser
	var notFound bool

	err := c.breaker.Execute(func() error {
		return retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
			u, err := c.fetchUser(ctx, id)
			switch {
			case errors.Is(err, ErrUserNotFound):
				notFound = true
				return nil
			case err != nil:
				return err
			}
			user = u
			return nil
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("identity provider unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, ErrUserNotFound
	}
	return user, nil
}

type apiAccount struct {
	Type             string  `json:"type"`
	Address          *string `json:"address"`
	Email            *string `json:"email"`
	PhoneNumber      *string `json:"phone_number"`
	VerifiedAt       *int64  `json:"verified_at"`
	FirstVerifiedAt  *int64  `json:"first_verified_at"`
	LatestVerifiedAt *int64  `json:"latest_verified_at"`
	WalletClientType *string `json:"wallet_client_type"`
	ConnectorType    *string `json:"connector_type"`
}

type apiUser struct {
	ID             string       `json:"id"`
	CreatedAt      int64        `json:"created_at"`
	LinkedAccounts []apiAccount `json:"linked_accounts"`
}

// fetchUser makes one request. Client errors are marked permanent.
func (c *Client) fetchUser(ctx context.Context, id string) (*PrivyUser, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/%s", c.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.appID, c.appSecret)
	req.Header.Set("privy-app-id", c.appID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := fmt.Errorf("identity API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(apiErr)
		}
		return nil, apiErr
	}

	var raw apiUser
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to decode identity user: %w", err))
	}
	return raw.toUser(), nil
}

func unixTime(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}

func (u apiUser) toUser() *PrivyUser {
	out := &PrivyUser{
		ID:             u.ID,
		CreatedAt:      time.Unix(u.CreatedAt, 0).UTC(),
		LinkedAccounts: make([]LinkedAccount, 0, len(u.LinkedAccounts)),
	}
	for _, a := range u.LinkedAccounts {
		address := a.Address
		// non-wallet methods name their identifier differently
		if address == nil {
			switch {
			case a.Email != nil:
				address = a.Email
			case a.PhoneNumber != nil:
				address = a.PhoneNumber
			}
		}
		first := a.FirstVerifiedAt
		if first == nil {
			first = a.VerifiedAt
		}
		out.LinkedAccounts = append(out.LinkedAccounts, LinkedAccount{
			Type:             a.Type,
			Address:          address,
			FirstVerifiedAt:  unixTime(first),
			LatestVerifiedAt: unixTime(a.LatestVerifiedAt),
			WalletClientType: a.WalletClientType,
			ConnectorType:    a.ConnectorType,
		})
	}
	return out
}
