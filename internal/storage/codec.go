package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/web3-storefront/internal/models"
	"github.com/web3-storefront/internal/types"
)

// timestampLayout is ISO-8601 in UTC with millisecond precision
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Stored document shapes. Every timestamp travels as text.

type storedUser struct {
	ID       string          `json:"_id"`
	Payed    bool            `json:"payed"`
	Privy    storedProfile   `json:"privy"`
	Payments []storedPayment `json:"payments"`
}

type storedProfile struct {
	ID             string          `json:"id"`
	CreatedAt      string          `json:"createdAt"`
	LinkedAccounts []storedAccount `json:"linkedAccounts"`
}

type storedAccount struct {
	Address          *string `json:"address"`
	Type             string  `json:"type"`
	FirstVerifiedAt  *string `json:"firstVerifiedAt"`
	LatestVerifiedAt *string `json:"latestVerifiedAt"`
	WalletClientType *string `json:"walletClientType,omitempty"`
	ConnectorType    *string `json:"connectorType,omitempty"`
	IsDefaultWallet  *bool   `json:"isDefaultWallet,omitempty"`
}

type storedPayment struct {
	IDHash             string            `json:"id_hash"`
	ChainID            *types.ChainID    `json:"chainId,omitempty"`
	Amount             float64           `json:"amount"`
	Currency           string            `json:"currency"`
	Status             string            `json:"status"`
	Type               types.PaymentType `json:"type"`
	Timestamp          string            `json:"timestamp"`
	SubscriptionID     string            `json:"subscriptionId"`
	Subscription       bool              `json:"subscription"`
	SubscriptionEndsAt string            `json:"subscriptionEndsAt"`
	ProductID          string            `json:"productId"`
	ProductDownloaded  bool              `json:"productDownloaded"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTimeOrZero reads a payment timestamp; a missing one is the zero time
func parseTimeOrZero(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

// encodeUser serializes a user document
func encodeUser(u *models.User) ([]byte, error) {
	doc := storedUser{
		ID:    u.ID,
		Payed: u.Payed,
		Privy: storedProfile{
			ID:             u.Privy.ID,
			CreatedAt:      formatTime(u.Privy.CreatedAt),
			LinkedAccounts: make([]storedAccount, 0, len(u.Privy.LinkedAccounts)),
		},
		Payments: make([]storedPayment, 0, len(u.Payments)),
	}

	for _, acc := range u.Privy.LinkedAccounts {
		doc.Privy.LinkedAccounts = append(doc.Privy.LinkedAccounts, storedAccount{
			Address:          acc.Address,
			Type:             acc.Type,
			FirstVerifiedAt:  formatOptionalTime(acc.FirstVerifiedAt),
			LatestVerifiedAt: formatOptionalTime(acc.LatestVerifiedAt),
			WalletClientType: acc.WalletClientType,
			ConnectorType:    acc.ConnectorType,
			IsDefaultWallet:  acc.IsDefaultWallet,
		})
	}

	for _, p := range u.Payments {
		chainID := p.ChainID
		doc.Payments = append(doc.Payments, storedPayment{
			IDHash:             p.IDHash,
			ChainID:            &chainID,
			Amount:             p.Amount,
			Currency:           p.Currency,
			Status:             p.Status,
			Type:               p.Type,
			Timestamp:          formatTime(p.Timestamp),
			SubscriptionID:     p.SubscriptionID,
			Subscription:       p.Subscription,
			SubscriptionEndsAt: formatTime(p.SubscriptionEndsAt),
			ProductID:          p.ProductID,
			ProductDownloaded:  p.ProductDownloaded,
		})
	}

	return json.Marshal(doc)
}

// decodeUser parses a stored document. Any failure means the value is not a user record.
func decodeUser(raw []byte) (*models.User, error) {
	var doc storedUser
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	createdAt, err := parseTime(doc.Privy.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("privy.createdAt: %w", err)
	}

	user := &models.User{
		ID:    doc.ID,
		Payed: doc.Payed,
		Privy: models.PrivyProfile{
			ID:             doc.Privy.ID,
			CreatedAt:      createdAt,
			LinkedAccounts: make([]models.LinkedAccount, 0, len(doc.Privy.LinkedAccounts)),
		},
		Payments: make([]models.PaymentRecord, 0, len(doc.Payments)),
	}

	for i, acc := range doc.Privy.LinkedAccounts {
		first, err := parseOptionalTime(acc.FirstVerifiedAt)
		if err != nil {
			return nil, fmt.Errorf("linkedAccounts[%d].firstVerifiedAt: %w", i, err)
		}
		latest, err := parseOptionalTime(acc.LatestVerifiedAt)
		if err != nil {
			return nil, fmt.Errorf("linkedAccounts[%d].latestVerifiedAt: %w", i, err)
		}
		user.Privy.LinkedAccounts = append(user.Privy.LinkedAccounts, models.LinkedAccount{
			Address:          acc.Address,
			Type:             acc.Type,
			FirstVerifiedAt:  first,
			LatestVerifiedAt: latest,
			WalletClientType: acc.WalletClientType,
			ConnectorType:    acc.ConnectorType,
			IsDefaultWallet:  acc.IsDefaultWallet,
		})
	}

	for i, p := range doc.Payments {
		ts, err := parseTimeOrZero(p.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("payments[%d].timestamp: %w", i, err)
		}
		ends, err := parseTimeOrZero(p.SubscriptionEndsAt)
		if err != nil {
			return nil, fmt.Errorf("payments[%d].subscriptionEndsAt: %w", i, err)
		}
		var chainID types.ChainID
		if p.ChainID != nil {
			chainID = *p.ChainID
		}
		user.Payments = append(user.Payments, models.PaymentRecord{
			IDHash:             p.IDHash,
			ChainID:            chainID,
			Amount:             p.Amount,
			Currency:           p.Currency,
			Status:             p.Status,
			Type:               p.Type,
			Timestamp:          ts,
			SubscriptionID:     p.SubscriptionID,
			Subscription:       p.Subscription,
			SubscriptionEndsAt: ends,
			ProductID:          p.ProductID,
			ProductDownloaded:  p.ProductDownloaded,
		})
	}

	return user, nil
}
