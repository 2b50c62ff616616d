// Package models provides data models for the storefront backend.
package models

import (
	"strings"
	"time"

	"github.com/web3-storefront/internal/types"
)

// User is the per-identity aggregate stored as one JSON document keyed by the
// identity provider's user id.
type User struct {
	ID       string          `json:"_id"`
	Payed    bool            `json:"payed"`
	Privy    PrivyProfile    `json:"privy"`
	Payments []PaymentRecord `json:"payments"`
}

// PrivyProfile is the identity provider's view of the user
type PrivyProfile struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	LinkedAccounts []LinkedAccount `json:"linkedAccounts"`
}

// LinkedAccount is one authentication method attached to an identity.
// Wallet accounts also carry client/connector metadata and the default flag.
type LinkedAccount struct {
	Address          *string    `json:"address"`
	Type             string     `json:"type"`
	FirstVerifiedAt  *time.Time `json:"firstVerifiedAt"`
	LatestVerifiedAt *time.Time `json:"latestVerifiedAt"`
	WalletClientType *string    `json:"walletClientType,omitempty"`
	ConnectorType    *string    `json:"connectorType,omitempty"`
	IsDefaultWallet  *bool      `json:"isDefaultWallet,omitempty"`
}

// AddressValue returns the account address or "" when absent
func (a LinkedAccount) AddressValue() string {
	if a.Address == nil {
		return ""
	}
	return *a.Address
}

// IsWallet reports whether the account is wallet-typed
func (a LinkedAccount) IsWallet() bool {
	return a.Type == types.AccountTypeWallet
}

// IsEmbedded reports whether the account is a provider-embedded wallet
func (a LinkedAccount) IsEmbedded() bool {
	return a.ConnectorType != nil && *a.ConnectorType == types.ConnectorEmbedded
}

// IsDefault reports whether the account carries the default-wallet flag
func (a LinkedAccount) IsDefault() bool {
	return a.IsDefaultWallet != nil && *a.IsDefaultWallet
}

// HasWallet reports whether address is already one of the user's wallet accounts.
// Addresses compare exactly, as they are stored.
func (u *User) HasWallet(address string) bool {
	for _, acc := range u.Privy.LinkedAccounts {
		if acc.IsWallet() && acc.AddressValue() == address {
			return true
		}
	}
	return false
}

// SetDefaultWallet recomputes every account's default flag so that only the
// wallet with the given address is marked. An empty address clears them all.
func (u *User) SetDefaultWallet(address string) {
	for i := range u.Privy.LinkedAccounts {
		acc := &u.Privy.LinkedAccounts[i]
		isDefault := address != "" && acc.IsWallet() && acc.AddressValue() == address
		acc.IsDefaultWallet = &isDefault
	}
}

// DefaultWallet returns the account flagged as default, if any
func (u *User) DefaultWallet() *LinkedAccount {
	for i := range u.Privy.LinkedAccounts {
		if u.Privy.LinkedAccounts[i].IsDefault() {
			return &u.Privy.LinkedAccounts[i]
		}
	}
	return nil
}

// DefaultWalletCount counts accounts flagged as default
func (u *User) DefaultWalletCount() int {
	n := 0
	for _, acc := range u.Privy.LinkedAccounts {
		if acc.IsDefault() {
			n++
		}
	}
	return n
}

// PrependPayment records a payment as the most recent entry and marks the user as paid
func (u *User) PrependPayment(p PaymentRecord) {
	u.Payments = append([]PaymentRecord{p}, u.Payments...)
	u.Payed = true
}

// HasPayment reports whether a payment with the given transaction/intent id was recorded
func (u *User) HasPayment(idHash string) bool {
	for _, p := range u.Payments {
		if strings.EqualFold(p.IDHash, idHash) {
			return true
		}
	}
	return false
}

// Tier returns the rate-limit tier implied by the payment flag
func (u *User) Tier() types.UserTier {
	if u.Payed {
		return types.TierPaid
	}
	return types.TierFree
}
