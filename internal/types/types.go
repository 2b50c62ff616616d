// Package types provides common type definitions for the storefront backend.
package types

import "strconv"

// UserTier represents the rate-limit tier of a caller
type UserTier string

const (
	// TierFree applies to anonymous callers and users without a completed payment
	TierFree UserTier = "free"
	// TierPaid applies to users whose record has payed=true
	TierPaid UserTier = "paid"
)

// ChainID is an EVM chain id (0 for payments that did not touch a chain)
type ChainID int64

// String returns the decimal form of the chain id
func (c ChainID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// ParseChainID parses a decimal chain id
func ParseChainID(s string) (ChainID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ChainID(v), nil
}

const (
	// ChainNone marks card payments
	ChainNone ChainID = 0
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = 1
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = 10
	// ChainBSC represents the BNB Smart Chain
	ChainBSC ChainID = 56
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = 137
	// ChainFantom represents the Fantom opera network
	ChainFantom ChainID = 250
	// ChainBase represents the Base network
	ChainBase ChainID = 8453
	// ChainHardhat represents the local hardhat test network
	ChainHardhat ChainID = 31337
	// ChainArbitrum represents Arbitrum One
	ChainArbitrum ChainID = 42161
	// ChainAvalanche represents the Avalanche C-chain
	ChainAvalanche ChainID = 43114
)

// PaymentType tags how a payment was made
type PaymentType string

const (
	// PaymentTypeCard is a card payment through the hosted payment-intent API.
	// The persisted tag is "stripe" because existing user records already carry it.
	PaymentTypeCard PaymentType = "stripe"
	// PaymentTypeCrypto is a wallet-signed stablecoin transfer
	PaymentTypeCrypto PaymentType = "crypto"
)

// Payment status strings as persisted on payment records
const (
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusProcessing = "processing"
	PaymentStatusFailed     = "failed"
)

// Linked account types reported by the identity provider
const (
	AccountTypeWallet = "wallet"
	AccountTypeEmail  = "email"
)

// Wallet connector / client types
const (
	ConnectorEmbedded = "embedded"
	ConnectorInjected = "injected"
)

// CurrencyUSDC is the currency code stored for crypto payments
const CurrencyUSDC = "USDC"
