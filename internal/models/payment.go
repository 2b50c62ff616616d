package models

import (
	"time"

	"github.com/web3-storefront/internal/types"
)

// SubscriptionPeriod is how long a recorded payment grants access
const SubscriptionPeriod = 30 * 24 * time.Hour

// PaymentRecord is one append-only payment log entry
type PaymentRecord struct {
	IDHash             string            `json:"id_hash"`
	ChainID            types.ChainID     `json:"chainId"`
	Amount             float64           `json:"amount"`
	Currency           string            `json:"currency"`
	Status             string            `json:"status"`
	Type               types.PaymentType `json:"type"`
	Timestamp          time.Time         `json:"timestamp"`
	SubscriptionID     string            `json:"subscriptionId"`
	Subscription       bool              `json:"subscription"`
	SubscriptionEndsAt time.Time         `json:"subscriptionEndsAt"`
	ProductID          string            `json:"productId"`
	ProductDownloaded  bool              `json:"productDownloaded"`
}

// NewPaymentRecord fills the subscription bookkeeping defaults: no subscription id,
// no product, access ending SubscriptionPeriod after now.
func NewPaymentRecord(idHash string, chainID types.ChainID, amount float64, currency, status string, paymentType types.PaymentType, timestamp, now time.Time) PaymentRecord {
	return PaymentRecord{
		IDHash:             idHash,
		ChainID:            chainID,
		Amount:             amount,
		Currency:           currency,
		Status:             status,
		Type:               paymentType,
		Timestamp:          timestamp,
		SubscriptionEndsAt: now.Add(SubscriptionPeriod),
	}
}
