// Package payment talks to the card-payment provider and converts between
// dollar amounts and the provider's minor units.
package payment

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// MinimumMinorUnits is the smallest chargeable amount in cents
const MinimumMinorUnits = 50

// MinimumMessage is shown to the shopper for amounts under the minimum
const MinimumMessage = "Amount must be at least $0.50 USD"

// ErrBelowMinimum is returned for amounts under MinimumMinorUnits
var ErrBelowMinimum = errors.New("amount below the $0.50 minimum")

// ErrAmountTooLarge is returned for amounts whose cent count does not fit in int64
var ErrAmountTooLarge = errors.New("amount too large")

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ToMinorUnits converts dollars to cents, rounding half away from zero
func ToMinorUnits(dollars decimal.Decimal) (int64, error) {
	cents := dollars.Mul(hundred).Round(0)
	if cents.GreaterThan(maxMinor) || cents.LessThan(minMinor) {
		return 0, ErrAmountTooLarge
	}
	return cents.IntPart(), nil
}

// FromMinorUnits converts cents back to a dollar amount
func FromMinorUnits(cents int64) float64 {
	f, _ := decimal.New(cents, -2).Float64()
	return f
}

// CheckMinimum returns ErrBelowMinimum when cents is not chargeable
func CheckMinimum(cents int64) error {
	if cents < MinimumMinorUnits {
		return ErrBelowMinimum
	}
	return nil
}
