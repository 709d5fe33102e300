// Package valueobjects - Rate models commission and reserve rates.
package valueobjects

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Rate is a decimal factor in [0, 1] with at most 4 fractional digits.
// Used for commission and refund-reserve arithmetic.
type Rate struct {
	value decimal.Decimal
}

// Rate validation errors.
var (
	ErrRateOutOfRange    = errors.New("rate must be between 0 and 1")
	ErrRateTooPrecise    = errors.New("rate must have at most 4 fractional digits")
	ErrInvalidRateFormat = errors.New("invalid rate format")
)

// NewRate parses a decimal rate string, e.g. "0.03" for 3%.
func NewRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, ErrInvalidRateFormat
	}
	return newRate(d)
}

// NewRateFromFloat builds a Rate from a configuration float. The float is
// rounded to 4 fractional digits before validation, so configuration values
// like 0.03 survive binary representation.
func NewRateFromFloat(f float64) (Rate, error) {
	return newRate(decimal.NewFromFloat(f).Round(4))
}

func newRate(d decimal.Decimal) (Rate, error) {
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return Rate{}, ErrRateOutOfRange
	}
	if d.Exponent() < -4 {
		return Rate{}, ErrRateTooPrecise
	}
	return Rate{value: d}, nil
}

// MustNewRate panics on invalid input. Initialization code only.
func MustNewRate(s string) Rate {
	r, err := NewRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ApplyTo computes round(amount × rate, HALF_UP) on minor units.
//
// decimal's Round rounds half away from zero, which is HALF_UP for the
// non-negative amounts used in commission and reserve math.
func (r Rate) ApplyTo(amount Money) Money {
	fee := decimal.New(amount.Amount(), 0).Mul(r.value).Round(0)
	return NewMoney(fee.IntPart(), amount.Currency())
}

// IsZero reports whether the rate is exactly zero.
func (r Rate) IsZero() bool {
	return r.value.IsZero()
}

// Decimal returns the underlying decimal value.
func (r Rate) Decimal() decimal.Decimal {
	return r.value
}

func (r Rate) String() string {
	return r.value.String()
}
