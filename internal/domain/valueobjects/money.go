// Package valueobjects - Money is the monetary amount used throughout the
// ledger. All amounts are signed 64-bit integers in the minor unit of their
// currency; no floating-point arithmetic appears anywhere in the ledger.
package valueobjects

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money combines a signed amount in minor units with a currency.
//
// Value object: immutable, self-validating, type-safe. Negative amounts are
// legal; the sign carries the debit/credit direction of a ledger entry.
type Money struct {
	amount   int64
	currency Currency
}

// Common domain errors for Money operations.
var (
	ErrCurrencyMismatch = errors.New("cannot operate on different currencies")
	ErrAmountOverflow   = errors.New("amount overflows int64")
)

// NewMoney creates Money from minor units (cents for USD).
func NewMoney(minor int64, currency Currency) Money {
	return Money{amount: minor, currency: currency}
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency Currency) Money {
	return Money{amount: 0, currency: currency}
}

// Amount returns the signed amount in minor units.
func (m Money) Amount() int64 {
	return m.amount
}

// Currency returns the currency of this amount.
func (m Money) Currency() Currency {
	return m.currency
}

// Add returns the sum of two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if !m.currency.Equals(other.currency) {
		return Money{}, ErrCurrencyMismatch
	}
	sum := m.amount + other.amount
	// Overflow check: adding operands of the same sign must not flip the sign.
	if (m.amount > 0 && other.amount > 0 && sum < 0) ||
		(m.amount < 0 && other.amount < 0 && sum > 0) {
		return Money{}, ErrAmountOverflow
	}
	return Money{amount: sum, currency: m.currency}, nil
}

// Sub returns the difference of two amounts of the same currency.
func (m Money) Sub(other Money) (Money, error) {
	if !m.currency.Equals(other.currency) {
		return Money{}, ErrCurrencyMismatch
	}
	return m.Add(Money{amount: -other.amount, currency: other.currency})
}

// Negate returns the amount with the sign flipped. Used to build offsetting
// entries when a hold is released or cancelled.
func (m Money) Negate() Money {
	return Money{amount: -m.amount, currency: m.currency}
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	if m.amount < 0 {
		return m.Negate()
	}
	return m
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.amount == 0
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.amount > 0
}

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool {
	return m.amount < 0
}

// Cmp compares two amounts of the same currency. Returns -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if !m.currency.Equals(other.currency) {
		return 0, ErrCurrencyMismatch
	}
	switch {
	case m.amount < other.amount:
		return -1, nil
	case m.amount > other.amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// GreaterThanOrEqual reports whether m >= other.
func (m Money) GreaterThanOrEqual(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c >= 0, nil
}

// Equals compares amount and currency.
func (m Money) Equals(other Money) bool {
	return m.currency.Equals(other.currency) && m.amount == other.amount
}

// MarshalJSON serializes the amount in minor units with its currency code.
// Used by the event outbox.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}{Amount: m.amount, Currency: m.currency.Code()})
}

// String returns a human-readable representation, e.g. "250.00 USD".
func (m Money) String() string {
	d := decimal.New(m.amount, -int32(m.currency.MinorUnitDigits()))
	return fmt.Sprintf("%s %s", d.StringFixed(int32(m.currency.MinorUnitDigits())), m.currency.Code())
}
