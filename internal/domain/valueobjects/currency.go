// Package valueobjects contains immutable value objects that represent domain
// concepts without identity. They are compared by their values.
package valueobjects

import (
	"errors"
	"strings"
)

// Currency represents a monetary currency code (ISO 4217).
// It is a value object: immutable and validated on creation.
type Currency struct {
	code string
}

// Predefined currencies used across the ledger.
var (
	USD = Currency{code: "USD"}
	EUR = Currency{code: "EUR"}
	GBP = Currency{code: "GBP"}
	JPY = Currency{code: "JPY"}
	CHF = Currency{code: "CHF"}
)

// minorUnits maps currency codes to the number of fractional digits of the
// minor unit. Currencies not listed default to 2.
var minorUnits = map[string]int{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CHF": 2,
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
}

// supportedCurrencies is the whitelist of codes the ledger accepts.
var supportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"JPY": true,
	"CHF": true,
	"KRW": true,
	"BHD": true,
	"KWD": true,
}

// ErrInvalidCurrency is returned when an unknown currency code is provided.
var ErrInvalidCurrency = errors.New("invalid currency code")

// NewCurrency creates a Currency with validation.
func NewCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !supportedCurrencies[code] {
		return Currency{}, ErrInvalidCurrency
	}
	return Currency{code: code}, nil
}

// MustNewCurrency panics on an invalid code. Use only in initialization code
// where an invalid code indicates a programming error.
func MustNewCurrency(code string) Currency {
	c, err := NewCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the ISO 4217 currency code.
func (c Currency) Code() string {
	return c.code
}

// MinorUnitDigits returns the number of fractional digits of the minor unit.
func (c Currency) MinorUnitDigits() int {
	if d, ok := minorUnits[c.code]; ok {
		return d
	}
	return 2
}

// Equals compares two currencies by code.
func (c Currency) Equals(other Currency) bool {
	return c.code == other.code
}

// IsZero reports whether the currency is the zero value (unset).
func (c Currency) IsZero() bool {
	return c.code == ""
}

// MarshalJSON serializes the currency as its bare code.
func (c Currency) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.code + `"`), nil
}

func (c Currency) String() string {
	return c.code
}
