package valueobjects

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyAdd(t *testing.T) {
	a := NewMoney(10000, USD)
	b := NewMoney(-2500, USD)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), sum.Amount())
	assert.Equal(t, "USD", sum.Currency().Code())
}

func TestMoneyAddCurrencyMismatch(t *testing.T) {
	a := NewMoney(100, USD)
	b := NewMoney(100, EUR)

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoneyAddOverflow(t *testing.T) {
	a := NewMoney(math.MaxInt64, USD)
	b := NewMoney(1, USD)

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	c := NewMoney(math.MinInt64, USD)
	d := NewMoney(-1, USD)
	_, err = c.Add(d)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestMoneySub(t *testing.T) {
	a := NewMoney(10000, USD)
	b := NewMoney(300, USD)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(9700), diff.Amount())
}

func TestMoneyNegateAndAbs(t *testing.T) {
	m := NewMoney(2500, USD)
	assert.Equal(t, int64(-2500), m.Negate().Amount())
	assert.Equal(t, int64(2500), m.Negate().Abs().Amount())
	assert.True(t, m.IsPositive())
	assert.True(t, m.Negate().IsNegative())
	assert.True(t, ZeroMoney(USD).IsZero())
}

func TestMoneyCmp(t *testing.T) {
	a := NewMoney(100, USD)
	b := NewMoney(200, USD)

	c, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	ge, err := b.GreaterThanOrEqual(a)
	require.NoError(t, err)
	assert.True(t, ge)

	_, err = a.Cmp(NewMoney(100, EUR))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "250.00 USD", NewMoney(25000, USD).String())
	assert.Equal(t, "-1.05 USD", NewMoney(-105, USD).String())
	assert.Equal(t, "500 JPY", NewMoney(500, JPY).String())
}

func TestMoneyMarshalJSON(t *testing.T) {
	data, err := NewMoney(540, USD).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":540,"currency":"USD"}`, string(data))
}
