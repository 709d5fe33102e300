package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

func usd(minor int64) valueobjects.Money {
	return valueobjects.NewMoney(minor, valueobjects.USD)
}

func TestNewSettlementArithmeticGuard(t *testing.T) {
	rate := valueobjects.MustNewRate("0.03")
	now := time.Now()

	s, err := NewSettlement(uuid.New(), "m-1", usd(18000), usd(540), usd(17460), rate, 3, nil, now)
	require.NoError(t, err)
	assert.Equal(t, SettlementStatusPending, s.Status())
	assert.Equal(t, 3, s.GroupCount())

	// fee + net must recompose the total.
	_, err = NewSettlement(uuid.New(), "m-1", usd(18000), usd(540), usd(17461), rate, 3, nil, now)
	var iv *domainerrors.InvariantViolation
	assert.ErrorAs(t, err, &iv)

	_, err = NewSettlement(uuid.New(), "m-1", usd(-1), usd(0), usd(-1), rate, 1, nil, now)
	assert.ErrorAs(t, err, &iv)

	_, err = NewSettlement(uuid.New(), "m-1", usd(1000), usd(30), usd(970), rate, 0, nil, now)
	var ve domainerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSettlementCompletion(t *testing.T) {
	rate := valueobjects.MustNewRate("0.03")
	now := time.Now()
	s, err := NewSettlement(uuid.New(), "m-1", usd(1000), usd(30), usd(970), rate, 1, nil, now)
	require.NoError(t, err)

	groupID := uuid.New()
	require.NoError(t, s.AttachGroup(groupID))
	require.NoError(t, s.MarkCompleted(now))
	assert.Equal(t, SettlementStatusCompleted, s.Status())
	require.NotNil(t, s.GroupID())
	assert.Equal(t, groupID, *s.GroupID())
	assert.NotNil(t, s.SettledAt())

	// Terminal rows never change again.
	assert.Error(t, s.MarkCompleted(now))
	assert.Error(t, s.MarkFailed())
}

func TestReserveConsume(t *testing.T) {
	now := time.Now()
	r, err := NewRefundReserve(uuid.New(), uuid.New(), "m-1", 9, usd(873), uuid.New(), now, now.AddDate(0, 0, 90))
	require.NoError(t, err)
	assert.Equal(t, ReserveStatusActive, r.Status())
	assert.Equal(t, int64(873), r.Available().Amount())

	require.NoError(t, r.Consume(usd(500)))
	assert.Equal(t, ReserveStatusPartiallyUsed, r.Status())
	assert.Equal(t, int64(373), r.Available().Amount())

	// Consumption caps at what is left; the surplus never touches the
	// reserve bookkeeping.
	require.NoError(t, r.Consume(usd(500)))
	assert.Equal(t, ReserveStatusFullyUsed, r.Status())
	assert.True(t, r.Available().IsZero())
	assert.Equal(t, int64(873), r.Used().Amount())

	// A fully used reserve is out of play.
	assert.Error(t, r.Consume(usd(1)))
}

func TestReserveRelease(t *testing.T) {
	now := time.Now()
	expires := now.AddDate(0, 0, 90)
	r, err := NewRefundReserve(uuid.New(), uuid.New(), "m-1", 9, usd(1000), uuid.New(), now, expires)
	require.NoError(t, err)

	assert.False(t, r.IsExpired(expires.Add(-time.Hour)))
	assert.True(t, r.IsExpired(expires.Add(time.Hour)))

	require.NoError(t, r.Release(expires.Add(time.Hour)))
	assert.Equal(t, ReserveStatusReleased, r.Status())
	assert.NotNil(t, r.ReleasedAt())

	// A released reserve is out of play.
	assert.Error(t, r.Consume(usd(1)))
	assert.Error(t, r.Release(expires))
}
