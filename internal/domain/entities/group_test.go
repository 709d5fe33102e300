package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
)

func TestGroupLifecycle(t *testing.T) {
	now := time.Now()
	g := NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	assert.Equal(t, GroupStatusInProgress, g.Status())
	assert.True(t, g.IsInProgress())
	assert.Nil(t, g.FinalizedAt())

	later := now.Add(time.Minute)
	require.NoError(t, g.Settle(later))
	assert.Equal(t, GroupStatusSettled, g.Status())
	assert.False(t, g.IsInProgress())
	require.NotNil(t, g.FinalizedAt())
	assert.Equal(t, later, *g.FinalizedAt())
}

func TestGroupTerminalStatesRefuseChange(t *testing.T) {
	now := time.Now()

	settled := NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, settled.Settle(now))
	assert.ErrorIs(t, settled.Settle(now), domainerrors.ErrInvalidStateTransition)
	assert.ErrorIs(t, settled.Release("r", now), domainerrors.ErrInvalidStateTransition)
	assert.ErrorIs(t, settled.Cancel("c", now), domainerrors.ErrInvalidStateTransition)

	cancelled := NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, cancelled.Cancel("buyer cancelled", now))
	assert.Equal(t, GroupStatusCancelled, cancelled.Status())
	assert.Equal(t, "buyer cancelled", cancelled.Reason())
	assert.ErrorIs(t, cancelled.Settle(now), domainerrors.ErrInvalidStateTransition)
}

func TestGroupReleaseRecordsReason(t *testing.T) {
	now := time.Now()
	g := NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, g.Release("timeout", now))
	assert.Equal(t, GroupStatusReleased, g.Status())
	assert.Equal(t, "timeout", g.Reason())
}

func TestGroupCarriesParties(t *testing.T) {
	merchant, buyer, key := "m-1", "u-1", "order-42"
	g := NewTransactionGroup(uuid.New(), &key, &merchant, &buyer, time.Now())
	require.NotNil(t, g.MerchantID())
	assert.Equal(t, merchant, *g.MerchantID())
	require.NotNil(t, g.BuyerID())
	assert.Equal(t, buyer, *g.BuyerID())
	require.NotNil(t, g.IdempotencyKey())
	assert.Equal(t, key, *g.IdempotencyKey())
}
