package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

func TestNewWalletOwnership(t *testing.T) {
	owner := "user-1"
	now := time.Now()

	w, err := NewWallet(WalletTypeUser, valueobjects.USD, &owner, OwnerKindUser, "", now)
	require.NoError(t, err)
	assert.Equal(t, WalletTypeUser, w.Type())
	require.NotNil(t, w.OwnerID())
	assert.Equal(t, owner, *w.OwnerID())

	// USER and MERCHANT wallets must carry an owner.
	_, err = NewWallet(WalletTypeUser, valueobjects.USD, nil, OwnerKindUser, "", now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidOwnership)
	_, err = NewWallet(WalletTypeMerchant, valueobjects.USD, nil, OwnerKindMerchant, "", now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidOwnership)

	// Owner kind must match the wallet type.
	_, err = NewWallet(WalletTypeMerchant, valueobjects.USD, &owner, OwnerKindUser, "", now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidOwnership)

	// ESCROW and SYSTEM wallets are ownerless singletons.
	_, err = NewWallet(WalletTypeEscrow, valueobjects.USD, &owner, OwnerKindSystem, SystemWalletEscrow, now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidOwnership)

	escrow, err := NewWallet(WalletTypeEscrow, valueobjects.USD, nil, OwnerKindSystem, SystemWalletEscrow, now)
	require.NoError(t, err)
	assert.Nil(t, escrow.OwnerID())
	assert.True(t, escrow.IsSystemOwned())
}

func TestNewWalletRequiresCurrency(t *testing.T) {
	owner := "user-1"
	var unset valueobjects.Currency
	_, err := NewWallet(WalletTypeUser, unset, &owner, OwnerKindUser, "", time.Now())
	assert.Error(t, err)
}

func TestWalletSetIDPanicsOnReassignment(t *testing.T) {
	owner := "user-1"
	w, err := NewWallet(WalletTypeUser, valueobjects.USD, &owner, OwnerKindUser, "", time.Now())
	require.NoError(t, err)
	w.SetID(1)
	assert.Panics(t, func() { w.SetID(2) })
}
