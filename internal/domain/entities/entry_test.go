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

func TestNewEntrySignCoupling(t *testing.T) {
	ref := uuid.New()
	now := time.Now()
	audit := SystemAudit()

	// DEBIT must be strictly negative.
	_, err := NewEntry(1, valueobjects.NewMoney(100, valueobjects.USD), EntryTypeDebit, EntryStatusHold, ref, "", audit, now)
	require.Error(t, err)
	var iv *domainerrors.InvariantViolation
	assert.ErrorAs(t, err, &iv)

	_, err = NewEntry(1, valueobjects.NewMoney(0, valueobjects.USD), EntryTypeDebit, EntryStatusHold, ref, "", audit, now)
	require.Error(t, err)

	// CREDIT must be strictly positive.
	_, err = NewEntry(1, valueobjects.NewMoney(-100, valueobjects.USD), EntryTypeCredit, EntryStatusHold, ref, "", audit, now)
	require.Error(t, err)

	// LEDGER carries any sign, including zero.
	_, err = NewEntry(1, valueobjects.NewMoney(0, valueobjects.USD), EntryTypeLedger, EntryStatusSettled, ref, "", audit, now)
	assert.NoError(t, err)

	debit, err := NewEntry(1, valueobjects.NewMoney(-100, valueobjects.USD), EntryTypeDebit, EntryStatusHold, ref, "hold", audit, now)
	require.NoError(t, err)
	assert.True(t, debit.IsHoldDebit())
	assert.Nil(t, debit.ConfirmedAt())
}

func TestNewEntryRequiresReference(t *testing.T) {
	_, err := NewEntry(1, valueobjects.NewMoney(100, valueobjects.USD), EntryTypeCredit, EntryStatusHold, uuid.Nil, "", SystemAudit(), time.Now())
	var ve domainerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestParseEntryStatusRefusesLegacyNames(t *testing.T) {
	for _, legacy := range []string{"RESERVE", "CONFIRMED", "REJECTED", "reserve", " confirmed "} {
		_, err := ParseEntryStatus(legacy)
		assert.ErrorIs(t, err, domainerrors.ErrLegacyStatusName, "status %q", legacy)
	}

	status, err := ParseEntryStatus("hold")
	require.NoError(t, err)
	assert.Equal(t, EntryStatusHold, status)

	_, err = ParseEntryStatus("FROZEN")
	var ve domainerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSettledCopyKeepsSignAndType(t *testing.T) {
	ref := uuid.New()
	now := time.Now()
	hold, err := NewEntry(7, valueobjects.NewMoney(-2500, valueobjects.USD), EntryTypeDebit, EntryStatusHold, ref, "transfer", SystemAudit(), now)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	settled, err := hold.SettledCopy(later)
	require.NoError(t, err)
	assert.Equal(t, int64(-2500), settled.Amount().Amount())
	assert.Equal(t, EntryTypeDebit, settled.Type())
	assert.Equal(t, EntryStatusSettled, settled.Status())
	assert.Equal(t, ref, settled.ReferenceID())
	require.NotNil(t, settled.ConfirmedAt())
	assert.Equal(t, later, *settled.ConfirmedAt())

	// The original stays an outstanding hold.
	assert.Equal(t, EntryStatusHold, hold.Status())

	// A settled entry cannot be settled again.
	_, err = settled.SettledCopy(later)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)
}

func TestOffsetNegatesAndFlips(t *testing.T) {
	ref := uuid.New()
	now := time.Now()
	hold, err := NewEntry(7, valueobjects.NewMoney(-10000, valueobjects.USD), EntryTypeDebit, EntryStatusHold, ref, "hold", SystemAudit(), now)
	require.NoError(t, err)

	offset, err := hold.Offset(EntryStatusCancelled, "buyer cancelled", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), offset.Amount().Amount())
	assert.Equal(t, EntryTypeCredit, offset.Type())
	assert.Equal(t, EntryStatusCancelled, offset.Status())
	assert.Equal(t, ref, offset.ReferenceID())

	// Only RELEASED and CANCELLED are legal offset statuses.
	_, err = hold.Offset(EntryStatusSettled, "", now)
	var ve domainerrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	// An offset cannot itself be offset.
	_, err = offset.Offset(EntryStatusReleased, "", now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidStateTransition)
}

func TestSetIDPanicsOnReassignment(t *testing.T) {
	e, err := NewEntry(1, valueobjects.NewMoney(100, valueobjects.USD), EntryTypeCredit, EntryStatusHold, uuid.New(), "", SystemAudit(), time.Now())
	require.NoError(t, err)
	e.SetID(42)
	assert.Panics(t, func() { e.SetID(43) })
}
