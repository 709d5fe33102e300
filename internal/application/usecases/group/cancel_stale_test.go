package group

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
	"github.com/fintrellis/ledgercore/internal/testutil"
)

func TestCancelStaleGroupsSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outbox := testutil.NewMemoryOutbox()
	cache := testutil.NewMemoryBalanceCache()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweep := NewCancelStaleGroupsUseCase(f.service, f.groups, testutil.PassthroughUoW{}, outbox, cache, f.clock, log)

	w := f.newUserWallet(t, "user-1", 100000)
	grp, err := f.service.CreateGroup(ctx, nil, nil, nil)
	require.NoError(t, err)
	_, err = f.service.HoldDebit(ctx, grp.ID(), w.ID(), valueobjects.NewMoney(10000, valueobjects.USD), "abandoned order", entities.SystemAudit())
	require.NoError(t, err)
	assert.Equal(t, int64(90000), f.available(t, w))

	// Too young: nothing to cancel yet.
	cancelled, err := sweep.Execute(ctx, 7*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, cancelled)

	f.clock.Advance(8 * 24 * time.Hour)
	cancelled, err = sweep.Execute(ctx, 7*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	reloaded, err := f.groups.FindByID(ctx, grp.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.GroupStatusCancelled, reloaded.Status())
	assert.Equal(t, int64(100000), f.available(t, w))
}

func TestCancelStaleGroupsSkipsReserveBacked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reserves := testutil.NewMemoryReserveStore()
	f.groups.AttachReserves(reserves)
	outbox := testutil.NewMemoryOutbox()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweep := NewCancelStaleGroupsUseCase(f.service, f.groups, testutil.PassthroughUoW{}, outbox, testutil.NewMemoryBalanceCache(), f.clock, log)

	w := f.newUserWallet(t, "merchant-1", 100000)
	grp, err := f.service.CreateGroup(ctx, nil, nil, nil)
	require.NoError(t, err)
	_, err = f.service.HoldDebit(ctx, grp.ID(), w.ID(), valueobjects.NewMoney(873, valueobjects.USD), "refund reserve", entities.SystemAudit())
	require.NoError(t, err)

	now := f.clock.Now()
	reserve, err := entities.NewRefundReserve(uuid.New(), uuid.New(), "m-1", w.ID(), valueobjects.NewMoney(873, valueobjects.USD), grp.ID(), now, now.AddDate(0, 0, 90))
	require.NoError(t, err)
	require.NoError(t, reserves.Save(ctx, reserve))

	// The reserve's backing group outlives any hold age.
	f.clock.Advance(30 * 24 * time.Hour)
	cancelled, err := sweep.Execute(ctx, 7*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, cancelled)

	reloaded, err := f.groups.FindByID(ctx, grp.ID())
	require.NoError(t, err)
	assert.True(t, reloaded.IsInProgress())
}
