package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
	"github.com/fintrellis/ledgercore/internal/testutil"
)

type fixture struct {
	wallets *testutil.MemoryWalletStore
	groups  *testutil.MemoryGroupStore
	ledger  *testutil.MemoryLedgerStore
	outbox  *testutil.MemoryOutbox
	cache   *testutil.MemoryBalanceCache
	clock   *testutil.FixedClock
	service *group.Service

	transfer *TransferUseCase
	direct   *DirectTransferUseCase
	deposit  *DepositUseCase
	withdraw *WithdrawUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	groups := testutil.NewMemoryGroupStore()
	f := &fixture{
		wallets: testutil.NewMemoryWalletStore(),
		groups:  groups,
		ledger:  testutil.NewMemoryLedgerStore(groups),
		outbox:  testutil.NewMemoryOutbox(),
		cache:   testutil.NewMemoryBalanceCache(),
		clock:   testutil.NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	ids := testutil.NewSequentialIDs()
	uow := testutil.PassthroughUoW{}
	f.service = group.NewService(f.wallets, f.ledger, f.groups, f.clock, ids)
	f.transfer = NewTransferUseCase(f.service, f.groups, f.ledger, uow, f.outbox, f.cache)
	f.direct = NewDirectTransferUseCase(f.service, f.wallets, f.groups, f.ledger, uow, f.outbox, f.cache, f.clock, ids)
	f.deposit = NewDepositUseCase(f.service, f.wallets, f.groups, f.ledger, uow, f.outbox, f.cache, f.clock, ids)
	f.withdraw = NewWithdrawUseCase(f.service, f.groups, f.ledger, uow, f.outbox, f.cache)
	return f
}

func (f *fixture) newUserWallet(t *testing.T, ownerID string) *dtos.WalletDTO {
	t.Helper()
	owner := ownerID
	w, err := entities.NewWallet(entities.WalletTypeUser, valueobjects.USD, &owner, entities.OwnerKindUser, "", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(context.Background(), w))
	return dtos.MapWalletToDTO(w)
}

func (f *fixture) depositTo(t *testing.T, walletID, amount int64) {
	t.Helper()
	_, err := f.deposit.Execute(context.Background(), dtos.DepositCommand{
		WalletID: walletID,
		Amount:   amount,
		Currency: "USD",
		Audit:    dtos.AuditInfo{InitiatorKind: "SYSTEM", InitiatorID: "test"},
	})
	require.NoError(t, err)
}

func (f *fixture) available(t *testing.T, walletID int64) int64 {
	t.Helper()
	ctx := context.Background()
	w, err := f.wallets.FindByID(ctx, walletID)
	require.NoError(t, err)
	balance, err := f.service.BalanceOf(ctx, w)
	require.NoError(t, err)
	return balance.Available.Amount()
}

func TestTransferMovesFundsThroughEscrow(t *testing.T) {
	f := newFixture(t)
	source := f.newUserWallet(t, "user-1")
	dest := f.newUserWallet(t, "user-2")
	f.depositTo(t, source.ID, 100000)

	result, err := f.transfer.Execute(context.Background(), dtos.TransferCommand{
		SourceWalletID: source.ID,
		DestWalletID:   dest.ID,
		Amount:         25000,
		Currency:       "USD",
		Description:    "order payment",
		Audit:          dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(entities.GroupStatusSettled), result.Status)
	// Two holds through escrow plus their four settled copies.
	assert.Len(t, result.Entries, 8)

	assert.Equal(t, int64(75000), f.available(t, source.ID))
	assert.Equal(t, int64(25000), f.available(t, dest.ID))

	settledEvents := f.outbox.EventsOfType(events.EventTypeGroupSettled)
	assert.NotEmpty(t, settledEvents)
	assert.Contains(t, f.cache.Invalidated, source.ID)
	assert.Contains(t, f.cache.Invalidated, dest.ID)
}

func TestTransferInsufficientFundsMovesNothing(t *testing.T) {
	f := newFixture(t)
	source := f.newUserWallet(t, "user-1")
	dest := f.newUserWallet(t, "user-2")
	f.depositTo(t, source.ID, 1000)

	_, err := f.transfer.Execute(context.Background(), dtos.TransferCommand{
		SourceWalletID: source.ID,
		DestWalletID:   dest.ID,
		Amount:         2000,
		Currency:       "USD",
		Audit:          dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: "user-1"},
	})
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientFunds)
	assert.Equal(t, int64(1000), f.available(t, source.ID))
	assert.Equal(t, int64(0), f.available(t, dest.ID))
}

func TestTransferRejectsSameWallet(t *testing.T) {
	f := newFixture(t)
	w := f.newUserWallet(t, "user-1")

	_, err := f.transfer.Execute(context.Background(), dtos.TransferCommand{
		SourceWalletID: w.ID,
		DestWalletID:   w.ID,
		Amount:         100,
		Currency:       "USD",
	})
	var ve domainerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTransferCrossCurrencyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := f.newUserWallet(t, "user-1")
	f.depositTo(t, source.ID, 10000)

	owner := "user-2"
	eurWallet, err := entities.NewWallet(entities.WalletTypeUser, valueobjects.EUR, &owner, entities.OwnerKindUser, "", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(ctx, eurWallet))

	_, err = f.transfer.Execute(ctx, dtos.TransferCommand{
		SourceWalletID: source.ID,
		DestWalletID:   eurWallet.ID(),
		Amount:         5000,
		Currency:       "USD",
		Audit:          dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: "user-1"},
	})
	assert.ErrorIs(t, err, domainerrors.ErrCurrencyMismatch)
}

func TestTransferIdempotencyReplay(t *testing.T) {
	f := newFixture(t)
	source := f.newUserWallet(t, "user-1")
	dest := f.newUserWallet(t, "user-2")
	f.depositTo(t, source.ID, 50000)

	cmd := dtos.TransferCommand{
		IdempotencyKey: "order-42",
		SourceWalletID: source.ID,
		DestWalletID:   dest.ID,
		Amount:         20000,
		Currency:       "USD",
		Audit:          dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: "user-1"},
	}
	first, err := f.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)
	second, err := f.transfer.Execute(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// The replay moved nothing.
	assert.Equal(t, int64(30000), f.available(t, source.ID))
	assert.Equal(t, int64(20000), f.available(t, dest.ID))
}

func TestDirectTransferSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	source := f.newUserWallet(t, "user-1")
	dest := f.newUserWallet(t, "user-2")
	f.depositTo(t, source.ID, 10000)

	result, err := f.direct.Execute(context.Background(), dtos.DirectTransferCommand{
		SourceWalletID: source.ID,
		DestWalletID:   dest.ID,
		Amount:         4000,
		Currency:       "USD",
		Audit:          dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(entities.GroupStatusSettled), result.Status)
	// No escrow leg: exactly one settled pair.
	require.Len(t, result.Entries, 2)
	assert.Equal(t, string(entities.EntryStatusSettled), result.Entries[0].Status)

	assert.Equal(t, int64(6000), f.available(t, source.ID))
	assert.Equal(t, int64(4000), f.available(t, dest.ID))
}

func TestDepositFromSystemSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newUserWallet(t, "user-1")

	result, err := f.deposit.Execute(ctx, dtos.DepositCommand{
		WalletID: w.ID,
		Amount:   100000,
		Currency: "USD",
		Audit:    dtos.AuditInfo{InitiatorKind: "SYSTEM", InitiatorID: "gateway"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(entities.GroupStatusSettled), result.Status)
	assert.Equal(t, int64(100000), f.available(t, w.ID))

	// The deposit source runs negative by design; it mirrors total inflow.
	source, err := f.wallets.FindSystem(ctx, entities.WalletTypeSystem, entities.SystemWalletDeposit, valueobjects.USD)
	require.NoError(t, err)
	assert.Equal(t, int64(-100000), f.available(t, source.ID()))

	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeDepositCompleted))
}

func TestWithdrawGatesOnAvailableFunds(t *testing.T) {
	f := newFixture(t)
	w := f.newUserWallet(t, "user-1")
	f.depositTo(t, w.ID, 5000)

	_, err := f.withdraw.Execute(context.Background(), dtos.WithdrawCommand{
		WalletID: w.ID,
		Amount:   6000,
		Currency: "USD",
		Audit:    dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: "user-1"},
	})
	assert.ErrorIs(t, err, domainerrors.ErrInsufficientFunds)

	result, err := f.withdraw.Execute(context.Background(), dtos.WithdrawCommand{
		WalletID: w.ID,
		Amount:   5000,
		Currency: "USD",
		Audit:    dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(entities.GroupStatusSettled), result.Status)
	assert.Equal(t, int64(0), f.available(t, w.ID))
	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeWithdrawalCompleted))
}
