package snapshot

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
	"github.com/fintrellis/ledgercore/internal/testutil"
)

type fixture struct {
	wallets *testutil.MemoryWalletStore
	groups  *testutil.MemoryGroupStore
	ledger  *testutil.MemoryLedgerStore
	outbox  *testutil.MemoryOutbox
	clock   *testutil.FixedClock
	service *group.Service

	snapshot *RunSnapshotUseCase
	archive  *RunArchiveUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	groups := testutil.NewMemoryGroupStore()
	f := &fixture{
		wallets: testutil.NewMemoryWalletStore(),
		groups:  groups,
		ledger:  testutil.NewMemoryLedgerStore(groups),
		outbox:  testutil.NewMemoryOutbox(),
		clock:   testutil.NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	uow := testutil.PassthroughUoW{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = group.NewService(f.wallets, f.ledger, f.groups, f.clock, testutil.NewSequentialIDs())
	f.snapshot = NewRunSnapshotUseCase(f.ledger, uow, f.outbox, f.clock, log)
	f.archive = NewRunArchiveUseCase(f.ledger, f.wallets, uow, f.outbox, f.clock, log)
	return f
}

func (f *fixture) newUserWallet(t *testing.T, ownerID string) *entities.Wallet {
	t.Helper()
	owner := ownerID
	w, err := entities.NewWallet(entities.WalletTypeUser, valueobjects.USD, &owner, entities.OwnerKindUser, "", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(context.Background(), w))
	return w
}

// fund writes a settled deposit pair, so both legs are immediately eligible
// for the snapshot pass.
func (f *fixture) fund(t *testing.T, w *entities.Wallet, minor int64) {
	t.Helper()
	ctx := context.Background()
	source, err := f.service.EnsureSystemWallet(ctx, entities.WalletTypeSystem, entities.SystemWalletDeposit, valueobjects.USD)
	require.NoError(t, err)

	now := f.clock.Now()
	grp := entities.NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, grp.Settle(now))
	require.NoError(t, f.groups.Save(ctx, grp))

	amount := valueobjects.NewMoney(minor, valueobjects.USD)
	debit, err := entities.NewEntry(source.ID(), amount.Negate(), entities.EntryTypeDebit, entities.EntryStatusSettled, grp.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	credit, err := entities.NewEntry(w.ID(), amount, entities.EntryTypeCredit, entities.EntryStatusSettled, grp.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	require.NoError(t, f.ledger.InsertBatch(ctx, []*entities.Entry{debit, credit}))
}

func (f *fixture) available(t *testing.T, w *entities.Wallet) int64 {
	t.Helper()
	balance, err := f.service.BalanceOf(context.Background(), w)
	require.NoError(t, err)
	return balance.Available.Amount()
}

func TestRunSnapshotMovesFinalizedKeepsOpenHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newUserWallet(t, "user-1")
	f.fund(t, w, 100000)

	// An open hold must stay hot: its group can still cancel.
	open, err := f.service.CreateGroup(ctx, nil, nil, nil)
	require.NoError(t, err)
	_, err = f.service.HoldDebit(ctx, open.ID(), w.ID(), valueobjects.NewMoney(10000, valueobjects.USD), "order", entities.SystemAudit())
	require.NoError(t, err)

	moved, err := f.snapshot.Execute(ctx, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, moved) // the deposit pair, one leg per wallet

	wantDate := f.clock.Now().Truncate(24 * time.Hour)
	for _, e := range f.ledger.WarmEntries() {
		assert.Equal(t, entities.EntryStatusSettled, e.Status())
		require.NotNil(t, e.SnapshotDate())
		assert.Equal(t, wantDate, *e.SnapshotDate())
	}
	for _, e := range f.ledger.HotEntries() {
		assert.Equal(t, entities.EntryStatusHold, e.Status())
		assert.Equal(t, open.ID(), e.ReferenceID())
	}

	// Balances read across tiers; moving entries changes nothing.
	balance, err := f.service.BalanceOf(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance.Total.Amount())
	assert.Equal(t, int64(10000), balance.HeldDebit.Amount())
	assert.Equal(t, int64(90000), balance.Available.Amount())

	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeSnapshotCompleted))
}

func TestRunSnapshotSecondPassMovesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newUserWallet(t, "user-1")
	f.fund(t, w, 5000)

	moved, err := f.snapshot.Execute(ctx, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	moved, err = f.snapshot.Execute(ctx, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestRunArchiveCollapsesWarmIntoCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newUserWallet(t, "user-1")
	f.fund(t, w, 100000)
	f.fund(t, w, 50000)

	moved, err := f.snapshot.Execute(ctx, 10, 100)
	require.NoError(t, err)
	require.Equal(t, 4, moved)

	f.clock.Advance(40 * 24 * time.Hour)
	cutoff := f.clock.Now().AddDate(0, 0, -30)
	archived, err := f.archive.Execute(ctx, cutoff, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, archived)

	// The wallet's two deposits collapse into one synthetic row.
	var checkpoint *entities.Entry
	for _, e := range f.ledger.WarmEntries() {
		if e.IsCheckpoint() && e.WalletID() == w.ID() {
			require.Nil(t, checkpoint, "expected exactly one checkpoint for the wallet")
			checkpoint = e
		}
	}
	require.NotNil(t, checkpoint)
	assert.Equal(t, int64(150000), checkpoint.Amount().Amount())
	assert.Equal(t, entities.EntryTypeLedger, checkpoint.Type())
	assert.Equal(t, entities.EntryStatusSettled, checkpoint.Status())

	// Originals survive in the cold tier and stay reachable through tracking.
	var coldForWallet int
	for _, e := range f.ledger.ColdEntries() {
		if e.WalletID() == w.ID() {
			coldForWallet++
		}
	}
	assert.Equal(t, 2, coldForWallet)
	assert.Len(t, f.ledger.Tracking(checkpoint.ReferenceID()), 2)

	// The balance is unchanged: the checkpoint carries it now.
	assert.Equal(t, int64(150000), f.available(t, w))

	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeArchiveCompleted))
}

func TestRunArchiveLeavesRecentWarmAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newUserWallet(t, "user-1")
	f.fund(t, w, 5000)

	_, err := f.snapshot.Execute(ctx, 10, 100)
	require.NoError(t, err)

	// The rows were snapshotted today; a 30 day cutoff skips them.
	cutoff := f.clock.Now().AddDate(0, 0, -30)
	archived, err := f.archive.Execute(ctx, cutoff, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, archived)
	assert.Empty(t, f.ledger.ColdEntries())
}
