package reconciliation

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
	"github.com/fintrellis/ledgercore/internal/application/usecases/snapshot"
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
	clock   *testutil.FixedClock
	service *group.Service

	reconcile *ReconcileUseCase
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
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = group.NewService(f.wallets, f.ledger, f.groups, f.clock, testutil.NewSequentialIDs())
	f.reconcile = NewReconcileUseCase(f.ledger, f.outbox, testutil.PassthroughUoW{}, log)
	return f
}

func (f *fixture) newFundedWallet(t *testing.T, ownerID string, minor int64) *entities.Wallet {
	t.Helper()
	ctx := context.Background()
	owner := ownerID
	w, err := entities.NewWallet(entities.WalletTypeUser, valueobjects.USD, &owner, entities.OwnerKindUser, "", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(ctx, w))

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
	return w
}

func TestReconcileBalancedBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newFundedWallet(t, "user-1", 100000)

	// An open hold is balanced too: its pair sums to zero.
	grp, err := f.service.CreateGroup(ctx, nil, nil, nil)
	require.NoError(t, err)
	_, err = f.service.HoldDebit(ctx, grp.ID(), w.ID(), valueobjects.NewMoney(10000, valueobjects.USD), "order", entities.SystemAudit())
	require.NoError(t, err)

	report, err := f.reconcile.Execute(ctx, 100)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(0), report.GrandTotal)
	assert.Empty(t, report.Violations)
	assert.NotEmpty(t, report.StatusSums)

	assert.Empty(t, f.outbox.EventsOfType(events.EventTypeReconciliationBroken))
}

func TestReconcileBalancedAfterPartialArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.newFundedWallet(t, "user-1", 100000)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	uow := testutil.PassthroughUoW{}
	snap := snapshot.NewRunSnapshotUseCase(f.ledger, uow, f.outbox, f.clock, log)
	arch := snapshot.NewRunArchiveUseCase(f.ledger, f.wallets, uow, f.outbox, f.clock, log)

	_, err := snap.Execute(ctx, 10, 100)
	require.NoError(t, err)
	f.clock.Advance(40 * 24 * time.Hour)

	// Archive one wallet only: its checkpoint now carries value that the
	// cold originals would duplicate if they still counted.
	archived, err := arch.Execute(ctx, f.clock.Now().AddDate(0, 0, -30), 1, 100)
	require.NoError(t, err)
	require.Equal(t, 1, archived)

	report, err := f.reconcile.Execute(ctx, 100)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(0), report.GrandTotal)
	assert.Empty(t, report.Violations)

	assert.Empty(t, f.outbox.EventsOfType(events.EventTypeReconciliationBroken))
}

func TestReconcileDetectsUnbalancedHoldGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newFundedWallet(t, "user-1", 100000)

	grp, err := f.service.CreateGroup(ctx, nil, nil, nil)
	require.NoError(t, err)
	_, err = f.service.HoldDebit(ctx, grp.ID(), w.ID(), valueobjects.NewMoney(10000, valueobjects.USD), "order", entities.SystemAudit())
	require.NoError(t, err)

	// A lone credit breaks both the group sum and the grand total.
	stray, err := entities.NewEntry(w.ID(), valueobjects.NewMoney(777, valueobjects.USD), entities.EntryTypeCredit, entities.EntryStatusHold, grp.ID(), "stray", entities.SystemAudit(), f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.ledger.Insert(ctx, stray))

	report, err := f.reconcile.Execute(ctx, 100)
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.Equal(t, int64(777), report.GrandTotal)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, grp.ID(), report.Violations[0].ReferenceID)
	assert.Equal(t, int64(777), report.Violations[0].Sum)

	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeReconciliationBroken))
}

func TestReconcileGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newFundedWallet(t, "user-1", 100000)
	check := NewReconcileGroupUseCase(f.groups, f.ledger)

	grp, err := f.service.CreateGroup(ctx, nil, nil, nil)
	require.NoError(t, err)
	_, err = f.service.HoldDebit(ctx, grp.ID(), w.ID(), valueobjects.NewMoney(10000, valueobjects.USD), "order", entities.SystemAudit())
	require.NoError(t, err)

	report, err := check.Execute(ctx, grp.ID())
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(0), report.Sum)

	stray, err := entities.NewEntry(w.ID(), valueobjects.NewMoney(777, valueobjects.USD), entities.EntryTypeCredit, entities.EntryStatusHold, grp.ID(), "stray", entities.SystemAudit(), f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.ledger.Insert(ctx, stray))

	report, err = check.Execute(ctx, grp.ID())
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.Equal(t, int64(777), report.Sum)

	_, err = check.Execute(ctx, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrGroupNotFound)
}

func TestReconcileReportsOnlyDoesNotRepair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.newFundedWallet(t, "user-1", 1000)

	stray, err := entities.NewEntry(w.ID(), valueobjects.NewMoney(500, valueobjects.USD), entities.EntryTypeCredit, entities.EntryStatusHold, uuid.New(), "stray", entities.SystemAudit(), f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.ledger.Insert(ctx, stray))

	before := len(f.ledger.HotEntries())
	report, err := f.reconcile.Execute(ctx, 100)
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.Len(t, f.ledger.HotEntries(), before)
}
