package settlement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/application/usecases/snapshot"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
	"github.com/fintrellis/ledgercore/internal/testutil"
)

const merchantID = "m-1"

type fixture struct {
	wallets     *testutil.MemoryWalletStore
	groups      *testutil.MemoryGroupStore
	ledger      *testutil.MemoryLedgerStore
	settlements *testutil.MemorySettlementStore
	reserves    *testutil.MemoryReserveStore
	outbox      *testutil.MemoryOutbox
	cache       *testutil.MemoryBalanceCache
	clock       *testutil.FixedClock
	service     *group.Service

	calculate *CalculateSettlementUseCase
	execute   *ExecuteSettlementUseCase
	release   *ReleaseExpiredReservesUseCase

	merchantWallet *entities.Wallet
	buyerWallet    *entities.Wallet
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	groups := testutil.NewMemoryGroupStore()
	reserves := testutil.NewMemoryReserveStore()
	groups.AttachReserves(reserves)
	f := &fixture{
		wallets:     testutil.NewMemoryWalletStore(),
		groups:      groups,
		ledger:      testutil.NewMemoryLedgerStore(groups),
		settlements: testutil.NewMemorySettlementStore(groups),
		reserves:    reserves,
		outbox:      testutil.NewMemoryOutbox(),
		cache:       testutil.NewMemoryBalanceCache(),
		clock:       testutil.NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	ids := testutil.NewSequentialIDs()
	uow := testutil.PassthroughUoW{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = group.NewService(f.wallets, f.ledger, f.groups, f.clock, ids)
	f.calculate = NewCalculateSettlementUseCase(f.settlements, f.ledger, f.service, cfg)
	f.execute = NewExecuteSettlementUseCase(f.service, f.wallets, f.ledger, f.settlements, f.reserves, uow, f.outbox, f.cache, f.clock, ids, cfg, log)
	f.release = NewReleaseExpiredReservesUseCase(f.service, f.reserves, uow, f.outbox, f.cache, f.clock, log)

	merchant := merchantID
	mw, err := entities.NewWallet(entities.WalletTypeMerchant, valueobjects.USD, &merchant, entities.OwnerKindMerchant, "", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(ctx, mw))
	f.merchantWallet = mw

	buyer := "u-1"
	bw, err := entities.NewWallet(entities.WalletTypeUser, valueobjects.USD, &buyer, entities.OwnerKindUser, "", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(ctx, bw))
	f.buyerWallet = bw
	return f
}

func defaultConfig() Config {
	return Config{
		CommissionRate:  valueobjects.MustNewRate("0.03"),
		MinAmount:       1000,
		ReserveRate:     valueobjects.MustNewRate("0.05"),
		ReserveHoldDays: 90,
		ReserveSource:   ReserveSourceMerchant,
	}
}

// placeOrder funds the buyer, holds the amount into escrow under a merchant
// group and settles it. The money now waits on escrow for the payout.
func (f *fixture) placeOrder(t *testing.T, amount int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	source, err := f.service.EnsureSystemWallet(ctx, entities.WalletTypeSystem, entities.SystemWalletDeposit, valueobjects.USD)
	require.NoError(t, err)
	now := f.clock.Now()
	dep := entities.NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, dep.Settle(now))
	require.NoError(t, f.groups.Save(ctx, dep))
	money := valueobjects.NewMoney(amount, valueobjects.USD)
	debit, err := entities.NewEntry(source.ID(), money.Negate(), entities.EntryTypeDebit, entities.EntryStatusSettled, dep.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	credit, err := entities.NewEntry(f.buyerWallet.ID(), money, entities.EntryTypeCredit, entities.EntryStatusSettled, dep.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	require.NoError(t, f.ledger.InsertBatch(ctx, []*entities.Entry{debit, credit}))

	merchant, buyer := merchantID, "u-1"
	order, err := f.service.CreateGroup(ctx, nil, &merchant, &buyer)
	require.NoError(t, err)
	_, err = f.service.HoldDebit(ctx, order.ID(), f.buyerWallet.ID(), money, "order", entities.SystemAudit())
	require.NoError(t, err)
	_, _, err = f.service.Settle(ctx, order.ID())
	require.NoError(t, err)
	return order.ID()
}

func (f *fixture) available(t *testing.T, w *entities.Wallet) int64 {
	t.Helper()
	balance, err := f.service.BalanceOf(context.Background(), w)
	require.NoError(t, err)
	return balance.Available.Amount()
}

func executeCmd() dtos.ExecuteSettlementCommand {
	return dtos.ExecuteSettlementCommand{
		MerchantID: merchantID,
		Currency:   "USD",
		Audit:      dtos.AuditInfo{InitiatorKind: "SYSTEM", InitiatorID: "scheduler"},
	}
}

func TestCalculateSettlementPreview(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.placeOrder(t, 10000)
	f.placeOrder(t, 5000)
	f.placeOrder(t, 3000)

	preview, err := f.calculate.Execute(context.Background(), merchantID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(18000), preview.Total)
	assert.Equal(t, int64(540), preview.Fee)
	assert.Equal(t, int64(17460), preview.Net)
	assert.Equal(t, 3, preview.GroupCount)

	// A dry run writes nothing.
	assert.Equal(t, int64(0), f.available(t, f.merchantWallet))
}

func TestExecuteSettlementPaysMerchantAndLinksGroups(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	orders := []uuid.UUID{
		f.placeOrder(t, 10000),
		f.placeOrder(t, 5000),
		f.placeOrder(t, 3000),
	}

	result, err := f.execute.Execute(ctx, executeCmd())
	require.NoError(t, err)
	assert.Equal(t, string(entities.SettlementStatusCompleted), result.Status)
	assert.Equal(t, int64(18000), result.Total)
	assert.Equal(t, int64(540), result.Fee)
	assert.Equal(t, int64(17460), result.Net)
	assert.Equal(t, 3, result.GroupCount)
	assert.NotNil(t, result.GroupID)

	links, err := f.settlements.ListLinks(ctx, result.ID)
	require.NoError(t, err)
	assert.Len(t, links, 3)
	for _, orderID := range orders {
		link, err := f.settlements.FindLinkByGroup(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, result.ID, link.SettlementID)
	}

	// The commission landed on the fees wallet.
	fees, err := f.wallets.FindSystem(ctx, entities.WalletTypeSystem, entities.SystemWalletFees, valueobjects.USD)
	require.NoError(t, err)
	assert.Equal(t, int64(540), f.available(t, fees))

	// Net minus the 5% reserve hold stays spendable.
	assert.Equal(t, int64(17460-873), f.available(t, f.merchantWallet))

	reserve, err := f.reserves.FindBySettlement(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(873), reserve.Reserved().Amount())
	assert.Equal(t, entities.ReserveStatusActive, reserve.Status())
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 90), reserve.ExpiresAt())

	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeSettlementCompleted))
}

func TestSettlementPricesSnapshottedOrders(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	snap := snapshot.NewRunSnapshotUseCase(f.ledger, testutil.PassthroughUoW{}, f.outbox, f.clock, log)

	// The first order's escrow credit moves to warm before the payout runs;
	// the second stays hot. Both must price at their full amount.
	first := f.placeOrder(t, 10000)
	_, err := snap.Execute(ctx, 10, 100)
	require.NoError(t, err)
	second := f.placeOrder(t, 8000)

	result, err := f.execute.Execute(ctx, executeCmd())
	require.NoError(t, err)
	assert.Equal(t, int64(18000), result.Total)
	assert.Equal(t, 2, result.GroupCount)

	for orderID, want := range map[uuid.UUID]int64{first: 10000, second: 8000} {
		link, err := f.settlements.FindLinkByGroup(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, want, link.Amount.Amount())
	}
}

func TestExecuteSettlementSameDayReplaysCompleted(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.placeOrder(t, 10000)

	first, err := f.execute.Execute(ctx, executeCmd())
	require.NoError(t, err)
	second, err := f.execute.Execute(ctx, executeCmd())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// The replay paid nothing out twice.
	assert.Equal(t, first.Net-485, f.available(t, f.merchantWallet)) // 9700 net, 485 reserved
}

func TestExecuteSettlementSkipsAlreadySettledGroups(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.placeOrder(t, 10000)

	_, err := f.execute.Execute(ctx, executeCmd())
	require.NoError(t, err)

	// Next day there is nothing left: the payout's own group carries no
	// merchant id and never re-enters the scan.
	f.clock.Advance(24 * time.Hour)
	_, err = f.execute.Execute(ctx, executeCmd())
	assert.ErrorIs(t, err, domainerrors.ErrNoUnsettledGroups)
}

func TestExecuteSettlementBelowMinimum(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.placeOrder(t, 500)

	_, err := f.execute.Execute(context.Background(), executeCmd())
	assert.ErrorIs(t, err, domainerrors.ErrBelowMinimum)
}

func TestDoubleSettlementGateOnLinks(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	orderID := f.placeOrder(t, 10000)

	result, err := f.execute.Execute(ctx, executeCmd())
	require.NoError(t, err)

	err = f.settlements.InsertLinks(ctx, []entities.SettlementLink{{
		SettlementID: result.ID,
		GroupID:      orderID,
		Amount:       valueobjects.NewMoney(10000, valueobjects.USD),
	}})
	assert.ErrorIs(t, err, domainerrors.ErrDoubleSettlement)
}

func TestReleaseExpiredReserves(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	f.placeOrder(t, 18000)

	result, err := f.execute.Execute(ctx, executeCmd())
	require.NoError(t, err)
	net := result.Net
	reserved := int64(873) // 5% of 17460, HALF_UP
	assert.Equal(t, net-reserved, f.available(t, f.merchantWallet))

	// Before expiry the sweep does nothing.
	released, err := f.release.Execute(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	f.clock.Advance(91 * 24 * time.Hour)
	released, err = f.release.Execute(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	reserve, err := f.reserves.FindBySettlement(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ReserveStatusReleased, reserve.Status())

	// Releasing the backing hold restores the full net.
	assert.Equal(t, net, f.available(t, f.merchantWallet))
	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeReserveReleased))
}
