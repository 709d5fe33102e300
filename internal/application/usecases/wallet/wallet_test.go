package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
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

	create  *CreateWalletUseCase
	balance *GetBalanceUseCase
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
	f.service = group.NewService(f.wallets, f.ledger, f.groups, f.clock, ids)
	f.create = NewCreateWalletUseCase(f.wallets, f.service, f.groups, f.ledger, testutil.PassthroughUoW{}, f.outbox, f.clock, ids)
	f.balance = NewGetBalanceUseCase(f.wallets, f.service, f.cache)
	return f
}

func createCmd(ownerID string) dtos.CreateWalletCommand {
	return dtos.CreateWalletCommand{
		Type:      string(entities.WalletTypeUser),
		OwnerID:   ownerID,
		OwnerKind: string(entities.OwnerKindUser),
		Currency:  "USD",
		Audit:     dtos.AuditInfo{InitiatorKind: "USER", InitiatorID: ownerID},
	}
}

func TestCreateWallet(t *testing.T) {
	f := newFixture(t)

	created, err := f.create.Execute(context.Background(), createCmd("user-1"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, string(entities.WalletTypeUser), created.Type)
	require.NotNil(t, created.OwnerID)
	assert.Equal(t, "user-1", *created.OwnerID)
	assert.Equal(t, "USD", created.Currency)

	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeWalletCreated))
}

func TestCreateWalletWithInitialBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := createCmd("user-1")
	cmd.InitialBalance = 50000
	created, err := f.create.Execute(ctx, cmd)
	require.NoError(t, err)

	balance, err := f.balance.Execute(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance.Total)
	assert.Equal(t, int64(50000), balance.Available)

	// The opening credit sits in a group that was settled from birth, paired
	// with a debit on the deposit source.
	var credit *entities.Entry
	for _, e := range f.ledger.HotEntries() {
		if e.WalletID() == created.ID {
			require.Nil(t, credit, "expected a single opening entry")
			credit = e
		}
	}
	require.NotNil(t, credit)
	assert.Equal(t, entities.EntryStatusSettled, credit.Status())
	assert.Equal(t, "initial balance", credit.Description())

	grp, err := f.groups.FindByID(ctx, credit.ReferenceID())
	require.NoError(t, err)
	assert.Equal(t, entities.GroupStatusSettled, grp.Status())

	sum, err := f.ledger.SumByReference(ctx, grp.ID(), []entities.EntryStatus{entities.EntryStatusSettled})
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)

	assert.NotEmpty(t, f.outbox.EventsOfType(events.EventTypeDepositCompleted))
}

func TestCreateWalletOneCurrencyPerOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.create.Execute(ctx, createCmd("user-1"))
	require.NoError(t, err)
	_, err = f.create.Execute(ctx, createCmd("user-1"))
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)

	// Another currency is a different wallet.
	eur := createCmd("user-1")
	eur.Currency = "EUR"
	_, err = f.create.Execute(ctx, eur)
	assert.NoError(t, err)
}

func TestCreateWalletValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Wrong owner kind for the wallet type.
	cmd := createCmd("user-1")
	cmd.OwnerKind = string(entities.OwnerKindMerchant)
	_, err := f.create.Execute(ctx, cmd)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidOwnership)

	// System wallets never come through this path.
	cmd = createCmd("user-2")
	cmd.Type = string(entities.WalletTypeEscrow)
	_, err = f.create.Execute(ctx, cmd)
	var ve domainerrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	cmd = createCmd("user-3")
	cmd.Currency = "XYZ"
	_, err = f.create.Execute(ctx, cmd)
	assert.ErrorIs(t, err, valueobjects.ErrInvalidCurrency)
}

func TestGetBalanceReadThroughCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.create.Execute(ctx, createCmd("user-1"))
	require.NoError(t, err)

	// Fund through the deposit source so the books stay balanced.
	source, err := f.service.EnsureSystemWallet(ctx, entities.WalletTypeSystem, entities.SystemWalletDeposit, valueobjects.USD)
	require.NoError(t, err)
	now := f.clock.Now()
	grp := entities.NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, grp.Settle(now))
	require.NoError(t, f.groups.Save(ctx, grp))
	amount := valueobjects.NewMoney(25000, valueobjects.USD)
	debit, err := entities.NewEntry(source.ID(), amount.Negate(), entities.EntryTypeDebit, entities.EntryStatusSettled, grp.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	credit, err := entities.NewEntry(created.ID, amount, entities.EntryTypeCredit, entities.EntryStatusSettled, grp.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	require.NoError(t, f.ledger.InsertBatch(ctx, []*entities.Entry{debit, credit}))

	first, err := f.balance.Execute(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), first.Total)
	assert.Equal(t, int64(25000), first.Available)
	assert.Equal(t, int64(0), first.HeldDebit)

	// The second read is served from the cache: a raw write that bypasses
	// invalidation stays invisible.
	stray, err := entities.NewEntry(created.ID, valueobjects.NewMoney(99, valueobjects.USD), entities.EntryTypeCredit, entities.EntryStatusSettled, grp.ID(), "stray", entities.SystemAudit(), now)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Insert(ctx, stray))

	second, err := f.balance.Execute(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), second.Total)

	// Invalidation forces the recompute.
	require.NoError(t, f.cache.Invalidate(ctx, created.ID))
	third, err := f.balance.Execute(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25099), third.Total)
}

func TestGetBalanceUnknownWallet(t *testing.T) {
	f := newFixture(t)
	_, err := f.balance.Execute(context.Background(), 404)
	assert.ErrorIs(t, err, domainerrors.ErrWalletNotFound)
}

func TestListWalletsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := NewListWalletsUseCase(f.wallets)

	_, err := f.create.Execute(ctx, createCmd("user-1"))
	require.NoError(t, err)
	_, err = f.create.Execute(ctx, createCmd("user-2"))
	require.NoError(t, err)
	merchant := dtos.CreateWalletCommand{
		Type:      string(entities.WalletTypeMerchant),
		OwnerID:   "m-1",
		OwnerKind: string(entities.OwnerKindMerchant),
		Currency:  "USD",
	}
	_, err = f.create.Execute(ctx, merchant)
	require.NoError(t, err)

	all, err := list.Execute(ctx, ports.WalletFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	walletType := entities.WalletTypeMerchant
	merchants, err := list.Execute(ctx, ports.WalletFilter{Type: &walletType}, 0, 0)
	require.NoError(t, err)
	require.Len(t, merchants, 1)
	require.NotNil(t, merchants[0].OwnerID)
	assert.Equal(t, "m-1", *merchants[0].OwnerID)

	owner := "user-2"
	byOwner, err := list.Execute(ctx, ports.WalletFilter{OwnerID: &owner}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)
}

func TestFindOwnerWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	find := NewFindOwnerWalletUseCase(f.wallets)

	created, err := f.create.Execute(ctx, createCmd("user-1"))
	require.NoError(t, err)

	found, err := find.Execute(ctx, "user-1", string(entities.OwnerKindUser), "USD")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = find.Execute(ctx, "user-1", string(entities.OwnerKindUser), "EUR")
	assert.ErrorIs(t, err, domainerrors.ErrWalletNotFound)
}
