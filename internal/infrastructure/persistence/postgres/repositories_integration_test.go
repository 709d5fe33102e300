// Integration tests against a real PostgreSQL. They need a running Docker
// daemon and are skipped under -short.
package postgres

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

type testContainer struct {
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
}

// One container for the whole package; tables are truncated between tests.
var sharedTestContainer *testContainer

func setupSharedTestDB(t *testing.T) *testContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test, requires Docker")
	}
	if sharedTestContainer != nil {
		cleanupTables(t, sharedTestContainer.pool)
		return sharedTestContainer
	}

	ctx := context.Background()
	migrationsPath := filepath.Join("..", "..", "..", "..", "migrations")

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "000001_wallets.up.sql"),
			filepath.Join(migrationsPath, "000002_transaction_groups.up.sql"),
			filepath.Join(migrationsPath, "000003_transaction.up.sql"),
			filepath.Join(migrationsPath, "000004_snapshot_tiers.up.sql"),
			filepath.Join(migrationsPath, "000005_settlements.up.sql"),
			filepath.Join(migrationsPath, "000006_refunds.up.sql"),
			filepath.Join(migrationsPath, "000007_outbox.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	sharedTestContainer = &testContainer{container: container, pool: pool}
	return sharedTestContainer
}

// cleanupTables truncates in dependency order.
func cleanupTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	tables := []string{
		"outbox_events", "refunds", "refund_reserves", "settlement_links",
		"settlements", "ledger_entries_tracking", "transaction_snapshot_archive",
		"transaction_snapshot", "transaction", "transaction_groups", "wallets",
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Logf("cleanup %s: %v", table, err)
		}
	}
}

func mustUserWallet(t *testing.T, owner string) *entities.Wallet {
	t.Helper()
	w, err := entities.NewWallet(entities.WalletTypeUser, valueobjects.USD, &owner, entities.OwnerKindUser, "", time.Now().UTC())
	require.NoError(t, err)
	return w
}

func TestWalletRepositoryIntegration(t *testing.T) {
	tc := setupSharedTestDB(t)
	repo := NewWalletRepository(tc.pool)
	ctx := context.Background()

	t.Run("SaveAndFind", func(t *testing.T) {
		w := mustUserWallet(t, "user-1")
		require.NoError(t, repo.Save(ctx, w))
		assert.NotZero(t, w.ID())

		loaded, err := repo.FindByID(ctx, w.ID())
		require.NoError(t, err)
		assert.Equal(t, w.ID(), loaded.ID())
		assert.Equal(t, entities.WalletTypeUser, loaded.Type())
		require.NotNil(t, loaded.OwnerID())
		assert.Equal(t, "user-1", *loaded.OwnerID())
		assert.Equal(t, "USD", loaded.Currency().Code())
	})

	t.Run("DuplicateOwnerCurrency", func(t *testing.T) {
		first := mustUserWallet(t, "user-dup")
		require.NoError(t, repo.Save(ctx, first))

		second := mustUserWallet(t, "user-dup")
		err := repo.Save(ctx, second)
		assert.ErrorIs(t, err, domainerrors.ErrIdempotencyConflict)
	})

	t.Run("FindByOwner", func(t *testing.T) {
		w := mustUserWallet(t, "user-owner")
		require.NoError(t, repo.Save(ctx, w))

		found, err := repo.FindByOwner(ctx, "user-owner", entities.OwnerKindUser, valueobjects.USD)
		require.NoError(t, err)
		assert.Equal(t, w.ID(), found.ID())

		_, err = repo.FindByOwner(ctx, "user-owner", entities.OwnerKindUser, valueobjects.EUR)
		assert.ErrorIs(t, err, domainerrors.ErrWalletNotFound)
	})

	t.Run("SystemSingleton", func(t *testing.T) {
		escrow, err := entities.NewWallet(entities.WalletTypeEscrow, valueobjects.USD, nil, entities.OwnerKindSystem, entities.SystemWalletEscrow, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, escrow))

		found, err := repo.FindSystem(ctx, entities.WalletTypeEscrow, entities.SystemWalletEscrow, valueobjects.USD)
		require.NoError(t, err)
		assert.Equal(t, escrow.ID(), found.ID())

		// The partial unique index refuses a second singleton.
		again, err := entities.NewWallet(entities.WalletTypeEscrow, valueobjects.USD, nil, entities.OwnerKindSystem, entities.SystemWalletEscrow, time.Now().UTC())
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Save(ctx, again), domainerrors.ErrIdempotencyConflict)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.FindByID(ctx, 999999)
		assert.ErrorIs(t, err, domainerrors.ErrWalletNotFound)
	})
}

func TestGroupRepositoryIntegration(t *testing.T) {
	tc := setupSharedTestDB(t)
	repo := NewGroupRepository(tc.pool)
	ctx := context.Background()

	t.Run("SaveSettleUpdate", func(t *testing.T) {
		merchant, buyer := "m-1", "u-1"
		key := uuid.New().String()
		grp := entities.NewTransactionGroup(uuid.New(), &key, &merchant, &buyer, time.Now().UTC())
		require.NoError(t, repo.Save(ctx, grp))

		loaded, err := repo.FindByID(ctx, grp.ID())
		require.NoError(t, err)
		assert.True(t, loaded.IsInProgress())
		require.NotNil(t, loaded.MerchantID())
		assert.Equal(t, "m-1", *loaded.MerchantID())

		require.NoError(t, loaded.Settle(time.Now().UTC()))
		require.NoError(t, repo.Update(ctx, loaded))

		reloaded, err := repo.FindByID(ctx, grp.ID())
		require.NoError(t, err)
		assert.Equal(t, entities.GroupStatusSettled, reloaded.Status())
		assert.NotNil(t, reloaded.FinalizedAt())

		byKey, err := repo.FindByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, grp.ID(), byKey.ID())
	})

	t.Run("ListStaleInProgress", func(t *testing.T) {
		old := entities.NewTransactionGroup(uuid.New(), nil, nil, nil, time.Now().UTC().Add(-48*time.Hour))
		require.NoError(t, repo.Save(ctx, old))
		fresh := entities.NewTransactionGroup(uuid.New(), nil, nil, nil, time.Now().UTC())
		require.NoError(t, repo.Save(ctx, fresh))

		stale, err := repo.ListStaleInProgress(ctx, time.Now().UTC().Add(-24*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, old.ID(), stale[0].ID())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domainerrors.ErrGroupNotFound)
	})
}

func TestEntryRepositoryIntegration(t *testing.T) {
	tc := setupSharedTestDB(t)
	wallets := NewWalletRepository(tc.pool)
	groups := NewGroupRepository(tc.pool)
	entries := NewEntryRepository(tc.pool)
	ctx := context.Background()
	now := time.Now().UTC()

	user := mustUserWallet(t, "user-entries")
	require.NoError(t, wallets.Save(ctx, user))
	source, err := entities.NewWallet(entities.WalletTypeSystem, valueobjects.USD, nil, entities.OwnerKindSystem, entities.SystemWalletDeposit, now)
	require.NoError(t, err)
	require.NoError(t, wallets.Save(ctx, source))

	// A settled deposit pair plus an open hold pair.
	settled := entities.NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, settled.Settle(now))
	require.NoError(t, groups.Save(ctx, settled))
	amount := valueobjects.NewMoney(100000, valueobjects.USD)
	debit, err := entities.NewEntry(source.ID(), amount.Negate(), entities.EntryTypeDebit, entities.EntryStatusSettled, settled.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	credit, err := entities.NewEntry(user.ID(), amount, entities.EntryTypeCredit, entities.EntryStatusSettled, settled.ID(), "deposit", entities.SystemAudit(), now)
	require.NoError(t, err)
	require.NoError(t, entries.InsertBatch(ctx, []*entities.Entry{debit, credit}))

	open := entities.NewTransactionGroup(uuid.New(), nil, nil, nil, now)
	require.NoError(t, groups.Save(ctx, open))
	held := valueobjects.NewMoney(10000, valueobjects.USD)
	holdDebit, err := entities.NewEntry(user.ID(), held.Negate(), entities.EntryTypeDebit, entities.EntryStatusHold, open.ID(), "order", entities.SystemAudit(), now)
	require.NoError(t, err)
	holdCredit, err := entities.NewEntry(source.ID(), held, entities.EntryTypeCredit, entities.EntryStatusHold, open.ID(), "order", entities.SystemAudit(), now)
	require.NoError(t, err)
	require.NoError(t, entries.InsertBatch(ctx, []*entities.Entry{holdDebit, holdCredit}))

	t.Run("WalletTotals", func(t *testing.T) {
		totals, err := entries.WalletTotals(ctx, user.ID())
		require.NoError(t, err)
		assert.Equal(t, int64(100000), totals.Settled)
		assert.Equal(t, int64(-10000), totals.HoldDebit)
	})

	t.Run("SumByReference", func(t *testing.T) {
		sum, err := entries.SumByReference(ctx, open.ID(), []entities.EntryStatus{entities.EntryStatusHold, entities.EntryStatusSettled})
		require.NoError(t, err)
		assert.Equal(t, int64(0), sum)
	})

	t.Run("FindByReference", func(t *testing.T) {
		pair, err := entries.FindByReference(ctx, open.ID())
		require.NoError(t, err)
		assert.Len(t, pair, 2)
	})

	t.Run("UnbalancedGroupsEmpty", func(t *testing.T) {
		violations, err := entries.UnbalancedGroups(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("ListByWalletNewestFirst", func(t *testing.T) {
		page, err := entries.ListByWallet(ctx, user.ID(), 0, 10)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.True(t, page[0].ID() > page[1].ID())
	})
}

func TestUnitOfWorkIntegration(t *testing.T) {
	tc := setupSharedTestDB(t)
	uow := NewUnitOfWork(tc.pool)
	wallets := NewWalletRepository(tc.pool)
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		err := uow.Execute(ctx, func(txCtx context.Context) error {
			return wallets.Save(txCtx, mustUserWallet(t, "uow-commit"))
		})
		require.NoError(t, err)

		_, err = wallets.FindByOwner(ctx, "uow-commit", entities.OwnerKindUser, valueobjects.USD)
		assert.NoError(t, err)
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		err := uow.Execute(ctx, func(txCtx context.Context) error {
			if err := wallets.Save(txCtx, mustUserWallet(t, "uow-rollback")); err != nil {
				return err
			}
			return fmt.Errorf("boom")
		})
		require.Error(t, err)

		_, err = wallets.FindByOwner(ctx, "uow-rollback", entities.OwnerKindUser, valueobjects.USD)
		assert.ErrorIs(t, err, domainerrors.ErrWalletNotFound)
	})

	t.Run("NestedJoinsOuterTransaction", func(t *testing.T) {
		err := uow.Execute(ctx, func(outer context.Context) error {
			return uow.Execute(outer, func(inner context.Context) error {
				return wallets.Save(inner, mustUserWallet(t, "uow-nested"))
			})
		})
		require.NoError(t, err)

		_, err = wallets.FindByOwner(ctx, "uow-nested", entities.OwnerKindUser, valueobjects.USD)
		assert.NoError(t, err)
	})
}
