// Package container is the composition root: it opens the infrastructure,
// wires the use cases and owns shutdown order.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/application/usecases/reconciliation"
	"github.com/fintrellis/ledgercore/internal/application/usecases/refund"
	"github.com/fintrellis/ledgercore/internal/application/usecases/settlement"
	"github.com/fintrellis/ledgercore/internal/application/usecases/snapshot"
	"github.com/fintrellis/ledgercore/internal/application/usecases/transfer"
	"github.com/fintrellis/ledgercore/internal/application/usecases/wallet"
	"github.com/fintrellis/ledgercore/internal/config"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
	"github.com/fintrellis/ledgercore/internal/infrastructure/cache"
	infraevents "github.com/fintrellis/ledgercore/internal/infrastructure/events"
	"github.com/fintrellis/ledgercore/internal/infrastructure/persistence/postgres"
	"github.com/fintrellis/ledgercore/internal/infrastructure/telemetry"
	"github.com/fintrellis/ledgercore/internal/jobs"
	"github.com/fintrellis/ledgercore/internal/pkg/logger"
)

// Container holds every wired component of the service.
type Container struct {
	Config  *config.Config
	Log     *slog.Logger
	Metrics *telemetry.Metrics

	pool        *pgxpool.Pool
	natsConn    *nats.Conn
	redisClient *redis.Client

	UnitOfWork ports.UnitOfWork
	Wallets    ports.WalletStore
	Entries    ports.EntryStore
	Groups     ports.GroupStore

	CreateWallet    *wallet.CreateWalletUseCase
	GetWallet       *wallet.GetWalletUseCase
	FindOwnerWallet *wallet.FindOwnerWalletUseCase
	GetBalance      *wallet.GetBalanceUseCase
	ListWallets     *wallet.ListWalletsUseCase
	ListEntries     *wallet.ListEntriesUseCase

	CreateGroup  *group.CreateGroupUseCase
	HoldDebit    *group.HoldDebitUseCase
	HoldCredit   *group.HoldCreditUseCase
	SettleGroup  *group.SettleGroupUseCase
	ReleaseGroup *group.ReleaseGroupUseCase
	CancelGroup  *group.CancelGroupUseCase
	GetGroup     *group.GetGroupUseCase

	Transfer       *transfer.TransferUseCase
	DirectTransfer *transfer.DirectTransferUseCase
	Deposit        *transfer.DepositUseCase
	Withdraw       *transfer.WithdrawUseCase

	CalculateSettlement *settlement.CalculateSettlementUseCase
	ExecuteSettlement   *settlement.ExecuteSettlementUseCase
	GetSettlement       *settlement.GetSettlementUseCase
	ListSettlements     *settlement.ListSettlementsUseCase

	CreateRefund       *refund.CreateRefundUseCase
	GetRefund          *refund.GetRefundUseCase
	ListRefundsByOrder *refund.ListRefundsByOrderUseCase
	ListRefunds        *refund.ListRefundsUseCase

	Reconcile      *reconciliation.ReconcileUseCase
	ReconcileGroup *reconciliation.ReconcileGroupUseCase

	Worker *jobs.Worker
}

// New builds the container. Everything that can fail fails here, before the
// service reports ready.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	metrics := telemetry.NewMetrics()

	pool, err := postgres.NewConnectionPool(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	natsConn, err := infraevents.Connect(infraevents.NatsConfig{
		URL:           cfg.Nats.URL,
		Name:          cfg.Nats.Name,
		MaxReconnects: cfg.Nats.MaxReconnects,
		ReconnectWait: cfg.Nats.ReconnectWait,
		Timeout:       cfg.Nats.Timeout,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("nats: %w", err)
	}

	var balanceCache ports.BalanceCache = cache.NewNoopBalanceCache()
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			natsConn.Close()
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		balanceCache = cache.NewRedisBalanceCache(redisClient)
	}

	commissionRate, err := valueobjects.NewRateFromFloat(cfg.Settlement.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("commission rate: %w", err)
	}
	reserveRate, err := valueobjects.NewRateFromFloat(cfg.Settlement.ReserveRate)
	if err != nil {
		return nil, fmt.Errorf("reserve rate: %w", err)
	}
	settlementCfg := settlement.Config{
		CommissionRate:  commissionRate,
		MinAmount:       cfg.Settlement.MinAmount,
		ReserveRate:     reserveRate,
		ReserveHoldDays: cfg.Settlement.ReserveHoldDays,
		ReserveSource:   cfg.Settlement.ReserveSource,
	}
	refundCfg := refund.Config{
		WindowDays:          cfg.Refund.WindowDays,
		PendingFundsTTLDays: cfg.Refund.PendingFundsTTLDays,
	}

	uow := postgres.NewUnitOfWork(pool)
	wallets := postgres.NewWalletRepository(pool)
	entries := postgres.NewEntryRepository(pool)
	groups := postgres.NewGroupRepository(pool)
	settlements := postgres.NewSettlementRepository(pool)
	reserves := postgres.NewReserveRepository(pool)
	refunds := postgres.NewRefundRepository(pool)
	snapshots := postgres.NewSnapshotRepository(pool)
	outbox := postgres.NewOutboxRepository(pool)

	clock := ports.SystemClock{}
	ids := ports.RandomIDGenerator{}
	svc := group.NewService(wallets, entries, groups, clock, ids)

	c := &Container{
		Config:      cfg,
		Log:         log,
		Metrics:     metrics,
		pool:        pool,
		natsConn:    natsConn,
		redisClient: redisClient,
		UnitOfWork:  uow,
		Wallets:     wallets,
		Entries:     entries,
		Groups:      groups,

		CreateWallet:    wallet.NewCreateWalletUseCase(wallets, svc, groups, entries, uow, outbox, clock, ids),
		GetWallet:       wallet.NewGetWalletUseCase(wallets),
		FindOwnerWallet: wallet.NewFindOwnerWalletUseCase(wallets),
		GetBalance:      wallet.NewGetBalanceUseCase(wallets, svc, balanceCache),
		ListWallets:     wallet.NewListWalletsUseCase(wallets),
		ListEntries:     wallet.NewListEntriesUseCase(wallets, entries),

		CreateGroup:  group.NewCreateGroupUseCase(svc, uow),
		HoldDebit:    group.NewHoldDebitUseCase(svc, uow, balanceCache),
		HoldCredit:   group.NewHoldCreditUseCase(svc, uow, balanceCache),
		SettleGroup:  group.NewSettleGroupUseCase(svc, uow, outbox, balanceCache),
		ReleaseGroup: group.NewReleaseGroupUseCase(svc, uow, outbox, balanceCache),
		CancelGroup:  group.NewCancelGroupUseCase(svc, uow, outbox, balanceCache),
		GetGroup:     group.NewGetGroupUseCase(groups, entries),

		Transfer:       transfer.NewTransferUseCase(svc, groups, entries, uow, outbox, balanceCache),
		DirectTransfer: transfer.NewDirectTransferUseCase(svc, wallets, groups, entries, uow, outbox, balanceCache, clock, ids),
		Deposit:        transfer.NewDepositUseCase(svc, wallets, groups, entries, uow, outbox, balanceCache, clock, ids),
		Withdraw:       transfer.NewWithdrawUseCase(svc, groups, entries, uow, outbox, balanceCache),

		CalculateSettlement: settlement.NewCalculateSettlementUseCase(settlements, entries, svc, settlementCfg),
		ExecuteSettlement:   settlement.NewExecuteSettlementUseCase(svc, wallets, entries, settlements, reserves, uow, outbox, balanceCache, clock, ids, settlementCfg, log),
		GetSettlement:       settlement.NewGetSettlementUseCase(settlements),
		ListSettlements:     settlement.NewListSettlementsUseCase(settlements),

		CreateRefund:       refund.NewCreateRefundUseCase(svc, wallets, groups, entries, settlements, refunds, reserves, uow, outbox, balanceCache, clock, ids, refundCfg),
		GetRefund:          refund.NewGetRefundUseCase(refunds),
		ListRefundsByOrder: refund.NewListRefundsByOrderUseCase(refunds),
		ListRefunds:        refund.NewListRefundsUseCase(refunds),

		Reconcile:      reconciliation.NewReconcileUseCase(entries, outbox, uow, log),
		ReconcileGroup: reconciliation.NewReconcileGroupUseCase(groups, entries),
	}

	relay := infraevents.NewRelay(outbox, uow, infraevents.NewNatsPublisher(natsConn), log)
	c.Worker = jobs.NewWorker(
		jobs.Schedules{
			StaleGroupSpec:     cfg.Jobs.StaleGroupSpec,
			PendingFundsSpec:   cfg.Jobs.PendingFundsSpec,
			RefundExpirySpec:   cfg.Jobs.RefundExpirySpec,
			ReserveReleaseSpec: cfg.Jobs.ReserveReleaseSpec,
			SnapshotSpec:       cfg.Jobs.SnapshotSpec,
			ArchiveSpec:        cfg.Jobs.ArchiveSpec,
			ReconcileSpec:      cfg.Jobs.ReconcileSpec,
			OutboxRelaySpec:    cfg.Jobs.OutboxRelaySpec,
			HoldAge:            time.Duration(cfg.Ledger.HoldAgeDays) * 24 * time.Hour,
			ArchiveAfter:       time.Duration(cfg.Ledger.ArchiveAfterDays) * 24 * time.Hour,
			SweepBatchSize:     cfg.Ledger.SweepBatchSize,
			SnapshotWallets:    cfg.Ledger.SnapshotWallets,
			SnapshotEntries:    cfg.Ledger.SnapshotEntries,
			OutboxBatchSize:    cfg.Jobs.OutboxBatchSize,
			ReconcileReports:   cfg.Ledger.SweepBatchSize,
		},
		group.NewCancelStaleGroupsUseCase(svc, groups, uow, outbox, balanceCache, clock, log),
		refund.NewProcessPendingFundsUseCase(svc, wallets, groups, entries, refunds, reserves, uow, outbox, balanceCache, clock, ids, log),
		refund.NewExpirePendingFundsUseCase(refunds, uow, outbox, clock, log),
		settlement.NewReleaseExpiredReservesUseCase(svc, reserves, uow, outbox, balanceCache, clock, log),
		snapshot.NewRunSnapshotUseCase(snapshots, uow, outbox, clock, log),
		snapshot.NewRunArchiveUseCase(snapshots, wallets, uow, outbox, clock, log),
		c.Reconcile,
		relay,
		metrics,
		log,
	)

	return c, nil
}

// HealthCheck pings the backing stores.
func (c *Container) HealthCheck(ctx context.Context) error {
	if err := postgres.HealthCheck(ctx, c.pool); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if !c.natsConn.IsConnected() {
		return fmt.Errorf("nats: not connected")
	}
	return nil
}

// Close releases the infrastructure in reverse dependency order.
func (c *Container) Close() {
	if c.Worker != nil {
		c.Worker.Stop()
	}
	if c.natsConn != nil {
		c.natsConn.Close()
	}
	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
