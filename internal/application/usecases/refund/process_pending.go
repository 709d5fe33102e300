package refund

import (
	"context"
	"log/slog"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/events"
)

// ProcessPendingFundsUseCase is the scheduled sweep retrying PENDING_FUNDS
// refunds. Each refund runs in its own transaction so one failure cannot
// starve the rest of the page.
type ProcessPendingFundsUseCase struct {
	proc      processor
	refunds   ports.RefundStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
	clock     ports.Clock
	log       *slog.Logger
}

// NewProcessPendingFundsUseCase creates the sweep.
func NewProcessPendingFundsUseCase(
	service *group.Service,
	wallets ports.WalletStore,
	groups ports.GroupStore,
	entries ports.EntryStore,
	refunds ports.RefundStore,
	reserves ports.ReserveStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	clock ports.Clock,
	ids ports.IDGenerator,
	log *slog.Logger,
) *ProcessPendingFundsUseCase {
	return &ProcessPendingFundsUseCase{
		proc: processor{
			service:  service,
			wallets:  wallets,
			groups:   groups,
			entries:  entries,
			reserves: reserves,
			clock:    clock,
			ids:      ids,
		},
		refunds:   refunds,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
		clock:     clock,
		log:       log,
	}
}

// Execute retries up to limit parked refunds and returns how many completed.
func (uc *ProcessPendingFundsUseCase) Execute(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	parked, err := uc.refunds.ListPendingFunds(ctx, uc.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, r := range parked {
		var touched []int64
		done := false
		err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
			current, err := uc.refunds.FindByID(txCtx, r.ID())
			if err != nil {
				return err
			}
			if current.Status() != entities.RefundStatusPendingFunds {
				return nil
			}

			ok, walletIDs, err := uc.proc.tryComplete(txCtx, current, entities.SystemAudit())
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if err := uc.refunds.Update(txCtx, current); err != nil {
				return err
			}
			done = true
			touched = walletIDs
			return uc.publisher.Publish(txCtx, events.NewRefundCompleted(current.ID(), current.OrderID(), current.Amount()))
		})
		if err != nil {
			uc.log.Warn("pending refund retry failed",
				slog.String("refund_id", r.ID().String()),
				slog.String("error", err.Error()))
			continue
		}
		if done {
			_ = uc.cache.Invalidate(ctx, touched...)
			completed++
		}
	}
	return completed, nil
}

// ExpirePendingFundsUseCase is the scheduled sweep that expires refunds whose
// funding never arrived.
type ExpirePendingFundsUseCase struct {
	refunds   ports.RefundStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	clock     ports.Clock
	log       *slog.Logger
}

// NewExpirePendingFundsUseCase creates the sweep.
func NewExpirePendingFundsUseCase(refunds ports.RefundStore, uow ports.UnitOfWork, publisher ports.EventPublisher, clock ports.Clock, log *slog.Logger) *ExpirePendingFundsUseCase {
	return &ExpirePendingFundsUseCase{refunds: refunds, uow: uow, publisher: publisher, clock: clock, log: log}
}

// Execute expires up to limit overdue refunds and returns how many it
// expired.
func (uc *ExpirePendingFundsUseCase) Execute(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	overdue, err := uc.refunds.ListExpired(ctx, uc.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, r := range overdue {
		err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
			current, err := uc.refunds.FindByID(txCtx, r.ID())
			if err != nil {
				return err
			}
			if current.Status() != entities.RefundStatusPendingFunds {
				return nil
			}
			if err := current.MarkExpired(); err != nil {
				return err
			}
			if err := uc.refunds.Update(txCtx, current); err != nil {
				return err
			}
			return uc.publisher.Publish(txCtx, events.NewRefundExpired(current.ID(), current.OrderID()))
		})
		if err != nil {
			uc.log.Warn("refund expiry failed",
				slog.String("refund_id", r.ID().String()),
				slog.String("error", err.Error()))
			continue
		}
		expired++
	}
	return expired, nil
}
