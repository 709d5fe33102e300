package settlement

import (
	"context"
	"log/slog"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/events"
)

// ReleaseExpiredReservesUseCase is the scheduled sweep that returns expired
// reserves to their merchants by releasing the backing hold group. Each
// reserve is processed in its own transaction; a failure on one does not
// block the rest.
type ReleaseExpiredReservesUseCase struct {
	service   *group.Service
	reserves  ports.ReserveStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
	clock     ports.Clock
	log       *slog.Logger
}

// NewReleaseExpiredReservesUseCase creates the sweep.
func NewReleaseExpiredReservesUseCase(
	service *group.Service,
	reserves ports.ReserveStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	clock ports.Clock,
	log *slog.Logger,
) *ReleaseExpiredReservesUseCase {
	return &ReleaseExpiredReservesUseCase{
		service:   service,
		reserves:  reserves,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
		clock:     clock,
		log:       log,
	}
}

// Execute releases up to limit expired reserves and returns how many it
// processed.
func (uc *ReleaseExpiredReservesUseCase) Execute(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := uc.reserves.ListExpired(ctx, uc.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, reserve := range expired {
		r := reserve
		var touched []int64
		err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
			locked, err := uc.reserves.FindByID(txCtx, r.ID())
			if err != nil {
				return err
			}
			if !locked.IsExpired(uc.clock.Now()) {
				return nil
			}

			// Releasing the backing hold restores the full reserved
			// amount; consumption was bookkeeping only.
			_, offsets, err := uc.service.Release(txCtx, locked.GroupID(), "reserve hold window lapsed")
			if err != nil {
				return err
			}
			if err := locked.Release(uc.clock.Now()); err != nil {
				return err
			}
			if err := uc.reserves.Update(txCtx, locked); err != nil {
				return err
			}
			touched = group.WalletIDs(offsets)
			return uc.publisher.Publish(txCtx, events.NewReserveReleased(locked.ID(), locked.MerchantID(), locked.Reserved()))
		})
		if err != nil {
			uc.log.Warn("reserve release failed",
				slog.String("reserve_id", r.ID().String()),
				slog.String("error", err.Error()))
			continue
		}
		_ = uc.cache.Invalidate(ctx, touched...)
		released++
	}
	return released, nil
}
