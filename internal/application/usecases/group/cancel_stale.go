package group

import (
	"context"
	"log/slog"
	"time"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/events"
)

// CancelStaleGroupsUseCase is the scheduled sweep cancelling IN_PROGRESS
// groups whose holds outlived the configured age. Groups backing an active
// refund reserve are excluded at the store level; their lifecycle belongs to
// the reserve release sweep.
type CancelStaleGroupsUseCase struct {
	service   *Service
	groups    ports.GroupStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
	clock     ports.Clock
	log       *slog.Logger
}

// NewCancelStaleGroupsUseCase creates the sweep.
func NewCancelStaleGroupsUseCase(
	service *Service,
	groups ports.GroupStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	clock ports.Clock,
	log *slog.Logger,
) *CancelStaleGroupsUseCase {
	return &CancelStaleGroupsUseCase{
		service:   service,
		groups:    groups,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
		clock:     clock,
		log:       log,
	}
}

// Execute cancels up to limit groups older than maxAge and returns how many
// it cancelled.
func (uc *CancelStaleGroupsUseCase) Execute(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := uc.clock.Now().Add(-maxAge)
	stale, err := uc.groups.ListStaleInProgress(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, g := range stale {
		var touched []int64
		err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
			grp, offsets, err := uc.service.Cancel(txCtx, g.ID(), "hold age exceeded")
			if err != nil {
				return err
			}
			touched = WalletIDs(offsets)
			return uc.publisher.Publish(txCtx, events.NewGroupCancelled(grp.ID(), "hold age exceeded"))
		})
		if err != nil {
			uc.log.Warn("stale group cancel failed",
				slog.String("group_id", g.ID().String()),
				slog.String("error", err.Error()))
			continue
		}
		_ = uc.cache.Invalidate(ctx, touched...)
		cancelled++
	}
	return cancelled, nil
}
