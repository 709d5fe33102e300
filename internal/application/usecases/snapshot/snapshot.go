// Package snapshot implements the tiering engine: finalized hot entries move
// to the warm tier daily, and old warm entries collapse into checkpoints in
// the cold tier.
package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/events"
)

// RunSnapshotUseCase moves hot entries of terminal groups to the warm tier,
// one wallet per transaction. Entries of IN_PROGRESS groups stay hot
// untouched.
type RunSnapshotUseCase struct {
	snap      ports.SnapshotStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	clock     ports.Clock
	log       *slog.Logger
}

// NewRunSnapshotUseCase creates the snapshot pass.
func NewRunSnapshotUseCase(snap ports.SnapshotStore, uow ports.UnitOfWork, publisher ports.EventPublisher, clock ports.Clock, log *slog.Logger) *RunSnapshotUseCase {
	return &RunSnapshotUseCase{snap: snap, uow: uow, publisher: publisher, clock: clock, log: log}
}

// Execute snapshots up to walletLimit wallets, entryLimit entries each, and
// returns the number of moved entries.
func (uc *RunSnapshotUseCase) Execute(ctx context.Context, walletLimit, entryLimit int) (int, error) {
	if walletLimit <= 0 {
		walletLimit = 100
	}
	if entryLimit <= 0 {
		entryLimit = 1000
	}
	walletIDs, err := uc.snap.WalletsWithHotFinalized(ctx, walletLimit)
	if err != nil {
		return 0, err
	}

	snapshotDate := uc.clock.Now().Truncate(24 * time.Hour)
	moved := 0
	for _, walletID := range walletIDs {
		id := walletID
		count := 0
		err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
			entries, err := uc.snap.ListHotFinalized(txCtx, id, entryLimit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}
			if err := uc.snap.CopyToWarm(txCtx, entries, snapshotDate); err != nil {
				return err
			}
			ids := make([]int64, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ID())
			}
			if err := uc.snap.DeleteFromHot(txCtx, ids); err != nil {
				return err
			}
			count = len(entries)
			return uc.publisher.Publish(txCtx, events.NewSnapshotCompleted(id, count, snapshotDate))
		})
		if err != nil {
			uc.log.Warn("wallet snapshot failed",
				slog.Int64("wallet_id", id),
				slog.String("error", err.Error()))
			continue
		}
		moved += count
	}
	return moved, nil
}
