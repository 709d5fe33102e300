package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// RunArchiveUseCase collapses old warm entries into a checkpoint. For each
// wallet it sums the archived SETTLED, REFUNDED and LEDGER rows (HOLD rows
// and their offsets cancel per wallet and carry no balance), writes the sum
// as a synthetic warm LEDGER row, copies the originals to the cold tier and
// deletes them from warm. Tracking rows keep the mapping from checkpoint to
// original references.
type RunArchiveUseCase struct {
	snap      ports.SnapshotStore
	wallets   ports.WalletStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	clock     ports.Clock
	log       *slog.Logger
}

// NewRunArchiveUseCase creates the archive pass.
func NewRunArchiveUseCase(snap ports.SnapshotStore, wallets ports.WalletStore, uow ports.UnitOfWork, publisher ports.EventPublisher, clock ports.Clock, log *slog.Logger) *RunArchiveUseCase {
	return &RunArchiveUseCase{snap: snap, wallets: wallets, uow: uow, publisher: publisher, clock: clock, log: log}
}

// Execute archives warm entries older than cutoff, up to walletLimit wallets
// and entryLimit entries each, and returns the number of archived entries.
func (uc *RunArchiveUseCase) Execute(ctx context.Context, cutoff time.Time, walletLimit, entryLimit int) (int, error) {
	if walletLimit <= 0 {
		walletLimit = 100
	}
	if entryLimit <= 0 {
		entryLimit = 5000
	}
	walletIDs, err := uc.snap.WalletsWithWarmBefore(ctx, cutoff, walletLimit)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, walletID := range walletIDs {
		id := walletID
		count := 0
		err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
			rows, err := uc.snap.ListWarmBefore(txCtx, id, cutoff, entryLimit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}

			wallet, err := uc.wallets.FindByID(txCtx, id)
			if err != nil {
				return err
			}

			checkpointAmount, refs := summarize(rows, wallet.Currency())
			checkpoint := entities.NewCheckpoint(id, checkpointAmount, cutoff, uc.clock.Now())
			if err := uc.snap.InsertWarmCheckpoint(txCtx, checkpoint); err != nil {
				return err
			}
			if err := uc.snap.CopyToArchive(txCtx, rows); err != nil {
				return err
			}
			ids := make([]int64, 0, len(rows))
			for _, e := range rows {
				ids = append(ids, e.ID())
			}
			if err := uc.snap.DeleteFromWarm(txCtx, ids); err != nil {
				return err
			}
			if err := uc.snap.InsertTracking(txCtx, checkpoint.ReferenceID(), refs); err != nil {
				return err
			}
			count = len(rows)
			return uc.publisher.Publish(txCtx, events.NewArchiveCompleted(id, count, checkpointAmount))
		})
		if err != nil {
			uc.log.Warn("wallet archive failed",
				slog.Int64("wallet_id", id),
				slog.String("error", err.Error()))
			continue
		}
		archived += count
	}
	return archived, nil
}

// summarize computes the checkpoint amount and the distinct reference ids of
// the archived rows.
func summarize(rows []*entities.Entry, currency valueobjects.Currency) (valueobjects.Money, []uuid.UUID) {
	var sum int64
	seen := make(map[uuid.UUID]struct{})
	var refs []uuid.UUID
	for _, e := range rows {
		switch e.Status() {
		case entities.EntryStatusSettled, entities.EntryStatusRefunded:
			// Absorbed prior checkpoints are LEDGER/SETTLED rows and sum
			// here as well.
			sum += e.Amount().Amount()
		}
		if _, ok := seen[e.ReferenceID()]; !ok {
			seen[e.ReferenceID()] = struct{}{}
			refs = append(refs, e.ReferenceID())
		}
	}
	return valueobjects.NewMoney(sum, currency), refs
}
