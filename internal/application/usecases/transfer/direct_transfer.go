package transfer

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// DirectTransferUseCase settles a transfer in a single step: two SETTLED
// entries under a group that is terminal from birth. No escrow leg, no hold
// window.
type DirectTransferUseCase struct {
	writer    pairWriter
	groups    ports.GroupStore
	entries   ports.EntryStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
}

// NewDirectTransferUseCase creates the use case.
func NewDirectTransferUseCase(
	service *group.Service,
	wallets ports.WalletStore,
	groups ports.GroupStore,
	entries ports.EntryStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	clock ports.Clock,
	ids ports.IDGenerator,
) *DirectTransferUseCase {
	return &DirectTransferUseCase{
		writer:    pairWriter{service: service, wallets: wallets, groups: groups, entries: entries, clock: clock, ids: ids},
		groups:    groups,
		entries:   entries,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
	}
}

// Execute moves amount from source to destination immediately.
func (uc *DirectTransferUseCase) Execute(ctx context.Context, cmd dtos.DirectTransferCommand) (*dtos.GroupDTO, error) {
	if err := dtos.Validate(cmd); err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}
	amount := valueobjects.NewMoney(cmd.Amount, currency)
	if cmd.SourceWalletID == cmd.DestWalletID {
		return nil, domainerrors.ValidationError{Field: "dest_wallet_id", Message: "source and destination must differ"}
	}

	var result *dtos.GroupDTO
	var touched []int64
	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		if replay, err := replayGroupByKey(txCtx, uc.groups, uc.entries, cmd.IdempotencyKey); err != nil {
			return err
		} else if replay != nil {
			result = replay
			return nil
		}

		var key *string
		if cmd.IdempotencyKey != "" {
			key = &cmd.IdempotencyKey
		}
		grp, pair, err := uc.writer.settledPair(txCtx, key, cmd.SourceWalletID, cmd.DestWalletID, amount, cmd.Description, cmd.Audit.ToAudit(), true)
		if err != nil {
			return err
		}
		result = dtos.MapGroupToDTO(grp, pair)
		touched = group.WalletIDs(pair)
		return uc.publisher.Publish(txCtx, events.NewGroupSettled(grp.ID(), len(pair)))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}
