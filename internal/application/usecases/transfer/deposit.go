package transfer

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// DepositUseCase brings external funds onto a wallet. The source is the
// DEPOSIT system wallet, which is the one wallet allowed to run an
// arbitrarily negative balance: its total mirrors everything ever deposited.
type DepositUseCase struct {
	service   *group.Service
	writer    pairWriter
	groups    ports.GroupStore
	entries   ports.EntryStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
}

// NewDepositUseCase creates the use case.
func NewDepositUseCase(
	service *group.Service,
	wallets ports.WalletStore,
	groups ports.GroupStore,
	entries ports.EntryStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	clock ports.Clock,
	ids ports.IDGenerator,
) *DepositUseCase {
	return &DepositUseCase{
		service:   service,
		writer:    pairWriter{service: service, wallets: wallets, groups: groups, entries: entries, clock: clock, ids: ids},
		groups:    groups,
		entries:   entries,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
	}
}

// Execute credits the wallet from the deposit source.
func (uc *DepositUseCase) Execute(ctx context.Context, cmd dtos.DepositCommand) (*dtos.GroupDTO, error) {
	if err := dtos.Validate(cmd); err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}
	amount := valueobjects.NewMoney(cmd.Amount, currency)

	var result *dtos.GroupDTO
	var touched []int64
	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		if replay, err := replayGroupByKey(txCtx, uc.groups, uc.entries, cmd.IdempotencyKey); err != nil {
			return err
		} else if replay != nil {
			result = replay
			return nil
		}

		source, err := uc.service.EnsureSystemWallet(txCtx, entities.WalletTypeSystem, entities.SystemWalletDeposit, currency)
		if err != nil {
			return err
		}

		var key *string
		if cmd.IdempotencyKey != "" {
			key = &cmd.IdempotencyKey
		}
		grp, pair, err := uc.writer.settledPair(txCtx, key, source.ID(), cmd.WalletID, amount, cmd.Description, cmd.Audit.ToAudit(), false)
		if err != nil {
			return err
		}
		result = dtos.MapGroupToDTO(grp, pair)
		touched = group.WalletIDs(pair)
		return uc.publisher.Publish(txCtx, events.NewDepositCompleted(grp.ID(), cmd.WalletID, amount))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}
