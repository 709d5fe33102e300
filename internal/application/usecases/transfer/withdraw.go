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

// WithdrawUseCase moves wallet funds out of the platform through the full
// two-phase flow into the WITHDRAWAL system wallet. The hold phase runs the
// available-funds gate, so a wallet can never withdraw more than it holds.
type WithdrawUseCase struct {
	service   *group.Service
	groups    ports.GroupStore
	entries   ports.EntryStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
}

// NewWithdrawUseCase creates the use case.
func NewWithdrawUseCase(
	service *group.Service,
	groups ports.GroupStore,
	entries ports.EntryStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
) *WithdrawUseCase {
	return &WithdrawUseCase{
		service:   service,
		groups:    groups,
		entries:   entries,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
	}
}

// Execute withdraws amount from the wallet.
func (uc *WithdrawUseCase) Execute(ctx context.Context, cmd dtos.WithdrawCommand) (*dtos.GroupDTO, error) {
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

		sink, err := uc.service.EnsureSystemWallet(txCtx, entities.WalletTypeSystem, entities.SystemWalletWithdrawal, currency)
		if err != nil {
			return err
		}

		var key *string
		if cmd.IdempotencyKey != "" {
			key = &cmd.IdempotencyKey
		}
		grp, err := uc.service.CreateGroup(txCtx, key, nil, nil)
		if err != nil {
			return err
		}

		audit := cmd.Audit.ToAudit()
		debits, err := uc.service.HoldDebit(txCtx, grp.ID(), cmd.WalletID, amount, cmd.Description, audit)
		if err != nil {
			return err
		}
		credits, err := uc.service.HoldCredit(txCtx, grp.ID(), sink.ID(), amount, cmd.Description, audit)
		if err != nil {
			return err
		}
		grp, copies, err := uc.service.Settle(txCtx, grp.ID())
		if err != nil {
			return err
		}

		all, err := uc.entries.FindByReference(txCtx, grp.ID())
		if err != nil {
			return err
		}
		result = dtos.MapGroupToDTO(grp, all)
		touched = group.WalletIDs(debits, credits, copies)
		return uc.publisher.Publish(txCtx, events.NewWithdrawalCompleted(grp.ID(), cmd.WalletID, amount))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}
