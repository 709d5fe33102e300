// Package wallet implements the wallet-facing use cases: opening wallets,
// reading balances and paging entry history.
package wallet

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// CreateWalletUseCase opens a wallet for an external owner. System wallets
// are never created through this path; they materialize lazily when an
// operation first needs them. An initial balance, when requested, is written
// in the same transaction as a settled pair from the deposit source, so a
// creation failure never leaves a funded orphan.
type CreateWalletUseCase struct {
	wallets   ports.WalletStore
	service   *group.Service
	groups    ports.GroupStore
	entries   ports.EntryStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	clock     ports.Clock
	ids       ports.IDGenerator
}

// NewCreateWalletUseCase creates the use case.
func NewCreateWalletUseCase(
	wallets ports.WalletStore,
	service *group.Service,
	groups ports.GroupStore,
	entries ports.EntryStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	clock ports.Clock,
	ids ports.IDGenerator,
) *CreateWalletUseCase {
	return &CreateWalletUseCase{
		wallets:   wallets,
		service:   service,
		groups:    groups,
		entries:   entries,
		uow:       uow,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
	}
}

// Execute creates the wallet. Identity, type, owner and currency are fixed
// for the wallet's lifetime.
func (uc *CreateWalletUseCase) Execute(ctx context.Context, cmd dtos.CreateWalletCommand) (*dtos.WalletDTO, error) {
	if err := dtos.Validate(cmd); err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}

	ownerID := cmd.OwnerID
	w, err := entities.NewWallet(
		entities.WalletType(cmd.Type),
		currency,
		&ownerID,
		entities.OwnerKind(cmd.OwnerKind),
		cmd.Description,
		uc.clock.Now(),
	)
	if err != nil {
		return nil, err
	}

	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		if err := uc.wallets.Save(txCtx, w); err != nil {
			return err
		}
		if err := uc.publisher.Publish(txCtx, events.NewWalletCreated(w.ID(), string(w.Type()), w.OwnerID(), w.Currency())); err != nil {
			return err
		}
		if cmd.InitialBalance > 0 {
			return uc.fundInitial(txCtx, w, valueobjects.NewMoney(cmd.InitialBalance, currency), cmd.Audit.ToAudit())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dtos.MapWalletToDTO(w), nil
}

// fundInitial writes the opening credit under a group that is settled from
// birth, debiting the deposit source so the books stay balanced.
func (uc *CreateWalletUseCase) fundInitial(ctx context.Context, w *entities.Wallet, amount valueobjects.Money, audit entities.Audit) error {
	source, err := uc.service.EnsureSystemWallet(ctx, entities.WalletTypeSystem, entities.SystemWalletDeposit, amount.Currency())
	if err != nil {
		return err
	}

	now := uc.clock.Now()
	grp := entities.NewTransactionGroup(uc.ids.NewID(), nil, nil, nil, now)
	if err := grp.Settle(now); err != nil {
		return err
	}
	if err := uc.groups.Save(ctx, grp); err != nil {
		return err
	}

	debit, err := entities.NewEntry(source.ID(), amount.Negate(), entities.EntryTypeDebit, entities.EntryStatusSettled, grp.ID(), "initial balance", audit, now)
	if err != nil {
		return err
	}
	credit, err := entities.NewEntry(w.ID(), amount, entities.EntryTypeCredit, entities.EntryStatusSettled, grp.ID(), "initial balance", audit, now)
	if err != nil {
		return err
	}
	if err := uc.entries.InsertBatch(ctx, []*entities.Entry{debit, credit}); err != nil {
		return err
	}
	return uc.publisher.Publish(ctx, events.NewDepositCompleted(grp.ID(), w.ID(), amount))
}
