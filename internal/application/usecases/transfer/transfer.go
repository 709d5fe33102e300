// Package transfer implements the money-movement use cases built on the
// group engine: two-phase transfers, direct transfers, deposits and
// withdrawals.
package transfer

import (
	"context"
	"errors"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// TransferUseCase runs the full two-phase flow in one store transaction:
// create the group, hold the debit, hold the credit, settle. Any failure
// rolls the whole flow back, leaving no trace of the group.
type TransferUseCase struct {
	service   *group.Service
	groups    ports.GroupStore
	entries   ports.EntryStore
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
}

// NewTransferUseCase creates the use case.
func NewTransferUseCase(
	service *group.Service,
	groups ports.GroupStore,
	entries ports.EntryStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
) *TransferUseCase {
	return &TransferUseCase{
		service:   service,
		groups:    groups,
		entries:   entries,
		uow:       uow,
		publisher: publisher,
		cache:     cache,
	}
}

// Execute moves amount from source to destination through escrow.
func (uc *TransferUseCase) Execute(ctx context.Context, cmd dtos.TransferCommand) (*dtos.GroupDTO, error) {
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
		grp, err := uc.service.CreateGroup(txCtx, key, cmd.MerchantID, cmd.BuyerID)
		if err != nil {
			return err
		}

		audit := cmd.Audit.ToAudit()
		debits, err := uc.service.HoldDebit(txCtx, grp.ID(), cmd.SourceWalletID, amount, cmd.Description, audit)
		if err != nil {
			return err
		}
		credits, err := uc.service.HoldCredit(txCtx, grp.ID(), cmd.DestWalletID, amount, cmd.Description, audit)
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
		return uc.publisher.Publish(txCtx, events.NewGroupSettled(grp.ID(), len(copies)))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}

// pairWriter writes immediately settled debit/credit pairs inside a fresh
// SETTLED group. Shared by direct transfers and deposits.
type pairWriter struct {
	service *group.Service
	wallets ports.WalletStore
	groups  ports.GroupStore
	entries ports.EntryStore
	clock   ports.Clock
	ids     ports.IDGenerator
}

// settledPair locks the source wallet, optionally gates on its available
// funds, then writes the SETTLED debit/credit pair under a new group that is
// terminal from birth.
func (p *pairWriter) settledPair(
	ctx context.Context,
	key *string,
	sourceID, destID int64,
	amount valueobjects.Money,
	description string,
	audit entities.Audit,
	gateSource bool,
) (*entities.TransactionGroup, []*entities.Entry, error) {
	source, err := p.wallets.FindByIDForUpdate(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	dest, err := p.wallets.FindByID(ctx, destID)
	if err != nil {
		return nil, nil, err
	}
	if !source.Currency().Equals(amount.Currency()) || !dest.Currency().Equals(amount.Currency()) {
		return nil, nil, domainerrors.ErrCurrencyMismatch
	}

	if gateSource {
		balance, err := p.service.BalanceOf(ctx, source)
		if err != nil {
			return nil, nil, err
		}
		if ok, err := balance.Available.GreaterThanOrEqual(amount); err != nil {
			return nil, nil, err
		} else if !ok {
			return nil, nil, domainerrors.ErrInsufficientFunds
		}
	}

	now := p.clock.Now()
	grp := entities.NewTransactionGroup(p.ids.NewID(), key, nil, nil, now)
	if err := grp.Settle(now); err != nil {
		return nil, nil, err
	}
	if err := p.groups.Save(ctx, grp); err != nil {
		return nil, nil, err
	}

	debit, err := entities.NewEntry(source.ID(), amount.Negate(), entities.EntryTypeDebit, entities.EntryStatusSettled, grp.ID(), description, audit, now)
	if err != nil {
		return nil, nil, err
	}
	credit, err := entities.NewEntry(dest.ID(), amount, entities.EntryTypeCredit, entities.EntryStatusSettled, grp.ID(), description, audit, now)
	if err != nil {
		return nil, nil, err
	}
	pair := []*entities.Entry{debit, credit}
	if err := p.entries.InsertBatch(ctx, pair); err != nil {
		return nil, nil, err
	}
	return grp, pair, nil
}

// replayGroupByKey returns the prior result of a reused idempotency key, nil
// when the key is fresh.
func replayGroupByKey(ctx context.Context, groups ports.GroupStore, entryStore ports.EntryStore, key string) (*dtos.GroupDTO, error) {
	if key == "" {
		return nil, nil
	}
	grp, err := groups.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, domainerrors.ErrGroupNotFound) {
			return nil, nil
		}
		return nil, err
	}
	entries, err := entryStore.FindByReference(ctx, grp.ID())
	if err != nil {
		return nil, err
	}
	return dtos.MapGroupToDTO(grp, entries), nil
}
