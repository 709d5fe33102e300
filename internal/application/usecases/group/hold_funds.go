package group

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// HoldDebitUseCase places a debit hold: the wallet's available funds shrink
// by the amount while the matching credit sits on escrow.
type HoldDebitUseCase struct {
	service *Service
	uow     ports.UnitOfWork
	cache   ports.BalanceCache
}

// NewHoldDebitUseCase creates the use case.
func NewHoldDebitUseCase(service *Service, uow ports.UnitOfWork, cache ports.BalanceCache) *HoldDebitUseCase {
	return &HoldDebitUseCase{service: service, uow: uow, cache: cache}
}

// Execute writes the hold pair.
func (uc *HoldDebitUseCase) Execute(ctx context.Context, cmd dtos.HoldDebitCommand) ([]*dtos.EntryDTO, error) {
	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}
	amount := valueobjects.NewMoney(cmd.Amount, currency)

	var result []*dtos.EntryDTO
	var touched []int64
	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		pair, err := uc.service.HoldDebit(txCtx, cmd.GroupID, cmd.WalletID, amount, cmd.Description, cmd.Audit.ToAudit())
		if err != nil {
			return err
		}
		result = dtos.MapEntriesToDTO(pair)
		touched = WalletIDs(pair)
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}

// HoldCreditUseCase places a credit hold toward a destination wallet. The
// funds become visible only when the group settles.
type HoldCreditUseCase struct {
	service *Service
	uow     ports.UnitOfWork
	cache   ports.BalanceCache
}

// NewHoldCreditUseCase creates the use case.
func NewHoldCreditUseCase(service *Service, uow ports.UnitOfWork, cache ports.BalanceCache) *HoldCreditUseCase {
	return &HoldCreditUseCase{service: service, uow: uow, cache: cache}
}

// Execute writes the hold pair.
func (uc *HoldCreditUseCase) Execute(ctx context.Context, cmd dtos.HoldCreditCommand) ([]*dtos.EntryDTO, error) {
	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}
	amount := valueobjects.NewMoney(cmd.Amount, currency)

	var result []*dtos.EntryDTO
	var touched []int64
	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		pair, err := uc.service.HoldCredit(txCtx, cmd.GroupID, cmd.WalletID, amount, cmd.Description, cmd.Audit.ToAudit())
		if err != nil {
			return err
		}
		result = dtos.MapEntriesToDTO(pair)
		touched = WalletIDs(pair)
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}
