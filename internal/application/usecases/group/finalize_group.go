package group

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/events"
)

// SettleGroupUseCase settles a balanced group: every outstanding hold gets a
// SETTLED confirmation copy and the group becomes terminal.
type SettleGroupUseCase struct {
	service   *Service
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
}

// NewSettleGroupUseCase creates the use case.
func NewSettleGroupUseCase(service *Service, uow ports.UnitOfWork, publisher ports.EventPublisher, cache ports.BalanceCache) *SettleGroupUseCase {
	return &SettleGroupUseCase{service: service, uow: uow, publisher: publisher, cache: cache}
}

// Execute settles the group.
func (uc *SettleGroupUseCase) Execute(ctx context.Context, cmd dtos.FinalizeGroupCommand) (*dtos.GroupDTO, error) {
	var result *dtos.GroupDTO
	var touched []int64
	err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
		grp, copies, err := uc.service.Settle(txCtx, cmd.GroupID)
		if err != nil {
			return err
		}
		result = dtos.MapGroupToDTO(grp, nil)
		touched = WalletIDs(copies)
		return uc.publisher.Publish(txCtx, events.NewGroupSettled(grp.ID(), len(copies)))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}

// ReleaseGroupUseCase reverses a group as RELEASED, restoring every held
// balance through offsetting entries.
type ReleaseGroupUseCase struct {
	service   *Service
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
}

// NewReleaseGroupUseCase creates the use case.
func NewReleaseGroupUseCase(service *Service, uow ports.UnitOfWork, publisher ports.EventPublisher, cache ports.BalanceCache) *ReleaseGroupUseCase {
	return &ReleaseGroupUseCase{service: service, uow: uow, publisher: publisher, cache: cache}
}

// Execute releases the group.
func (uc *ReleaseGroupUseCase) Execute(ctx context.Context, cmd dtos.FinalizeGroupCommand) (*dtos.GroupDTO, error) {
	var result *dtos.GroupDTO
	var touched []int64
	err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
		grp, offsets, err := uc.service.Release(txCtx, cmd.GroupID, cmd.Reason)
		if err != nil {
			return err
		}
		result = dtos.MapGroupToDTO(grp, nil)
		touched = WalletIDs(offsets)
		return uc.publisher.Publish(txCtx, events.NewGroupReleased(grp.ID(), cmd.Reason))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}

// CancelGroupUseCase reverses a group as CANCELLED. Identical mechanics to a
// release; only the recorded intent differs.
type CancelGroupUseCase struct {
	service   *Service
	uow       ports.UnitOfWork
	publisher ports.EventPublisher
	cache     ports.BalanceCache
}

// NewCancelGroupUseCase creates the use case.
func NewCancelGroupUseCase(service *Service, uow ports.UnitOfWork, publisher ports.EventPublisher, cache ports.BalanceCache) *CancelGroupUseCase {
	return &CancelGroupUseCase{service: service, uow: uow, publisher: publisher, cache: cache}
}

// Execute cancels the group.
func (uc *CancelGroupUseCase) Execute(ctx context.Context, cmd dtos.FinalizeGroupCommand) (*dtos.GroupDTO, error) {
	var result *dtos.GroupDTO
	var touched []int64
	err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
		grp, offsets, err := uc.service.Cancel(txCtx, cmd.GroupID, cmd.Reason)
		if err != nil {
			return err
		}
		result = dtos.MapGroupToDTO(grp, nil)
		touched = WalletIDs(offsets)
		return uc.publisher.Publish(txCtx, events.NewGroupCancelled(grp.ID(), cmd.Reason))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}
