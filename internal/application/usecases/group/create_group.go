package group

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
)

// CreateGroupUseCase opens a transaction group for a multi-step flow where
// holds and finalization happen in separate calls.
type CreateGroupUseCase struct {
	service *Service
	uow     ports.UnitOfWork
}

// NewCreateGroupUseCase creates the use case.
func NewCreateGroupUseCase(service *Service, uow ports.UnitOfWork) *CreateGroupUseCase {
	return &CreateGroupUseCase{service: service, uow: uow}
}

// Execute creates the group. A reused idempotency key returns the group it
// created before.
func (uc *CreateGroupUseCase) Execute(ctx context.Context, cmd dtos.CreateGroupCommand) (*dtos.GroupDTO, error) {
	var result *dtos.GroupDTO
	err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
		var key *string
		if cmd.IdempotencyKey != "" {
			key = &cmd.IdempotencyKey
		}
		grp, err := uc.service.CreateGroup(txCtx, key, cmd.MerchantID, cmd.BuyerID)
		if err != nil {
			return err
		}
		result = dtos.MapGroupToDTO(grp, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
