package group

import (
	"context"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
)

// GetGroupUseCase loads a group with its hot-tier entries.
type GetGroupUseCase struct {
	groups  ports.GroupStore
	entries ports.EntryStore
}

// NewGetGroupUseCase creates the use case.
func NewGetGroupUseCase(groups ports.GroupStore, entries ports.EntryStore) *GetGroupUseCase {
	return &GetGroupUseCase{groups: groups, entries: entries}
}

// Execute returns the group and its entries.
func (uc *GetGroupUseCase) Execute(ctx context.Context, groupID uuid.UUID) (*dtos.GroupDTO, error) {
	grp, err := uc.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	entries, err := uc.entries.FindByReference(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return dtos.MapGroupToDTO(grp, entries), nil
}
