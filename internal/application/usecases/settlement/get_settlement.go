package settlement

import (
	"context"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
)

// GetSettlementUseCase loads one settlement.
type GetSettlementUseCase struct {
	settlements ports.SettlementStore
}

// NewGetSettlementUseCase creates the use case.
func NewGetSettlementUseCase(settlements ports.SettlementStore) *GetSettlementUseCase {
	return &GetSettlementUseCase{settlements: settlements}
}

// Execute returns the settlement.
func (uc *GetSettlementUseCase) Execute(ctx context.Context, id uuid.UUID) (*dtos.SettlementDTO, error) {
	s, err := uc.settlements.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return dtos.MapSettlementToDTO(s), nil
}

// ListSettlementsUseCase pages a merchant's settlements.
type ListSettlementsUseCase struct {
	settlements ports.SettlementStore
}

// NewListSettlementsUseCase creates the use case.
func NewListSettlementsUseCase(settlements ports.SettlementStore) *ListSettlementsUseCase {
	return &ListSettlementsUseCase{settlements: settlements}
}

// Execute returns one page of settlements, newest first.
func (uc *ListSettlementsUseCase) Execute(ctx context.Context, merchantID string, offset, limit int) ([]*dtos.SettlementDTO, error) {
	if limit <= 0 {
		limit = 50
	}
	list, err := uc.settlements.ListByMerchant(ctx, merchantID, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*dtos.SettlementDTO, 0, len(list))
	for _, s := range list {
		out = append(out, dtos.MapSettlementToDTO(s))
	}
	return out, nil
}
