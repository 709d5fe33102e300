package refund

import (
	"context"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
)

// GetRefundUseCase loads one refund.
type GetRefundUseCase struct {
	refunds ports.RefundStore
}

// NewGetRefundUseCase creates the use case.
func NewGetRefundUseCase(refunds ports.RefundStore) *GetRefundUseCase {
	return &GetRefundUseCase{refunds: refunds}
}

// Execute returns the refund.
func (uc *GetRefundUseCase) Execute(ctx context.Context, id uuid.UUID) (*dtos.RefundDTO, error) {
	r, err := uc.refunds.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return dtos.MapRefundToDTO(r), nil
}

// ListRefundsByOrderUseCase returns the refund history of one order.
type ListRefundsByOrderUseCase struct {
	refunds ports.RefundStore
}

// NewListRefundsByOrderUseCase creates the use case.
func NewListRefundsByOrderUseCase(refunds ports.RefundStore) *ListRefundsByOrderUseCase {
	return &ListRefundsByOrderUseCase{refunds: refunds}
}

// Execute returns the order's refunds, oldest first.
func (uc *ListRefundsByOrderUseCase) Execute(ctx context.Context, orderID uuid.UUID) ([]*dtos.RefundDTO, error) {
	list, err := uc.refunds.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]*dtos.RefundDTO, 0, len(list))
	for _, r := range list {
		out = append(out, dtos.MapRefundToDTO(r))
	}
	return out, nil
}

// ListRefundsUseCase pages a merchant's refunds, newest first.
type ListRefundsUseCase struct {
	refunds ports.RefundStore
}

// NewListRefundsUseCase creates the use case.
func NewListRefundsUseCase(refunds ports.RefundStore) *ListRefundsUseCase {
	return &ListRefundsUseCase{refunds: refunds}
}

// Execute returns one page of the merchant's refund history.
func (uc *ListRefundsUseCase) Execute(ctx context.Context, merchantID string, offset, limit int) ([]*dtos.RefundDTO, error) {
	list, err := uc.refunds.ListByMerchant(ctx, merchantID, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*dtos.RefundDTO, 0, len(list))
	for _, r := range list {
		out = append(out, dtos.MapRefundToDTO(r))
	}
	return out, nil
}
