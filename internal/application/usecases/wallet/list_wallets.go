package wallet

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
)

const defaultPageSize = 50

// ListWalletsUseCase pages wallets by filter.
type ListWalletsUseCase struct {
	wallets ports.WalletStore
}

// NewListWalletsUseCase creates the use case.
func NewListWalletsUseCase(wallets ports.WalletStore) *ListWalletsUseCase {
	return &ListWalletsUseCase{wallets: wallets}
}

// Execute returns one page of wallets.
func (uc *ListWalletsUseCase) Execute(ctx context.Context, filter ports.WalletFilter, offset, limit int) ([]*dtos.WalletDTO, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	wallets, err := uc.wallets.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*dtos.WalletDTO, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, dtos.MapWalletToDTO(w))
	}
	return out, nil
}

// ListEntriesUseCase pages the hot-tier entry history of one wallet.
type ListEntriesUseCase struct {
	wallets ports.WalletStore
	entries ports.EntryStore
}

// NewListEntriesUseCase creates the use case.
func NewListEntriesUseCase(wallets ports.WalletStore, entries ports.EntryStore) *ListEntriesUseCase {
	return &ListEntriesUseCase{wallets: wallets, entries: entries}
}

// Execute returns one page of entries, newest first.
func (uc *ListEntriesUseCase) Execute(ctx context.Context, walletID int64, offset, limit int) ([]*dtos.EntryDTO, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if _, err := uc.wallets.FindByID(ctx, walletID); err != nil {
		return nil, err
	}
	entries, err := uc.entries.ListByWallet(ctx, walletID, offset, limit)
	if err != nil {
		return nil, err
	}
	return dtos.MapEntriesToDTO(entries), nil
}
