package wallet

import (
	"context"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// GetWalletUseCase loads one wallet by id.
type GetWalletUseCase struct {
	wallets ports.WalletStore
}

// NewGetWalletUseCase creates the use case.
func NewGetWalletUseCase(wallets ports.WalletStore) *GetWalletUseCase {
	return &GetWalletUseCase{wallets: wallets}
}

// Execute returns the wallet.
func (uc *GetWalletUseCase) Execute(ctx context.Context, walletID int64) (*dtos.WalletDTO, error) {
	w, err := uc.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return dtos.MapWalletToDTO(w), nil
}

// FindOwnerWalletUseCase locates the wallet of an external owner in one
// currency.
type FindOwnerWalletUseCase struct {
	wallets ports.WalletStore
}

// NewFindOwnerWalletUseCase creates the use case.
func NewFindOwnerWalletUseCase(wallets ports.WalletStore) *FindOwnerWalletUseCase {
	return &FindOwnerWalletUseCase{wallets: wallets}
}

// Execute returns the owner's wallet for the currency.
func (uc *FindOwnerWalletUseCase) Execute(ctx context.Context, ownerID string, ownerKind string, currencyCode string) (*dtos.WalletDTO, error) {
	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return nil, err
	}
	w, err := uc.wallets.FindByOwner(ctx, ownerID, entities.OwnerKind(ownerKind), currency)
	if err != nil {
		return nil, err
	}
	return dtos.MapWalletToDTO(w), nil
}
