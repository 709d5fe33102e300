package wallet

import (
	"context"
	"time"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
)

// balanceTTL bounds staleness of cached balances. Writers invalidate on
// every balance-changing operation, so the TTL only covers missed
// invalidations.
const balanceTTL = 30 * time.Second

// GetBalanceUseCase derives a wallet's position from the entry aggregates,
// read-through cached.
type GetBalanceUseCase struct {
	wallets ports.WalletStore
	service *group.Service
	cache   ports.BalanceCache
}

// NewGetBalanceUseCase creates the use case.
func NewGetBalanceUseCase(wallets ports.WalletStore, service *group.Service, cache ports.BalanceCache) *GetBalanceUseCase {
	return &GetBalanceUseCase{wallets: wallets, service: service, cache: cache}
}

// Execute returns total, held and available for the wallet.
func (uc *GetBalanceUseCase) Execute(ctx context.Context, walletID int64) (*dtos.BalanceDTO, error) {
	if cached, ok, err := uc.cache.Get(ctx, walletID); err == nil && ok {
		return dtos.MapBalanceToDTO(cached), nil
	}

	w, err := uc.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	balance, err := uc.service.BalanceOf(ctx, w)
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Set(ctx, balance, balanceTTL)
	return dtos.MapBalanceToDTO(balance), nil
}
