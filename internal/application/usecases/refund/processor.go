// Package refund implements post-settlement refunds: merchant funds flow
// straight back to the buyer, the platform fee stays where it is, and
// refunds that outrun the merchant balance park as PENDING_FUNDS until a
// sweep retries them.
package refund

import (
	"context"
	"fmt"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
)

// Config carries the refund knobs, bound from the application config.
type Config struct {
	// WindowDays is how long after an order settles a refund is accepted.
	WindowDays int

	// PendingFundsTTLDays is how long a PENDING_FUNDS refund waits for the
	// merchant balance before expiring.
	PendingFundsTTLDays int
}

// processor owns the funding attempt shared by refund creation and the
// pending-funds retry sweep.
type processor struct {
	service  *group.Service
	wallets  ports.WalletStore
	groups   ports.GroupStore
	entries  ports.EntryStore
	reserves ports.ReserveStore
	clock    ports.Clock
	ids      ports.IDGenerator
}

// tryComplete attempts to fund the refund from the merchant wallet. When the
// available balance covers the amount it writes the REFUNDED pair under an
// immediately settled group, consumes reserves and completes the refund;
// otherwise it reports false and writes nothing. Escrow is never involved.
func (p *processor) tryComplete(ctx context.Context, r *entities.Refund, audit entities.Audit) (bool, []int64, error) {
	merchantWallet, err := p.wallets.FindByIDForUpdate(ctx, r.MerchantWalletID())
	if err != nil {
		return false, nil, err
	}
	balance, err := p.service.BalanceOf(ctx, merchantWallet)
	if err != nil {
		return false, nil, err
	}
	funded, err := balance.Available.GreaterThanOrEqual(r.Amount())
	if err != nil {
		return false, nil, err
	}
	if !funded {
		return false, nil, nil
	}

	now := p.clock.Now()
	merchantID := r.MerchantID()
	buyerID := r.BuyerID()
	grp := entities.NewTransactionGroup(p.ids.NewID(), nil, &merchantID, &buyerID, now)
	if err := grp.Settle(now); err != nil {
		return false, nil, err
	}
	if err := p.groups.Save(ctx, grp); err != nil {
		return false, nil, err
	}

	debit, err := entities.NewEntry(r.MerchantWalletID(), r.Amount().Negate(), entities.EntryTypeDebit, entities.EntryStatusRefunded, grp.ID(), r.Reason(), audit, now)
	if err != nil {
		return false, nil, err
	}
	credit, err := entities.NewEntry(r.BuyerWalletID(), r.Amount(), entities.EntryTypeCredit, entities.EntryStatusRefunded, grp.ID(), r.Reason(), audit, now)
	if err != nil {
		return false, nil, err
	}
	pair := []*entities.Entry{debit, credit}
	if err := p.entries.InsertBatch(ctx, pair); err != nil {
		return false, nil, fmt.Errorf("insert refund pair: %w", err)
	}

	if err := r.MarkProcessing(); err != nil {
		return false, nil, err
	}
	if err := r.MarkCompleted(grp.ID(), now); err != nil {
		return false, nil, err
	}

	if err := p.consumeReserves(ctx, r); err != nil {
		return false, nil, err
	}
	return true, group.WalletIDs(pair), nil
}

// consumeReserves draws the refund amount down against the merchant's open
// reserves, oldest first. Pure bookkeeping: the money itself already moved
// through the merchant wallet.
func (p *processor) consumeReserves(ctx context.Context, r *entities.Refund) error {
	open, err := p.reserves.ListConsumable(ctx, r.MerchantID())
	if err != nil {
		return err
	}
	remaining := r.Amount()
	for _, reserve := range open {
		if !remaining.IsPositive() {
			break
		}
		if !reserve.Currency().Equals(remaining.Currency()) {
			continue
		}
		take := remaining
		if ge, err := remaining.GreaterThanOrEqual(reserve.Available()); err != nil {
			return err
		} else if ge {
			take = reserve.Available()
		}
		if !take.IsPositive() {
			continue
		}
		if err := reserve.Consume(take); err != nil {
			return err
		}
		if err := p.reserves.Update(ctx, reserve); err != nil {
			return err
		}
		remaining, err = remaining.Sub(take)
		if err != nil {
			return err
		}
	}
	return nil
}
