// Package settlement implements merchant payouts: pricing the unsettled
// groups, executing the payout through the group engine, and managing the
// refund reserves carved out of each payout.
package settlement

import (
	"context"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// Config carries the payout knobs, bound from the application config.
type Config struct {
	// CommissionRate is the platform fee applied to every payout.
	CommissionRate valueobjects.Rate

	// MinAmount is the smallest total (in minor units) worth paying out.
	MinAmount int64

	// ReserveRate is the share of the net withheld against refunds.
	// Zero disables reserves.
	ReserveRate valueobjects.Rate

	// ReserveHoldDays is how long a reserve stays held before the expiry
	// sweep releases it.
	ReserveHoldDays int

	// ReserveSource picks the wallet funding the reserve hold: "merchant"
	// debits the just-paid merchant wallet, "escrow" uses the escrow float.
	ReserveSource string
}

// ReserveSourceMerchant and ReserveSourceEscrow are the legal ReserveSource
// values.
const (
	ReserveSourceMerchant = "merchant"
	ReserveSourceEscrow   = "escrow"
)

// pricing is the computed breakdown of one payout.
type pricing struct {
	refs    []uuid.UUID
	amounts map[uuid.UUID]valueobjects.Money
	total   valueobjects.Money
	fee     valueobjects.Money
	net     valueobjects.Money
}

// price collects the merchant's unsettled groups and splits the escrow total
// into fee and net. fee = HALF_UP(total * rate), net = total - fee, so the
// two always recompose the total exactly.
func price(
	ctx context.Context,
	settlements ports.SettlementStore,
	entries ports.EntryStore,
	service *group.Service,
	cfg Config,
	merchantID string,
	currency valueobjects.Currency,
) (*pricing, error) {
	refs, err := settlements.UnsettledGroupIDs(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, domainerrors.ErrNoUnsettledGroups
	}

	escrow, err := service.Escrow(ctx, currency)
	if err != nil {
		return nil, err
	}

	amounts := make(map[uuid.UUID]valueobjects.Money, len(refs))
	priced := make([]uuid.UUID, 0, len(refs))
	var totalMinor int64
	for _, ref := range refs {
		sum, err := entries.SumHoldCredits(ctx, escrow.ID(), []uuid.UUID{ref})
		if err != nil {
			return nil, err
		}
		if sum <= 0 {
			// No escrow credit found for this reference. Leaving it out keeps
			// it in the unsettled scan; a zero-amount link would mark it
			// settled and strand its revenue forever.
			continue
		}
		amounts[ref] = valueobjects.NewMoney(sum, currency)
		priced = append(priced, ref)
		totalMinor += sum
	}
	if totalMinor <= 0 {
		return nil, domainerrors.ErrNoUnsettledGroups
	}

	total := valueobjects.NewMoney(totalMinor, currency)
	if totalMinor < cfg.MinAmount {
		return nil, domainerrors.ErrBelowMinimum
	}

	fee := cfg.CommissionRate.ApplyTo(total)
	net, err := total.Sub(fee)
	if err != nil {
		return nil, err
	}
	return &pricing{refs: priced, amounts: amounts, total: total, fee: fee, net: net}, nil
}

// CalculateSettlementUseCase is the dry run: it prices a payout without
// writing anything.
type CalculateSettlementUseCase struct {
	settlements ports.SettlementStore
	entries     ports.EntryStore
	service     *group.Service
	cfg         Config
}

// NewCalculateSettlementUseCase creates the use case.
func NewCalculateSettlementUseCase(settlements ports.SettlementStore, entries ports.EntryStore, service *group.Service, cfg Config) *CalculateSettlementUseCase {
	return &CalculateSettlementUseCase{settlements: settlements, entries: entries, service: service, cfg: cfg}
}

// Execute previews the next payout for the merchant.
func (uc *CalculateSettlementUseCase) Execute(ctx context.Context, merchantID, currencyCode string) (*dtos.SettlementPreviewDTO, error) {
	currency, err := valueobjects.NewCurrency(currencyCode)
	if err != nil {
		return nil, err
	}
	p, err := price(ctx, uc.settlements, uc.entries, uc.service, uc.cfg, merchantID, currency)
	if err != nil {
		return nil, err
	}
	return &dtos.SettlementPreviewDTO{
		MerchantID: merchantID,
		Currency:   currency.Code(),
		Total:      p.total.Amount(),
		Fee:        p.fee.Amount(),
		Net:        p.net.Amount(),
		GroupCount: len(p.refs),
	}, nil
}
