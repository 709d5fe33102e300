package refund

import (
	"context"
	"errors"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// CreateRefundUseCase accepts a refund against a settled order and funds it
// immediately when the merchant balance allows, or parks it as PENDING_FUNDS
// otherwise.
type CreateRefundUseCase struct {
	proc        processor
	groups      ports.GroupStore
	wallets     ports.WalletStore
	settlements ports.SettlementStore
	refunds     ports.RefundStore
	uow         ports.UnitOfWork
	publisher   ports.EventPublisher
	cache       ports.BalanceCache
	clock       ports.Clock
	ids         ports.IDGenerator
	cfg         Config
}

// NewCreateRefundUseCase creates the use case.
func NewCreateRefundUseCase(
	service *group.Service,
	wallets ports.WalletStore,
	groups ports.GroupStore,
	entries ports.EntryStore,
	settlements ports.SettlementStore,
	refunds ports.RefundStore,
	reserves ports.ReserveStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	clock ports.Clock,
	ids ports.IDGenerator,
	cfg Config,
) *CreateRefundUseCase {
	return &CreateRefundUseCase{
		proc: processor{
			service:  service,
			wallets:  wallets,
			groups:   groups,
			entries:  entries,
			reserves: reserves,
			clock:    clock,
			ids:      ids,
		},
		groups:      groups,
		wallets:     wallets,
		settlements: settlements,
		refunds:     refunds,
		uow:         uow,
		publisher:   publisher,
		cache:       cache,
		clock:       clock,
		ids:         ids,
		cfg:         cfg,
	}
}

// Execute creates (and when possible completes) the refund.
func (uc *CreateRefundUseCase) Execute(ctx context.Context, cmd dtos.CreateRefundCommand) (*dtos.RefundDTO, error) {
	if err := dtos.Validate(cmd); err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}
	amount := valueobjects.NewMoney(cmd.Amount, currency)

	var result *dtos.RefundDTO
	var touched []int64
	err = uc.uow.Execute(ctx, func(txCtx context.Context) error {
		if cmd.IdempotencyKey != "" {
			prior, err := uc.refunds.FindByIdempotencyKey(txCtx, cmd.IdempotencyKey)
			if err != nil && !errors.Is(err, domainerrors.ErrRefundNotFound) {
				return err
			}
			if prior != nil {
				result = dtos.MapRefundToDTO(prior)
				return nil
			}
		}

		order, err := uc.groups.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		switch order.Status() {
		case entities.GroupStatusInProgress:
			return domainerrors.ErrUseCancelInstead
		case entities.GroupStatusReleased, entities.GroupStatusCancelled:
			return domainerrors.ErrOrderNotSettled
		}

		link, err := uc.settlements.FindLinkByGroup(txCtx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, domainerrors.ErrSettlementNotFound) {
				// Funds still sit in escrow until the payout runs.
				return domainerrors.ErrOrderNotSettled
			}
			return err
		}
		settlement, err := uc.settlements.FindByID(txCtx, link.SettlementID)
		if err != nil {
			return err
		}
		if !link.Amount.Currency().Equals(currency) {
			return domainerrors.ErrCurrencyMismatch
		}

		now := uc.clock.Now()
		if finalized := order.FinalizedAt(); finalized != nil {
			if now.After(finalized.AddDate(0, 0, uc.cfg.WindowDays)) {
				return domainerrors.ErrRefundWindowExpired
			}
		}

		// The refundable ceiling is the order's net: gross minus the
		// commission the platform kept. The fee is never returned.
		fee := settlement.CommissionRate().ApplyTo(link.Amount)
		perOrderNet, err := link.Amount.Sub(fee)
		if err != nil {
			return err
		}

		remaining, err := uc.remainingNet(txCtx, cmd, perOrderNet)
		if err != nil {
			return err
		}
		if cmp, err := amount.Cmp(remaining); err != nil {
			return err
		} else if cmp > 0 {
			return domainerrors.ErrRefundExceedsNet
		}
		if entities.RefundType(cmd.Type) == entities.RefundTypeFull && !amount.Equals(remaining) {
			return domainerrors.ValidationError{Field: "amount", Message: "full refund must return the entire remaining net"}
		}

		merchantID, buyerID := order.MerchantID(), order.BuyerID()
		if merchantID == nil || buyerID == nil {
			return domainerrors.ValidationError{Field: "order_id", Message: "order carries no merchant/buyer pair"}
		}
		merchantWallet, err := uc.wallets.FindByOwner(txCtx, *merchantID, entities.OwnerKindMerchant, currency)
		if err != nil {
			return err
		}
		buyerWallet, err := uc.wallets.FindByOwner(txCtx, *buyerID, entities.OwnerKindUser, currency)
		if err != nil {
			return err
		}

		var key *string
		if cmd.IdempotencyKey != "" {
			key = &cmd.IdempotencyKey
		}
		settlementID := settlement.ID()
		r, err := entities.NewRefund(
			uc.ids.NewID(),
			cmd.OrderID,
			&settlementID,
			*merchantID,
			merchantWallet.ID(),
			*buyerID,
			buyerWallet.ID(),
			amount,
			perOrderNet,
			cmd.Reason,
			entities.RefundType(cmd.Type),
			entities.InitiatorKind(cmd.Audit.InitiatorKind),
			key,
			now,
		)
		if err != nil {
			return err
		}

		completed, walletIDs, err := uc.proc.tryComplete(txCtx, r, cmd.Audit.ToAudit())
		if err != nil {
			return err
		}
		if !completed {
			expires := now.AddDate(0, 0, uc.cfg.PendingFundsTTLDays)
			if err := r.MarkPendingFunds(expires); err != nil {
				return err
			}
		}
		if err := uc.refunds.Save(txCtx, r); err != nil {
			return err
		}

		touched = walletIDs
		result = dtos.MapRefundToDTO(r)
		if completed {
			return uc.publisher.Publish(txCtx, events.NewRefundCompleted(r.ID(), r.OrderID(), r.Amount()))
		}
		return uc.publisher.Publish(txCtx, events.NewRefundPendingFunds(r.ID(), r.OrderID(), r.Amount(), *r.ExpiresAt()))
	})
	if err != nil {
		return nil, err
	}
	_ = uc.cache.Invalidate(ctx, touched...)
	return result, nil
}

// remainingNet subtracts prior refunds that are completed or still in flight
// from the order's net, and refuses a second full refund.
func (uc *CreateRefundUseCase) remainingNet(ctx context.Context, cmd dtos.CreateRefundCommand, perOrderNet valueobjects.Money) (valueobjects.Money, error) {
	prior, err := uc.refunds.ListByOrder(ctx, cmd.OrderID)
	if err != nil {
		return valueobjects.Money{}, err
	}
	remaining := perOrderNet
	for _, p := range prior {
		switch p.Status() {
		case entities.RefundStatusRejected, entities.RefundStatusFailed, entities.RefundStatusExpired:
			continue
		}
		if p.Type() == entities.RefundTypeFull {
			return valueobjects.Money{}, domainerrors.ErrAlreadyRefunded
		}
		remaining, err = remaining.Sub(p.Amount())
		if err != nil {
			return valueobjects.Money{}, err
		}
	}
	if !remaining.IsPositive() {
		return valueobjects.Money{}, domainerrors.ErrAlreadyRefunded
	}
	return remaining, nil
}
