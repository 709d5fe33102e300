package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fintrellis/ledgercore/internal/application/dtos"
	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/application/usecases/group"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/events"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// ExecuteSettlementUseCase pays out a merchant. One settlement per merchant
// per calendar day, gated by the idempotency key; the globally unique link
// rows make settling the same group twice impossible even across retries.
type ExecuteSettlementUseCase struct {
	service     *group.Service
	wallets     ports.WalletStore
	entries     ports.EntryStore
	settlements ports.SettlementStore
	reserves    ports.ReserveStore
	uow         ports.UnitOfWork
	publisher   ports.EventPublisher
	cache       ports.BalanceCache
	clock       ports.Clock
	ids         ports.IDGenerator
	cfg         Config
	log         *slog.Logger
}

// NewExecuteSettlementUseCase creates the use case.
func NewExecuteSettlementUseCase(
	service *group.Service,
	wallets ports.WalletStore,
	entries ports.EntryStore,
	settlements ports.SettlementStore,
	reserves ports.ReserveStore,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	cache ports.BalanceCache,
	clock ports.Clock,
	ids ports.IDGenerator,
	cfg Config,
	log *slog.Logger,
) *ExecuteSettlementUseCase {
	return &ExecuteSettlementUseCase{
		service:     service,
		wallets:     wallets,
		entries:     entries,
		settlements: settlements,
		reserves:    reserves,
		uow:         uow,
		publisher:   publisher,
		cache:       cache,
		clock:       clock,
		ids:         ids,
		cfg:         cfg,
		log:         log,
	}
}

// IdempotencyKey builds the one-per-day settlement key.
func IdempotencyKey(merchantID string, day time.Time) string {
	return fmt.Sprintf("merchant_%s_settlement_%s", merchantID, day.Format("2006-01-02"))
}

// Execute runs the payout.
func (uc *ExecuteSettlementUseCase) Execute(ctx context.Context, cmd dtos.ExecuteSettlementCommand) (*dtos.SettlementDTO, error) {
	if err := dtos.Validate(cmd); err != nil {
		return nil, err
	}
	currency, err := valueobjects.NewCurrency(cmd.Currency)
	if err != nil {
		return nil, err
	}

	key := IdempotencyKey(cmd.MerchantID, uc.clock.Now())
	if prior, err := uc.settlements.FindByIdempotencyKey(ctx, key); err == nil {
		// FAILED rows never match the key lookup; a hit means the payout
		// already ran (or is running) today.
		if prior.Status() == entities.SettlementStatusCompleted {
			return dtos.MapSettlementToDTO(prior), nil
		}
		return nil, domainerrors.ErrIdempotencyConflict
	} else if !errors.Is(err, domainerrors.ErrSettlementNotFound) {
		return nil, err
	}

	var settled *entities.Settlement
	var p *pricing
	var touched []int64
	txErr := uc.uow.Execute(ctx, func(txCtx context.Context) error {
		var err error
		p, err = price(txCtx, uc.settlements, uc.entries, uc.service, uc.cfg, cmd.MerchantID, currency)
		if err != nil {
			return err
		}

		merchantWallet, err := uc.wallets.FindByOwner(txCtx, cmd.MerchantID, entities.OwnerKindMerchant, currency)
		if err != nil {
			return err
		}

		s, err := entities.NewSettlement(uc.ids.NewID(), cmd.MerchantID, p.total, p.fee, p.net, uc.cfg.CommissionRate, len(p.refs), &key, uc.clock.Now())
		if err != nil {
			return err
		}
		if err := uc.settlements.Save(txCtx, s); err != nil {
			return err
		}

		// The payout group deliberately carries no merchant id: the
		// unsettled-group scan keys on merchant_id, and the payout's own
		// group must never match it.
		grp, err := uc.service.CreateGroup(txCtx, nil, nil, nil)
		if err != nil {
			return err
		}

		audit := cmd.Audit.ToAudit()
		netLeg, err := uc.service.HoldCredit(txCtx, grp.ID(), merchantWallet.ID(), p.net, "settlement payout", audit)
		if err != nil {
			return err
		}
		var feeLeg []*entities.Entry
		if p.fee.IsPositive() {
			fees, err := uc.service.EnsureSystemWallet(txCtx, entities.WalletTypeSystem, entities.SystemWalletFees, currency)
			if err != nil {
				return err
			}
			feeLeg, err = uc.service.HoldCredit(txCtx, grp.ID(), fees.ID(), p.fee, "settlement commission", audit)
			if err != nil {
				return err
			}
		}
		grp, copies, err := uc.service.Settle(txCtx, grp.ID())
		if err != nil {
			return err
		}

		if err := s.AttachGroup(grp.ID()); err != nil {
			return err
		}
		if err := s.MarkCompleted(uc.clock.Now()); err != nil {
			return err
		}
		if err := uc.settlements.Update(txCtx, s); err != nil {
			return err
		}

		links := make([]entities.SettlementLink, 0, len(p.refs))
		for _, ref := range p.refs {
			links = append(links, entities.SettlementLink{SettlementID: s.ID(), GroupID: ref, Amount: p.amounts[ref]})
		}
		if err := uc.settlements.InsertLinks(txCtx, links); err != nil {
			return err
		}

		settled = s
		touched = group.WalletIDs(netLeg, feeLeg, copies)
		return uc.publisher.Publish(txCtx, events.NewSettlementCompleted(s.ID(), cmd.MerchantID, p.total, p.fee, p.net, len(p.refs)))
	})
	if txErr != nil {
		uc.recordFailure(ctx, cmd.MerchantID, currency, key, p, txErr)
		return nil, txErr
	}
	_ = uc.cache.Invalidate(ctx, touched...)

	uc.createReserve(ctx, settled, currency, cmd.Audit.ToAudit())
	return dtos.MapSettlementToDTO(settled), nil
}

// recordFailure writes the FAILED audit row in its own transaction so it
// survives the payout rollback. Pricing failures leave no row; there was no
// payout to audit.
func (uc *ExecuteSettlementUseCase) recordFailure(ctx context.Context, merchantID string, currency valueobjects.Currency, key string, p *pricing, cause error) {
	if p == nil {
		return
	}
	err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
		s, err := entities.NewSettlement(uc.ids.NewID(), merchantID, p.total, p.fee, p.net, uc.cfg.CommissionRate, len(p.refs), &key, uc.clock.Now())
		if err != nil {
			return err
		}
		if err := s.MarkFailed(); err != nil {
			return err
		}
		if err := uc.settlements.Save(txCtx, s); err != nil {
			return err
		}
		return uc.publisher.Publish(txCtx, events.NewSettlementFailed(s.ID(), merchantID, cause.Error()))
	})
	if err != nil {
		uc.log.Error("failed to record settlement failure",
			slog.String("merchant_id", merchantID),
			slog.String("error", err.Error()))
	}
}

// createReserve carves the refund reserve out of the completed payout. Best
// effort: a reserve failure is logged, never propagated, and the payout
// stands.
func (uc *ExecuteSettlementUseCase) createReserve(ctx context.Context, s *entities.Settlement, currency valueobjects.Currency, audit entities.Audit) {
	if uc.cfg.ReserveRate.IsZero() {
		return
	}
	reserved := uc.cfg.ReserveRate.ApplyTo(s.Net())
	if !reserved.IsPositive() {
		return
	}

	var touched []int64
	err := uc.uow.Execute(ctx, func(txCtx context.Context) error {
		reserveWallet, err := uc.service.EnsureSystemWallet(txCtx, entities.WalletTypeSystem, entities.SystemWalletRefundReserve, currency)
		if err != nil {
			return err
		}

		grp, err := uc.service.CreateGroup(txCtx, nil, nil, nil)
		if err != nil {
			return err
		}

		// The group stays IN_PROGRESS for the life of the reserve; the
		// release sweep offsets it when the hold window lapses.
		var legs []*entities.Entry
		if uc.cfg.ReserveSource == ReserveSourceMerchant {
			merchantWallet, err := uc.wallets.FindByOwner(txCtx, s.MerchantID(), entities.OwnerKindMerchant, currency)
			if err != nil {
				return err
			}
			debitLeg, err := uc.service.HoldDebit(txCtx, grp.ID(), merchantWallet.ID(), reserved, "refund reserve", audit)
			if err != nil {
				return err
			}
			legs = append(legs, debitLeg...)
		}
		creditLeg, err := uc.service.HoldCredit(txCtx, grp.ID(), reserveWallet.ID(), reserved, "refund reserve", audit)
		if err != nil {
			return err
		}
		legs = append(legs, creditLeg...)

		now := uc.clock.Now()
		expires := now.AddDate(0, 0, uc.cfg.ReserveHoldDays)
		reserve, err := entities.NewRefundReserve(uc.ids.NewID(), s.ID(), s.MerchantID(), reserveWallet.ID(), reserved, grp.ID(), now, expires)
		if err != nil {
			return err
		}
		if err := uc.reserves.Save(txCtx, reserve); err != nil {
			return err
		}
		touched = group.WalletIDs(legs)
		return nil
	})
	if err != nil {
		uc.log.Warn("refund reserve creation failed",
			slog.String("settlement_id", s.ID().String()),
			slog.String("error", err.Error()))
		return
	}
	_ = uc.cache.Invalidate(ctx, touched...)
}
