// Package group implements the transaction-group engine: debit and credit
// holds, the zero-sum settle, and reversal by offsetting entries. Transfers,
// settlements and refunds all compose these primitives.
package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// Service holds the in-transaction primitives. Every method expects a context
// already carrying the store transaction; the exported use cases draw the
// boundary with UnitOfWork and call in.
type Service struct {
	wallets ports.WalletStore
	entries ports.EntryStore
	groups  ports.GroupStore
	clock   ports.Clock
	ids     ports.IDGenerator
}

// NewService creates the group engine.
func NewService(
	wallets ports.WalletStore,
	entries ports.EntryStore,
	groups ports.GroupStore,
	clock ports.Clock,
	ids ports.IDGenerator,
) *Service {
	return &Service{
		wallets: wallets,
		entries: entries,
		groups:  groups,
		clock:   clock,
		ids:     ids,
	}
}

// CreateGroup opens a new IN_PROGRESS group. A reused idempotency key returns
// the existing group instead of creating a second one.
func (s *Service) CreateGroup(ctx context.Context, idempotencyKey *string, merchantID, buyerID *string) (*entities.TransactionGroup, error) {
	if idempotencyKey != nil && *idempotencyKey != "" {
		existing, err := s.groups.FindByIdempotencyKey(ctx, *idempotencyKey)
		if err != nil && !errors.Is(err, domainerrors.ErrGroupNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	grp := entities.NewTransactionGroup(s.ids.NewID(), idempotencyKey, merchantID, buyerID, s.clock.Now())
	if err := s.groups.Save(ctx, grp); err != nil {
		return nil, fmt.Errorf("save group: %w", err)
	}
	return grp, nil
}

// EnsureSystemWallet finds a system singleton, creating it lazily. Concurrent
// creators race on the (type, description, currency) uniqueness constraint;
// the loser re-reads the winner's row.
func (s *Service) EnsureSystemWallet(ctx context.Context, walletType entities.WalletType, description string, currency valueobjects.Currency) (*entities.Wallet, error) {
	w, err := s.wallets.FindSystem(ctx, walletType, description, currency)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domainerrors.ErrWalletNotFound) {
		return nil, err
	}

	w, err = entities.NewWallet(walletType, currency, nil, entities.OwnerKindSystem, description, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.wallets.Save(ctx, w); err != nil {
		if errors.Is(err, domainerrors.ErrIdempotencyConflict) {
			return s.wallets.FindSystem(ctx, walletType, description, currency)
		}
		return nil, fmt.Errorf("save system wallet: %w", err)
	}
	return w, nil
}

// Escrow returns the escrow singleton for a currency.
func (s *Service) Escrow(ctx context.Context, currency valueobjects.Currency) (*entities.Wallet, error) {
	return s.EnsureSystemWallet(ctx, entities.WalletTypeEscrow, entities.SystemWalletEscrow, currency)
}

// BalanceOf derives the position of a wallet from the entry aggregates.
// Callers that gate on the result must have locked the wallet row first.
func (s *Service) BalanceOf(ctx context.Context, wallet *entities.Wallet) (*entities.Balance, error) {
	totals, err := s.entries.WalletTotals(ctx, wallet.ID())
	if err != nil {
		return nil, fmt.Errorf("wallet totals: %w", err)
	}
	currency := wallet.Currency()
	total := valueobjects.NewMoney(totals.Settled, currency)
	held := valueobjects.NewMoney(-totals.HoldDebit, currency)
	available := valueobjects.NewMoney(totals.Settled+totals.HoldDebit, currency)
	return &entities.Balance{
		WalletID:  wallet.ID(),
		Total:     total,
		HeldDebit: held,
		Available: available,
	}, nil
}

// HoldDebit writes the debit hold pair: a negative DEBIT HOLD on the wallet
// and the matching positive CREDIT HOLD on escrow. The wallet row is locked
// and available funds are checked before anything is written.
func (s *Service) HoldDebit(
	ctx context.Context,
	groupID uuid.UUID,
	walletID int64,
	amount valueobjects.Money,
	description string,
	audit entities.Audit,
) ([]*entities.Entry, error) {
	if !amount.IsPositive() {
		return nil, domainerrors.ErrInvalidAmount
	}

	grp, err := s.lockInProgress(ctx, groupID)
	if err != nil {
		return nil, err
	}

	wallet, err := s.wallets.FindByIDForUpdate(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !wallet.Currency().Equals(amount.Currency()) {
		return nil, domainerrors.ErrCurrencyMismatch
	}

	balance, err := s.BalanceOf(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if ok, err := balance.Available.GreaterThanOrEqual(amount); err != nil {
		return nil, err
	} else if !ok {
		return nil, domainerrors.ErrInsufficientFunds
	}

	escrow, err := s.Escrow(ctx, amount.Currency())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	debit, err := entities.NewEntry(wallet.ID(), amount.Negate(), entities.EntryTypeDebit, entities.EntryStatusHold, grp.ID(), description, audit, now)
	if err != nil {
		return nil, err
	}
	credit, err := entities.NewEntry(escrow.ID(), amount, entities.EntryTypeCredit, entities.EntryStatusHold, grp.ID(), description, audit, now)
	if err != nil {
		return nil, err
	}

	pair := []*entities.Entry{debit, credit}
	if err := s.entries.InsertBatch(ctx, pair); err != nil {
		return nil, fmt.Errorf("insert hold pair: %w", err)
	}
	return pair, nil
}

// HoldCredit writes the credit hold pair: a negative DEBIT HOLD on escrow and
// the matching positive CREDIT HOLD on the destination wallet. No funds gate;
// escrow is allowed to run a transient debit within the group.
func (s *Service) HoldCredit(
	ctx context.Context,
	groupID uuid.UUID,
	walletID int64,
	amount valueobjects.Money,
	description string,
	audit entities.Audit,
) ([]*entities.Entry, error) {
	if !amount.IsPositive() {
		return nil, domainerrors.ErrInvalidAmount
	}

	grp, err := s.lockInProgress(ctx, groupID)
	if err != nil {
		return nil, err
	}

	wallet, err := s.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !wallet.Currency().Equals(amount.Currency()) {
		return nil, domainerrors.ErrCurrencyMismatch
	}

	escrow, err := s.Escrow(ctx, amount.Currency())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	debit, err := entities.NewEntry(escrow.ID(), amount.Negate(), entities.EntryTypeDebit, entities.EntryStatusHold, grp.ID(), description, audit, now)
	if err != nil {
		return nil, err
	}
	credit, err := entities.NewEntry(wallet.ID(), amount, entities.EntryTypeCredit, entities.EntryStatusHold, grp.ID(), description, audit, now)
	if err != nil {
		return nil, err
	}

	pair := []*entities.Entry{debit, credit}
	if err := s.entries.InsertBatch(ctx, pair); err != nil {
		return nil, fmt.Errorf("insert hold pair: %w", err)
	}
	return pair, nil
}

// Settle finalizes a group as SETTLED. The group's HOLD and SETTLED entries
// must sum to zero; each outstanding HOLD gets a SETTLED copy with identical
// sign and type. The HOLD originals stay in place untouched.
func (s *Service) Settle(ctx context.Context, groupID uuid.UUID) (*entities.TransactionGroup, []*entities.Entry, error) {
	grp, err := s.lockInProgress(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	sum, err := s.entries.SumByReference(ctx, grp.ID(), []entities.EntryStatus{entities.EntryStatusHold, entities.EntryStatusSettled})
	if err != nil {
		return nil, nil, fmt.Errorf("sum group entries: %w", err)
	}
	if sum != 0 {
		return nil, nil, domainerrors.NewReconciliationError(grp.ID().String(), sum)
	}

	holds, err := s.outstandingHolds(ctx, grp.ID())
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	copies := make([]*entities.Entry, 0, len(holds))
	for _, h := range holds {
		c, err := h.SettledCopy(now)
		if err != nil {
			return nil, nil, err
		}
		copies = append(copies, c)
	}
	if len(copies) > 0 {
		if err := s.entries.InsertBatch(ctx, copies); err != nil {
			return nil, nil, fmt.Errorf("insert settled copies: %w", err)
		}
	}

	if err := grp.Settle(now); err != nil {
		return nil, nil, err
	}
	if err := s.groups.Update(ctx, grp); err != nil {
		return nil, nil, fmt.Errorf("update group: %w", err)
	}
	return grp, copies, nil
}

// Release finalizes a group as RELEASED by offsetting every outstanding hold.
func (s *Service) Release(ctx context.Context, groupID uuid.UUID, reason string) (*entities.TransactionGroup, []*entities.Entry, error) {
	return s.finalizeWithOffsets(ctx, groupID, entities.EntryStatusReleased, reason)
}

// Cancel finalizes a group as CANCELLED by offsetting every outstanding hold.
func (s *Service) Cancel(ctx context.Context, groupID uuid.UUID, reason string) (*entities.TransactionGroup, []*entities.Entry, error) {
	return s.finalizeWithOffsets(ctx, groupID, entities.EntryStatusCancelled, reason)
}

func (s *Service) finalizeWithOffsets(ctx context.Context, groupID uuid.UUID, status entities.EntryStatus, reason string) (*entities.TransactionGroup, []*entities.Entry, error) {
	grp, err := s.lockInProgress(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	holds, err := s.outstandingHolds(ctx, grp.ID())
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	offsets := make([]*entities.Entry, 0, len(holds))
	for _, h := range holds {
		o, err := h.Offset(status, reason, now)
		if err != nil {
			return nil, nil, err
		}
		offsets = append(offsets, o)
	}
	if len(offsets) > 0 {
		if err := s.entries.InsertBatch(ctx, offsets); err != nil {
			return nil, nil, fmt.Errorf("insert offsets: %w", err)
		}
	}

	switch status {
	case entities.EntryStatusReleased:
		err = grp.Release(reason, now)
	default:
		err = grp.Cancel(reason, now)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := s.groups.Update(ctx, grp); err != nil {
		return nil, nil, fmt.Errorf("update group: %w", err)
	}
	return grp, offsets, nil
}

// lockInProgress loads the group under its row lock and verifies it can still
// change.
func (s *Service) lockInProgress(ctx context.Context, groupID uuid.UUID) (*entities.TransactionGroup, error) {
	grp, err := s.groups.FindByIDForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !grp.IsInProgress() {
		return nil, domainerrors.NewStateTransitionError("transaction_group", string(grp.Status()), string(entities.GroupStatusInProgress))
	}
	return grp, nil
}

// outstandingHolds returns the group's HOLD entries, oldest first.
func (s *Service) outstandingHolds(ctx context.Context, referenceID uuid.UUID) ([]*entities.Entry, error) {
	all, err := s.entries.FindByReference(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("load group entries: %w", err)
	}
	holds := make([]*entities.Entry, 0, len(all))
	for _, e := range all {
		if e.Status() == entities.EntryStatusHold {
			holds = append(holds, e)
		}
	}
	return holds, nil
}

// WalletIDs collects the distinct wallets a set of entries touches. Used for
// cache invalidation after commit.
func WalletIDs(entrySets ...[]*entities.Entry) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, set := range entrySets {
		for _, e := range set {
			if _, ok := seen[e.WalletID()]; ok {
				continue
			}
			seen[e.WalletID()] = struct{}{}
			out = append(out, e.WalletID())
		}
	}
	return out
}
