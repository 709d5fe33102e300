// Package entities - Settlement is a merchant payout: accumulated escrow
// funds moved to the merchant minus commission.
package entities

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// SettlementStatus is the lifecycle of a settlement row. FAILED rows remain
// as audit records; the ledger entries behind a failed settlement are rolled
// back with the enclosing store transaction.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusCompleted SettlementStatus = "COMPLETED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

// IsValid checks if the settlement status is valid.
func (s SettlementStatus) IsValid() bool {
	switch s {
	case SettlementStatusPending, SettlementStatusCompleted, SettlementStatusFailed:
		return true
	default:
		return false
	}
}

// Settlement is the payout record for one merchant and one calendar day.
type Settlement struct {
	id             uuid.UUID
	merchantID     string
	total          valueobjects.Money
	fee            valueobjects.Money
	net            valueobjects.Money
	commissionRate valueobjects.Rate
	groupCount     int
	status         SettlementStatus
	groupID        *uuid.UUID
	idempotencyKey *string
	createdAt      time.Time
	settledAt      *time.Time
}

// NewSettlement creates a PENDING settlement. fee + net must equal total;
// the check guards the commission arithmetic before anything is persisted.
func NewSettlement(
	id uuid.UUID,
	merchantID string,
	total, fee, net valueobjects.Money,
	commissionRate valueobjects.Rate,
	groupCount int,
	idempotencyKey *string,
	now time.Time,
) (*Settlement, error) {
	if total.IsNegative() || fee.IsNegative() || net.IsNegative() {
		return nil, domainerrors.NewInvariantViolation("settlement-amounts", "total, fee and net must be non-negative")
	}
	sum, err := fee.Add(net)
	if err != nil {
		return nil, err
	}
	if !sum.Equals(total) {
		return nil, domainerrors.NewInvariantViolation("settlement-arithmetic", "fee + net must equal total")
	}
	if groupCount < 1 {
		return nil, domainerrors.ValidationError{Field: "group_count", Message: "settlement requires at least one group"}
	}

	return &Settlement{
		id:             id,
		merchantID:     merchantID,
		total:          total,
		fee:            fee,
		net:            net,
		commissionRate: commissionRate,
		groupCount:     groupCount,
		status:         SettlementStatusPending,
		idempotencyKey: idempotencyKey,
		createdAt:      now,
	}, nil
}

// ReconstructSettlement rebuilds a Settlement from stored data.
func ReconstructSettlement(
	id uuid.UUID,
	merchantID string,
	total, fee, net valueobjects.Money,
	commissionRate valueobjects.Rate,
	groupCount int,
	status SettlementStatus,
	groupID *uuid.UUID,
	idempotencyKey *string,
	createdAt time.Time,
	settledAt *time.Time,
) *Settlement {
	return &Settlement{
		id:             id,
		merchantID:     merchantID,
		total:          total,
		fee:            fee,
		net:            net,
		commissionRate: commissionRate,
		groupCount:     groupCount,
		status:         status,
		groupID:        groupID,
		idempotencyKey: idempotencyKey,
		createdAt:      createdAt,
		settledAt:      settledAt,
	}
}

func (s *Settlement) ID() uuid.UUID {
	return s.id
}

func (s *Settlement) MerchantID() string {
	return s.merchantID
}

func (s *Settlement) Total() valueobjects.Money {
	return s.total
}

func (s *Settlement) Fee() valueobjects.Money {
	return s.fee
}

func (s *Settlement) Net() valueobjects.Money {
	return s.net
}

func (s *Settlement) CommissionRate() valueobjects.Rate {
	return s.commissionRate
}

func (s *Settlement) GroupCount() int {
	return s.groupCount
}

func (s *Settlement) Status() SettlementStatus {
	return s.status
}

func (s *Settlement) GroupID() *uuid.UUID {
	return s.groupID
}

func (s *Settlement) IdempotencyKey() *string {
	return s.idempotencyKey
}

func (s *Settlement) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Settlement) SettledAt() *time.Time {
	return s.settledAt
}

func (s *Settlement) Currency() valueobjects.Currency {
	return s.total.Currency()
}

// AttachGroup records the internal transaction group that materializes the
// payout entries.
func (s *Settlement) AttachGroup(groupID uuid.UUID) error {
	if s.status != SettlementStatusPending {
		return domainerrors.NewStateTransitionError("settlement", string(s.status), string(s.status))
	}
	s.groupID = &groupID
	return nil
}

// MarkCompleted transitions PENDING -> COMPLETED and stamps settled_at.
func (s *Settlement) MarkCompleted(now time.Time) error {
	if s.status != SettlementStatusPending {
		return domainerrors.NewStateTransitionError("settlement", string(s.status), string(SettlementStatusCompleted))
	}
	s.status = SettlementStatusCompleted
	s.settledAt = &now
	return nil
}

// MarkFailed transitions PENDING -> FAILED. The row stays as an audit record.
func (s *Settlement) MarkFailed() error {
	if s.status != SettlementStatusPending {
		return domainerrors.NewStateTransitionError("settlement", string(s.status), string(SettlementStatusFailed))
	}
	s.status = SettlementStatusFailed
	return nil
}

// SettlementLink ties one settled transaction group to the settlement that
// paid it out. The group id is globally unique across links, which is the
// storage-level gate against double settlement.
type SettlementLink struct {
	SettlementID uuid.UUID
	GroupID      uuid.UUID
	Amount       valueobjects.Money
}
