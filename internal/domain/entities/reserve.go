// Package entities - RefundReserve is the portion of a settlement withheld
// against potential post-settlement refunds.
package entities

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// ReserveStatus tracks consumption of a reserve.
//
// ACTIVE -> PARTIALLY_USED -> FULLY_USED, or ACTIVE/PARTIALLY_USED ->
// RELEASED after expiry via the scheduled sweep.
type ReserveStatus string

const (
	ReserveStatusActive        ReserveStatus = "ACTIVE"
	ReserveStatusPartiallyUsed ReserveStatus = "PARTIALLY_USED"
	ReserveStatusFullyUsed     ReserveStatus = "FULLY_USED"
	ReserveStatusReleased      ReserveStatus = "RELEASED"
)

// IsValid checks if the reserve status is valid.
func (s ReserveStatus) IsValid() bool {
	switch s {
	case ReserveStatusActive, ReserveStatusPartiallyUsed, ReserveStatusFullyUsed, ReserveStatusReleased:
		return true
	default:
		return false
	}
}

// RefundReserve is backed by a HOLD group moving the reserved amount onto the
// reserve wallet; consumption is bookkeeping against used/available only.
type RefundReserve struct {
	id              uuid.UUID
	settlementID    uuid.UUID
	merchantID      string
	reserveWalletID int64
	reserved        valueobjects.Money
	used            valueobjects.Money
	groupID         uuid.UUID
	status          ReserveStatus
	createdAt       time.Time
	expiresAt       time.Time
	releasedAt      *time.Time
}

// NewRefundReserve creates an ACTIVE reserve with used = 0.
func NewRefundReserve(
	id uuid.UUID,
	settlementID uuid.UUID,
	merchantID string,
	reserveWalletID int64,
	reserved valueobjects.Money,
	groupID uuid.UUID,
	now time.Time,
	expiresAt time.Time,
) (*RefundReserve, error) {
	if !reserved.IsPositive() {
		return nil, domainerrors.ErrInvalidAmount
	}
	return &RefundReserve{
		id:              id,
		settlementID:    settlementID,
		merchantID:      merchantID,
		reserveWalletID: reserveWalletID,
		reserved:        reserved,
		used:            valueobjects.ZeroMoney(reserved.Currency()),
		groupID:         groupID,
		status:          ReserveStatusActive,
		createdAt:       now,
		expiresAt:       expiresAt,
	}, nil
}

// ReconstructRefundReserve rebuilds a reserve from stored data.
func ReconstructRefundReserve(
	id uuid.UUID,
	settlementID uuid.UUID,
	merchantID string,
	reserveWalletID int64,
	reserved, used valueobjects.Money,
	groupID uuid.UUID,
	status ReserveStatus,
	createdAt, expiresAt time.Time,
	releasedAt *time.Time,
) *RefundReserve {
	return &RefundReserve{
		id:              id,
		settlementID:    settlementID,
		merchantID:      merchantID,
		reserveWalletID: reserveWalletID,
		reserved:        reserved,
		used:            used,
		groupID:         groupID,
		status:          status,
		createdAt:       createdAt,
		expiresAt:       expiresAt,
		releasedAt:      releasedAt,
	}
}

func (r *RefundReserve) ID() uuid.UUID {
	return r.id
}

func (r *RefundReserve) SettlementID() uuid.UUID {
	return r.settlementID
}

func (r *RefundReserve) MerchantID() string {
	return r.merchantID
}

func (r *RefundReserve) ReserveWalletID() int64 {
	return r.reserveWalletID
}

func (r *RefundReserve) Reserved() valueobjects.Money {
	return r.reserved
}

func (r *RefundReserve) Used() valueobjects.Money {
	return r.used
}

// Available is reserved − used, recomputed rather than stored.
func (r *RefundReserve) Available() valueobjects.Money {
	available, _ := r.reserved.Sub(r.used)
	return available
}

func (r *RefundReserve) GroupID() uuid.UUID {
	return r.groupID
}

func (r *RefundReserve) Status() ReserveStatus {
	return r.status
}

func (r *RefundReserve) CreatedAt() time.Time {
	return r.createdAt
}

func (r *RefundReserve) ExpiresAt() time.Time {
	return r.expiresAt
}

func (r *RefundReserve) ReleasedAt() *time.Time {
	return r.releasedAt
}

func (r *RefundReserve) Currency() valueobjects.Currency {
	return r.reserved.Currency()
}

// IsExpired reports whether the reserve is past its hold window.
func (r *RefundReserve) IsExpired(now time.Time) bool {
	return !now.Before(r.expiresAt)
}

// Consume debits the used amount and recomputes status. Consumption never
// exceeds availability; the surplus of a refund is paid from the merchant's
// settled funds and does not touch the reserve.
func (r *RefundReserve) Consume(amount valueobjects.Money) error {
	if r.status != ReserveStatusActive && r.status != ReserveStatusPartiallyUsed {
		return domainerrors.NewStateTransitionError("refund_reserve", string(r.status), string(ReserveStatusPartiallyUsed))
	}
	if !amount.IsPositive() {
		return domainerrors.ErrInvalidAmount
	}
	capped := amount
	if ge, err := amount.GreaterThanOrEqual(r.Available()); err != nil {
		return err
	} else if ge {
		capped = r.Available()
	}
	used, err := r.used.Add(capped)
	if err != nil {
		return err
	}
	r.used = used
	if r.Available().IsZero() {
		r.status = ReserveStatusFullyUsed
	} else {
		r.status = ReserveStatusPartiallyUsed
	}
	return nil
}

// Release transitions an expired reserve to RELEASED.
func (r *RefundReserve) Release(now time.Time) error {
	if r.status != ReserveStatusActive && r.status != ReserveStatusPartiallyUsed {
		return domainerrors.NewStateTransitionError("refund_reserve", string(r.status), string(ReserveStatusReleased))
	}
	r.status = ReserveStatusReleased
	r.releasedAt = &now
	return nil
}
