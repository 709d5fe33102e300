// Package entities - Refund models a post-settlement return of funds from a
// merchant to a buyer. Commission is never returned: a full refund moves the
// order's net amount, and the fee stays with the system wallet.
package entities

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// RefundStatus is the lifecycle of a refund.
type RefundStatus string

const (
	RefundStatusPending      RefundStatus = "PENDING"
	RefundStatusPendingFunds RefundStatus = "PENDING_FUNDS"
	RefundStatusProcessing   RefundStatus = "PROCESSING"
	RefundStatusCompleted    RefundStatus = "COMPLETED"
	RefundStatusRejected     RefundStatus = "REJECTED"
	RefundStatusFailed       RefundStatus = "FAILED"
	RefundStatusExpired      RefundStatus = "EXPIRED"
)

// IsValid checks if the refund status is valid.
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusPendingFunds, RefundStatusProcessing,
		RefundStatusCompleted, RefundStatusRejected, RefundStatusFailed, RefundStatusExpired:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the status is terminal.
func (s RefundStatus) IsFinal() bool {
	switch s {
	case RefundStatusCompleted, RefundStatusRejected, RefundStatusFailed, RefundStatusExpired:
		return true
	default:
		return false
	}
}

// RefundType distinguishes full from partial refunds. At most one FULL
// refund may exist per order.
type RefundType string

const (
	RefundTypeFull    RefundType = "FULL"
	RefundTypePartial RefundType = "PARTIAL"
)

// Refund is the return record for one order (a previously settled group).
type Refund struct {
	id               uuid.UUID
	orderID          uuid.UUID
	settlementID     *uuid.UUID
	merchantID       string
	merchantWalletID int64
	buyerID          string
	buyerWalletID    int64
	amount           valueobjects.Money
	originalAmount   valueobjects.Money
	reason           string
	status           RefundStatus
	refundType       RefundType
	initiator        InitiatorKind
	groupID          *uuid.UUID
	idempotencyKey   *string
	createdAt        time.Time
	processedAt      *time.Time
	expiresAt        *time.Time
}

// NewRefund creates a PENDING refund. amount must be positive and must not
// exceed the original order amount; the net-based cumulative cap is enforced
// by the use case, which knows the settlement's commission rate.
func NewRefund(
	id uuid.UUID,
	orderID uuid.UUID,
	settlementID *uuid.UUID,
	merchantID string,
	merchantWalletID int64,
	buyerID string,
	buyerWalletID int64,
	amount, originalAmount valueobjects.Money,
	reason string,
	refundType RefundType,
	initiator InitiatorKind,
	idempotencyKey *string,
	now time.Time,
) (*Refund, error) {
	if !amount.IsPositive() {
		return nil, domainerrors.ErrInvalidAmount
	}
	if gt, err := amount.Cmp(originalAmount); err != nil {
		return nil, domainerrors.ErrCurrencyMismatch
	} else if gt > 0 {
		return nil, domainerrors.ErrRefundExceedsNet
	}
	if refundType != RefundTypeFull && refundType != RefundTypePartial {
		return nil, domainerrors.ValidationError{Field: "refund_type", Message: "unknown refund type"}
	}

	return &Refund{
		id:               id,
		orderID:          orderID,
		settlementID:     settlementID,
		merchantID:       merchantID,
		merchantWalletID: merchantWalletID,
		buyerID:          buyerID,
		buyerWalletID:    buyerWalletID,
		amount:           amount,
		originalAmount:   originalAmount,
		reason:           reason,
		status:           RefundStatusPending,
		refundType:       refundType,
		initiator:        initiator,
		idempotencyKey:   idempotencyKey,
		createdAt:        now,
	}, nil
}

// ReconstructRefund rebuilds a refund from stored data.
func ReconstructRefund(
	id uuid.UUID,
	orderID uuid.UUID,
	settlementID *uuid.UUID,
	merchantID string,
	merchantWalletID int64,
	buyerID string,
	buyerWalletID int64,
	amount, originalAmount valueobjects.Money,
	reason string,
	status RefundStatus,
	refundType RefundType,
	initiator InitiatorKind,
	groupID *uuid.UUID,
	idempotencyKey *string,
	createdAt time.Time,
	processedAt, expiresAt *time.Time,
) *Refund {
	return &Refund{
		id:               id,
		orderID:          orderID,
		settlementID:     settlementID,
		merchantID:       merchantID,
		merchantWalletID: merchantWalletID,
		buyerID:          buyerID,
		buyerWalletID:    buyerWalletID,
		amount:           amount,
		originalAmount:   originalAmount,
		reason:           reason,
		status:           status,
		refundType:       refundType,
		initiator:        initiator,
		groupID:          groupID,
		idempotencyKey:   idempotencyKey,
		createdAt:        createdAt,
		processedAt:      processedAt,
		expiresAt:        expiresAt,
	}
}

func (r *Refund) ID() uuid.UUID {
	return r.id
}

func (r *Refund) OrderID() uuid.UUID {
	return r.orderID
}

func (r *Refund) SettlementID() *uuid.UUID {
	return r.settlementID
}

func (r *Refund) MerchantID() string {
	return r.merchantID
}

func (r *Refund) MerchantWalletID() int64 {
	return r.merchantWalletID
}

func (r *Refund) BuyerID() string {
	return r.buyerID
}

func (r *Refund) BuyerWalletID() int64 {
	return r.buyerWalletID
}

func (r *Refund) Amount() valueobjects.Money {
	return r.amount
}

func (r *Refund) OriginalAmount() valueobjects.Money {
	return r.originalAmount
}

func (r *Refund) Reason() string {
	return r.reason
}

func (r *Refund) Status() RefundStatus {
	return r.status
}

func (r *Refund) Type() RefundType {
	return r.refundType
}

func (r *Refund) Initiator() InitiatorKind {
	return r.initiator
}

func (r *Refund) GroupID() *uuid.UUID {
	return r.groupID
}

func (r *Refund) IdempotencyKey() *string {
	return r.idempotencyKey
}

func (r *Refund) CreatedAt() time.Time {
	return r.createdAt
}

func (r *Refund) ProcessedAt() *time.Time {
	return r.processedAt
}

func (r *Refund) ExpiresAt() *time.Time {
	return r.expiresAt
}

func (r *Refund) Currency() valueobjects.Currency {
	return r.amount.Currency()
}

// MarkProcessing transitions PENDING or PENDING_FUNDS -> PROCESSING.
func (r *Refund) MarkProcessing() error {
	if r.status != RefundStatusPending && r.status != RefundStatusPendingFunds {
		return domainerrors.NewStateTransitionError("refund", string(r.status), string(RefundStatusProcessing))
	}
	r.status = RefundStatusProcessing
	return nil
}

// MarkCompleted stamps the refund group and processed_at.
func (r *Refund) MarkCompleted(groupID uuid.UUID, now time.Time) error {
	if r.status != RefundStatusProcessing {
		return domainerrors.NewStateTransitionError("refund", string(r.status), string(RefundStatusCompleted))
	}
	r.status = RefundStatusCompleted
	r.groupID = &groupID
	r.processedAt = &now
	return nil
}

// MarkPendingFunds parks the refund until the merchant balance suffices,
// with an expiry deadline.
func (r *Refund) MarkPendingFunds(expiresAt time.Time) error {
	if r.status != RefundStatusPending && r.status != RefundStatusProcessing {
		return domainerrors.NewStateTransitionError("refund", string(r.status), string(RefundStatusPendingFunds))
	}
	r.status = RefundStatusPendingFunds
	r.expiresAt = &expiresAt
	return nil
}

// MarkExpired transitions PENDING_FUNDS -> EXPIRED once past the deadline.
func (r *Refund) MarkExpired() error {
	if r.status != RefundStatusPendingFunds {
		return domainerrors.NewStateTransitionError("refund", string(r.status), string(RefundStatusExpired))
	}
	r.status = RefundStatusExpired
	return nil
}

// MarkFailed transitions any non-final state to FAILED.
func (r *Refund) MarkFailed() error {
	if r.status.IsFinal() {
		return domainerrors.NewStateTransitionError("refund", string(r.status), string(RefundStatusFailed))
	}
	r.status = RefundStatusFailed
	return nil
}
