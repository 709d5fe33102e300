// Package entities - TransactionGroup is the atomic unit of settlement: the
// set of entries sharing one reference id, finalized together.
package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
)

// GroupStatus is the state of a transaction group. IN_PROGRESS is the only
// non-terminal state; each of SETTLED, RELEASED and CANCELLED is terminal.
type GroupStatus string

const (
	GroupStatusInProgress GroupStatus = "IN_PROGRESS"
	GroupStatusSettled    GroupStatus = "SETTLED"
	GroupStatusReleased   GroupStatus = "RELEASED"
	GroupStatusCancelled  GroupStatus = "CANCELLED"
)

// ParseGroupStatus validates a status string, refusing legacy names.
func ParseGroupStatus(s string) (GroupStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if legacyEntryStatuses[normalized] {
		return "", domainerrors.ErrLegacyStatusName
	}
	status := GroupStatus(normalized)
	if !status.IsValid() {
		return "", domainerrors.ValidationError{Field: "status", Message: "unknown group status"}
	}
	return status, nil
}

// IsValid checks if the group status is valid.
func (s GroupStatus) IsValid() bool {
	switch s {
	case GroupStatusInProgress, GroupStatusSettled, GroupStatusReleased, GroupStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s GroupStatus) IsTerminal() bool {
	return s != GroupStatusInProgress
}

// TransactionGroup groups related entries for atomic finalization. Only the
// status (and finalization metadata) mutate; the entries themselves never do.
type TransactionGroup struct {
	id             uuid.UUID
	status         GroupStatus
	merchantID     *string
	buyerID        *string
	reason         string
	idempotencyKey *string
	createdAt      time.Time
	finalizedAt    *time.Time
}

// NewTransactionGroup creates a group in IN_PROGRESS.
func NewTransactionGroup(id uuid.UUID, idempotencyKey *string, merchantID, buyerID *string, now time.Time) *TransactionGroup {
	return &TransactionGroup{
		id:             id,
		status:         GroupStatusInProgress,
		merchantID:     merchantID,
		buyerID:        buyerID,
		idempotencyKey: idempotencyKey,
		createdAt:      now,
	}
}

// ReconstructTransactionGroup rebuilds a group from stored data.
func ReconstructTransactionGroup(
	id uuid.UUID,
	status GroupStatus,
	merchantID, buyerID *string,
	reason string,
	idempotencyKey *string,
	createdAt time.Time,
	finalizedAt *time.Time,
) *TransactionGroup {
	return &TransactionGroup{
		id:             id,
		status:         status,
		merchantID:     merchantID,
		buyerID:        buyerID,
		reason:         reason,
		idempotencyKey: idempotencyKey,
		createdAt:      createdAt,
		finalizedAt:    finalizedAt,
	}
}

func (g *TransactionGroup) ID() uuid.UUID {
	return g.id
}

func (g *TransactionGroup) Status() GroupStatus {
	return g.status
}

func (g *TransactionGroup) MerchantID() *string {
	return g.merchantID
}

func (g *TransactionGroup) BuyerID() *string {
	return g.buyerID
}

func (g *TransactionGroup) Reason() string {
	return g.reason
}

func (g *TransactionGroup) IdempotencyKey() *string {
	return g.idempotencyKey
}

func (g *TransactionGroup) CreatedAt() time.Time {
	return g.createdAt
}

func (g *TransactionGroup) FinalizedAt() *time.Time {
	return g.finalizedAt
}

// IsInProgress reports whether the group can still accept holds.
func (g *TransactionGroup) IsInProgress() bool {
	return g.status == GroupStatusInProgress
}

// Settle transitions IN_PROGRESS -> SETTLED. The zero-sum check over the
// group's entries happens in the use case before this is called.
func (g *TransactionGroup) Settle(now time.Time) error {
	return g.finalize(GroupStatusSettled, "", now)
}

// Release transitions IN_PROGRESS -> RELEASED.
func (g *TransactionGroup) Release(reason string, now time.Time) error {
	return g.finalize(GroupStatusReleased, reason, now)
}

// Cancel transitions IN_PROGRESS -> CANCELLED.
func (g *TransactionGroup) Cancel(reason string, now time.Time) error {
	return g.finalize(GroupStatusCancelled, reason, now)
}

func (g *TransactionGroup) finalize(target GroupStatus, reason string, now time.Time) error {
	if g.status != GroupStatusInProgress {
		return domainerrors.NewStateTransitionError("transaction_group", string(g.status), string(target))
	}
	g.status = target
	if reason != "" {
		g.reason = reason
	}
	g.finalizedAt = &now
	return nil
}
