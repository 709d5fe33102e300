// Package events defines the domain events published by the ledger core.
// Events are immutable facts about completed operations; they are written to
// the transactional outbox in the same store transaction as the operation
// itself and relayed to the broker afterwards.
package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// BaseEvent provides the common fields, embedded in each event type.
type BaseEvent struct {
	eventID     uuid.UUID
	eventType   string
	occurredAt  time.Time
	aggregateID string
}

func newBaseEvent(eventType, aggregateID string) BaseEvent {
	return BaseEvent{
		eventID:     uuid.New(),
		eventType:   eventType,
		occurredAt:  time.Now().UTC(),
		aggregateID: aggregateID,
	}
}

func (e BaseEvent) EventID() uuid.UUID {
	return e.eventID
}

func (e BaseEvent) EventType() string {
	return e.eventType
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e BaseEvent) AggregateID() string {
	return e.aggregateID
}

// Event type constants. Used as outbox rows' type column and as broker
// subject suffixes.
const (
	EventTypeWalletCreated        = "wallet.created"
	EventTypeGroupSettled         = "group.settled"
	EventTypeGroupReleased        = "group.released"
	EventTypeGroupCancelled       = "group.cancelled"
	EventTypeDepositCompleted     = "deposit.completed"
	EventTypeWithdrawalCompleted  = "withdrawal.completed"
	EventTypeSettlementCompleted  = "settlement.completed"
	EventTypeSettlementFailed     = "settlement.failed"
	EventTypeRefundCompleted      = "refund.completed"
	EventTypeRefundPendingFunds   = "refund.pending_funds"
	EventTypeRefundExpired        = "refund.expired"
	EventTypeReserveReleased      = "reserve.released"
	EventTypeSnapshotCompleted    = "snapshot.completed"
	EventTypeArchiveCompleted     = "archive.completed"
	EventTypeReconciliationBroken = "reconciliation.broken"
)

// WalletCreated is raised when a new wallet row is persisted.
type WalletCreated struct {
	BaseEvent
	WalletID   int64
	WalletType string
	OwnerID    *string
	Currency   valueobjects.Currency
}

func NewWalletCreated(walletID int64, walletType string, ownerID *string, currency valueobjects.Currency) *WalletCreated {
	return &WalletCreated{
		BaseEvent:  newBaseEvent(EventTypeWalletCreated, walletIDKey(walletID)),
		WalletID:   walletID,
		WalletType: walletType,
		OwnerID:    ownerID,
		Currency:   currency,
	}
}

// GroupSettled is raised when a transaction group finalizes as SETTLED.
type GroupSettled struct {
	BaseEvent
	GroupID    uuid.UUID
	EntryCount int
}

func NewGroupSettled(groupID uuid.UUID, entryCount int) *GroupSettled {
	return &GroupSettled{
		BaseEvent:  newBaseEvent(EventTypeGroupSettled, groupID.String()),
		GroupID:    groupID,
		EntryCount: entryCount,
	}
}

// GroupReleased is raised when a transaction group finalizes as RELEASED.
type GroupReleased struct {
	BaseEvent
	GroupID uuid.UUID
	Reason  string
}

func NewGroupReleased(groupID uuid.UUID, reason string) *GroupReleased {
	return &GroupReleased{
		BaseEvent: newBaseEvent(EventTypeGroupReleased, groupID.String()),
		GroupID:   groupID,
		Reason:    reason,
	}
}

// GroupCancelled is raised when a transaction group finalizes as CANCELLED.
type GroupCancelled struct {
	BaseEvent
	GroupID uuid.UUID
	Reason  string
}

func NewGroupCancelled(groupID uuid.UUID, reason string) *GroupCancelled {
	return &GroupCancelled{
		BaseEvent: newBaseEvent(EventTypeGroupCancelled, groupID.String()),
		GroupID:   groupID,
		Reason:    reason,
	}
}

// DepositCompleted is raised when external funds land on a wallet.
type DepositCompleted struct {
	BaseEvent
	GroupID  uuid.UUID
	WalletID int64
	Amount   valueobjects.Money
}

func NewDepositCompleted(groupID uuid.UUID, walletID int64, amount valueobjects.Money) *DepositCompleted {
	return &DepositCompleted{
		BaseEvent: newBaseEvent(EventTypeDepositCompleted, groupID.String()),
		GroupID:   groupID,
		WalletID:  walletID,
		Amount:    amount,
	}
}

// WithdrawalCompleted is raised when a withdrawal group settles.
type WithdrawalCompleted struct {
	BaseEvent
	GroupID  uuid.UUID
	WalletID int64
	Amount   valueobjects.Money
}

func NewWithdrawalCompleted(groupID uuid.UUID, walletID int64, amount valueobjects.Money) *WithdrawalCompleted {
	return &WithdrawalCompleted{
		BaseEvent: newBaseEvent(EventTypeWithdrawalCompleted, groupID.String()),
		GroupID:   groupID,
		WalletID:  walletID,
		Amount:    amount,
	}
}

// SettlementCompleted is raised when a merchant payout completes.
type SettlementCompleted struct {
	BaseEvent
	SettlementID uuid.UUID
	MerchantID   string
	Total        valueobjects.Money
	Fee          valueobjects.Money
	Net          valueobjects.Money
	GroupCount   int
}

func NewSettlementCompleted(settlementID uuid.UUID, merchantID string, total, fee, net valueobjects.Money, groupCount int) *SettlementCompleted {
	return &SettlementCompleted{
		BaseEvent:    newBaseEvent(EventTypeSettlementCompleted, settlementID.String()),
		SettlementID: settlementID,
		MerchantID:   merchantID,
		Total:        total,
		Fee:          fee,
		Net:          net,
		GroupCount:   groupCount,
	}
}

// SettlementFailed is raised when a payout attempt is marked FAILED.
type SettlementFailed struct {
	BaseEvent
	SettlementID uuid.UUID
	MerchantID   string
	Reason       string
}

func NewSettlementFailed(settlementID uuid.UUID, merchantID, reason string) *SettlementFailed {
	return &SettlementFailed{
		BaseEvent:    newBaseEvent(EventTypeSettlementFailed, settlementID.String()),
		SettlementID: settlementID,
		MerchantID:   merchantID,
		Reason:       reason,
	}
}

// RefundCompleted is raised when a refund's entries are written and settled.
type RefundCompleted struct {
	BaseEvent
	RefundID uuid.UUID
	OrderID  uuid.UUID
	Amount   valueobjects.Money
}

func NewRefundCompleted(refundID, orderID uuid.UUID, amount valueobjects.Money) *RefundCompleted {
	return &RefundCompleted{
		BaseEvent: newBaseEvent(EventTypeRefundCompleted, refundID.String()),
		RefundID:  refundID,
		OrderID:   orderID,
		Amount:    amount,
	}
}

// RefundPendingFunds is raised when a refund parks waiting for merchant funds.
type RefundPendingFunds struct {
	BaseEvent
	RefundID  uuid.UUID
	OrderID   uuid.UUID
	Amount    valueobjects.Money
	ExpiresAt time.Time
}

func NewRefundPendingFunds(refundID, orderID uuid.UUID, amount valueobjects.Money, expiresAt time.Time) *RefundPendingFunds {
	return &RefundPendingFunds{
		BaseEvent: newBaseEvent(EventTypeRefundPendingFunds, refundID.String()),
		RefundID:  refundID,
		OrderID:   orderID,
		Amount:    amount,
		ExpiresAt: expiresAt,
	}
}

// RefundExpired is raised when a PENDING_FUNDS refund passes its deadline.
type RefundExpired struct {
	BaseEvent
	RefundID uuid.UUID
	OrderID  uuid.UUID
}

func NewRefundExpired(refundID, orderID uuid.UUID) *RefundExpired {
	return &RefundExpired{
		BaseEvent: newBaseEvent(EventTypeRefundExpired, refundID.String()),
		RefundID:  refundID,
		OrderID:   orderID,
	}
}

// ReserveReleased is raised when an expired refund reserve returns to the
// merchant.
type ReserveReleased struct {
	BaseEvent
	ReserveID  uuid.UUID
	MerchantID string
	Returned   valueobjects.Money
}

func NewReserveReleased(reserveID uuid.UUID, merchantID string, returned valueobjects.Money) *ReserveReleased {
	return &ReserveReleased{
		BaseEvent:  newBaseEvent(EventTypeReserveReleased, reserveID.String()),
		ReserveID:  reserveID,
		MerchantID: merchantID,
		Returned:   returned,
	}
}

// SnapshotCompleted is raised after a snapshot pass moves finalized entries
// to the warm tier.
type SnapshotCompleted struct {
	BaseEvent
	WalletID     int64
	MovedEntries int
	SnapshotDate time.Time
}

func NewSnapshotCompleted(walletID int64, movedEntries int, snapshotDate time.Time) *SnapshotCompleted {
	return &SnapshotCompleted{
		BaseEvent:    newBaseEvent(EventTypeSnapshotCompleted, walletIDKey(walletID)),
		WalletID:     walletID,
		MovedEntries: movedEntries,
		SnapshotDate: snapshotDate,
	}
}

// ArchiveCompleted is raised after an archive pass writes a checkpoint and
// moves warm rows to cold storage.
type ArchiveCompleted struct {
	BaseEvent
	WalletID        int64
	ArchivedEntries int
	Checkpoint      valueobjects.Money
}

func NewArchiveCompleted(walletID int64, archivedEntries int, checkpoint valueobjects.Money) *ArchiveCompleted {
	return &ArchiveCompleted{
		BaseEvent:       newBaseEvent(EventTypeArchiveCompleted, walletIDKey(walletID)),
		WalletID:        walletID,
		ArchivedEntries: archivedEntries,
		Checkpoint:      checkpoint,
	}
}

// ReconciliationBroken is raised when a reconciliation run finds a non-zero
// grand total or an unbalanced group. It exists to page a human.
type ReconciliationBroken struct {
	BaseEvent
	GrandTotal int64
	GroupIDs   []uuid.UUID
}

func NewReconciliationBroken(grandTotal int64, groupIDs []uuid.UUID) *ReconciliationBroken {
	return &ReconciliationBroken{
		BaseEvent:  newBaseEvent(EventTypeReconciliationBroken, "system"),
		GrandTotal: grandTotal,
		GroupIDs:   groupIDs,
	}
}

func walletIDKey(id int64) string {
	return "wallet-" + strconv.FormatInt(id, 10)
}
