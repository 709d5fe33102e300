// Package entities - Entry is the immutable unit of the ledger. Once written
// an entry never changes; reversal happens only by writing offsetting entries.
package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// EntryType couples with the sign of the amount: DEBIT entries are strictly
// negative, CREDIT entries strictly positive. LEDGER is reserved for the
// synthetic checkpoint rows the archive engine writes into the warm tier.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
	EntryTypeLedger EntryType = "LEDGER"
)

// IsValid checks if the entry type is valid.
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeDebit, EntryTypeCredit, EntryTypeLedger:
		return true
	default:
		return false
	}
}

// Opposite returns the flipped type used for offsetting entries.
func (t EntryType) Opposite() EntryType {
	switch t {
	case EntryTypeDebit:
		return EntryTypeCredit
	case EntryTypeCredit:
		return EntryTypeDebit
	default:
		return t
	}
}

// EntryStatus is the lifecycle state of an entry. The canonical model is
// HOLD/SETTLED/RELEASED/CANCELLED/REFUNDED; the legacy names RESERVE,
// CONFIRMED and REJECTED are refused outright.
type EntryStatus string

const (
	EntryStatusHold      EntryStatus = "HOLD"
	EntryStatusSettled   EntryStatus = "SETTLED"
	EntryStatusReleased  EntryStatus = "RELEASED"
	EntryStatusCancelled EntryStatus = "CANCELLED"
	EntryStatusRefunded  EntryStatus = "REFUNDED"
)

// legacyEntryStatuses are terminology from an earlier revision of the model.
var legacyEntryStatuses = map[string]bool{
	"RESERVE":   true,
	"CONFIRMED": true,
	"REJECTED":  true,
}

// ParseEntryStatus validates a status string, refusing legacy names.
func ParseEntryStatus(s string) (EntryStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if legacyEntryStatuses[normalized] {
		return "", domainerrors.ErrLegacyStatusName
	}
	status := EntryStatus(normalized)
	if !status.IsValid() {
		return "", domainerrors.ValidationError{Field: "status", Message: "unknown entry status"}
	}
	return status, nil
}

// IsValid checks if the entry status is valid.
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusHold, EntryStatusSettled, EntryStatusReleased, EntryStatusCancelled, EntryStatusRefunded:
		return true
	default:
		return false
	}
}

// InitiatorKind identifies who triggered the operation that produced an entry.
type InitiatorKind string

const (
	InitiatorSystem   InitiatorKind = "SYSTEM"
	InitiatorMerchant InitiatorKind = "MERCHANT"
	InitiatorAdmin    InitiatorKind = "ADMIN"
	InitiatorUser     InitiatorKind = "USER"
)

// Audit carries the request-level audit fields stamped on every entry.
type Audit struct {
	InitiatorKind InitiatorKind
	InitiatorID   string
	IP            string
	UserAgent     string
}

// SystemAudit is the audit record for entries produced by background jobs.
func SystemAudit() Audit {
	return Audit{InitiatorKind: InitiatorSystem, InitiatorID: "ledgercore"}
}

// Entry is one signed movement on one wallet. Append-only: no field ever
// changes after the entry is written.
type Entry struct {
	id          int64
	walletID    int64
	amount      valueobjects.Money
	entryType   EntryType
	status      EntryStatus
	referenceID uuid.UUID
	description string
	audit       Audit

	// heldAt is the hold-or-reserve time; confirmedAt the confirm-or-reject
	// time, nil while the entry is an outstanding HOLD.
	heldAt      time.Time
	confirmedAt *time.Time

	// Warm-tier attributes; zero for hot entries.
	isCheckpoint bool
	snapshotDate *time.Time
}

// NewEntry creates an entry after enforcing the sign/type coupling:
// DEBIT < 0, CREDIT > 0, LEDGER unconstrained.
func NewEntry(
	walletID int64,
	amount valueobjects.Money,
	entryType EntryType,
	status EntryStatus,
	referenceID uuid.UUID,
	description string,
	audit Audit,
	now time.Time,
) (*Entry, error) {
	if !entryType.IsValid() {
		return nil, domainerrors.ValidationError{Field: "entry_type", Message: "unknown entry type"}
	}
	if !status.IsValid() {
		return nil, domainerrors.ValidationError{Field: "status", Message: "unknown entry status"}
	}
	if referenceID == uuid.Nil {
		return nil, domainerrors.ValidationError{Field: "reference_id", Message: "reference id is required"}
	}
	switch entryType {
	case EntryTypeDebit:
		if !amount.IsNegative() {
			return nil, domainerrors.NewInvariantViolation("entry-sign", "DEBIT entry must be strictly negative")
		}
	case EntryTypeCredit:
		if !amount.IsPositive() {
			return nil, domainerrors.NewInvariantViolation("entry-sign", "CREDIT entry must be strictly positive")
		}
	}

	e := &Entry{
		walletID:    walletID,
		amount:      amount,
		entryType:   entryType,
		status:      status,
		referenceID: referenceID,
		description: description,
		audit:       audit,
		heldAt:      now,
	}
	if status != EntryStatusHold {
		confirmed := now
		e.confirmedAt = &confirmed
	}
	return e, nil
}

// ReconstructEntry rebuilds an Entry from stored data.
func ReconstructEntry(
	id int64,
	walletID int64,
	amount valueobjects.Money,
	entryType EntryType,
	status EntryStatus,
	referenceID uuid.UUID,
	description string,
	audit Audit,
	heldAt time.Time,
	confirmedAt *time.Time,
	isCheckpoint bool,
	snapshotDate *time.Time,
) *Entry {
	return &Entry{
		id:           id,
		walletID:     walletID,
		amount:       amount,
		entryType:    entryType,
		status:       status,
		referenceID:  referenceID,
		description:  description,
		audit:        audit,
		heldAt:       heldAt,
		confirmedAt:  confirmedAt,
		isCheckpoint: isCheckpoint,
		snapshotDate: snapshotDate,
	}
}

// NewCheckpoint builds the synthetic warm-tier LEDGER row that replaces a set
// of archived entries for one wallet.
func NewCheckpoint(
	walletID int64,
	amount valueobjects.Money,
	snapshotDate time.Time,
	now time.Time,
) *Entry {
	confirmed := now
	return &Entry{
		walletID:     walletID,
		amount:       amount,
		entryType:    EntryTypeLedger,
		status:       EntryStatusSettled,
		referenceID:  uuid.New(),
		description:  "ledger checkpoint",
		audit:        SystemAudit(),
		heldAt:       now,
		confirmedAt:  &confirmed,
		isCheckpoint: true,
		snapshotDate: &snapshotDate,
	}
}

func (e *Entry) ID() int64 {
	return e.id
}

func (e *Entry) WalletID() int64 {
	return e.walletID
}

func (e *Entry) Amount() valueobjects.Money {
	return e.amount
}

func (e *Entry) Type() EntryType {
	return e.entryType
}

func (e *Entry) Status() EntryStatus {
	return e.status
}

func (e *Entry) ReferenceID() uuid.UUID {
	return e.referenceID
}

func (e *Entry) Description() string {
	return e.description
}

func (e *Entry) Audit() Audit {
	return e.audit
}

func (e *Entry) HeldAt() time.Time {
	return e.heldAt
}

func (e *Entry) ConfirmedAt() *time.Time {
	return e.confirmedAt
}

func (e *Entry) IsCheckpoint() bool {
	return e.isCheckpoint
}

func (e *Entry) SnapshotDate() *time.Time {
	return e.snapshotDate
}

// SetID assigns the store-generated id once.
func (e *Entry) SetID(id int64) {
	if e.id != 0 {
		panic("entry id already assigned")
	}
	e.id = id
}

// IsHoldDebit reports whether the entry is an outstanding debit hold.
func (e *Entry) IsHoldDebit() bool {
	return e.status == EntryStatusHold && e.amount.IsNegative()
}

// SettledCopy emits the confirmation entry for a hold: identical sign and
// type, status SETTLED. The original HOLD row stays untouched.
func (e *Entry) SettledCopy(now time.Time) (*Entry, error) {
	if e.status != EntryStatusHold {
		return nil, domainerrors.NewStateTransitionError("entry", string(e.status), string(EntryStatusSettled))
	}
	return NewEntry(e.walletID, e.amount, e.entryType, EntryStatusSettled, e.referenceID, e.description, e.audit, now)
}

// Offset emits the reversal entry for a hold: amount negated, type flipped,
// status RELEASED or CANCELLED. This is the only legal reversal mechanism.
func (e *Entry) Offset(status EntryStatus, reason string, now time.Time) (*Entry, error) {
	if e.status != EntryStatusHold {
		return nil, domainerrors.NewStateTransitionError("entry", string(e.status), string(status))
	}
	if status != EntryStatusReleased && status != EntryStatusCancelled {
		return nil, domainerrors.ValidationError{Field: "status", Message: "offset status must be RELEASED or CANCELLED"}
	}
	return NewEntry(e.walletID, e.amount.Negate(), e.entryType.Opposite(), status, e.referenceID, reason, e.audit, now)
}
