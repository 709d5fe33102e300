// Package errors defines the ledger error taxonomy. Typed errors (instead of
// strings) let callers handle specific cases with errors.Is / errors.As.
//
// The taxonomy is the contract of the core:
//
//   - NotFound      — entity lookups that miss
//   - InvalidArgument — malformed input (amount, ownership, currency)
//   - Precondition  — domain state that forbids the operation
//   - Conflict      — concurrent duplicates resolved by uniqueness rules
//   - Internal      — store failures and invariant violations
package errors

import (
	"errors"
	"fmt"
)

// NotFound sentinels.
var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrGroupNotFound      = errors.New("transaction group not found")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrRefundNotFound     = errors.New("refund not found")
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrReserveNotFound    = errors.New("refund reserve not found")
)

// InvalidArgument sentinels.
var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidOwnership = errors.New("wallet ownership violates type invariants")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrLegacyStatusName = errors.New("legacy status name is not accepted")
)

// Precondition sentinels.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrReconciliationFailed   = errors.New("group entries do not sum to zero")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderNotSettled        = errors.New("order is not settled")
	ErrUseCancelInstead       = errors.New("order is still on hold; cancel the group instead of refunding")
	ErrAlreadyRefunded        = errors.New("order already fully refunded")
	ErrRefundExceedsNet       = errors.New("refund exceeds remaining net amount")
	ErrRefundWindowExpired    = errors.New("refund window expired")
	ErrBelowMinimum           = errors.New("settlement total below configured minimum")
	ErrNoUnsettledGroups      = errors.New("merchant has no unsettled transaction groups")
)

// Conflict sentinels.
var (
	ErrIdempotencyConflict = errors.New("idempotency key reused with different parameters")
	ErrDoubleSettlement    = errors.New("transaction group already settled in another settlement")
)

// Internal sentinels.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
)

// InvariantViolation signals a broken ledger invariant that should have been
// caught by a storage constraint. It must never surface in normal operation.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation [%s]: %s", e.Invariant, e.Detail)
}

// NewInvariantViolation creates an InvariantViolation error.
func NewInvariantViolation(invariant, detail string) *InvariantViolation {
	return &InvariantViolation{Invariant: invariant, Detail: detail}
}

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// StateTransitionError wraps ErrInvalidStateTransition with the offending
// transition for diagnostics.
type StateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s: %s cannot transition %s -> %s", ErrInvalidStateTransition, e.Entity, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// NewStateTransitionError creates a StateTransitionError.
func NewStateTransitionError(entity, from, to string) *StateTransitionError {
	return &StateTransitionError{Entity: entity, From: from, To: to}
}

// ReconciliationError wraps ErrReconciliationFailed with the offending sum.
type ReconciliationError struct {
	GroupID string
	Sum     int64
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: group %s sums to %d", ErrReconciliationFailed, e.GroupID, e.Sum)
}

func (e *ReconciliationError) Unwrap() error {
	return ErrReconciliationFailed
}

// NewReconciliationError creates a ReconciliationError.
func NewReconciliationError(groupID string, sum int64) *ReconciliationError {
	return &ReconciliationError{GroupID: groupID, Sum: sum}
}

// Classification helpers used by callers and the error-mapping boundary.

// IsNotFound reports whether err is any NotFound sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrSettlementNotFound) ||
		errors.Is(err, ErrRefundNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrReserveNotFound)
}

// IsInvalidArgument reports whether err belongs to the InvalidArgument kind.
func IsInvalidArgument(err error) bool {
	var ve ValidationError
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidOwnership) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrLegacyStatusName) ||
		errors.As(err, &ve)
}

// IsPrecondition reports whether err belongs to the Precondition kind.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrReconciliationFailed) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrOrderNotSettled) ||
		errors.Is(err, ErrUseCancelInstead) ||
		errors.Is(err, ErrAlreadyRefunded) ||
		errors.Is(err, ErrRefundExceedsNet) ||
		errors.Is(err, ErrRefundWindowExpired) ||
		errors.Is(err, ErrBelowMinimum) ||
		errors.Is(err, ErrNoUnsettledGroups)
}

// IsConflict reports whether err belongs to the Conflict kind.
func IsConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyConflict) || errors.Is(err, ErrDoubleSettlement)
}

// IsInternal reports whether err belongs to the Internal kind.
func IsInternal(err error) bool {
	var iv *InvariantViolation
	return errors.Is(err, ErrStoreUnavailable) || errors.As(err, &iv)
}
