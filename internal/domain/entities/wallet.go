// Package entities contains the ledger's domain entities: wallets, entries,
// transaction groups, settlements, refund reserves and refunds. Entities are
// constructed through factory functions that enforce the domain invariants,
// and reconstructed from storage through Reconstruct* functions.
package entities

import (
	"time"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// WalletType classifies a wallet.
type WalletType string

const (
	WalletTypeUser     WalletType = "USER"
	WalletTypeMerchant WalletType = "MERCHANT"
	WalletTypeEscrow   WalletType = "ESCROW"
	WalletTypeSystem   WalletType = "SYSTEM"
)

// IsValid checks if the wallet type is valid.
func (t WalletType) IsValid() bool {
	switch t {
	case WalletTypeUser, WalletTypeMerchant, WalletTypeEscrow, WalletTypeSystem:
		return true
	default:
		return false
	}
}

// OwnerKind classifies the owner reference of a wallet.
type OwnerKind string

const (
	OwnerKindUser     OwnerKind = "USER_OWNER"
	OwnerKindMerchant OwnerKind = "MERCHANT_OWNER"
	OwnerKindSystem   OwnerKind = "SYSTEM_OWNER"
)

// IsValid checks if the owner kind is valid.
func (k OwnerKind) IsValid() bool {
	switch k {
	case OwnerKindUser, OwnerKindMerchant, OwnerKindSystem:
		return true
	default:
		return false
	}
}

// Well-known descriptions of the singleton system wallets. Uniqueness over
// (wallet_type, description) for SYSTEM and ESCROW wallets makes lazy
// creation race-safe.
const (
	SystemWalletEscrow        = "escrow"
	SystemWalletDeposit       = "deposit"
	SystemWalletWithdrawal    = "withdrawal"
	SystemWalletFees          = "fees"
	SystemWalletRefundReserve = "refund-reserve"
)

// Wallet is the account-level primitive of the ledger. Identity, type, owner
// and currency never mutate after creation; balances are derived from ledger
// entries, never stored on the wallet row.
type Wallet struct {
	id          int64
	walletType  WalletType
	ownerID     *string
	ownerKind   OwnerKind
	currency    valueobjects.Currency
	description string
	createdAt   time.Time
}

// NewWallet creates a wallet after checking the ownership invariants:
//
//   - USER requires a non-nil owner of kind USER_OWNER
//   - MERCHANT requires a non-nil owner of kind MERCHANT_OWNER
//   - ESCROW and SYSTEM require a nil owner of kind SYSTEM_OWNER
//
// The id is zero until the wallet is persisted (dense ids are assigned by
// the store).
func NewWallet(
	walletType WalletType,
	currency valueobjects.Currency,
	ownerID *string,
	ownerKind OwnerKind,
	description string,
	now time.Time,
) (*Wallet, error) {
	if !walletType.IsValid() {
		return nil, domainerrors.ValidationError{Field: "wallet_type", Message: "unknown wallet type"}
	}
	if !ownerKind.IsValid() {
		return nil, domainerrors.ValidationError{Field: "owner_kind", Message: "unknown owner kind"}
	}
	if currency.IsZero() {
		return nil, domainerrors.ValidationError{Field: "currency", Message: "currency is required"}
	}
	if err := checkOwnership(walletType, ownerID, ownerKind); err != nil {
		return nil, err
	}

	return &Wallet{
		walletType:  walletType,
		ownerID:     ownerID,
		ownerKind:   ownerKind,
		currency:    currency,
		description: description,
		createdAt:   now,
	}, nil
}

func checkOwnership(walletType WalletType, ownerID *string, ownerKind OwnerKind) error {
	switch walletType {
	case WalletTypeUser:
		if ownerID == nil || ownerKind != OwnerKindUser {
			return domainerrors.ErrInvalidOwnership
		}
	case WalletTypeMerchant:
		if ownerID == nil || ownerKind != OwnerKindMerchant {
			return domainerrors.ErrInvalidOwnership
		}
	case WalletTypeEscrow, WalletTypeSystem:
		if ownerID != nil || ownerKind != OwnerKindSystem {
			return domainerrors.ErrInvalidOwnership
		}
	}
	return nil
}

// ReconstructWallet rebuilds a Wallet from stored data. No validation: the
// storage constraints are authoritative for persisted rows.
func ReconstructWallet(
	id int64,
	walletType WalletType,
	ownerID *string,
	ownerKind OwnerKind,
	currency valueobjects.Currency,
	description string,
	createdAt time.Time,
) *Wallet {
	return &Wallet{
		id:          id,
		walletType:  walletType,
		ownerID:     ownerID,
		ownerKind:   ownerKind,
		currency:    currency,
		description: description,
		createdAt:   createdAt,
	}
}

func (w *Wallet) ID() int64 {
	return w.id
}

func (w *Wallet) Type() WalletType {
	return w.walletType
}

func (w *Wallet) OwnerID() *string {
	return w.ownerID
}

func (w *Wallet) OwnerKind() OwnerKind {
	return w.ownerKind
}

func (w *Wallet) Currency() valueobjects.Currency {
	return w.currency
}

func (w *Wallet) Description() string {
	return w.description
}

func (w *Wallet) CreatedAt() time.Time {
	return w.createdAt
}

// SetID assigns the store-generated id. Called once by the repository after
// insert; a second assignment indicates a programming error.
func (w *Wallet) SetID(id int64) {
	if w.id != 0 {
		panic("wallet id already assigned")
	}
	w.id = id
}

// IsSystemOwned reports whether the wallet belongs to the platform itself.
func (w *Wallet) IsSystemOwned() bool {
	return w.walletType == WalletTypeEscrow || w.walletType == WalletTypeSystem
}

// Balance is the derived position of a wallet at a point in time.
type Balance struct {
	WalletID  int64
	Total     valueobjects.Money
	HeldDebit valueobjects.Money
	Available valueobjects.Money
}
