package dtos

import "github.com/google/uuid"

// CreateWalletCommand opens a wallet for an external owner. A non-zero
// InitialBalance funds the wallet from the deposit source in the same
// transaction that creates it.
type CreateWalletCommand struct {
	Type           string    `json:"type" validate:"required,oneof=USER MERCHANT"`
	OwnerID        string    `json:"owner_id" validate:"required"`
	OwnerKind      string    `json:"owner_kind" validate:"required,oneof=USER_OWNER MERCHANT_OWNER"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	InitialBalance int64     `json:"initial_balance,omitempty" validate:"gte=0"`
	Description    string    `json:"description,omitempty"`
	Audit          AuditInfo `json:"audit"`
}

// CreateGroupCommand opens a transaction group.
type CreateGroupCommand struct {
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	MerchantID     *string `json:"merchant_id,omitempty"`
	BuyerID        *string `json:"buyer_id,omitempty"`
}

// HoldDebitCommand places a debit hold on a wallet inside a group.
type HoldDebitCommand struct {
	GroupID     uuid.UUID `json:"group_id" validate:"required"`
	WalletID    int64     `json:"wallet_id" validate:"required,gt=0"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	Currency    string    `json:"currency" validate:"required,len=3"`
	Description string    `json:"description,omitempty"`
	Audit       AuditInfo `json:"audit"`
}

// HoldCreditCommand places a credit hold toward a wallet inside a group.
type HoldCreditCommand struct {
	GroupID     uuid.UUID `json:"group_id" validate:"required"`
	WalletID    int64     `json:"wallet_id" validate:"required,gt=0"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	Currency    string    `json:"currency" validate:"required,len=3"`
	Description string    `json:"description,omitempty"`
	Audit       AuditInfo `json:"audit"`
}

// FinalizeGroupCommand settles, releases or cancels a group.
type FinalizeGroupCommand struct {
	GroupID uuid.UUID `json:"group_id" validate:"required"`
	Reason  string    `json:"reason,omitempty"`
	Audit   AuditInfo `json:"audit"`
}

// TransferCommand is a two-phase transfer executed in one call.
type TransferCommand struct {
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	SourceWalletID int64     `json:"source_wallet_id" validate:"required,gt=0"`
	DestWalletID   int64     `json:"dest_wallet_id" validate:"required,gt=0"`
	Amount         int64     `json:"amount" validate:"required,gt=0"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	MerchantID     *string   `json:"merchant_id,omitempty"`
	BuyerID        *string   `json:"buyer_id,omitempty"`
	Description    string    `json:"description,omitempty"`
	Audit          AuditInfo `json:"audit"`
}

// DirectTransferCommand settles immediately without a hold phase.
type DirectTransferCommand struct {
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	SourceWalletID int64     `json:"source_wallet_id" validate:"required,gt=0"`
	DestWalletID   int64     `json:"dest_wallet_id" validate:"required,gt=0"`
	Amount         int64     `json:"amount" validate:"required,gt=0"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	Description    string    `json:"description,omitempty"`
	Audit          AuditInfo `json:"audit"`
}

// DepositCommand brings external funds onto a wallet.
type DepositCommand struct {
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	WalletID       int64     `json:"wallet_id" validate:"required,gt=0"`
	Amount         int64     `json:"amount" validate:"required,gt=0"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	Description    string    `json:"description,omitempty"`
	Audit          AuditInfo `json:"audit"`
}

// WithdrawCommand moves wallet funds out of the platform.
type WithdrawCommand struct {
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	WalletID       int64     `json:"wallet_id" validate:"required,gt=0"`
	Amount         int64     `json:"amount" validate:"required,gt=0"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	Description    string    `json:"description,omitempty"`
	Audit          AuditInfo `json:"audit"`
}

// ExecuteSettlementCommand pays out a merchant's accumulated escrow funds.
type ExecuteSettlementCommand struct {
	MerchantID string    `json:"merchant_id" validate:"required"`
	Currency   string    `json:"currency" validate:"required,len=3"`
	Audit      AuditInfo `json:"audit"`
}

// CreateRefundCommand refunds a settled order back to the buyer.
type CreateRefundCommand struct {
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	OrderID        uuid.UUID `json:"order_id" validate:"required"`
	Amount         int64     `json:"amount" validate:"required,gt=0"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	Type           string    `json:"type" validate:"required,oneof=FULL PARTIAL"`
	Reason         string    `json:"reason,omitempty"`
	Audit          AuditInfo `json:"audit"`
}
