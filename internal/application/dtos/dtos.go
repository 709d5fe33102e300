// Package dtos carries the commands and result objects crossing the
// application boundary. Entities never leave the application layer; callers
// see these plain structs instead.
package dtos

import (
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/domain/entities"
)

// AuditInfo identifies who triggered an operation and from where. Stamped
// onto every entry the operation writes.
type AuditInfo struct {
	InitiatorKind string `json:"initiator_kind"`
	InitiatorID   string `json:"initiator_id"`
	IP            string `json:"ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
}

// ToAudit converts the transport form into the domain audit record.
func (a AuditInfo) ToAudit() entities.Audit {
	return entities.Audit{
		InitiatorKind: entities.InitiatorKind(a.InitiatorKind),
		InitiatorID:   a.InitiatorID,
		IP:            a.IP,
		UserAgent:     a.UserAgent,
	}
}

// WalletDTO is the external view of a wallet.
type WalletDTO struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	OwnerID     *string   `json:"owner_id,omitempty"`
	OwnerKind   string    `json:"owner_kind"`
	Currency    string    `json:"currency"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MapWalletToDTO converts a wallet entity.
func MapWalletToDTO(w *entities.Wallet) *WalletDTO {
	return &WalletDTO{
		ID:          w.ID(),
		Type:        string(w.Type()),
		OwnerID:     w.OwnerID(),
		OwnerKind:   string(w.OwnerKind()),
		Currency:    w.Currency().Code(),
		Description: w.Description(),
		CreatedAt:   w.CreatedAt(),
	}
}

// BalanceDTO is the derived position of a wallet.
type BalanceDTO struct {
	WalletID  int64  `json:"wallet_id"`
	Currency  string `json:"currency"`
	Total     int64  `json:"total"`
	HeldDebit int64  `json:"held_debit"`
	Available int64  `json:"available"`
}

// MapBalanceToDTO converts a balance.
func MapBalanceToDTO(b *entities.Balance) *BalanceDTO {
	return &BalanceDTO{
		WalletID:  b.WalletID,
		Currency:  b.Total.Currency().Code(),
		Total:     b.Total.Amount(),
		HeldDebit: b.HeldDebit.Amount(),
		Available: b.Available.Amount(),
	}
}

// EntryDTO is the external view of a ledger entry.
type EntryDTO struct {
	ID          int64      `json:"id"`
	WalletID    int64      `json:"wallet_id"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	ReferenceID uuid.UUID  `json:"reference_id"`
	Description string     `json:"description,omitempty"`
	HeldAt      time.Time  `json:"held_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// MapEntryToDTO converts an entry entity.
func MapEntryToDTO(e *entities.Entry) *EntryDTO {
	return &EntryDTO{
		ID:          e.ID(),
		WalletID:    e.WalletID(),
		Amount:      e.Amount().Amount(),
		Currency:    e.Amount().Currency().Code(),
		Type:        string(e.Type()),
		Status:      string(e.Status()),
		ReferenceID: e.ReferenceID(),
		Description: e.Description(),
		HeldAt:      e.HeldAt(),
		ConfirmedAt: e.ConfirmedAt(),
	}
}

// MapEntriesToDTO converts a slice of entries.
func MapEntriesToDTO(entries []*entities.Entry) []*EntryDTO {
	out := make([]*EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, MapEntryToDTO(e))
	}
	return out
}

// GroupDTO is the external view of a transaction group.
type GroupDTO struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	MerchantID  *string    `json:"merchant_id,omitempty"`
	BuyerID     *string    `json:"buyer_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	Entries     []*EntryDTO `json:"entries,omitempty"`
}

// MapGroupToDTO converts a group entity, optionally with its entries.
func MapGroupToDTO(g *entities.TransactionGroup, entries []*entities.Entry) *GroupDTO {
	dto := &GroupDTO{
		ID:          g.ID(),
		Status:      string(g.Status()),
		MerchantID:  g.MerchantID(),
		BuyerID:     g.BuyerID(),
		Reason:      g.Reason(),
		CreatedAt:   g.CreatedAt(),
		FinalizedAt: g.FinalizedAt(),
	}
	if entries != nil {
		dto.Entries = MapEntriesToDTO(entries)
	}
	return dto
}

// SettlementDTO is the external view of a settlement.
type SettlementDTO struct {
	ID         uuid.UUID  `json:"id"`
	MerchantID string     `json:"merchant_id"`
	Currency   string     `json:"currency"`
	Total      int64      `json:"total"`
	Fee        int64      `json:"fee"`
	Net        int64      `json:"net"`
	Rate       string     `json:"commission_rate"`
	GroupCount int        `json:"group_count"`
	Status     string     `json:"status"`
	GroupID    *uuid.UUID `json:"group_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

// MapSettlementToDTO converts a settlement entity.
func MapSettlementToDTO(s *entities.Settlement) *SettlementDTO {
	return &SettlementDTO{
		ID:         s.ID(),
		MerchantID: s.MerchantID(),
		Currency:   s.Currency().Code(),
		Total:      s.Total().Amount(),
		Fee:        s.Fee().Amount(),
		Net:        s.Net().Amount(),
		Rate:       s.CommissionRate().String(),
		GroupCount: s.GroupCount(),
		Status:     string(s.Status()),
		GroupID:    s.GroupID(),
		CreatedAt:  s.CreatedAt(),
		SettledAt:  s.SettledAt(),
	}
}

// SettlementPreviewDTO is the dry-run result of a settlement calculation.
type SettlementPreviewDTO struct {
	MerchantID string `json:"merchant_id"`
	Currency   string `json:"currency"`
	Total      int64  `json:"total"`
	Fee        int64  `json:"fee"`
	Net        int64  `json:"net"`
	GroupCount int    `json:"group_count"`
}

// RefundDTO is the external view of a refund.
type RefundDTO struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	MerchantID  string     `json:"merchant_id"`
	BuyerID     string     `json:"buyer_id"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// MapRefundToDTO converts a refund entity.
func MapRefundToDTO(r *entities.Refund) *RefundDTO {
	return &RefundDTO{
		ID:          r.ID(),
		OrderID:     r.OrderID(),
		MerchantID:  r.MerchantID(),
		BuyerID:     r.BuyerID(),
		Amount:      r.Amount().Amount(),
		Currency:    r.Currency().Code(),
		Type:        string(r.Type()),
		Status:      string(r.Status()),
		Reason:      r.Reason(),
		GroupID:     r.GroupID(),
		CreatedAt:   r.CreatedAt(),
		ProcessedAt: r.ProcessedAt(),
		ExpiresAt:   r.ExpiresAt(),
	}
}

// ReserveDTO is the external view of a refund reserve.
type ReserveDTO struct {
	ID           uuid.UUID  `json:"id"`
	SettlementID uuid.UUID  `json:"settlement_id"`
	MerchantID   string     `json:"merchant_id"`
	Currency     string     `json:"currency"`
	Reserved     int64      `json:"reserved"`
	Used         int64      `json:"used"`
	Available    int64      `json:"available"`
	Status       string     `json:"status"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
}

// MapReserveToDTO converts a reserve entity.
func MapReserveToDTO(r *entities.RefundReserve) *ReserveDTO {
	return &ReserveDTO{
		ID:           r.ID(),
		SettlementID: r.SettlementID(),
		MerchantID:   r.MerchantID(),
		Currency:     r.Currency().Code(),
		Reserved:     r.Reserved().Amount(),
		Used:         r.Used().Amount(),
		Available:    r.Available().Amount(),
		Status:       string(r.Status()),
		ExpiresAt:    r.ExpiresAt(),
		ReleasedAt:   r.ReleasedAt(),
	}
}
