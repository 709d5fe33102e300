package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
)

var (
	_ ports.SettlementStore = (*MemorySettlementStore)(nil)
	_ ports.ReserveStore    = (*MemoryReserveStore)(nil)
	_ ports.RefundStore     = (*MemoryRefundStore)(nil)
)

// MemorySettlementStore keeps settlements and their links. The link map keyed
// by group id mirrors the global UNIQUE constraint.
type MemorySettlementStore struct {
	mu          sync.Mutex
	settlements map[uuid.UUID]*entities.Settlement
	linksByGrp  map[uuid.UUID]entities.SettlementLink
	groups      *MemoryGroupStore
}

func NewMemorySettlementStore(groups *MemoryGroupStore) *MemorySettlementStore {
	return &MemorySettlementStore{
		settlements: map[uuid.UUID]*entities.Settlement{},
		linksByGrp:  map[uuid.UUID]entities.SettlementLink{},
		groups:      groups,
	}
}

func (s *MemorySettlementStore) Save(_ context.Context, settlement *entities.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key := settlement.IdempotencyKey(); key != nil && settlement.Status() != entities.SettlementStatusFailed {
		for _, existing := range s.settlements {
			if existing.IdempotencyKey() != nil && *existing.IdempotencyKey() == *key &&
				existing.Status() != entities.SettlementStatusFailed {
				return domainerrors.ErrIdempotencyConflict
			}
		}
	}
	s.settlements[settlement.ID()] = settlement
	return nil
}

func (s *MemorySettlementStore) Update(_ context.Context, settlement *entities.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settlements[settlement.ID()]; !ok {
		return domainerrors.ErrSettlementNotFound
	}
	s.settlements[settlement.ID()] = settlement
	return nil
}

func (s *MemorySettlementStore) FindByID(_ context.Context, id uuid.UUID) (*entities.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settlement, ok := s.settlements[id]
	if !ok {
		return nil, domainerrors.ErrSettlementNotFound
	}
	return settlement, nil
}

func (s *MemorySettlementStore) FindByIdempotencyKey(_ context.Context, key string) (*entities.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, settlement := range s.settlements {
		if settlement.IdempotencyKey() != nil && *settlement.IdempotencyKey() == key &&
			settlement.Status() != entities.SettlementStatusFailed {
			return settlement, nil
		}
	}
	return nil, domainerrors.ErrSettlementNotFound
}

func (s *MemorySettlementStore) ListByMerchant(_ context.Context, merchantID string, offset, limit int) ([]*entities.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Settlement
	for _, settlement := range s.settlements {
		if settlement.MerchantID() == merchantID {
			out = append(out, settlement)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	return page(out, offset, limit), nil
}

func (s *MemorySettlementStore) UnsettledGroupIDs(_ context.Context, merchantID string) ([]uuid.UUID, error) {
	settled := s.groups.groupsByMerchant(merchantID, entities.GroupStatusSettled)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for _, id := range settled {
		if _, linked := s.linksByGrp[id]; !linked {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemorySettlementStore) InsertLinks(_ context.Context, links []entities.SettlementLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, link := range links {
		if _, exists := s.linksByGrp[link.GroupID]; exists {
			return domainerrors.ErrDoubleSettlement
		}
		s.linksByGrp[link.GroupID] = link
	}
	return nil
}

func (s *MemorySettlementStore) FindLinkByGroup(_ context.Context, groupID uuid.UUID) (*entities.SettlementLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.linksByGrp[groupID]
	if !ok {
		return nil, domainerrors.ErrSettlementNotFound
	}
	return &link, nil
}

func (s *MemorySettlementStore) ListLinks(_ context.Context, settlementID uuid.UUID) ([]entities.SettlementLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.SettlementLink
	for _, link := range s.linksByGrp {
		if link.SettlementID == settlementID {
			out = append(out, link)
		}
	}
	return out, nil
}

// MemoryReserveStore keeps refund reserves.
type MemoryReserveStore struct {
	mu       sync.Mutex
	reserves map[uuid.UUID]*entities.RefundReserve
}

func NewMemoryReserveStore() *MemoryReserveStore {
	return &MemoryReserveStore{reserves: map[uuid.UUID]*entities.RefundReserve{}}
}

func (s *MemoryReserveStore) Save(_ context.Context, reserve *entities.RefundReserve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves[reserve.ID()] = reserve
	return nil
}

func (s *MemoryReserveStore) Update(_ context.Context, reserve *entities.RefundReserve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reserves[reserve.ID()]; !ok {
		return domainerrors.ErrReserveNotFound
	}
	s.reserves[reserve.ID()] = reserve
	return nil
}

func (s *MemoryReserveStore) FindByID(_ context.Context, id uuid.UUID) (*entities.RefundReserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reserve, ok := s.reserves[id]
	if !ok {
		return nil, domainerrors.ErrReserveNotFound
	}
	return reserve, nil
}

func (s *MemoryReserveStore) FindBySettlement(_ context.Context, settlementID uuid.UUID) (*entities.RefundReserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reserve := range s.reserves {
		if reserve.SettlementID() == settlementID {
			return reserve, nil
		}
	}
	return nil, domainerrors.ErrReserveNotFound
}

func (s *MemoryReserveStore) ListConsumable(_ context.Context, merchantID string) ([]*entities.RefundReserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.RefundReserve
	for _, reserve := range s.reserves {
		if reserve.MerchantID() == merchantID && consumable(reserve.Status()) {
			out = append(out, reserve)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (s *MemoryReserveStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*entities.RefundReserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.RefundReserve
	for _, reserve := range s.reserves {
		if consumable(reserve.Status()) && reserve.IsExpired(now) {
			out = append(out, reserve)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryReserveStore) backingGroups() map[uuid.UUID]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uuid.UUID]bool{}
	for _, reserve := range s.reserves {
		out[reserve.GroupID()] = true
	}
	return out
}

func consumable(status entities.ReserveStatus) bool {
	return status == entities.ReserveStatusActive || status == entities.ReserveStatusPartiallyUsed
}

// MemoryRefundStore keeps refunds.
type MemoryRefundStore struct {
	mu      sync.Mutex
	refunds map[uuid.UUID]*entities.Refund
}

func NewMemoryRefundStore() *MemoryRefundStore {
	return &MemoryRefundStore{refunds: map[uuid.UUID]*entities.Refund{}}
}

func (s *MemoryRefundStore) Save(_ context.Context, refund *entities.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key := refund.IdempotencyKey(); key != nil {
		for _, existing := range s.refunds {
			if existing.IdempotencyKey() != nil && *existing.IdempotencyKey() == *key {
				return domainerrors.ErrIdempotencyConflict
			}
		}
	}
	s.refunds[refund.ID()] = refund
	return nil
}

func (s *MemoryRefundStore) Update(_ context.Context, refund *entities.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refunds[refund.ID()]; !ok {
		return domainerrors.ErrRefundNotFound
	}
	s.refunds[refund.ID()] = refund
	return nil
}

func (s *MemoryRefundStore) FindByID(_ context.Context, id uuid.UUID) (*entities.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refund, ok := s.refunds[id]
	if !ok {
		return nil, domainerrors.ErrRefundNotFound
	}
	return refund, nil
}

func (s *MemoryRefundStore) FindByIdempotencyKey(_ context.Context, key string) (*entities.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, refund := range s.refunds {
		if refund.IdempotencyKey() != nil && *refund.IdempotencyKey() == key {
			return refund, nil
		}
	}
	return nil, domainerrors.ErrRefundNotFound
}

func (s *MemoryRefundStore) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*entities.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Refund
	for _, refund := range s.refunds {
		if refund.OrderID() == orderID {
			out = append(out, refund)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (s *MemoryRefundStore) ListByMerchant(_ context.Context, merchantID string, offset, limit int) ([]*entities.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Refund
	for _, refund := range s.refunds {
		if refund.MerchantID() == merchantID {
			out = append(out, refund)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryRefundStore) ListPendingFunds(_ context.Context, now time.Time, limit int) ([]*entities.Refund, error) {
	return s.listPendingFunds(now, limit, false)
}

func (s *MemoryRefundStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*entities.Refund, error) {
	return s.listPendingFunds(now, limit, true)
}

func (s *MemoryRefundStore) listPendingFunds(now time.Time, limit int, expired bool) ([]*entities.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Refund
	for _, refund := range s.refunds {
		if refund.Status() != entities.RefundStatusPendingFunds || refund.ExpiresAt() == nil {
			continue
		}
		isExpired := !refund.ExpiresAt().After(now)
		if isExpired != expired {
			continue
		}
		out = append(out, refund)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
