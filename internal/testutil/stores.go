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
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

var (
	_ ports.WalletStore   = (*MemoryWalletStore)(nil)
	_ ports.GroupStore    = (*MemoryGroupStore)(nil)
	_ ports.EntryStore    = (*MemoryLedgerStore)(nil)
	_ ports.SnapshotStore = (*MemoryLedgerStore)(nil)
)

// MemoryWalletStore keeps wallets in a map and enforces the same uniqueness
// rules as the schema.
type MemoryWalletStore struct {
	mu      sync.Mutex
	nextID  int64
	wallets map[int64]*entities.Wallet
}

func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{wallets: map[int64]*entities.Wallet{}}
}

func (s *MemoryWalletStore) Save(_ context.Context, wallet *entities.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.wallets {
		if wallet.OwnerID() != nil && existing.OwnerID() != nil &&
			*existing.OwnerID() == *wallet.OwnerID() &&
			existing.OwnerKind() == wallet.OwnerKind() &&
			existing.Currency().Equals(wallet.Currency()) {
			return domainerrors.ErrIdempotencyConflict
		}
		if wallet.OwnerID() == nil && existing.OwnerID() == nil &&
			existing.Type() == wallet.Type() &&
			existing.Description() == wallet.Description() &&
			existing.Currency().Equals(wallet.Currency()) {
			return domainerrors.ErrIdempotencyConflict
		}
	}
	s.nextID++
	wallet.SetID(s.nextID)
	s.wallets[s.nextID] = wallet
	return nil
}

func (s *MemoryWalletStore) FindByID(_ context.Context, id int64) (*entities.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, domainerrors.ErrWalletNotFound
	}
	return w, nil
}

func (s *MemoryWalletStore) FindByIDForUpdate(ctx context.Context, id int64) (*entities.Wallet, error) {
	return s.FindByID(ctx, id)
}

func (s *MemoryWalletStore) FindByOwner(_ context.Context, ownerID string, ownerKind entities.OwnerKind, currency valueobjects.Currency) (*entities.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.OwnerID() != nil && *w.OwnerID() == ownerID &&
			w.OwnerKind() == ownerKind && w.Currency().Equals(currency) {
			return w, nil
		}
	}
	return nil, domainerrors.ErrWalletNotFound
}

func (s *MemoryWalletStore) FindSystem(_ context.Context, walletType entities.WalletType, description string, currency valueobjects.Currency) (*entities.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.OwnerID() == nil && w.Type() == walletType &&
			w.Description() == description && w.Currency().Equals(currency) {
			return w, nil
		}
	}
	return nil, domainerrors.ErrWalletNotFound
}

func (s *MemoryWalletStore) List(_ context.Context, filter ports.WalletFilter, offset, limit int) ([]*entities.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Wallet
	for _, w := range s.wallets {
		if filter.Type != nil && w.Type() != *filter.Type {
			continue
		}
		if filter.OwnerID != nil && (w.OwnerID() == nil || *w.OwnerID() != *filter.OwnerID) {
			continue
		}
		if filter.Currency != nil && !w.Currency().Equals(*filter.Currency) {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() > out[j].ID() })
	return page(out, offset, limit), nil
}

// MemoryGroupStore keeps transaction groups. ListStaleInProgress mirrors the
// SQL exclusion of reserve-backed groups when a reserve store is attached.
type MemoryGroupStore struct {
	mu       sync.Mutex
	groups   map[uuid.UUID]*entities.TransactionGroup
	byKey    map[string]uuid.UUID
	reserves *MemoryReserveStore
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{
		groups: map[uuid.UUID]*entities.TransactionGroup{},
		byKey:  map[string]uuid.UUID{},
	}
}

// AttachReserves lets the stale-group listing skip reserve-backed groups.
func (s *MemoryGroupStore) AttachReserves(reserves *MemoryReserveStore) {
	s.reserves = reserves
}

func (s *MemoryGroupStore) Save(_ context.Context, group *entities.TransactionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key := group.IdempotencyKey(); key != nil {
		if _, exists := s.byKey[*key]; exists {
			return domainerrors.ErrIdempotencyConflict
		}
		s.byKey[*key] = group.ID()
	}
	s.groups[group.ID()] = group
	return nil
}

func (s *MemoryGroupStore) Update(_ context.Context, group *entities.TransactionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID()]; !ok {
		return domainerrors.ErrGroupNotFound
	}
	s.groups[group.ID()] = group
	return nil
}

func (s *MemoryGroupStore) FindByID(_ context.Context, id uuid.UUID) (*entities.TransactionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, domainerrors.ErrGroupNotFound
	}
	return g, nil
}

func (s *MemoryGroupStore) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.TransactionGroup, error) {
	return s.FindByID(ctx, id)
}

func (s *MemoryGroupStore) FindByIdempotencyKey(_ context.Context, key string) (*entities.TransactionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, domainerrors.ErrGroupNotFound
	}
	return s.groups[id], nil
}

func (s *MemoryGroupStore) ListStaleInProgress(_ context.Context, olderThan time.Time, limit int) ([]*entities.TransactionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reserveBacked := map[uuid.UUID]bool{}
	if s.reserves != nil {
		reserveBacked = s.reserves.backingGroups()
	}
	var out []*entities.TransactionGroup
	for _, g := range s.groups {
		if g.IsInProgress() && g.CreatedAt().Before(olderThan) && !reserveBacked[g.ID()] {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryGroupStore) statusOf(id uuid.UUID) (entities.GroupStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return "", false
	}
	return g.Status(), true
}

// groupsByMerchant returns ids of the merchant's groups in the given status.
func (s *MemoryGroupStore) groupsByMerchant(merchantID string, status entities.GroupStatus) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	type pair struct {
		id      uuid.UUID
		created time.Time
	}
	var pairs []pair
	for _, g := range s.groups {
		if g.MerchantID() != nil && *g.MerchantID() == merchantID && g.Status() == status {
			pairs = append(pairs, pair{g.ID(), g.CreatedAt()})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].created.Before(pairs[j].created) })
	ids := make([]uuid.UUID, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, p.id)
	}
	return ids
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
