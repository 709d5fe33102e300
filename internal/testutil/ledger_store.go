package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
)

// MemoryLedgerStore implements both the hot-tier entry store and the tier
// mover over three in-memory slices, sharing one id sequence like the schema
// does.
type MemoryLedgerStore struct {
	mu     sync.Mutex
	nextID int64
	hot    []*entities.Entry
	warm   []*entities.Entry
	cold   []*entities.Entry

	tracking map[uuid.UUID][]uuid.UUID
	groups   *MemoryGroupStore
}

func NewMemoryLedgerStore(groups *MemoryGroupStore) *MemoryLedgerStore {
	return &MemoryLedgerStore{
		tracking: map[uuid.UUID][]uuid.UUID{},
		groups:   groups,
	}
}

func (s *MemoryLedgerStore) Insert(_ context.Context, entry *entities.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.SetID(s.nextID)
	s.hot = append(s.hot, entry)
	return nil
}

func (s *MemoryLedgerStore) InsertBatch(ctx context.Context, entries []*entities.Entry) error {
	for _, e := range entries {
		if err := s.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryLedgerStore) FindByReference(_ context.Context, referenceID uuid.UUID) ([]*entities.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Entry
	for _, e := range s.hot {
		if e.ReferenceID() == referenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) SumByReference(_ context.Context, referenceID uuid.UUID, statuses []entities.EntryStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[entities.EntryStatus]bool{}
	for _, st := range statuses {
		wanted[st] = true
	}
	var sum int64
	for _, e := range s.hot {
		if e.ReferenceID() == referenceID && wanted[e.Status()] {
			sum += e.Amount().Amount()
		}
	}
	return sum, nil
}

func (s *MemoryLedgerStore) WalletTotals(_ context.Context, walletID int64) (ports.WalletTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var totals ports.WalletTotals
	for _, e := range s.hot {
		if e.WalletID() != walletID {
			continue
		}
		switch e.Status() {
		case entities.EntryStatusSettled, entities.EntryStatusRefunded:
			totals.Settled += e.Amount().Amount()
		case entities.EntryStatusHold:
			if e.Amount().IsNegative() {
				if status, ok := s.groups.statusOf(e.ReferenceID()); ok && status == entities.GroupStatusInProgress {
					totals.HoldDebit += e.Amount().Amount()
				}
			}
		}
	}
	for _, e := range s.warm {
		if e.WalletID() != walletID {
			continue
		}
		switch e.Status() {
		case entities.EntryStatusSettled, entities.EntryStatusRefunded:
			totals.Settled += e.Amount().Amount()
		}
	}
	return totals, nil
}

func (s *MemoryLedgerStore) SumHoldCredits(_ context.Context, walletID int64, referenceIDs []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[uuid.UUID]bool{}
	for _, ref := range referenceIDs {
		wanted[ref] = true
	}
	var sum int64
	for _, tier := range [][]*entities.Entry{s.hot, s.warm} {
		for _, e := range tier {
			if e.WalletID() == walletID && e.Status() == entities.EntryStatusHold &&
				e.Type() == entities.EntryTypeCredit && e.Amount().IsPositive() && wanted[e.ReferenceID()] {
				sum += e.Amount().Amount()
			}
		}
	}
	return sum, nil
}

func (s *MemoryLedgerStore) ListByWallet(_ context.Context, walletID int64, offset, limit int) ([]*entities.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Entry
	for _, e := range s.hot {
		if e.WalletID() == walletID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() > out[j].ID() })
	return page(out, offset, limit), nil
}

func (s *MemoryLedgerStore) StatusSums(_ context.Context) ([]ports.StatusSum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.StatusSum
	for tier, entries := range map[string][]*entities.Entry{"hot": s.hot, "warm": s.warm, "cold": s.cold} {
		byStatus := map[entities.EntryStatus]*ports.StatusSum{}
		for _, e := range entries {
			sum, ok := byStatus[e.Status()]
			if !ok {
				sum = &ports.StatusSum{Tier: tier, Status: e.Status()}
				byStatus[e.Status()] = sum
			}
			sum.Sum += e.Amount().Amount()
			sum.Count++
		}
		for _, sum := range byStatus {
			out = append(out, *sum)
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) UnbalancedGroups(_ context.Context, limit int) ([]ports.GroupSum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := map[uuid.UUID]int64{}
	for _, e := range s.hot {
		if e.Status() == entities.EntryStatusHold {
			sums[e.ReferenceID()] += e.Amount().Amount()
		}
	}
	var out []ports.GroupSum
	for ref, sum := range sums {
		if sum != 0 {
			out = append(out, ports.GroupSum{ReferenceID: ref, Sum: sum})
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Tier mover.

func (s *MemoryLedgerStore) WalletsWithHotFinalized(_ context.Context, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, e := range s.hot {
		if seen[e.WalletID()] {
			continue
		}
		if status, ok := s.groups.statusOf(e.ReferenceID()); ok && status != entities.GroupStatusInProgress {
			seen[e.WalletID()] = true
			out = append(out, e.WalletID())
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) ListHotFinalized(_ context.Context, walletID int64, limit int) ([]*entities.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Entry
	for _, e := range s.hot {
		if e.WalletID() != walletID {
			continue
		}
		if status, ok := s.groups.statusOf(e.ReferenceID()); ok && status != entities.GroupStatusInProgress {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) CopyToWarm(_ context.Context, entries []*entities.Entry, snapshotDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		confirmedAt := e.ConfirmedAt()
		warm := entities.ReconstructEntry(
			e.ID(), e.WalletID(), e.Amount(), e.Type(), e.Status(), e.ReferenceID(),
			e.Description(), e.Audit(), e.HeldAt(), confirmedAt, false, &snapshotDate,
		)
		s.warm = append(s.warm, warm)
	}
	return nil
}

func (s *MemoryLedgerStore) DeleteFromHot(_ context.Context, entryIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hot = removeByID(s.hot, entryIDs)
	return nil
}

func (s *MemoryLedgerStore) WalletsWithWarmBefore(_ context.Context, cutoff time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, e := range s.warm {
		if e.IsCheckpoint() || seen[e.WalletID()] {
			continue
		}
		if e.SnapshotDate() != nil && e.SnapshotDate().Before(cutoff) {
			seen[e.WalletID()] = true
			out = append(out, e.WalletID())
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) ListWarmBefore(_ context.Context, walletID int64, cutoff time.Time, limit int) ([]*entities.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Entry
	for _, e := range s.warm {
		if e.WalletID() != walletID || e.IsCheckpoint() {
			continue
		}
		if e.SnapshotDate() != nil && e.SnapshotDate().Before(cutoff) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryLedgerStore) InsertWarmCheckpoint(_ context.Context, checkpoint *entities.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	checkpoint.SetID(s.nextID)
	s.warm = append(s.warm, checkpoint)
	return nil
}

func (s *MemoryLedgerStore) CopyToArchive(_ context.Context, entries []*entities.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cold = append(s.cold, entries...)
	return nil
}

func (s *MemoryLedgerStore) DeleteFromWarm(_ context.Context, entryIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = removeByID(s.warm, entryIDs)
	return nil
}

func (s *MemoryLedgerStore) InsertTracking(_ context.Context, checkpointRef uuid.UUID, originalRefs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking[checkpointRef] = append(s.tracking[checkpointRef], originalRefs...)
	return nil
}

// HotEntries returns a copy of the hot tier for assertions.
func (s *MemoryLedgerStore) HotEntries() []*entities.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entities.Entry(nil), s.hot...)
}

// WarmEntries returns a copy of the warm tier for assertions.
func (s *MemoryLedgerStore) WarmEntries() []*entities.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entities.Entry(nil), s.warm...)
}

// ColdEntries returns a copy of the cold tier for assertions.
func (s *MemoryLedgerStore) ColdEntries() []*entities.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entities.Entry(nil), s.cold...)
}

// Tracking returns the checkpoint mapping for assertions.
func (s *MemoryLedgerStore) Tracking(checkpointRef uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking[checkpointRef]
}

func removeByID(entries []*entities.Entry, ids []int64) []*entities.Entry {
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var kept []*entities.Entry
	for _, e := range entries {
		if !drop[e.ID()] {
			kept = append(kept, e)
		}
	}
	return kept
}
