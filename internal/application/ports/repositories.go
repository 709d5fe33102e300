// Package ports defines the interfaces the application layer depends on.
// The infrastructure layer provides the implementations (PostgreSQL, NATS,
// Redis); the test suite provides in-memory fakes.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

// WalletStore is the persistence contract for wallets. Wallet rows are
// immutable after insert; there is no update method on purpose.
type WalletStore interface {
	// Save inserts the wallet and assigns its dense store-generated id.
	Save(ctx context.Context, wallet *entities.Wallet) error

	// FindByID loads a wallet. Returns ErrWalletNotFound on miss.
	FindByID(ctx context.Context, id int64) (*entities.Wallet, error)

	// FindByIDForUpdate loads a wallet and takes its row lock for the
	// duration of the surrounding store transaction. Every balance gate
	// reads the wallet through this method.
	FindByIDForUpdate(ctx context.Context, id int64) (*entities.Wallet, error)

	// FindByOwner locates the wallet of an external owner in a currency.
	FindByOwner(ctx context.Context, ownerID string, ownerKind entities.OwnerKind, currency valueobjects.Currency) (*entities.Wallet, error)

	// FindSystem locates a system singleton by (type, description, currency).
	FindSystem(ctx context.Context, walletType entities.WalletType, description string, currency valueobjects.Currency) (*entities.Wallet, error)

	// List returns wallets matching the filter, newest first.
	List(ctx context.Context, filter WalletFilter, offset, limit int) ([]*entities.Wallet, error)
}

// WalletFilter narrows wallet listings.
type WalletFilter struct {
	Type     *entities.WalletType
	OwnerID  *string
	Currency *valueobjects.Currency
}

// StatusSum is one per-status aggregate used by reconciliation.
type StatusSum struct {
	Tier   string
	Status entities.EntryStatus
	Sum    int64
	Count  int64
}

// GroupSum is the signed total of one group's HOLD entries.
type GroupSum struct {
	ReferenceID uuid.UUID
	Sum         int64
}

// WalletTotals carries the aggregates a balance is derived from.
type WalletTotals struct {
	// Settled sums hot and warm SETTLED and REFUNDED entries plus warm
	// LEDGER checkpoints.
	Settled int64

	// HoldDebit is the signed sum of hot HOLD debit entries whose group is
	// still IN_PROGRESS. Always <= 0.
	HoldDebit int64
}

// EntryStore is the persistence contract for hot-tier ledger entries. The
// hot tier is strictly append-only; there are no update or delete methods.
type EntryStore interface {
	// Insert appends one entry and assigns its id.
	Insert(ctx context.Context, entry *entities.Entry) error

	// InsertBatch appends a set of entries atomically.
	InsertBatch(ctx context.Context, entries []*entities.Entry) error

	// FindByReference returns the hot entries of one group, oldest first.
	FindByReference(ctx context.Context, referenceID uuid.UUID) ([]*entities.Entry, error)

	// SumByReference returns the signed sum of hot entries of the group
	// restricted to the given statuses.
	SumByReference(ctx context.Context, referenceID uuid.UUID, statuses []entities.EntryStatus) (int64, error)

	// WalletTotals computes the balance aggregates for one wallet across
	// the hot and warm tiers.
	WalletTotals(ctx context.Context, walletID int64) (WalletTotals, error)

	// SumHoldCredits returns the sum of positive HOLD credit entries on the
	// wallet restricted to the given references, across the hot and warm
	// tiers. Used to price a payout; an already snapshotted order must still
	// price at its full escrow credit.
	SumHoldCredits(ctx context.Context, walletID int64, referenceIDs []uuid.UUID) (int64, error)

	// ListByWallet pages the hot entries of a wallet, newest first.
	ListByWallet(ctx context.Context, walletID int64, offset, limit int) ([]*entities.Entry, error)

	// StatusSums returns per-tier, per-status sums over all three tiers.
	StatusSums(ctx context.Context) ([]StatusSum, error)

	// UnbalancedGroups returns groups whose HOLD entries do not sum to
	// zero, up to limit.
	UnbalancedGroups(ctx context.Context, limit int) ([]GroupSum, error)
}

// GroupStore is the persistence contract for transaction groups.
type GroupStore interface {
	// Save inserts a new group. A duplicate idempotency key surfaces as
	// ErrIdempotencyConflict.
	Save(ctx context.Context, group *entities.TransactionGroup) error

	// Update persists a status transition.
	Update(ctx context.Context, group *entities.TransactionGroup) error

	// FindByID loads a group. Returns ErrGroupNotFound on miss.
	FindByID(ctx context.Context, id uuid.UUID) (*entities.TransactionGroup, error)

	// FindByIDForUpdate loads a group and takes its row lock, serializing
	// concurrent finalizations of the same group.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.TransactionGroup, error)

	// FindByIdempotencyKey returns the group created under the key, or
	// ErrGroupNotFound.
	FindByIdempotencyKey(ctx context.Context, key string) (*entities.TransactionGroup, error)

	// ListStaleInProgress returns IN_PROGRESS groups created before the
	// cutoff, oldest first, up to limit. Groups backing an active refund
	// reserve are excluded; the reserve release sweep owns those.
	ListStaleInProgress(ctx context.Context, olderThan time.Time, limit int) ([]*entities.TransactionGroup, error)
}

// SettlementStore is the persistence contract for settlements, their group
// links and the refund reserves carved out of them.
type SettlementStore interface {
	Save(ctx context.Context, settlement *entities.Settlement) error
	Update(ctx context.Context, settlement *entities.Settlement) error

	// FindByID loads a settlement. Returns ErrSettlementNotFound on miss.
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Settlement, error)

	// FindByIdempotencyKey returns the settlement created under the key,
	// or ErrSettlementNotFound.
	FindByIdempotencyKey(ctx context.Context, key string) (*entities.Settlement, error)

	// ListByMerchant pages a merchant's settlements, newest first.
	ListByMerchant(ctx context.Context, merchantID string, offset, limit int) ([]*entities.Settlement, error)

	// UnsettledGroupIDs returns the SETTLED groups of the merchant that no
	// completed settlement has paid out yet.
	UnsettledGroupIDs(ctx context.Context, merchantID string) ([]uuid.UUID, error)

	// InsertLinks records which groups a settlement paid out. The group id
	// is globally unique across links; a duplicate surfaces as
	// ErrDoubleSettlement.
	InsertLinks(ctx context.Context, links []entities.SettlementLink) error

	// FindLinkByGroup returns the link covering a group, or
	// ErrSettlementNotFound if the group was never paid out.
	FindLinkByGroup(ctx context.Context, groupID uuid.UUID) (*entities.SettlementLink, error)

	// ListLinks returns the links of one settlement.
	ListLinks(ctx context.Context, settlementID uuid.UUID) ([]entities.SettlementLink, error)
}

// ReserveStore is the persistence contract for refund reserves.
type ReserveStore interface {
	Save(ctx context.Context, reserve *entities.RefundReserve) error
	Update(ctx context.Context, reserve *entities.RefundReserve) error

	// FindByID loads a reserve. Returns ErrReserveNotFound on miss.
	FindByID(ctx context.Context, id uuid.UUID) (*entities.RefundReserve, error)

	// FindBySettlement returns the reserve carved out of a settlement, or
	// ErrReserveNotFound.
	FindBySettlement(ctx context.Context, settlementID uuid.UUID) (*entities.RefundReserve, error)

	// ListConsumable returns the merchant's ACTIVE and PARTIALLY_USED
	// reserves, oldest first.
	ListConsumable(ctx context.Context, merchantID string) ([]*entities.RefundReserve, error)

	// ListExpired returns reserves past their hold window that are still
	// consumable, up to limit. Used by the release sweep.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*entities.RefundReserve, error)
}

// RefundStore is the persistence contract for refunds.
type RefundStore interface {
	Save(ctx context.Context, refund *entities.Refund) error
	Update(ctx context.Context, refund *entities.Refund) error

	// FindByID loads a refund. Returns ErrRefundNotFound on miss.
	FindByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error)

	// FindByIdempotencyKey returns the refund created under the key, or
	// ErrRefundNotFound.
	FindByIdempotencyKey(ctx context.Context, key string) (*entities.Refund, error)

	// ListByOrder returns every refund against an order, oldest first.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*entities.Refund, error)

	// ListByMerchant pages a merchant's refunds, newest first.
	ListByMerchant(ctx context.Context, merchantID string, offset, limit int) ([]*entities.Refund, error)

	// ListPendingFunds returns PENDING_FUNDS refunds not yet expired,
	// oldest first, up to limit. Used by the funding retry sweep.
	ListPendingFunds(ctx context.Context, now time.Time, limit int) ([]*entities.Refund, error)

	// ListExpired returns PENDING_FUNDS refunds past their deadline, up to
	// limit. Used by the expiry sweep.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*entities.Refund, error)
}

// SnapshotStore moves entries between the hot, warm and cold tiers. The warm
// tier forbids updates; the cold tier forbids updates and deletes.
type SnapshotStore interface {
	// WalletsWithHotFinalized returns wallet ids that have hot entries
	// belonging to terminal groups, up to limit.
	WalletsWithHotFinalized(ctx context.Context, limit int) ([]int64, error)

	// ListHotFinalized returns the hot entries of a wallet whose group has
	// reached a terminal status, oldest first, up to limit.
	ListHotFinalized(ctx context.Context, walletID int64, limit int) ([]*entities.Entry, error)

	// CopyToWarm writes the entries into the warm tier verbatim, stamped
	// with the snapshot date.
	CopyToWarm(ctx context.Context, entries []*entities.Entry, snapshotDate time.Time) error

	// DeleteFromHot removes the moved entries from the hot tier. The only
	// legal delete against the hot table, and only after a successful copy
	// in the same store transaction.
	DeleteFromHot(ctx context.Context, entryIDs []int64) error

	// WalletsWithWarmBefore returns wallet ids holding non-checkpoint warm
	// entries older than the cutoff, up to limit.
	WalletsWithWarmBefore(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)

	// ListWarmBefore returns a wallet's non-checkpoint warm entries older
	// than the cutoff, oldest first, up to limit.
	ListWarmBefore(ctx context.Context, walletID int64, cutoff time.Time, limit int) ([]*entities.Entry, error)

	// InsertWarmCheckpoint writes the synthetic LEDGER row that replaces
	// an archived set of warm entries.
	InsertWarmCheckpoint(ctx context.Context, checkpoint *entities.Entry) error

	// CopyToArchive writes the entries into the cold tier verbatim.
	CopyToArchive(ctx context.Context, entries []*entities.Entry) error

	// DeleteFromWarm removes the archived entries from the warm tier.
	DeleteFromWarm(ctx context.Context, entryIDs []int64) error

	// InsertTracking maps a checkpoint's reference id to the original
	// reference ids it absorbed.
	InsertTracking(ctx context.Context, checkpointRef uuid.UUID, originalRefs []uuid.UUID) error
}
