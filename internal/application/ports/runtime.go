package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fintrellis/ledgercore/internal/domain/entities"
)

// Clock abstracts time so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator abstracts uuid generation so tests can make ids deterministic.
type IDGenerator interface {
	NewID() uuid.UUID
}

// RandomIDGenerator is the production generator.
type RandomIDGenerator struct{}

func (RandomIDGenerator) NewID() uuid.UUID {
	return uuid.New()
}

// BalanceCache is a read-through cache for derived balances. Misses and cache
// failures are both non-fatal; the ledger entries stay authoritative.
type BalanceCache interface {
	Get(ctx context.Context, walletID int64) (*entities.Balance, bool, error)
	Set(ctx context.Context, balance *entities.Balance, ttl time.Duration) error
	Invalidate(ctx context.Context, walletIDs ...int64) error
}
