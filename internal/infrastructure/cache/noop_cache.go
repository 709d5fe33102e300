package cache

import (
	"context"
	"time"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
)

var _ ports.BalanceCache = (*NoopBalanceCache)(nil)

// NoopBalanceCache always misses. Used when Redis is disabled.
type NoopBalanceCache struct{}

// NewNoopBalanceCache creates the no-op cache.
func NewNoopBalanceCache() *NoopBalanceCache {
	return &NoopBalanceCache{}
}

func (NoopBalanceCache) Get(context.Context, int64) (*entities.Balance, bool, error) {
	return nil, false, nil
}

func (NoopBalanceCache) Set(context.Context, *entities.Balance, time.Duration) error {
	return nil
}

func (NoopBalanceCache) Invalidate(context.Context, ...int64) error {
	return nil
}
