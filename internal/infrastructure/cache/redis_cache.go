// Package cache implements the balance cache on Redis. Balances are derived
// data; a stale read is bounded by the TTL and every write path invalidates
// the touched wallets after commit.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fintrellis/ledgercore/internal/application/ports"
	"github.com/fintrellis/ledgercore/internal/domain/entities"
	"github.com/fintrellis/ledgercore/internal/domain/valueobjects"
)

var _ ports.BalanceCache = (*RedisBalanceCache)(nil)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient opens and pings a Redis client.
func NewClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBalanceCache caches wallet balances under "balance:<wallet_id>".
type RedisBalanceCache struct {
	client *redis.Client
}

// NewRedisBalanceCache wraps an open client.
func NewRedisBalanceCache(client *redis.Client) *RedisBalanceCache {
	return &RedisBalanceCache{client: client}
}

type cachedBalance struct {
	WalletID  int64  `json:"wallet_id"`
	Currency  string `json:"currency"`
	Total     int64  `json:"total"`
	HeldDebit int64  `json:"held_debit"`
	Available int64  `json:"available"`
}

func balanceKey(walletID int64) string {
	return fmt.Sprintf("balance:%d", walletID)
}

// Get returns the cached balance and whether it was present.
func (c *RedisBalanceCache) Get(ctx context.Context, walletID int64) (*entities.Balance, bool, error) {
	data, err := c.client.Get(ctx, balanceKey(walletID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var cached cachedBalance
	if err := json.Unmarshal(data, &cached); err != nil {
		// A corrupt value behaves like a miss.
		return nil, false, nil
	}
	currency, err := valueobjects.NewCurrency(cached.Currency)
	if err != nil {
		return nil, false, nil
	}
	return &entities.Balance{
		WalletID:  cached.WalletID,
		Total:     valueobjects.NewMoney(cached.Total, currency),
		HeldDebit: valueobjects.NewMoney(cached.HeldDebit, currency),
		Available: valueobjects.NewMoney(cached.Available, currency),
	}, true, nil
}

// Set stores the balance with a TTL.
func (c *RedisBalanceCache) Set(ctx context.Context, balance *entities.Balance, ttl time.Duration) error {
	data, err := json.Marshal(cachedBalance{
		WalletID:  balance.WalletID,
		Currency:  balance.Total.Currency().Code(),
		Total:     balance.Total.Amount(),
		HeldDebit: balance.HeldDebit.Amount(),
		Available: balance.Available.Amount(),
	})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, balanceKey(balance.WalletID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached balances of the given wallets.
func (c *RedisBalanceCache) Invalidate(ctx context.Context, walletIDs ...int64) error {
	if len(walletIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(walletIDs))
	for _, id := range walletIDs {
		keys = append(keys, balanceKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
