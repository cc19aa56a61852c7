package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/prestadia/backend/internal/models"
)

const defaultTTL = 30 * time.Second

// BalanceCache is a read-through Redis cache for balance queries. It is one
// more cache layer over a value that is itself a cache of the entry log, so
// staleness here is harmless: every write path invalidates the key and the
// reconciler remains the authority. A nil Redis client disables the cache
// entirely and every call becomes a no-op miss.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &BalanceCache{client: client, ttl: ttl}
}

func key(ownerID string, kind models.AccountKind) string {
	return fmt.Sprintf("balance:%s:%s", ownerID, kind)
}

// Get returns the cached balance and whether it was present.
func (c *BalanceCache) Get(ctx context.Context, ownerID string, kind models.AccountKind) (decimal.Decimal, bool, error) {
	if c.client == nil {
		return decimal.Zero, false, nil
	}
	val, err := c.client.Get(ctx, key(ownerID, kind)).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached balance %q: %w", val, err)
	}
	return balance, true, nil
}

// Set stores the balance for the configured TTL.
func (c *BalanceCache) Set(ctx context.Context, ownerID string, kind models.AccountKind, balance decimal.Decimal) error {
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, key(ownerID, kind), balance.String(), c.ttl).Err()
}

// Invalidate drops the cached balance after a write.
func (c *BalanceCache) Invalidate(ctx context.Context, ownerID string, kind models.AccountKind) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key(ownerID, kind)).Err()
}
