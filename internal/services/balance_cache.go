package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// BalanceCache fronts the read-only balance endpoint with Redis. The write
// path never consults it; committed operations invalidate the key
// synchronously, so a stale read window only exists for lock-free GetBalance
// calls that tolerate replica lag anyway. All methods degrade to no-ops when
// Redis is unavailable.
type BalanceCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewBalanceCache(redisClient *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{redis: redisClient, ttl: ttl}
}

func balanceKey(accountID, assetTypeID int64) string {
	return fmt.Sprintf("balance:%d:%d", accountID, assetTypeID)
}

func (c *BalanceCache) Get(ctx context.Context, accountID, assetTypeID int64) (decimal.Decimal, bool) {
	if c == nil || c.redis == nil {
		return decimal.Zero, false
	}
	raw, err := c.redis.Get(ctx, balanceKey(accountID, assetTypeID)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return balance, true
}

func (c *BalanceCache) Set(ctx context.Context, accountID, assetTypeID int64, balance decimal.Decimal) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, balanceKey(accountID, assetTypeID), balance.String(), c.ttl).Err(); err != nil {
		log.Printf("[CACHE] Failed to cache balance for account %d: %v", accountID, err)
	}
}

// Invalidate drops the cached balance right after a commit touching the pair.
func (c *BalanceCache) Invalidate(ctx context.Context, accountID, assetTypeID int64) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, balanceKey(accountID, assetTypeID)).Err(); err != nil {
		log.Printf("[CACHE] Failed to invalidate balance for account %d: %v", accountID, err)
	}
}
