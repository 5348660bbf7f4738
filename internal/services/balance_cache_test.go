package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBalanceCache(t *testing.T) {
	t.Run("miss then set then hit", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewBalanceCache(client, time.Minute)
		ctx := context.Background()

		mock.ExpectGet("balance:5:2").RedisNil()
		_, hit := cache.Get(ctx, 5, 2)
		assert.False(t, hit)

		mock.ExpectSet("balance:5:2", "120", time.Minute).SetVal("OK")
		cache.Set(ctx, 5, 2, decimal.NewFromInt(120))

		mock.ExpectGet("balance:5:2").SetVal("120")
		balance, hit := cache.Get(ctx, 5, 2)
		assert.True(t, hit)
		assert.True(t, balance.Equal(decimal.NewFromInt(120)))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalidate deletes the key", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewBalanceCache(client, time.Minute)

		mock.ExpectDel("balance:5:2").SetVal(1)
		cache.Invalidate(context.Background(), 5, 2)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt cached value is treated as a miss", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewBalanceCache(client, time.Minute)

		mock.ExpectGet("balance:5:2").SetVal("not-a-number")
		_, hit := cache.Get(context.Background(), 5, 2)
		assert.False(t, hit)
	})

	t.Run("nil client degrades to no-ops", func(t *testing.T) {
		cache := NewBalanceCache(nil, time.Minute)
		ctx := context.Background()

		_, hit := cache.Get(ctx, 5, 2)
		assert.False(t, hit)
		cache.Set(ctx, 5, 2, decimal.NewFromInt(1))
		cache.Invalidate(ctx, 5, 2)
	})
}
