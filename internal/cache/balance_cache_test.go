package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/prestadia/backend/internal/models"
)

func TestBalanceCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss then set then hit", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		c := NewBalanceCache(client, 30*time.Second)

		mock.ExpectGet("balance:owner-1:GENERAL_WALLET").RedisNil()
		_, hit, err := c.Get(ctx, "owner-1", models.GeneralWallet)
		assert.NoError(t, err)
		assert.False(t, hit)

		mock.ExpectSet("balance:owner-1:GENERAL_WALLET", "1500", 30*time.Second).SetVal("OK")
		err = c.Set(ctx, "owner-1", models.GeneralWallet, decimal.NewFromInt(1500))
		assert.NoError(t, err)

		mock.ExpectGet("balance:owner-1:GENERAL_WALLET").SetVal("1500")
		balance, hit, err := c.Get(ctx, "owner-1", models.GeneralWallet)
		assert.NoError(t, err)
		assert.True(t, hit)
		assert.True(t, balance.Equal(decimal.NewFromInt(1500)))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalidate deletes the key", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		c := NewBalanceCache(client, time.Minute)

		mock.ExpectDel("balance:owner-1:SAFE").SetVal(1)
		assert.NoError(t, c.Invalidate(ctx, "owner-1", models.Safe))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt value surfaces an error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		c := NewBalanceCache(client, time.Minute)

		mock.ExpectGet("balance:owner-1:GENERAL_WALLET").SetVal("not-a-number")
		_, hit, err := c.Get(ctx, "owner-1", models.GeneralWallet)
		assert.Error(t, err)
		assert.False(t, hit)
	})

	t.Run("nil client disables the cache", func(t *testing.T) {
		c := NewBalanceCache(nil, 0)

		_, hit, err := c.Get(ctx, "owner-1", models.GeneralWallet)
		assert.NoError(t, err)
		assert.False(t, hit)
		assert.NoError(t, c.Set(ctx, "owner-1", models.GeneralWallet, decimal.NewFromInt(1)))
		assert.NoError(t, c.Invalidate(ctx, "owner-1", models.GeneralWallet))
	})
}
