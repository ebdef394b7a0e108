package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = model.StockKey{ProductID: 1, LocationID: 10}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.SetStock(model.ProductLocationStock{ProductID: 1, LocationID: 10, Quantity: 5, Version: 2})

	ok, v, err := s.CompareAndSwap(ctx, key, 1, 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)

	ok, v, err = s.CompareAndSwap(ctx, key, 2, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	row, err := s.GetStock(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.Quantity)
}

func TestEnsureStockCreatesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	row, created, err := s.EnsureStock(ctx, key)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Zero(t, row.Quantity)
	assert.Zero(t, row.Version)

	_, created, err = s.EnsureStock(ctx, key)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.SetStock(model.ProductLocationStock{ProductID: 1, LocationID: 10, Quantity: 5})

	hookRan := false
	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		storage.AfterCommit(ctx, func(context.Context) { hookRan = true })
		_, _, err := s.CompareAndSwap(ctx, key, 0, 1)
		require.NoError(t, err)
		require.NoError(t, s.InsertLog(ctx, &model.InventoryLogEntry{ProductID: 1, LocationID: 10, Delta: -4}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, hookRan)

	row, _ := s.GetStock(ctx, key)
	assert.Equal(t, int64(5), row.Quantity)
	assert.Zero(t, row.Version)

	logs, _ := s.ListLogs(ctx, &dto.LogFilters{})
	assert.Empty(t, logs)

	// ids are reused after a rollback
	entry := &model.InventoryLogEntry{ProductID: 1, LocationID: 10}
	require.NoError(t, s.InsertLog(ctx, entry))
	assert.Equal(t, int64(1), entry.ID)
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.SetStock(model.ProductLocationStock{ProductID: 1, LocationID: 10, Quantity: 5})

	assert.Panics(t, func() {
		_ = s.WithTransaction(ctx, func(ctx context.Context) error {
			_, _, _ = s.CompareAndSwap(ctx, key, 0, 0)
			panic("kaboom")
		})
	})

	row, _ := s.GetStock(ctx, key)
	assert.Equal(t, int64(5), row.Quantity)

	// the lock was released
	_, _, err := s.EnsureStock(ctx, model.StockKey{ProductID: 2, LocationID: 10})
	assert.NoError(t, err)
}

func TestWithTransactionRunsHooksAfterUnlock(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.SetStock(model.ProductLocationStock{ProductID: 1, LocationID: 10, Quantity: 5})

	var seen int64
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		storage.AfterCommit(ctx, func(ctx context.Context) {
			assert.False(t, storage.InTransaction(ctx))
			total, err := s.TotalQuantity(ctx, 1)
			require.NoError(t, err)
			seen = total
		})
		_, _, err := s.CompareAndSwap(ctx, key, 0, 9)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), seen)
}

func TestListLogsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	batch := "b-1"
	for _, e := range []model.InventoryLogEntry{
		{ProductID: 1, LocationID: 10, Delta: -1},
		{ProductID: 1, LocationID: 11, Delta: 1, BatchID: &batch},
		{ProductID: 2, LocationID: 10, Delta: 3},
	} {
		e := e
		require.NoError(t, s.InsertLog(ctx, &e))
	}

	logs, err := s.ListLogs(ctx, &dto.LogFilters{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(11), logs[0].LocationID)

	logs, _ = s.ListLogs(ctx, &dto.LogFilters{BatchID: batch})
	assert.Len(t, logs, 1)

	logs, _ = s.ListLogs(ctx, &dto.LogFilters{Limit: 1})
	require.Len(t, logs, 1)
	assert.Equal(t, int64(2), logs[0].ProductID)
}

func TestIncrementFulfilledQtyGuard(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.AddOrder(model.ExternalOrder{ID: "o-1"}, model.ExternalOrderItem{ID: "i-1", Quantity: 3})

	ok, err := s.IncrementFulfilledQty(ctx, "o-1", "i-1", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IncrementFulfilledQty(ctx, "o-1", "i-1", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	it, _ := s.GetItem(ctx, "o-1", "i-1")
	assert.Equal(t, int64(2), it.FulfilledQty)

	missing, _ := s.GetItem(ctx, "o-2", "i-1")
	assert.Nil(t, missing)
}
