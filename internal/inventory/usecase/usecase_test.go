package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/audit"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/notification"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productID    int64 = 1
	lowProductID int64 = 2
	locA         int64 = 10
	locB         int64 = 20
	locC         int64 = 30
)

type captureNotifier struct {
	mu     sync.Mutex
	events []notification.LowStockEvent
}

func (n *captureNotifier) NotifyLowStock(_ context.Context, e notification.LowStockEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

type fixture struct {
	uc       inventory.UseCase
	store    *memory.Store
	sink     *audit.MemorySink
	notifier *captureNotifier
}

func newFixture(t *testing.T, repo inventory.Repository, retries int) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.AddProduct(model.Product{ID: productID, Name: "Widget"})
	store.AddProduct(model.Product{ID: lowProductID, Name: "Gadget", LowStockThreshold: 5})
	for _, id := range []int64{locA, locB, locC} {
		store.AddLocation(model.Location{ID: id, Name: "loc"})
	}
	if repo == nil {
		repo = store
	}
	if r, ok := repo.(*racingRepo); ok {
		r.Store = store
	}

	sink := audit.NewMemorySink()
	notifier := &captureNotifier{}
	uc := NewInventoryUseCase(repo, store, audit.NewRecorder(sink, logger.NewNop()), notifier, logger.NewNop(), Config{ConflictRetries: retries})
	return &fixture{uc: uc, store: store, sink: sink, notifier: notifier}
}

func (f *fixture) stock(t *testing.T, product, location int64) *model.ProductLocationStock {
	t.Helper()
	row, err := f.store.GetStock(context.Background(), model.StockKey{ProductID: product, LocationID: location})
	require.NoError(t, err)
	return row
}

func ptr(v int64) *int64 { return &v }

func TestTransferEndToEnd(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 10})
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locB, Quantity: 0})

	res, err := f.uc.Transfer(context.Background(), &dto.TransferInput{
		ProductID:           productID,
		FromLocationID:      locA,
		ToLocationID:        locB,
		Quantity:            4,
		UserID:              "user-1",
		ExpectedFromVersion: ptr(0),
		ExpectedToVersion:   ptr(0),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.FromVersion)
	assert.Equal(t, int64(1), res.ToVersion)
	assert.Equal(t, int64(6), f.stock(t, productID, locA).Quantity)
	assert.Equal(t, int64(4), f.stock(t, productID, locB).Quantity)

	require.Len(t, res.Logs, 2)
	assert.Equal(t, int64(-4), res.Logs[0].Delta)
	assert.Equal(t, int64(4), res.Logs[1].Delta)
	assert.Equal(t, model.LogTypeTransfer, res.Logs[0].LogType)
	assert.Equal(t, model.LogTypeTransfer, res.Logs[1].LogType)
	require.NotNil(t, res.Logs[0].BatchID)
	require.NotNil(t, res.Logs[1].BatchID)
	assert.Equal(t, *res.Logs[0].BatchID, *res.Logs[1].BatchID)
	assert.Equal(t, res.BatchID, *res.Logs[0].BatchID)

	logs, err := f.uc.ListLogs(context.Background(), &dto.LogFilters{BatchID: res.BatchID})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionInventoryTransfer, entries[0].Action)
	assert.Equal(t, res.BatchID, entries[0].BatchID)
}

func TestTransferCreatesDestinationRow(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locB, Quantity: 5, Version: 2})

	// destination sorts before the source, so rows are written credit first
	res, err := f.uc.Transfer(context.Background(), &dto.TransferInput{
		ProductID: productID, FromLocationID: locB, ToLocationID: locA, Quantity: 2, UserID: "u",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.FromVersion)
	assert.Equal(t, int64(1), res.ToVersion)
	assert.Equal(t, int64(2), res.ToQuantity)
	assert.Equal(t, model.LogTypeTransfer, res.Logs[0].LogType)
	assert.Equal(t, model.LogTypeAutoAdjust, res.Logs[1].LogType)
	assert.Equal(t, int64(-2), res.Logs[0].Delta)
}

func TestTransferJoinsCallerBatch(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 10})
	recorder := audit.NewRecorder(audit.NewMemorySink(), logger.NewNop())

	ctx := recorder.StartBatch(context.Background())
	defer recorder.EndBatch(ctx)

	res, err := f.uc.Transfer(ctx, &dto.TransferInput{ProductID: productID, FromLocationID: locA, ToLocationID: locB, Quantity: 1, UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, audit.BatchID(ctx), res.BatchID)
}

func TestAdjustOptimisticLockRejection(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 5, Version: 3})

	_, err := f.uc.Adjust(context.Background(), &dto.AdjustInput{
		ProductID: productID, LocationID: locA, Delta: 1, UserID: "u", ExpectedVersion: ptr(2),
	})

	var lockErr *apperr.OptimisticLockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, int64(3), lockErr.CurrentVersion)
	assert.Equal(t, int64(2), lockErr.ExpectedVersion)

	row := f.stock(t, productID, locA)
	assert.Equal(t, int64(5), row.Quantity)
	assert.Equal(t, int64(3), row.Version)

	logs, _ := f.uc.ListLogs(context.Background(), &dto.LogFilters{})
	assert.Empty(t, logs)
	assert.Empty(t, f.sink.Entries())
}

func TestAdjustNonNegativity(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 3})

	_, err := f.uc.Adjust(context.Background(), &dto.AdjustInput{ProductID: productID, LocationID: locA, Delta: -5, UserID: "u"})

	var stockErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(3), stockErr.CurrentQuantity)
	assert.Equal(t, int64(5), stockErr.RequestedQuantity)
	assert.Equal(t, int64(2), stockErr.Shortfall)
	assert.Equal(t, int64(3), f.stock(t, productID, locA).Quantity)

	_, err = f.uc.Adjust(context.Background(), &dto.AdjustInput{ProductID: productID, LocationID: locB, Delta: -1, UserID: "u"})
	require.ErrorAs(t, err, &stockErr)
	assert.Zero(t, stockErr.CurrentQuantity)
	assert.Nil(t, f.stock(t, productID, locB))
}

func TestAdjustVersionMonotonicity(t *testing.T) {
	f := newFixture(t, nil, 3)
	ctx := context.Background()

	for i, delta := range []int64{5, -2, 7} {
		res, err := f.uc.Adjust(ctx, &dto.AdjustInput{ProductID: productID, LocationID: locA, Delta: delta, UserID: "u", Reason: "recount"})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), res.NewVersion)
		assert.NotZero(t, res.LogID)
	}
	row := f.stock(t, productID, locA)
	assert.Equal(t, int64(10), row.Quantity)
	assert.Equal(t, int64(3), row.Version)
	assert.Len(t, f.sink.Entries(), 3)
}

func TestTransferAtomicity(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 10})
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locB, Quantity: 1, Version: 4})

	_, err := f.uc.Transfer(context.Background(), &dto.TransferInput{
		ProductID: productID, FromLocationID: locA, ToLocationID: locB, Quantity: 4, UserID: "u",
		ExpectedToVersion: ptr(3),
	})
	var lockErr *apperr.OptimisticLockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, locB, lockErr.LocationID)

	a := f.stock(t, productID, locA)
	assert.Equal(t, int64(10), a.Quantity)
	assert.Zero(t, a.Version)
	assert.Equal(t, int64(1), f.stock(t, productID, locB).Quantity)

	logs, _ := f.uc.ListLogs(context.Background(), &dto.LogFilters{ProductID: productID})
	assert.Empty(t, logs)
}

func TestConcurrentTransferRace(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 10})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []int64{locB, locC} {
		wg.Add(1)
		go func(i int, to int64) {
			defer wg.Done()
			_, errs[i] = f.uc.Transfer(context.Background(), &dto.TransferInput{
				ProductID: productID, FromLocationID: locA, ToLocationID: to, Quantity: 8, UserID: "u",
			})
		}(i, to)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *apperr.InsufficientStockError
		assert.ErrorAs(t, err, &stockErr)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(2), f.stock(t, productID, locA).Quantity)
}

// racingRepo lets another writer bump the row right before the first guarded write.
type racingRepo struct {
	*memory.Store
	races int
	cas   int
}

func (r *racingRepo) CompareAndSwap(ctx context.Context, key model.StockKey, expectedVersion, newQuantity int64) (bool, int64, error) {
	r.cas++
	if r.races > 0 {
		r.races--
		row, err := r.Store.GetStock(ctx, key)
		if err != nil {
			return false, 0, err
		}
		if _, _, err := r.Store.CompareAndSwap(ctx, key, expectedVersion, row.Quantity); err != nil {
			return false, 0, err
		}
	}
	return r.Store.CompareAndSwap(ctx, key, expectedVersion, newQuantity)
}

func TestLostRaceIsRetried(t *testing.T) {
	repo := &racingRepo{races: 1}
	f := newFixture(t, repo, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 5})

	res, err := f.uc.Adjust(context.Background(), &dto.AdjustInput{ProductID: productID, LocationID: locA, Delta: -1, UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.NewQuantity)
	assert.Equal(t, int64(1), res.NewVersion)
	assert.Equal(t, 2, repo.cas)
}

func TestLostRaceSurfacesWithoutRetries(t *testing.T) {
	repo := &racingRepo{races: 1}
	f := newFixture(t, repo, 0)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 5})

	_, err := f.uc.Adjust(context.Background(), &dto.AdjustInput{ProductID: productID, LocationID: locA, Delta: -1, UserID: "u"})
	var lockErr *apperr.OptimisticLockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, int64(1), lockErr.CurrentVersion)
	assert.Zero(t, lockErr.ExpectedVersion)
	assert.False(t, lockErr.Explicit)

	row := f.stock(t, productID, locA)
	assert.Equal(t, int64(5), row.Quantity)
	assert.Zero(t, row.Version)
}

func TestLostRaceWithExplicitVersionIsNotRetried(t *testing.T) {
	repo := &racingRepo{races: 1}
	f := newFixture(t, repo, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 5})

	_, err := f.uc.Adjust(context.Background(), &dto.AdjustInput{ProductID: productID, LocationID: locA, Delta: -1, UserID: "u", ExpectedVersion: ptr(0)})
	var lockErr *apperr.OptimisticLockError
	require.ErrorAs(t, err, &lockErr)
	assert.True(t, lockErr.Explicit)
	assert.Equal(t, 1, repo.cas)
}

func TestDeductNotifiesLowStock(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: lowProductID, LocationID: locA, Quantity: 7})

	res, err := f.uc.Deduct(context.Background(), &dto.DeductInput{
		ProductID: lowProductID, LocationID: locA, Quantity: 3, UserID: "u",
		Context: dto.DeductContext{OrderID: "o-1", ItemID: "i-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.NewQuantity)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, int64(4), f.notifier.events[0].TotalQuantity)
	assert.Equal(t, int64(5), f.notifier.events[0].Threshold)

	logs, _ := f.uc.ListLogs(context.Background(), &dto.LogFilters{ProductID: lowProductID})
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogTypeDeduction, logs[0].LogType)
	require.NotNil(t, logs[0].Reason)
	assert.Equal(t, "order o-1 item i-1", *logs[0].Reason)

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionInventoryDeduct, entries[0].Action)
}

func TestDeductAboveThresholdDoesNotNotify(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: lowProductID, LocationID: locA, Quantity: 20})

	_, err := f.uc.Deduct(context.Background(), &dto.DeductInput{ProductID: lowProductID, LocationID: locA, Quantity: 1, UserID: "u"})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.events)
}

func TestMutationReferencesMustExist(t *testing.T) {
	f := newFixture(t, nil, 3)
	ctx := context.Background()
	var nf *apperr.NotFoundError

	_, err := f.uc.Adjust(ctx, &dto.AdjustInput{ProductID: 99, LocationID: locA, Delta: 1, UserID: "u"})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Resource)

	_, err = f.uc.Transfer(ctx, &dto.TransferInput{ProductID: productID, FromLocationID: locA, ToLocationID: 99, Quantity: 1, UserID: "u"})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "location", nf.Resource)
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t, nil, 3)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"zero delta", func() error {
			_, err := f.uc.Adjust(ctx, &dto.AdjustInput{ProductID: productID, LocationID: locA, UserID: "u"})
			return err
		}},
		{"missing user", func() error {
			_, err := f.uc.Adjust(ctx, &dto.AdjustInput{ProductID: productID, LocationID: locA, Delta: 1})
			return err
		}},
		{"same locations", func() error {
			_, err := f.uc.Transfer(ctx, &dto.TransferInput{ProductID: productID, FromLocationID: locA, ToLocationID: locA, Quantity: 1, UserID: "u"})
			return err
		}},
		{"non-positive transfer", func() error {
			_, err := f.uc.Transfer(ctx, &dto.TransferInput{ProductID: productID, FromLocationID: locA, ToLocationID: locB, UserID: "u"})
			return err
		}},
		{"non-positive deduction", func() error {
			_, err := f.uc.Deduct(ctx, &dto.DeductInput{ProductID: productID, LocationID: locA, Quantity: -2, UserID: "u"})
			return err
		}},
		{"bad product id", func() error {
			_, err := f.uc.Deduct(ctx, &dto.DeductInput{LocationID: locA, Quantity: 2, UserID: "u"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *apperr.ValidationError
			assert.ErrorAs(t, tt.call(), &ve)
		})
	}
}

func TestListStock(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locB, Quantity: 2, Version: 5})
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 1})

	rows, err := f.uc.ListStock(context.Background(), productID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, locA, rows[0].LocationID)
	assert.Equal(t, int64(5), rows[1].Version)

	_, err = f.uc.ListStock(context.Background(), 99)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
