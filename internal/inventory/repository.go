package inventory

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// Repository is the store surface the mutation engine needs. Lookups return nil, nil when the
// row does not exist.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetLocation(ctx context.Context, id int64) (*model.Location, error)

	GetStock(ctx context.Context, key model.StockKey) (*model.ProductLocationStock, error)
	ListStockByProduct(ctx context.Context, productID int64) ([]model.ProductLocationStock, error)
	// TotalQuantity sums a product's quantity over all locations.
	TotalQuantity(ctx context.Context, productID int64) (int64, error)

	// EnsureStock returns the row for key, creating it at quantity 0 and version 0 when absent.
	EnsureStock(ctx context.Context, key model.StockKey) (*model.ProductLocationStock, bool, error)
	// CompareAndSwap sets the quantity and bumps the version only if the stored version still
	// equals expectedVersion. ok is false when another writer got there first.
	CompareAndSwap(ctx context.Context, key model.StockKey, expectedVersion, newQuantity int64) (ok bool, newVersion int64, err error)

	InsertLog(ctx context.Context, entry *model.InventoryLogEntry) error
	ListLogs(ctx context.Context, filters *dto.LogFilters) ([]model.InventoryLogEntry, error)
}
