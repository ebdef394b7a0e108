package inventory

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type UseCase interface {
	ValidateStockAvailability(ctx context.Context, productID, locationID, requested int64) (*dto.StockAvailability, error)

	Adjust(ctx context.Context, input *dto.AdjustInput) (*dto.MutationResult, error)
	Transfer(ctx context.Context, input *dto.TransferInput) (*dto.TransferResult, error)
	Deduct(ctx context.Context, input *dto.DeductInput) (*dto.MutationResult, error)

	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetLocation(ctx context.Context, id int64) (*model.Location, error)
	ListStock(ctx context.Context, productID int64) ([]model.ProductLocationStock, error)
	ListLogs(ctx context.Context, filters *dto.LogFilters) ([]model.InventoryLogEntry, error)
}
