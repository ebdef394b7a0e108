package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// ValidateStockAvailability is an unlocked, advisory read. The authoritative check is the guarded
// write inside the mutation itself.
func (uc *inventoryUseCase) ValidateStockAvailability(ctx context.Context, productID, locationID, requested int64) (*dto.StockAvailability, error) {
	if requested <= 0 {
		return nil, apperr.Validation("quantity", "must be positive")
	}

	result := &dto.StockAvailability{RequestedQuantity: requested}

	if _, err := uc.requireRefs(ctx, productID, locationID); err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			result.Shortfall = requested
			result.Error = fmt.Sprintf("%s %s not found", nf.Resource, nf.ID)
			return result, nil
		}
		return nil, apperr.Internal("validate stock availability", err)
	}

	row, err := uc.repo.GetStock(ctx, model.StockKey{ProductID: productID, LocationID: locationID})
	if err != nil {
		return nil, apperr.Internal("validate stock availability", err)
	}
	if row != nil {
		result.CurrentQuantity = row.Quantity
	}

	result.IsValid = result.CurrentQuantity >= requested
	if !result.IsValid {
		result.Shortfall = requested - result.CurrentQuantity
		result.Error = fmt.Sprintf("insufficient stock: only %d available, %d requested", result.CurrentQuantity, requested)
	}
	return result, nil
}
