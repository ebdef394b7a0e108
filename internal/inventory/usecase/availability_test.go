package usecase

import (
	"context"
	"testing"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStockAvailability(t *testing.T) {
	f := newFixture(t, nil, 3)
	f.store.SetStock(model.ProductLocationStock{ProductID: productID, LocationID: locA, Quantity: 6})

	tests := []struct {
		name          string
		product       int64
		location      int64
		requested     int64
		wantValid     bool
		wantCurrent   int64
		wantShortfall int64
		wantError     bool
	}{
		{"enough", productID, locA, 6, true, 6, 0, false},
		{"short", productID, locA, 10, false, 6, 4, true},
		{"no row reads as zero", productID, locB, 2, false, 0, 2, true},
		{"unknown product", 99, locA, 1, false, 0, 1, true},
		{"unknown location", productID, 99, 1, false, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.uc.ValidateStockAvailability(context.Background(), tt.product, tt.location, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.IsValid)
			assert.Equal(t, tt.wantCurrent, res.CurrentQuantity)
			assert.Equal(t, tt.requested, res.RequestedQuantity)
			assert.Equal(t, tt.wantShortfall, res.Shortfall)
			assert.Equal(t, tt.wantError, res.Error != "")
		})
	}
}

func TestValidateStockAvailabilityRejectsNonPositive(t *testing.T) {
	f := newFixture(t, nil, 3)
	_, err := f.uc.ValidateStockAvailability(context.Background(), productID, locA, 0)
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)
}
