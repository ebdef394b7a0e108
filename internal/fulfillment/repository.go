package fulfillment

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// Repository reads external orders and records fulfillment progress. Lookups return nil, nil when
// the row does not exist.
type Repository interface {
	GetOrder(ctx context.Context, orderID string) (*model.ExternalOrder, error)
	ListItems(ctx context.Context, orderID string) ([]model.ExternalOrderItem, error)
	GetItem(ctx context.Context, orderID, itemID string) (*model.ExternalOrderItem, error)
	GetProductLink(ctx context.Context, id int64) (*model.ProductLink, error)

	// IncrementFulfilledQty adds qty to the item's fulfilled quantity unless that would exceed the
	// ordered quantity, in which case ok is false and nothing changes.
	IncrementFulfilledQty(ctx context.Context, orderID, itemID string, qty int64) (ok bool, err error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, fulfilledAt *time.Time, fulfilledBy *string) error
}
