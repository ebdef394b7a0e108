package dto

import "github.com/fekuna/omnipos-fulfillment-service/internal/model"

const (
	StatusFulfilled = "fulfilled"
	StatusPartial   = "partial"
	StatusNone      = "none"
)

const (
	ReasonItemNotFound      = "item not found in order"
	ReasonUnmappedProduct   = "unmapped product"
	ReasonAlreadyFulfilled  = "already fulfilled"
	ReasonInsufficientStock = "insufficient stock"
)

type FulfilledItem struct {
	ItemID      string `json:"itemId"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int64  `json:"quantity"`
	LogID       int64  `json:"logId,omitempty"`
	// CurrentQuantity is the stock seen by a validation preview.
	CurrentQuantity *int64 `json:"currentQuantity,omitempty"`
}

type SkippedItem struct {
	ItemID    string `json:"itemId"`
	ProductID *int64 `json:"productId,omitempty"`
	Reason    string `json:"reason"`
}

type FailedItem struct {
	ItemID            string `json:"itemId"`
	ProductID         *int64 `json:"productId,omitempty"`
	Reason            string `json:"reason"`
	CurrentQuantity   *int64 `json:"currentQuantity,omitempty"`
	RequestedQuantity *int64 `json:"requestedQuantity,omitempty"`
	Shortfall         *int64 `json:"shortfall,omitempty"`
}

type Results struct {
	Fulfilled []FulfilledItem `json:"fulfilled"`
	Skipped   []SkippedItem   `json:"skipped"`
	Failed    []FailedItem    `json:"failed"`
}

func NewResults() Results {
	return Results{
		Fulfilled: []FulfilledItem{},
		Skipped:   []SkippedItem{},
		Failed:    []FailedItem{},
	}
}

type Summary struct {
	Total     int `json:"total"`
	Fulfilled int `json:"fulfilled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (r Results) Summary() Summary {
	return Summary{
		Total:     len(r.Fulfilled) + len(r.Skipped) + len(r.Failed),
		Fulfilled: len(r.Fulfilled),
		Skipped:   len(r.Skipped),
		Failed:    len(r.Failed),
	}
}

// Status is "fulfilled" when every item landed in the fulfilled bucket, "partial" when some did.
func (r Results) Status() string {
	s := r.Summary()
	switch {
	case s.Total > 0 && s.Fulfilled == s.Total:
		return StatusFulfilled
	case s.Fulfilled > 0:
		return StatusPartial
	default:
		return StatusNone
	}
}

type FulfillResult struct {
	OrderID           string                    `json:"orderId"`
	// OrderStatus covers every line of the order. It stays processing while
	// FulfillmentStatus is fulfilled if lines outside this request remain open.
	OrderStatus       model.OrderStatus         `json:"orderStatus"`
	FulfillmentStatus string                    `json:"fulfillmentStatus"`
	Results           Results                   `json:"results"`
	InventoryLogs     []model.InventoryLogEntry `json:"inventoryLogs"`
	Summary           Summary                   `json:"summary"`
	BatchID           string                    `json:"batchId"`
}

type ValidationResult struct {
	OrderID           string  `json:"orderId"`
	LocationID        *int64  `json:"locationId,omitempty"`
	FulfillmentStatus string  `json:"fulfillmentStatus"`
	Results           Results `json:"results"`
	Summary           Summary `json:"summary"`
}
