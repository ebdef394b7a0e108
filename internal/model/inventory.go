package model

import "time"

// StockKey identifies a ProductLocationStock row.
type StockKey struct {
	ProductID  int64
	LocationID int64
}

// Less orders keys by product, then location. Multi-row mutations apply rows in this order.
func (k StockKey) Less(o StockKey) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	return k.LocationID < o.LocationID
}

type ProductLocationStock struct {
	ProductID   int64     `db:"product_id" json:"productId"`
	LocationID  int64     `db:"location_id" json:"locationId"`
	Quantity    int64     `db:"quantity" json:"quantity"`
	MinQuantity int64     `db:"min_quantity" json:"minQuantity"`
	Version     int64     `db:"version" json:"version"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

func (s *ProductLocationStock) Key() StockKey {
	return StockKey{ProductID: s.ProductID, LocationID: s.LocationID}
}

type LogType string

const (
	LogTypeAdjustment LogType = "ADJUSTMENT"
	LogTypeTransfer   LogType = "TRANSFER"
	LogTypeAutoAdjust LogType = "AUTO_ADJUST"
	LogTypeDeduction  LogType = "DEDUCTION"
)

// InventoryLogEntry is append-only. One entry is written per row mutation, in the same transaction.
type InventoryLogEntry struct {
	ID            int64     `db:"id" json:"id"`
	ProductID     int64     `db:"product_id" json:"productId"`
	LocationID    int64     `db:"location_id" json:"locationId"`
	Delta         int64     `db:"delta" json:"delta"`
	QuantityAfter int64     `db:"quantity_after" json:"quantityAfter"`
	LogType       LogType   `db:"log_type" json:"logType"`
	ChangeTime    time.Time `db:"change_time" json:"changeTime"`
	UserID        string    `db:"user_id" json:"userId"`
	BatchID       *string   `db:"batch_id" json:"batchId,omitempty"`
	Reason        *string   `db:"reason" json:"reason,omitempty"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
}
