package dto

import "github.com/fekuna/omnipos-fulfillment-service/internal/model"

type StockAvailability struct {
	IsValid           bool   `json:"isValid"`
	CurrentQuantity   int64  `json:"currentQuantity"`
	RequestedQuantity int64  `json:"requestedQuantity"`
	Shortfall         int64  `json:"shortfall"`
	Error             string `json:"error,omitempty"`
}

type MutationResult struct {
	NewQuantity int64 `json:"newQuantity"`
	NewVersion  int64 `json:"newVersion"`
	LogID       int64 `json:"logId"`

	Log model.InventoryLogEntry `json:"-"`
}

type TransferResult struct {
	FromVersion  int64                     `json:"fromVersion"`
	ToVersion    int64                     `json:"toVersion"`
	FromQuantity int64                     `json:"fromQuantity"`
	ToQuantity   int64                     `json:"toQuantity"`
	Logs         []model.InventoryLogEntry `json:"logs"`
	BatchID      string                    `json:"batchId"`
}

type LogFilters struct {
	ProductID  int64
	LocationID int64
	BatchID    string
	Limit      int
}
