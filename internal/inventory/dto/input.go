package dto

type AdjustInput struct {
	ProductID  int64
	LocationID int64
	Delta      int64
	UserID     string
	Reason     string
	Notes      string
	// ExpectedVersion pins the mutation to the version the caller last saw.
	ExpectedVersion *int64
}

type TransferInput struct {
	ProductID           int64
	FromLocationID      int64
	ToLocationID        int64
	Quantity            int64
	UserID              string
	Notes               string
	ExpectedFromVersion *int64
	ExpectedToVersion   *int64
}

// DeductContext ties a deduction to the order line that caused it.
type DeductContext struct {
	OrderID string
	ItemID  string
	Notes   string
}

type DeductInput struct {
	ProductID  int64
	LocationID int64
	Quantity   int64
	UserID     string
	Context    DeductContext
}
