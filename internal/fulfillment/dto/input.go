package dto

type FulfillItemInput struct {
	ItemID   string
	Quantity int64
	// ProductID overrides the item's product link.
	ProductID    *int64
	SkipUnmapped bool
}

type FulfillInput struct {
	OrderID    string
	LocationID int64
	Items      []FulfillItemInput
	UserID     string
	Notes      string
}
