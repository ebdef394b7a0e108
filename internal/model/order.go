package model

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusFulfilled  OrderStatus = "fulfilled"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ExternalOrder mirrors an order pulled from a Shopify or WooCommerce integration.
type ExternalOrder struct {
	ID              string      `db:"id" json:"id"`
	IntegrationID   int64       `db:"integration_id" json:"integrationId"`
	Platform        string      `db:"platform" json:"platform"`
	ExternalOrderID string      `db:"external_order_id" json:"externalOrderId"`
	OrderNumber     string      `db:"order_number" json:"orderNumber"`
	InternalStatus  OrderStatus `db:"internal_status" json:"internalStatus"`
	FulfilledAt     *time.Time  `db:"fulfilled_at" json:"fulfilledAt,omitempty"`
	FulfilledBy     *string     `db:"fulfilled_by" json:"fulfilledBy,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

type ExternalOrderItem struct {
	ID                string  `db:"id" json:"id"`
	OrderID           string  `db:"order_id" json:"orderId"`
	ExternalProductID string  `db:"external_product_id" json:"externalProductId"`
	ExternalVariantID *string `db:"external_variant_id" json:"externalVariantId,omitempty"`
	SKU               *string `db:"sku" json:"sku,omitempty"`
	Name              string  `db:"name" json:"name"`
	Quantity          int64   `db:"quantity" json:"quantity"`
	FulfilledQty      int64   `db:"fulfilled_qty" json:"fulfilledQty"`
	ProductLinkID     *int64  `db:"product_link_id" json:"productLinkId,omitempty"`
}

// Remaining is the quantity still to be deducted from inventory for this line.
func (i *ExternalOrderItem) Remaining() int64 {
	if r := i.Quantity - i.FulfilledQty; r > 0 {
		return r
	}
	return 0
}

// ProductLink maps (integration, external product, external variant) to an internal product.
type ProductLink struct {
	ID                int64   `db:"id" json:"id"`
	IntegrationID     int64   `db:"integration_id" json:"integrationId"`
	ExternalProductID string  `db:"external_product_id" json:"externalProductId"`
	ExternalVariantID *string `db:"external_variant_id" json:"externalVariantId,omitempty"`
	ProductID         int64   `db:"product_id" json:"productId"`
}
