package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage/postgres"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

var _ fulfillment.Repository = (*PGRepository)(nil)

func (r *PGRepository) GetOrder(ctx context.Context, orderID string) (*model.ExternalOrder, error) {
	var o model.ExternalOrder
	query := `SELECT * FROM external_orders WHERE id = $1`
	if err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &o, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *PGRepository) ListItems(ctx context.Context, orderID string) ([]model.ExternalOrderItem, error) {
	items := []model.ExternalOrderItem{}
	query := `SELECT * FROM external_order_items WHERE order_id = $1 ORDER BY id`
	err := sqlx.SelectContext(ctx, postgres.Executor(ctx, r.DB), &items, query, orderID)
	return items, err
}

func (r *PGRepository) GetItem(ctx context.Context, orderID, itemID string) (*model.ExternalOrderItem, error) {
	var it model.ExternalOrderItem
	query := `SELECT * FROM external_order_items WHERE order_id = $1 AND id = $2`
	if err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &it, query, orderID, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func (r *PGRepository) GetProductLink(ctx context.Context, id int64) (*model.ProductLink, error) {
	var l model.ProductLink
	query := `SELECT * FROM product_links WHERE id = $1`
	if err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &l, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *PGRepository) IncrementFulfilledQty(ctx context.Context, orderID, itemID string, qty int64) (bool, error) {
	query := `
        UPDATE external_order_items
        SET fulfilled_qty = fulfilled_qty + $1
        WHERE order_id = $2 AND id = $3 AND fulfilled_qty + $1 <= quantity`

	res, err := postgres.Executor(ctx, r.DB).ExecContext(ctx, query, qty, orderID, itemID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRepository) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, fulfilledAt *time.Time, fulfilledBy *string) error {
	query := `
        UPDATE external_orders
        SET internal_status = $1,
            fulfilled_at = COALESCE($2, fulfilled_at),
            fulfilled_by = COALESCE($3, fulfilled_by),
            updated_at = NOW()
        WHERE id = $4`

	_, err := postgres.Executor(ctx, r.DB).ExecContext(ctx, query, status, fulfilledAt, fulfilledBy, orderID)
	return err
}
