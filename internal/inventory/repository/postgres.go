package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage/postgres"
	"github.com/jmoiron/sqlx"
)

const stockColumns = `product_id, location_id, quantity, min_quantity, version, updated_at`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

var _ inventory.Repository = (*PGRepository)(nil)

func (r *PGRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	query := `SELECT * FROM products WHERE id = $1 AND deleted_at IS NULL`
	if err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGRepository) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	var l model.Location
	query := `SELECT * FROM locations WHERE id = $1`
	if err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &l, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *PGRepository) GetStock(ctx context.Context, key model.StockKey) (*model.ProductLocationStock, error) {
	var row model.ProductLocationStock
	query := `SELECT ` + stockColumns + ` FROM product_location_stock WHERE product_id = $1 AND location_id = $2`
	if err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &row, query, key.ProductID, key.LocationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *PGRepository) ListStockByProduct(ctx context.Context, productID int64) ([]model.ProductLocationStock, error) {
	rows := []model.ProductLocationStock{}
	query := `SELECT ` + stockColumns + ` FROM product_location_stock WHERE product_id = $1 ORDER BY location_id`
	err := sqlx.SelectContext(ctx, postgres.Executor(ctx, r.DB), &rows, query, productID)
	return rows, err
}

func (r *PGRepository) TotalQuantity(ctx context.Context, productID int64) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(quantity), 0) FROM product_location_stock WHERE product_id = $1`
	err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &total, query, productID)
	return total, err
}

func (r *PGRepository) EnsureStock(ctx context.Context, key model.StockKey) (*model.ProductLocationStock, bool, error) {
	var row model.ProductLocationStock
	query := `
        INSERT INTO product_location_stock (product_id, location_id, quantity, version)
        VALUES ($1, $2, 0, 0)
        ON CONFLICT (product_id, location_id) DO NOTHING
        RETURNING ` + stockColumns

	err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.DB), &row, query, key.ProductID, key.LocationID)
	if err == nil {
		return &row, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	// Someone else created it first.
	existing, err := r.GetStock(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("stock row %d/%d vanished after insert conflict", key.ProductID, key.LocationID)
	}
	return existing, false, nil
}

func (r *PGRepository) CompareAndSwap(ctx context.Context, key model.StockKey, expectedVersion, newQuantity int64) (bool, int64, error) {
	query := `
        UPDATE product_location_stock
        SET quantity = $1, version = version + 1, updated_at = NOW()
        WHERE product_id = $2 AND location_id = $3 AND version = $4
        RETURNING version`

	var newVersion int64
	err := postgres.Executor(ctx, r.DB).
		QueryRowxContext(ctx, query, newQuantity, key.ProductID, key.LocationID, expectedVersion).
		Scan(&newVersion)
	switch {
	case err == nil:
		return true, newVersion, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, 0, nil
	case postgres.IsConcurrencyFailure(err):
		// The transaction is aborted, so the current version cannot be re-read. It moved on at least once.
		return false, 0, &apperr.OptimisticLockError{
			ProductID:       key.ProductID,
			LocationID:      key.LocationID,
			CurrentVersion:  expectedVersion + 1,
			ExpectedVersion: expectedVersion,
		}
	case postgres.IsCheckViolation(err):
		return false, 0, &apperr.InsufficientStockError{ProductID: key.ProductID, LocationID: key.LocationID}
	default:
		return false, 0, fmt.Errorf("update stock %d/%d: %w", key.ProductID, key.LocationID, err)
	}
}

func (r *PGRepository) InsertLog(ctx context.Context, entry *model.InventoryLogEntry) error {
	query := `
        INSERT INTO inventory_logs (
            product_id, location_id, delta, quantity_after, log_type,
            user_id, batch_id, reason, notes
        )
        VALUES (
            :product_id, :location_id, :delta, :quantity_after, :log_type,
            :user_id, :batch_id, :reason, :notes
        )
        RETURNING id, change_time`

	rows, err := sqlx.NamedQueryContext(ctx, postgres.Executor(ctx, r.DB), query, entry)
	if err != nil {
		return fmt.Errorf("insert inventory log: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.New("insert inventory log: no row returned")
	}
	return rows.Scan(&entry.ID, &entry.ChangeTime)
}

func (r *PGRepository) ListLogs(ctx context.Context, f *dto.LogFilters) ([]model.InventoryLogEntry, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != 0 {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.LocationID != 0 {
		conditions = append(conditions, "location_id = :location_id")
		args["location_id"] = f.LocationID
	}
	if f.BatchID != "" {
		conditions = append(conditions, "batch_id = :batch_id")
		args["batch_id"] = f.BatchID
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := "SELECT * FROM inventory_logs" + whereClause + " ORDER BY change_time DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	query, params, err := sqlx.Named(query, args)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	logs := []model.InventoryLogEntry{}
	err = sqlx.SelectContext(ctx, postgres.Executor(ctx, r.DB), &logs, query, params...)
	return logs, err
}
