package memory

import (
	"context"
	"sort"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

var _ inventory.Repository = (*Store)(nil)

func (s *Store) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	p, ok := s.products[id]
	if !ok || p.IsDeleted() {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	l, ok := s.locations[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *Store) GetStock(ctx context.Context, key model.StockKey) (*model.ProductLocationStock, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	row, ok := s.stock[key]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *Store) ListStockByProduct(ctx context.Context, productID int64) ([]model.ProductLocationStock, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	out := make([]model.ProductLocationStock, 0)
	for k, row := range s.stock {
		if k.ProductID == productID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (s *Store) TotalQuantity(ctx context.Context, productID int64) (int64, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	var total int64
	for k, row := range s.stock {
		if k.ProductID == productID {
			total += row.Quantity
		}
	}
	return total, nil
}

func (s *Store) EnsureStock(ctx context.Context, key model.StockKey) (*model.ProductLocationStock, bool, error) {
	s.wlock(ctx)
	defer s.wunlock(ctx)
	if row, ok := s.stock[key]; ok {
		return &row, false, nil
	}
	row := model.ProductLocationStock{
		ProductID:  key.ProductID,
		LocationID: key.LocationID,
		UpdatedAt:  s.now(),
	}
	s.stock[key] = row
	return &row, true, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key model.StockKey, expectedVersion, newQuantity int64) (bool, int64, error) {
	s.wlock(ctx)
	defer s.wunlock(ctx)
	row, ok := s.stock[key]
	if !ok || row.Version != expectedVersion {
		return false, 0, nil
	}
	row.Quantity = newQuantity
	row.Version++
	row.UpdatedAt = s.now()
	s.stock[key] = row
	return true, row.Version, nil
}

func (s *Store) InsertLog(ctx context.Context, entry *model.InventoryLogEntry) error {
	s.wlock(ctx)
	defer s.wunlock(ctx)
	entry.ID = s.nextLogID
	s.nextLogID++
	if entry.ChangeTime.IsZero() {
		entry.ChangeTime = s.now()
	}
	s.logs = append(s.logs, *entry)
	return nil
}

// ListLogs returns matching entries newest first.
func (s *Store) ListLogs(ctx context.Context, f *dto.LogFilters) ([]model.InventoryLogEntry, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	out := make([]model.InventoryLogEntry, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if f.ProductID != 0 && e.ProductID != f.ProductID {
			continue
		}
		if f.LocationID != 0 && e.LocationID != f.LocationID {
			continue
		}
		if f.BatchID != "" && (e.BatchID == nil || *e.BatchID != f.BatchID) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
