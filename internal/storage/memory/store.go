// Package memory is an in-process store used by tests and STORAGE_DRIVER=memory runs. A
// transaction holds the store's write lock for its whole duration and restores a snapshot on
// rollback, which gives serializable isolation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage"
)

type Store struct {
	mu sync.RWMutex

	products   map[int64]model.Product
	locations  map[int64]model.Location
	stock      map[model.StockKey]model.ProductLocationStock
	logs       []model.InventoryLogEntry
	nextLogID  int64
	orders     map[string]model.ExternalOrder
	items      map[string]model.ExternalOrderItem
	orderItems map[string][]string
	links      map[int64]model.ProductLink

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		products:   make(map[int64]model.Product),
		locations:  make(map[int64]model.Location),
		stock:      make(map[model.StockKey]model.ProductLocationStock),
		nextLogID:  1,
		orders:     make(map[string]model.ExternalOrder),
		items:      make(map[string]model.ExternalOrderItem),
		orderItems: make(map[string][]string),
		links:      make(map[int64]model.ProductLink),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ storage.TxManager = (*Store)(nil)

// transaction-aware locking helpers
func (s *Store) inTx(ctx context.Context) bool {
	st, ok := storage.State(ctx)
	return ok && st.Handle == s
}

func (s *Store) rlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.RLock()
	}
}

func (s *Store) runlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.RUnlock()
	}
}

func (s *Store) wlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.Lock()
	}
}

func (s *Store) wunlock(ctx context.Context) {
	if !s.inTx(ctx) {
		s.mu.Unlock()
	}
}

type snapshot struct {
	stock     map[model.StockKey]model.ProductLocationStock
	logs      int
	nextLogID int64
	orders    map[string]model.ExternalOrder
	items     map[string]model.ExternalOrderItem
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		stock:     make(map[model.StockKey]model.ProductLocationStock, len(s.stock)),
		logs:      len(s.logs),
		nextLogID: s.nextLogID,
		orders:    make(map[string]model.ExternalOrder, len(s.orders)),
		items:     make(map[string]model.ExternalOrderItem, len(s.items)),
	}
	for k, v := range s.stock {
		snap.stock[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.stock = snap.stock
	s.logs = s.logs[:snap.logs]
	s.nextLogID = snap.nextLogID
	s.orders = snap.orders
	s.items = snap.items
}

// WithTransaction runs fn while holding the write lock. Reference data (products, locations,
// links) is not rolled back because the mutation paths never write it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if storage.InTransaction(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	snap := s.snapshot()
	txCtx, state := storage.Begin(ctx, s)

	committed := false
	defer func() {
		if !committed {
			s.restore(snap)
		}
		s.mu.Unlock()
		if committed {
			state.Committed(ctx)
		}
	}()

	if err = fn(txCtx); err != nil {
		return err
	}
	committed = true
	return nil
}

// Seeding helpers. They are not transactional and are meant for setup code.

func (s *Store) AddProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
		p.UpdatedAt = p.CreatedAt
	}
	s.products[p.ID] = p
}

func (s *Store) AddLocation(l model.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.locations[l.ID] = l
}

// SetStock writes a row as-is, bypassing version checks.
func (s *Store) SetStock(row model.ProductLocationStock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = s.now()
	}
	s.stock[row.Key()] = row
}

func (s *Store) AddOrder(o model.ExternalOrder, items ...model.ExternalOrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.InternalStatus == "" {
		o.InternalStatus = model.OrderStatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
		o.UpdatedAt = o.CreatedAt
	}
	s.orders[o.ID] = o
	for _, it := range items {
		it.OrderID = o.ID
		s.items[it.ID] = it
		s.orderItems[o.ID] = append(s.orderItems[o.ID], it.ID)
	}
}

func (s *Store) AddLink(l model.ProductLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.ID] = l
}
