package memory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

var _ fulfillment.Repository = (*Store)(nil)

func (s *Store) GetOrder(ctx context.Context, orderID string) (*model.ExternalOrder, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) ListItems(ctx context.Context, orderID string) ([]model.ExternalOrderItem, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	ids := s.orderItems[orderID]
	out := make([]model.ExternalOrderItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, orderID, itemID string) (*model.ExternalOrderItem, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	it, ok := s.items[itemID]
	if !ok || it.OrderID != orderID {
		return nil, nil
	}
	return &it, nil
}

func (s *Store) GetProductLink(ctx context.Context, id int64) (*model.ProductLink, error) {
	s.rlock(ctx)
	defer s.runlock(ctx)
	l, ok := s.links[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *Store) IncrementFulfilledQty(ctx context.Context, orderID, itemID string, qty int64) (bool, error) {
	s.wlock(ctx)
	defer s.wunlock(ctx)
	it, ok := s.items[itemID]
	if !ok || it.OrderID != orderID || it.FulfilledQty+qty > it.Quantity {
		return false, nil
	}
	it.FulfilledQty += qty
	s.items[itemID] = it
	return true, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, fulfilledAt *time.Time, fulfilledBy *string) error {
	s.wlock(ctx)
	defer s.wunlock(ctx)
	o, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	o.InternalStatus = status
	if fulfilledAt != nil {
		o.FulfilledAt = fulfilledAt
	}
	if fulfilledBy != nil {
		o.FulfilledBy = fulfilledBy
	}
	o.UpdatedAt = s.now()
	s.orders[orderID] = o
	return nil
}
