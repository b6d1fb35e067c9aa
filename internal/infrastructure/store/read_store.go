package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/glam-checkout/internal/readmodel"
)

// ReadStore is an in-memory order read model store
type ReadStore struct {
	mu     sync.RWMutex
	orders map[string]*readmodel.OrderReadModel // order ref -> order
}

func NewReadStore() *ReadStore {
	return &ReadStore{
		orders: make(map[string]*readmodel.OrderReadModel),
	}
}

func (rs *ReadStore) UpsertOrder(ctx context.Context, order *readmodel.OrderReadModel) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.orders[order.Ref] = order.Clone()
	return nil
}

func (rs *ReadStore) GetOrder(ctx context.Context, ref string) (*readmodel.OrderReadModel, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	o, ok := rs.orders[ref]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", ref, ErrNotFound)
	}
	return o.Clone(), nil
}

func (rs *ReadStore) UpdateOrder(ctx context.Context, ref string, fn func(*readmodel.OrderReadModel)) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	o, ok := rs.orders[ref]
	if !ok {
		return fmt.Errorf("order %s: %w", ref, ErrNotFound)
	}
	updated := o.Clone()
	fn(updated)
	rs.orders[ref] = updated
	return nil
}

func (rs *ReadStore) ListByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]*readmodel.OrderReadModel, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	var out []*readmodel.OrderReadModel
	for _, o := range rs.orders {
		if o.Status == status && o.CreatedAt.Before(cutoff) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
