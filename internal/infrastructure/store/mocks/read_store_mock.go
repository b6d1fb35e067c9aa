package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/readmodel"
)

// MockReadStore is a mock implementation of OrderReadStore for testing
type MockReadStore struct {
	mu     sync.RWMutex
	orders map[string]*readmodel.OrderReadModel

	// For tracking calls in tests
	UpsertCalls []string
	UpdateCalls []string
	ListErr     error
}

func NewMockReadStore() *MockReadStore {
	return &MockReadStore{
		orders: make(map[string]*readmodel.OrderReadModel),
	}
}

func (m *MockReadStore) UpsertOrder(ctx context.Context, o *readmodel.OrderReadModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls = append(m.UpsertCalls, o.Ref)
	m.orders[o.Ref] = o.Clone()
	return nil
}

func (m *MockReadStore) GetOrder(ctx context.Context, ref string) (*readmodel.OrderReadModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[ref]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", ref, store.ErrNotFound)
	}
	return o.Clone(), nil
}

func (m *MockReadStore) UpdateOrder(ctx context.Context, ref string, fn func(*readmodel.OrderReadModel)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls = append(m.UpdateCalls, ref)
	o, ok := m.orders[ref]
	if !ok {
		return fmt.Errorf("order %s: %w", ref, store.ErrNotFound)
	}
	fn(o)
	return nil
}

func (m *MockReadStore) ListByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]*readmodel.OrderReadModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*readmodel.OrderReadModel
	for _, o := range m.orders {
		if o.Status == status && o.CreatedAt.Before(cutoff) {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

// SetOrder stores an order directly without recording a call
func (m *MockReadStore) SetOrder(o *readmodel.OrderReadModel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.Ref] = o.Clone()
}
