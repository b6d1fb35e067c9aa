package store

import (
	"context"
	"time"

	"github.com/example/glam-checkout/internal/readmodel"
)

// OrderReadStore persists the order read model built by the projector
type OrderReadStore interface {
	UpsertOrder(ctx context.Context, order *readmodel.OrderReadModel) error

	// GetOrder returns ErrNotFound when no order has the reference.
	GetOrder(ctx context.Context, ref string) (*readmodel.OrderReadModel, error)

	// UpdateOrder applies fn to the stored order and saves the result.
	UpdateOrder(ctx context.Context, ref string, fn func(*readmodel.OrderReadModel)) error

	// ListByStatusBefore returns orders in status created before cutoff, oldest first.
	ListByStatusBefore(ctx context.Context, status string, cutoff time.Time) ([]*readmodel.OrderReadModel, error)
}
