package store

import (
	"context"
	"errors"
)

var (
	// ErrConcurrencyConflict is returned by Append when the aggregate moved past the expected version.
	ErrConcurrencyConflict = errors.New("concurrency conflict: aggregate was modified")
	ErrNotFound            = errors.New("not found")
)

// NewEvent is an event about to be appended
type NewEvent struct {
	Type string
	Data any
}

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	// Append writes events atomically after the expectedVersion-th event of the aggregate.
	Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events ...NewEvent) ([]Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// Publisher delivers committed events to the outside world
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Publishers fans one event out to every publisher in order.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, key string, event any) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, key, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
