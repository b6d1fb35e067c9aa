package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/glam-checkout/internal/infrastructure/store"
)

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetVersion() int
	SetVersion(int)
	ApplyEvent(store.Event) error
}

// LoadAggregate loads an aggregate by replaying events, using snapshot if available
// Returns the aggregate, a boolean indicating if data was found, and any error
func LoadAggregate[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	id string,
	newAggregate func() T,
) (T, bool, error) {
	var zero T
	agg := newAggregate()

	snapshot, err := eventStore.GetSnapshot(ctx, id)
	if err != nil {
		return zero, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var events []store.Event
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, agg); err != nil {
			return zero, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		agg.SetVersion(snapshot.Version)
		events, err = eventStore.GetEventsFromVersion(ctx, id, snapshot.Version)
	} else {
		events, err = eventStore.GetEvents(ctx, id)
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get events: %w", err)
	}

	hasData := snapshot != nil || len(events) > 0

	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			return zero, false, fmt.Errorf("failed to apply event: %w", err)
		}
	}

	return agg, hasData, nil
}

// Apply folds freshly appended events into an already loaded aggregate
func Apply(agg Aggregate, events []store.Event) error {
	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			return fmt.Errorf("failed to apply event: %w", err)
		}
	}
	return nil
}

// MaybeCreateSnapshot saves a snapshot when the append that took the aggregate
// from previousVersion crossed a threshold boundary
func MaybeCreateSnapshot(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	aggregateType string,
	previousVersion int,
) error {
	version := agg.GetVersion()
	if !store.SnapshotDue(previousVersion, version) {
		return nil
	}

	snapshot, err := store.NewSnapshot(agg.GetID(), aggregateType, version, agg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate state: %w", err)
	}

	if err := eventStore.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
