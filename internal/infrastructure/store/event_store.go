package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// EventStore keeps events in memory and publishes them after commit
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	snapshots map[string]*Snapshot
	publisher Publisher
}

func NewEventStore(publisher Publisher) *EventStore {
	return &EventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]*Snapshot),
		publisher: publisher,
	}
}

func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, newEvents ...NewEvent) ([]Event, error) {
	es.mu.Lock()
	current := len(es.events[aggregateID])
	if current != expectedVersion {
		es.mu.Unlock()
		return nil, fmt.Errorf("%w: %s at version %d, expected %d", ErrConcurrencyConflict, aggregateID, current, expectedVersion)
	}
	events, err := buildEvents(aggregateID, aggregateType, expectedVersion, newEvents)
	if err != nil {
		es.mu.Unlock()
		return nil, err
	}
	es.events[aggregateID] = append(es.events[aggregateID], events...)
	es.mu.Unlock()

	publishAll(ctx, es.publisher, events)
	return events, nil
}

func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...), nil
}

func (es *EventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.events[aggregateID] {
		if e.Version > fromVersion {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetAllEvents returns every event ordered by time
func (es *EventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var all []Event
	for _, events := range es.events {
		all = append(all, events...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	s := *snapshot
	es.snapshots[snapshot.AggregateID] = &s
	return nil
}

func (es *EventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	s, ok := es.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func buildEvents(aggregateID, aggregateType string, expectedVersion int, newEvents []NewEvent) ([]Event, error) {
	now := time.Now().UTC()
	events := make([]Event, 0, len(newEvents))
	for i, ne := range newEvents {
		data, err := json.Marshal(ne.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", ne.Type, err)
		}
		events = append(events, Event{
			ID:            uuid.New().String(),
			AggregateID:   aggregateID,
			AggregateType: aggregateType,
			EventType:     ne.Type,
			Data:          data,
			Timestamp:     now,
			Version:       expectedVersion + i + 1,
		})
	}
	return events, nil
}

// publishAll runs after the write has committed, so failures are logged rather than returned.
func publishAll(ctx context.Context, publisher Publisher, events []Event) {
	if publisher == nil {
		return
	}
	logger := log.With().Str("component", "event_store").Logger()
	for _, e := range events {
		if err := publisher.Publish(ctx, e.AggregateID, e); err != nil {
			logger.Error().Err(err).
				Str("aggregate_id", e.AggregateID).
				Str("event_type", e.EventType).
				Int("version", e.Version).
				Msg("failed to publish event")
		}
	}
}
