package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing
type MockEventStore struct {
	mu        sync.RWMutex
	events    map[string][]store.Event
	snapshots map[string]*store.Snapshot

	// For tracking calls in tests
	AppendCalls    []AppendCall
	AppendErr      error
	GetEventsErr   error
	AppendCallback func(ctx context.Context, aggregateID string, expectedVersion int, events []store.NewEvent) error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID     string
	AggregateType   string
	ExpectedVersion int
	EventTypes      []string
	Data            []any
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		snapshots:   make(map[string]*store.Snapshot),
		AppendCalls: make([]AppendCall, 0),
	}
}

// Append records the call and stores the events, honouring expectedVersion
func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, newEvents ...store.NewEvent) ([]store.Event, error) {
	m.mu.Lock()
	call := AppendCall{
		AggregateID:     aggregateID,
		AggregateType:   aggregateType,
		ExpectedVersion: expectedVersion,
	}
	for _, ne := range newEvents {
		call.EventTypes = append(call.EventTypes, ne.Type)
		call.Data = append(call.Data, ne.Data)
	}
	m.AppendCalls = append(m.AppendCalls, call)
	callback := m.AppendCallback
	appendErr := m.AppendErr
	m.mu.Unlock()

	// The callback runs unlocked so it may append on its own to simulate a racing writer.
	if callback != nil {
		if err := callback(ctx, aggregateID, expectedVersion, newEvents); err != nil {
			return nil, err
		}
	}
	if appendErr != nil {
		return nil, appendErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := len(m.events[aggregateID])
	if current != expectedVersion {
		return nil, fmt.Errorf("%w: %s at version %d, expected %d", store.ErrConcurrencyConflict, aggregateID, current, expectedVersion)
	}

	events := make([]store.Event, 0, len(newEvents))
	for i, ne := range newEvents {
		event, err := newEvent(aggregateID, aggregateType, ne.Type, ne.Data, expectedVersion+i+1)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	m.events[aggregateID] = append(m.events[aggregateID], events...)
	return events, nil
}

func (m *MockEventStore) GetEvents(ctx context.Context, aggregateID string) ([]store.Event, error) {
	return m.GetEventsFromVersion(ctx, aggregateID, 0)
}

func (m *MockEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	var out []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockEventStore) GetAllEvents(ctx context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []store.Event
	for _, events := range m.events {
		all = append(all, events...)
	}
	return all, nil
}

func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *snapshot
	m.snapshots[snapshot.AggregateID] = &s
	return nil
}

func (m *MockEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[aggregateID], nil
}

// Snapshots returns how many snapshots were saved
func (m *MockEventStore) Snapshots() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// Calls returns a copy of the recorded Append calls
func (m *MockEventStore) Calls() []AppendCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AppendCall(nil), m.AppendCalls...)
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.snapshots = make(map[string]*store.Snapshot)
	m.AppendCalls = make([]AppendCall, 0)
	m.AppendErr = nil
	m.GetEventsErr = nil
	m.AppendCallback = nil
}

// AddEvent adds a single event for testing without recording a call
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, err := newEvent(aggregateID, aggregateType, eventType, data, len(m.events[aggregateID])+1)
	if err != nil {
		return err
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	return nil
}

func newEvent(aggregateID, aggregateType, eventType string, data any, version int) (store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return store.Event{}, err
	}
	return store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       version,
	}, nil
}
