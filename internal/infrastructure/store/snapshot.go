package store

import (
	"encoding/json"
	"time"
)

// SnapshotThreshold is how many events an aggregate accumulates between snapshots.
// Orders rarely cross it; one that collects many failed attempts does.
const SnapshotThreshold = 10

// Snapshot is an aggregate's folded state as of Version
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SnapshotDue reports whether moving from previous to current crossed a
// threshold boundary. An append of several events still yields one snapshot.
func SnapshotDue(previous, current int) bool {
	return current/SnapshotThreshold > previous/SnapshotThreshold
}

// NewSnapshot encodes state as the snapshot of aggregateID at version.
func NewSnapshot(aggregateID, aggregateType string, version int, state any, at time.Time) (*Snapshot, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		State:         raw,
		CreatedAt:     at,
	}, nil
}
