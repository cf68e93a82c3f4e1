package database

import (
	"encoding/json"
	"fmt"
)

const opAdd = "ADD"

// EventLogStore is an append-only view: every Add is permanent and visible,
// there is no delete. It mirrors the log's own G-Set semantics directly
// rather than folding PUT/DEL state.
type EventLogStore struct {
	*Store
}

// NewEventLogStore wraps store as an event-log view.
func NewEventLogStore(store *Store) *EventLogStore {
	return &EventLogStore{Store: store}
}

// Add appends value as a new event, returning its entry hash.
func (e *EventLogStore) Add(value interface{}) (string, error) {
	return e.apply(opAdd, "", value)
}

// Get retrieves a single event by its entry hash.
func (e *EventLogStore) Get(hash string) (json.RawMessage, error) {
	entry, ok := e.Log.Get(hash)
	if !ok {
		return nil, fmt.Errorf("database: no event with hash %q", hash)
	}
	var op Operation
	if err := json.Unmarshal(entry.Payload, &op); err != nil {
		return nil, fmt.Errorf("database: decode event: %w", err)
	}
	return op.Value, nil
}

// Range selects events whose "clock-time:hash" sort key falls within the
// given bounds; an empty bound is unset. at most limit events are
// returned (0 means unbounded), in ascending order.
func (e *EventLogStore) Range(gt, gte, lt, lte string, limit int) ([]json.RawMessage, error) {
	entries := e.Log.Values()

	results := make([]json.RawMessage, 0)
	for _, entry := range entries {
		if entry.Clock.Time == 0 && entry.Hash == "" {
			continue
		}
		sortKey := fmt.Sprintf("%020d:%s", entry.Clock.Time, entry.Hash)
		if gt != "" && sortKey <= gt {
			continue
		}
		if gte != "" && sortKey < gte {
			continue
		}
		if lt != "" && sortKey >= lt {
			continue
		}
		if lte != "" && sortKey > lte {
			continue
		}

		var op Operation
		if err := json.Unmarshal(entry.Payload, &op); err != nil {
			continue
		}
		results = append(results, op.Value)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// All returns every event, most recent first.
func (e *EventLogStore) All() ([]json.RawMessage, error) {
	ops := e.operations()
	results := make([]json.RawMessage, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		results = append(results, ops[i].Value)
	}
	return results, nil
}
