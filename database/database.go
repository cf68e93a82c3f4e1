// Package database layers three views — key-value, document, and event-log
// — over an oplog.Log. Each view encodes its operations as JSON and stores
// them as the log's entry payloads; reading a view means replaying every
// entry currently in the log's G-Set and folding the operations back into a
// shape, rather than keeping a separate index.
package database

import (
	"encoding/json"
	"fmt"

	"oplogdb/go-oplog/oplog"
)

// Operation is the JSON shape every view's writes share: an opcode, an
// optional key, and an opaque value.
type Operation struct {
	Op    string          `json:"op"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Store is the shared base the three views embed: it owns the log and
// knows how to append and replay Operations.
type Store struct {
	Log *oplog.Log
}

// NewStore wraps an already-constructed log.
func NewStore(log *oplog.Log) *Store {
	return &Store{Log: log}
}

// apply marshals value (if non-nil), wraps it in an Operation, and appends
// it to the log, returning the new entry's hash.
func (s *Store) apply(op, key string, value interface{}) (string, error) {
	var raw json.RawMessage
	if value != nil {
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("database: marshal value: %w", err)
		}
		raw = encoded
	}

	payload, err := json.Marshal(Operation{Op: op, Key: key, Value: raw})
	if err != nil {
		return "", fmt.Errorf("database: marshal operation: %w", err)
	}

	entry, err := s.Log.Append(payload)
	if err != nil {
		return "", fmt.Errorf("database: append: %w", err)
	}
	return entry.Hash, nil
}

// operations decodes every entry currently in the log as an Operation, in
// the log's CompareEntries order, skipping anything that doesn't decode (a
// foreign payload written by another view sharing the same log).
func (s *Store) operations() []Operation {
	entries := s.Log.Values()
	ops := make([]Operation, 0, len(entries))
	for _, entry := range entries {
		var op Operation
		if err := json.Unmarshal(entry.Payload, &op); err != nil {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}
