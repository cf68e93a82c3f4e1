package database

import (
	"encoding/json"
	"errors"
)

const (
	opPut = "PUT"
	opDel = "DEL"
)

// KeyValueStore is a last-writer-wins key-value view over a log: replaying
// PUT/DEL operations in log order and keeping only each key's latest one.
type KeyValueStore struct {
	*Store
}

// NewKeyValue wraps an already-constructed Store as a key-value view.
func NewKeyValue(store *Store) *KeyValueStore {
	return &KeyValueStore{Store: store}
}

// Put stores value under key, returning the new entry's hash.
func (kv *KeyValueStore) Put(key string, value interface{}) (string, error) {
	if key == "" {
		return "", errors.New("database: key cannot be empty")
	}
	return kv.apply(opPut, key, value)
}

// Delete records key's removal. Because the log is a G-Set, the PUT entry
// still physically exists; Delete only makes Get/All stop surfacing it.
func (kv *KeyValueStore) Delete(key string) (string, error) {
	if key == "" {
		return "", errors.New("database: key cannot be empty")
	}
	return kv.apply(opDel, key, nil)
}

// Get returns the most recently put value for key, or nil if it was never
// put or was deleted after its last put.
func (kv *KeyValueStore) Get(key string) (json.RawMessage, error) {
	ops := kv.operations()
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Key != key {
			continue
		}
		if ops[i].Op == opDel {
			return nil, nil
		}
		return ops[i].Value, nil
	}
	return nil, nil
}

// All folds every operation into the current key -> value mapping.
func (kv *KeyValueStore) All() map[string]json.RawMessage {
	result := make(map[string]json.RawMessage)
	for _, op := range kv.operations() {
		switch op.Op {
		case opPut:
			result[op.Key] = op.Value
		case opDel:
			delete(result, op.Key)
		}
	}
	return result
}
