package database

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DocumentStore is a KeyValueStore specialized for JSON documents, indexed
// by one of the document's own fields rather than a caller-supplied key.
type DocumentStore struct {
	*KeyValueStore
	indexBy string
}

// NewDocumentStore wraps store as a document view indexed by indexBy
// ("_id" if empty).
func NewDocumentStore(store *Store, indexBy string) *DocumentStore {
	if indexBy == "" {
		indexBy = "_id"
	}
	return &DocumentStore{KeyValueStore: NewKeyValue(store), indexBy: indexBy}
}

// Put stores doc, keyed by doc[indexBy].
func (d *DocumentStore) Put(doc map[string]interface{}) (string, error) {
	key, ok := doc[d.indexBy].(string)
	if !ok || key == "" {
		return "", fmt.Errorf("database: document missing string field %q", d.indexBy)
	}
	return d.KeyValueStore.Put(key, doc)
}

// Get retrieves a document by its index field value.
func (d *DocumentStore) Get(id string) (map[string]interface{}, error) {
	raw, err := d.KeyValueStore.Get(id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("database: decode document: %w", err)
	}
	return doc, nil
}

// Delete removes a document by its index field value.
func (d *DocumentStore) Delete(id string) (string, error) {
	if id == "" {
		return "", errors.New("database: id cannot be empty")
	}
	return d.KeyValueStore.Delete(id)
}

// Query returns every live document for which filter returns true.
func (d *DocumentStore) Query(filter func(doc map[string]interface{}) bool) ([]map[string]interface{}, error) {
	all, err := d.All()
	if err != nil {
		return nil, err
	}
	results := make([]map[string]interface{}, 0, len(all))
	for _, doc := range all {
		if filter(doc) {
			results = append(results, doc)
		}
	}
	return results, nil
}

// All returns every live document, keyed by its index field value.
func (d *DocumentStore) All() (map[string]map[string]interface{}, error) {
	raw := d.KeyValueStore.All()
	results := make(map[string]map[string]interface{}, len(raw))
	for key, value := range raw {
		var doc map[string]interface{}
		if err := json.Unmarshal(value, &doc); err != nil {
			return nil, fmt.Errorf("database: decode document %q: %w", key, err)
		}
		results[key] = doc
	}
	return results, nil
}
