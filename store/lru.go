package store

import (
	lru "github.com/hashicorp/golang-lru"
)

// LRUStore is a bounded-memory content-addressed Store. Entries that fall
// out of the cache are gone for good — it is meant for caches in front of a
// durable backend (see ComposedStore), not primary storage.
type LRUStore struct {
	cache *lru.Cache
}

// NewLRUStore initializes an LRUStore holding at most size entries.
func NewLRUStore(size int) (*LRUStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: cache}, nil
}

// Put hashes data and stores it under the resulting content address,
// evicting the least recently used entry if the cache is full.
func (s *LRUStore) Put(data []byte) (string, error) {
	hash, err := Hash(data)
	if err != nil {
		return "", err
	}
	s.cache.Add(hash, data)
	return hash, nil
}

// Get retrieves previously stored bytes by hash.
func (s *LRUStore) Get(hash string) ([]byte, error) {
	value, ok := s.cache.Get(hash)
	if !ok {
		return nil, ErrNotFound
	}
	return value.([]byte), nil
}

// Clear purges the cache.
func (s *LRUStore) Clear() error {
	s.cache.Purge()
	return nil
}

// Close is a no-op for LRUStore.
func (s *LRUStore) Close() error {
	return nil
}
