package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelStore is a persistent on-disk content-addressed Store backed by
// LevelDB, for a replica that must survive process restarts.
type LevelStore struct {
	db *leveldb.DB
}

// NewLevelStore opens (or creates) a LevelDB database at path.
func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db}, nil
}

// Put hashes data and stores it under the resulting content address.
func (s *LevelStore) Put(data []byte) (string, error) {
	hash, err := Hash(data)
	if err != nil {
		return "", err
	}
	if err := s.db.Put([]byte(hash), data, nil); err != nil {
		return "", err
	}
	return hash, nil
}

// Get retrieves previously stored bytes by hash.
func (s *LevelStore) Get(hash string) ([]byte, error) {
	data, err := s.db.Get([]byte(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Clear drops every key in the database.
func (s *LevelStore) Clear() error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

// Close releases the underlying LevelDB handle.
func (s *LevelStore) Close() error {
	return s.db.Close()
}
