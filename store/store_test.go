package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oplogdb/go-oplog/store"
)

// storeCases is shared across every Store implementation this package
// ships, so each backend is held to the same contract.
func storeCases(t *testing.T, s store.Store) {
	t.Helper()

	hash, err := s.Put([]byte("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = s.Get("not-a-real-hash")
	assert.ErrorIs(t, err, store.ErrNotFound)

	hash2, err := s.Put([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, hash, hash2, "identical content must hash identically")

	require.NoError(t, s.Clear())
	_, err = s.Get(hash)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	storeCases(t, store.NewMemoryStore())
}

func TestLRUStore(t *testing.T) {
	s, err := store.NewLRUStore(16)
	require.NoError(t, err)
	storeCases(t, s)
}

func TestLevelStore(t *testing.T) {
	s, err := store.NewLevelStore(t.TempDir())
	require.NoError(t, err)
	storeCases(t, s)
}

func TestHashIsStableAcrossCalls(t *testing.T) {
	h1, err := store.Hash([]byte("same bytes"))
	require.NoError(t, err)
	h2, err := store.Hash([]byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := store.Hash([]byte("different bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestComposedStoreRequiresAtLeastTwoBackends(t *testing.T) {
	_, err := store.NewComposedStore(store.NewMemoryStore())
	assert.Error(t, err)
}

func TestComposedStoreFansOutAndBackfills(t *testing.T) {
	fast := store.NewMemoryStore()
	slow := store.NewMemoryStore()

	composed, err := store.NewComposedStore(fast, slow)
	require.NoError(t, err)

	hash, err := composed.Put([]byte("fan-out"))
	require.NoError(t, err)

	gotFast, err := fast.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("fan-out"), gotFast)

	gotSlow, err := slow.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("fan-out"), gotSlow)

	// Simulate fast's cache having evicted the entry: Get should still
	// succeed via slow and repopulate fast.
	require.NoError(t, fast.Clear())
	got, err := composed.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("fan-out"), got)

	refilled, err := fast.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("fan-out"), refilled)
}

func TestComposedStoreClearClearsEveryBackend(t *testing.T) {
	a, b := store.NewMemoryStore(), store.NewMemoryStore()
	composed, err := store.NewComposedStore(a, b)
	require.NoError(t, err)

	hash, err := composed.Put([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, composed.Clear())

	_, err = a.Get(hash)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = b.Get(hash)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
