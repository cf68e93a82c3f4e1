package logio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oplogdb/go-oplog/identity"
	"oplogdb/go-oplog/logio"
	"oplogdb/go-oplog/oplog"
	"oplogdb/go-oplog/store"
)

func buildChain(t *testing.T, n int) (*oplog.Log, store.Store, []oplog.Entry) {
	t.Helper()
	idn, err := identity.New()
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	log, err := oplog.NewLog(mem, oplog.LogOptions{
		ID:          "chain",
		OwnKey:      idn,
		AllowedKeys: oplog.NewAllowedKeys(oplog.WildcardKey),
	})
	require.NoError(t, err)

	entries := make([]oplog.Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := log.Append([]byte{byte(i)})
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return log, mem, entries
}

func TestFromEntryHashReconstructsFullChain(t *testing.T) {
	log, mem, entries := buildChain(t, 5)
	head := entries[len(entries)-1]

	var seen []string
	result, err := logio.FromEntryHash(mem, log.ID, head.Hash, logio.NoLimit, nil, func(hash string, _ oplog.Entry, _ *oplog.Entry, _ int) {
		seen = append(seen, hash)
	})
	require.NoError(t, err)

	assert.Equal(t, log.ID, result.ID)
	assert.Len(t, result.Values, 5)
	assert.Len(t, result.Heads, 1)
	assert.Equal(t, head.Hash, result.Heads[0].Hash)
	assert.Len(t, seen, 5) // the seeded head plus the four entries reached by traversal
}

func TestFromEntryHashRespectsLengthBound(t *testing.T) {
	_, mem, entries := buildChain(t, 5)
	head := entries[len(entries)-1]

	result, err := logio.FromEntryHash(mem, "chain", head.Hash, 3, nil, nil)
	require.NoError(t, err)
	assert.Len(t, result.Values, 3)
}

func TestFromEntryHashRespectsExclude(t *testing.T) {
	_, mem, entries := buildChain(t, 5)
	head := entries[len(entries)-1]

	exclude := map[string]bool{entries[1].Hash: true}
	result, err := logio.FromEntryHash(mem, "chain", head.Hash, logio.NoLimit, exclude, nil)
	require.NoError(t, err)

	for _, e := range result.Values {
		assert.NotEqual(t, entries[1].Hash, e.Hash)
	}
}

func TestFromMultihashRoundTripsRoot(t *testing.T) {
	log, mem, _ := buildChain(t, 4)

	rootHash, err := logio.PutRoot(mem, log.ToJSON())
	require.NoError(t, err)

	result, err := logio.FromMultihash(mem, rootHash, logio.NoLimit, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, log.ID, result.ID)
	assert.Len(t, result.Values, 4)

	rebuilt, err := oplog.NewLog(mem, oplog.LogOptions{
		ID:      result.ID,
		Entries: result.Values,
		Clock:   &result.Clock,
	})
	require.NoError(t, err)
	assert.Equal(t, log.Length(), rebuilt.Length())
	assert.ElementsMatch(t, log.Heads(), rebuilt.Heads())
}

func TestExpandDeepensExistingLog(t *testing.T) {
	fullLog, mem, entries := buildChain(t, 6)

	// Simulate a replica that only has the head plus a partial reconstruction.
	head := entries[len(entries)-1]
	partial, err := oplog.NewLog(mem, oplog.LogOptions{
		ID:      fullLog.ID,
		Entries: []oplog.Entry{head},
	})
	require.NoError(t, err)
	require.Equal(t, 1, partial.Length())

	expanded, err := logio.Expand(mem, partial, 2, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, expanded.Length(), 3)
}
