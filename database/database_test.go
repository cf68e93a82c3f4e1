package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"oplogdb/go-oplog/database"
	"oplogdb/go-oplog/identity"
	"oplogdb/go-oplog/oplog"
	"oplogdb/go-oplog/store"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	idn, err := identity.New()
	require.NoError(t, err)

	log, err := oplog.NewLog(store.NewMemoryStore(), oplog.LogOptions{
		ID:          "db-1",
		OwnKey:      idn,
		AllowedKeys: oplog.NewAllowedKeys(oplog.WildcardKey),
	})
	require.NoError(t, err)

	return database.NewStore(log)
}
