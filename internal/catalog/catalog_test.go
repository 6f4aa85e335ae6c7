package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/bufpool"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	f, err := page.Open(filepath.Join(dir, "system.db"), page.DefaultSize)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	w, err := wal.Open(filepath.Join(dir, "system.wal"), false)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	pool, err := bufpool.New(f, w, 4, 16)
	require.NoError(t, err)
	store, err := table.Open(f, pool, w, 1)
	require.NoError(t, err)
	return New(store)
}

func TestBootstrapCreatesSystemDatabase(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Bootstrap(1))

	dbs := c.ListDatabases()
	require.Contains(t, dbs, SystemDatabase)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Bootstrap(1))
	require.NoError(t, c.Bootstrap(1))
	require.Len(t, c.ListDatabases(), 1)
}

func TestCreateDatabaseRejectsDuplicate(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Bootstrap(1))

	_, err := c.CreateDatabase(1, "testdb")
	require.NoError(t, err)
	_, err = c.CreateDatabase(1, "testdb")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestDropDatabaseRefusesSystem(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Bootstrap(1))
	require.Error(t, c.DropDatabase(1, SystemDatabase))
}

func TestRegisterAndUnregisterTable(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Bootstrap(1))
	dbID, _ := c.DatabaseID(SystemDatabase)
	tableID := c.NextTableID()
	cols := []table.ColumnDef{{Name: "id", Type: "INT", PK: true}, {Name: "name", Type: "STRING"}}

	require.NoError(t, c.RegisterTable(1, dbID, tableID, "widgets", cols))
	require.NoError(t, c.UnregisterTable(1, tableID))
}

func TestGrantAndRevokePrivileges(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Bootstrap(1))
	_, err := c.CreateUser(1, "alice", "hash")
	require.NoError(t, err)

	require.NoError(t, c.Grant(1, GranteeUser, "alice", "testdb", "users", "SELECT", "root"))
	require.NoError(t, c.Grant(1, GranteeUser, "alice", "testdb", "users", "INSERT", "root"))
	require.NoError(t, c.Revoke(1, GranteeUser, "alice", "testdb", "users", "INSERT"))

	privs, err := c.Privileges(GranteeUser, "alice")
	require.NoError(t, err)
	require.Len(t, privs, 1)
	require.Equal(t, "SELECT", privs[0].Values[5].S)
}

func TestRehydrateRestoresDatabasesAndCounters(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "system.db")
	walPath := filepath.Join(dir, "system.wal")

	f, err := page.Open(dbPath, page.DefaultSize)
	require.NoError(t, err)
	w, err := wal.Open(walPath, false)
	require.NoError(t, err)
	pool, err := bufpool.New(f, w, 4, 16)
	require.NoError(t, err)
	store, err := table.Open(f, pool, w, 1)
	require.NoError(t, err)
	c := New(store)
	require.NoError(t, c.Bootstrap(1))
	_, err = c.CreateDatabase(1, "testdb")
	require.NoError(t, err)
	require.NoError(t, pool.FlushAll())
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	f2, err := page.Open(dbPath, page.DefaultSize)
	require.NoError(t, err)
	t.Cleanup(func() { f2.Close() })
	w2, err := wal.Open(walPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { w2.Close() })
	pool2, err := bufpool.New(f2, w2, 4, 16)
	require.NoError(t, err)
	store2, err := table.Open(f2, pool2, w2, 2)
	require.NoError(t, err)
	// Bootstrap against the reopened store is idempotent: every catalog
	// table's schema already persisted in the table directory, so this only
	// exercises Rehydrate's scan of the existing rows.
	c2 := New(store2)
	require.NoError(t, c2.Bootstrap(2))
	require.Contains(t, c2.ListDatabases(), "testdb")
	// system took database_id 1 and testdb 2; the rehydrated counter resumes
	// after them.
	id, err := c2.CreateDatabase(2, "otherdb")
	require.NoError(t, err)
	require.Equal(t, uint64(3), id)
}
