package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridgedb/internal/catalog"
	"github.com/ridgedb/ridgedb/internal/storage/bufpool"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

func newTestManager(t *testing.T) *Manager {
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
	cat := catalog.New(store)
	require.NoError(t, cat.Bootstrap(1))
	m := New(cat)
	require.NoError(t, m.Rehydrate())
	return m
}

func TestSuperuserAlwaysAllowed(t *testing.T) {
	m := newTestManager(t)
	require.True(t, m.CheckPermission(Superuser, "testdb", "users", "DROP"))
}

func TestUnknownUserDenied(t *testing.T) {
	m := newTestManager(t)
	require.False(t, m.CheckPermission("nobody", "testdb", "users", "SELECT"))
}

func TestGrantThenCheckThenRevoke(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser(1, "alice", "pw")
	require.NoError(t, err)

	require.False(t, m.CheckPermission("alice", "testdb", "users", "SELECT"))
	require.NoError(t, m.Grant(1, catalog.GranteeUser, "alice", "testdb", "users", "SELECT", Superuser))
	require.True(t, m.CheckPermission("alice", "testdb", "users", "SELECT"))
	require.False(t, m.CheckPermission("alice", "testdb", "users", "INSERT"))

	require.NoError(t, m.Revoke(1, catalog.GranteeUser, "alice", "testdb", "users", "SELECT"))
	require.False(t, m.CheckPermission("alice", "testdb", "users", "SELECT"))
}

func TestWildcardDatabaseAndTableMatch(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser(1, "bob", "pw")
	require.NoError(t, err)
	require.NoError(t, m.Grant(1, catalog.GranteeUser, "bob", catalog.Wildcard, catalog.Wildcard, "ALL", Superuser))
	require.True(t, m.CheckPermission("bob", "anydb", "anytable", "DELETE"))
}

func TestAuthenticateChecksPasswordHash(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser(1, "carol", "correct-horse")
	require.NoError(t, err)

	ok, err := m.Authenticate("carol", "correct-horse")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Authenticate("carol", "wrong")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.Authenticate("nobody", "whatever")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAlterPasswordChangesAuthentication(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser(1, "dave", "old-pw")
	require.NoError(t, err)
	require.NoError(t, m.AlterPassword(1, "dave", "new-pw"))

	ok, _ := m.Authenticate("dave", "old-pw")
	require.False(t, ok)
	ok, _ = m.Authenticate("dave", "new-pw")
	require.True(t, ok)
}

func TestRehydrateRestoresCacheFromPrivileges(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser(1, "erin", "pw")
	require.NoError(t, err)
	require.NoError(t, m.Grant(1, catalog.GranteeUser, "erin", "testdb", "users", "INSERT", Superuser))

	require.NoError(t, m.Rehydrate())
	require.True(t, m.CheckPermission("erin", "testdb", "users", "INSERT"))
}
