package exec

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridgedb/internal/auth"
	"github.com/ridgedb/ridgedb/internal/catalog"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/bufpool"
	"github.com/ridgedb/ridgedb/internal/storage/index"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/storage/txn"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
	"github.com/ridgedb/ridgedb/internal/values"
)

func intLit(i int64) values.Value  { return values.Int(i) }
func strLit(s string) values.Value { return values.Str(s) }

// testStores is a minimal Stores implementation wiring one real
// table.Store/index.Manager pair per opened database, the same bundle
// internal/engine's stores type opens. Every database lives under its own
// subdirectory of a shared temp dir, mirroring spec.md §6's on-disk layout.
type testStores struct {
	dir     string
	stores  map[string]*table.Store
	indexes map[string]*index.Manager
	closers []io.Closer
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	s := &testStores{
		dir:     t.TempDir(),
		stores:  map[string]*table.Store{},
		indexes: map[string]*index.Manager{},
	}
	t.Cleanup(func() {
		for _, c := range s.closers {
			c.Close()
		}
	})
	return s
}

func (s *testStores) OpenDatabase(db string) error {
	if _, ok := s.stores[db]; ok {
		return nil
	}
	dbDir := filepath.Join(s.dir, db)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return err
	}
	f, err := page.Open(filepath.Join(dbDir, "data.db"), page.DefaultSize)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, f)
	w, err := wal.Open(filepath.Join(dbDir, "wal.log"), false)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, w)
	pool, err := bufpool.New(f, w, 4, 16)
	if err != nil {
		return err
	}
	store, err := table.Open(f, pool, w, 1)
	if err != nil {
		return err
	}
	s.stores[db] = store
	s.indexes[db] = index.NewManager()
	return nil
}

func (s *testStores) CloseDatabase(db string) error {
	delete(s.stores, db)
	delete(s.indexes, db)
	return nil
}

func (s *testStores) Store(db string) (*table.Store, error) {
	st, ok := s.stores[db]
	if !ok {
		return nil, errs.New("exec", errs.CodeDatabaseNotFound, errs.LevelError, "database not open", db)
	}
	return st, nil
}

func (s *testStores) Indexes(db string) *index.Manager {
	return s.indexes[db]
}

// harness bundles a fully wired Executor plus its root-user context and the
// raw stores, for tests that need to peek at storage directly.
type harness struct {
	exec   *Executor
	ctx    *ExecutionContext
	stores *testStores
	cat    *catalog.Catalog
	auth   *auth.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	sysF, err := page.Open(filepath.Join(dir, "system.db"), page.DefaultSize)
	require.NoError(t, err)
	t.Cleanup(func() { sysF.Close() })
	sysW, err := wal.Open(filepath.Join(dir, "system.wal"), false)
	require.NoError(t, err)
	t.Cleanup(func() { sysW.Close() })
	sysPool, err := bufpool.New(sysF, sysW, 4, 16)
	require.NoError(t, err)
	sysStore, err := table.Open(sysF, sysPool, sysW, 1)
	require.NoError(t, err)

	cat := catalog.New(sysStore)
	require.NoError(t, cat.Bootstrap(1))
	am := auth.New(cat)
	require.NoError(t, am.Rehydrate())

	txnW, err := wal.Open(filepath.Join(dir, "txn.wal"), false)
	require.NoError(t, err)
	t.Cleanup(func() { txnW.Close() })
	txns, err := txn.New(txnW, 8, 50*time.Millisecond)
	require.NoError(t, err)

	stores := newTestStores(t)
	executor := New(cat, am, stores, txns)

	ctx := New(context.Background(), auth.Superuser, "", txn.ReadCommitted)
	return &harness{exec: executor, ctx: ctx, stores: stores, cat: cat, auth: am}
}
