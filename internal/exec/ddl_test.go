package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/errs"
)

func createTestDatabase(t *testing.T, h *harness, name string) {
	t.Helper()
	_, _, err := h.exec.Execute(h.ctx, &ast.CreateDatabaseStmt{Name: name})
	require.NoError(t, err)
	h.ctx.CurrentDatabase = name
}

func TestCreateAndDropDatabase(t *testing.T) {
	h := newHarness(t)
	res, _, err := h.exec.Execute(h.ctx, &ast.CreateDatabaseStmt{Name: "testdb"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, h.cat.ListDatabases(), "testdb")

	res, _, err = h.exec.Execute(h.ctx, &ast.DropDatabaseStmt{Name: "testdb"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotContains(t, h.cat.ListDatabases(), "testdb")
}

func TestCreateDatabaseRejectsDuplicate(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	_, _, err := h.exec.Execute(h.ctx, &ast.CreateDatabaseStmt{Name: "testdb"})
	require.Error(t, err)
	require.Equal(t, errs.CodeDatabaseExists, errs.CodeOf(err))
}

func TestCreateTableRegistersIndexesForPKAndUnique(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")

	stmt := &ast.CreateTableStmt{
		Name: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", TypeName: "INT", PrimaryKey: true},
			{Name: "email", TypeName: "STRING", Unique: true},
			{Name: "name", TypeName: "STRING", NotNull: true},
		},
	}
	res, _, err := h.exec.Execute(h.ctx, stmt)
	require.NoError(t, err)
	require.True(t, res.Success)

	store, err := h.stores.Store("testdb")
	require.NoError(t, err)
	md, ok := store.GetMetadata("users")
	require.True(t, ok)
	require.Len(t, md.Columns, 3)

	idx := h.stores.Indexes("testdb")
	_, ok = idx.Get("users", "id")
	require.True(t, ok, "expected PK column to be index-backed")
	_, ok = idx.Get("users", "email")
	require.True(t, ok, "expected UNIQUE column to be index-backed")
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	stmt := &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{{Name: "id", TypeName: "INT", PrimaryKey: true}}}
	_, _, err := h.exec.Execute(h.ctx, stmt)
	require.NoError(t, err)

	_, _, err = h.exec.Execute(h.ctx, stmt)
	require.Error(t, err)
	require.Equal(t, errs.CodeTableExists, errs.CodeOf(err))
}

func TestDropTableRemovesMetadataAndIndexes(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	create := &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{{Name: "id", TypeName: "INT", PrimaryKey: true}}}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)

	_, _, err = h.exec.Execute(h.ctx, &ast.DropTableStmt{Name: "users"})
	require.NoError(t, err)

	store, err := h.stores.Store("testdb")
	require.NoError(t, err)
	_, ok := store.GetMetadata("users")
	require.False(t, ok)
	_, ok = h.stores.Indexes("testdb").Get("users", "id")
	require.False(t, ok)
}

func TestDropTableNotFoundErrorsWithoutIfExists(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	_, _, err := h.exec.Execute(h.ctx, &ast.DropTableStmt{Name: "ghost"})
	require.Error(t, err)
	require.Equal(t, errs.CodeTableNotFound, errs.CodeOf(err))
}

func TestAlterTableAddColumnBackfillsDefault(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	create := &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{{Name: "id", TypeName: "INT", PrimaryKey: true}}}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)

	_, _, err = h.exec.Execute(h.ctx, &ast.InsertStmt{
		Table: "users",
		Rows:  [][]ast.Expr{{&ast.NumericLiteral{Value: intLit(1)}}},
	})
	require.NoError(t, err)

	alter := &ast.AlterTableStmt{
		Table:  "users",
		Action: ast.AlterAddColumn,
		Column: &ast.ColumnDef{Name: "active", TypeName: "INT", Default: &ast.NumericLiteral{Value: intLit(1)}},
	}
	_, _, err = h.exec.Execute(h.ctx, alter)
	require.NoError(t, err)

	store, err := h.stores.Store("testdb")
	require.NoError(t, err)
	md, ok := store.GetMetadata("users")
	require.True(t, ok)
	require.Len(t, md.Columns, 2)

	rows, err := store.ScanTable("users")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Row.Values[1].I)
}

func TestAlterTableRenameTable(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	create := &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{{Name: "id", TypeName: "INT", PrimaryKey: true}}}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)

	_, _, err = h.exec.Execute(h.ctx, &ast.AlterTableStmt{Table: "users", Action: ast.AlterRenameTable, NewName: "accounts"})
	require.NoError(t, err)

	store, err := h.stores.Store("testdb")
	require.NoError(t, err)
	_, ok := store.GetMetadata("accounts")
	require.True(t, ok)
	_, ok = store.GetMetadata("users")
	require.False(t, ok)
}

func TestCreateIndexBackfillsExistingRows(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	create := &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{
		{Name: "id", TypeName: "INT", PrimaryKey: true},
		{Name: "score", TypeName: "INT"},
	}}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		_, _, err = h.exec.Execute(h.ctx, &ast.InsertStmt{
			Table: "users",
			Rows:  [][]ast.Expr{{&ast.NumericLiteral{Value: intLit(i)}, &ast.NumericLiteral{Value: intLit(i * 10)}}},
		})
		require.NoError(t, err)
	}

	res, _, err := h.exec.Execute(h.ctx, &ast.CreateIndexStmt{Name: "idx_score", Table: "users", Column: "score"})
	require.NoError(t, err)
	require.True(t, res.Success)

	ix, ok := h.stores.Indexes("testdb").Get("users", "score")
	require.True(t, ok)
	require.Len(t, ix.All(), 3)
}

func TestDropIndexTreatsNameAsColumn(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	create := &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{
		{Name: "id", TypeName: "INT", PrimaryKey: true},
		{Name: "score", TypeName: "INT"},
	}}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)
	_, _, err = h.exec.Execute(h.ctx, &ast.CreateIndexStmt{Name: "idx_score", Table: "users", Column: "score"})
	require.NoError(t, err)

	_, _, err = h.exec.Execute(h.ctx, &ast.DropIndexStmt{Name: "score", Table: "users"})
	require.NoError(t, err)

	_, ok := h.stores.Indexes("testdb").Get("users", "score")
	require.False(t, ok)
}

func TestNonSuperuserCannotCreateDatabase(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.CreateUser(1, "alice", "pw")
	require.NoError(t, err)
	h.ctx.User = "alice"

	_, _, err = h.exec.Execute(h.ctx, &ast.CreateDatabaseStmt{Name: "testdb"})
	require.Error(t, err)
	require.Equal(t, errs.CodePermissionDenied, errs.CodeOf(err))
}
