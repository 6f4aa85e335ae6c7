package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/errs"
)

func TestUseSwitchesCurrentDatabase(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	h.ctx.CurrentDatabase = ""

	_, _, err := h.exec.Execute(h.ctx, &ast.UseStmt{Database: "testdb"})
	require.NoError(t, err)
	require.Equal(t, "testdb", h.ctx.CurrentDatabase)
}

func TestUseUnknownDatabaseFails(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec.Execute(h.ctx, &ast.UseStmt{Database: "ghost"})
	require.Error(t, err)
	require.Equal(t, errs.CodeDatabaseNotFound, errs.CodeOf(err))
}

func TestShowDatabasesListsAll(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "alpha")
	h.ctx.CurrentDatabase = ""
	createTestDatabaseAs(t, h, "beta")

	_, rs, err := h.exec.Execute(h.ctx, &ast.ShowDatabasesStmt{})
	require.NoError(t, err)
	names := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		names = append(names, r.Values[0].S)
	}
	require.Contains(t, names, "alpha")
	require.Contains(t, names, "beta")
}

func createTestDatabaseAs(t *testing.T, h *harness, name string) {
	t.Helper()
	_, _, err := h.exec.Execute(h.ctx, &ast.CreateDatabaseStmt{Name: name})
	require.NoError(t, err)
}

func TestShowTablesListsTablesInCurrentDatabase(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	_, _, err := h.exec.Execute(h.ctx, &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{{Name: "id", TypeName: "INT", PrimaryKey: true}}})
	require.NoError(t, err)
	_, _, err = h.exec.Execute(h.ctx, &ast.CreateTableStmt{Name: "orders", Columns: []ast.ColumnDef{{Name: "id", TypeName: "INT", PrimaryKey: true}}})
	require.NoError(t, err)

	_, rs, err := h.exec.Execute(h.ctx, &ast.ShowTablesStmt{})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2)
	require.Equal(t, "orders", rs.Rows[0].Values[0].S)
	require.Equal(t, "users", rs.Rows[1].Values[0].S)
}
