package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/auth"
	"github.com/ridgedb/ridgedb/internal/errs"
)

func TestCreateUserThenGrantAllowsAccess(t *testing.T) {
	h := newHarness(t)
	createTestDatabase(t, h, "testdb")
	create := &ast.CreateTableStmt{Name: "users", Columns: []ast.ColumnDef{{Name: "id", TypeName: "INT", PrimaryKey: true}}}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)

	_, _, err = h.exec.Execute(h.ctx, &ast.CreateUserStmt{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	require.False(t, h.auth.CheckPermission("alice", "testdb", "users", "SELECT"))

	_, _, err = h.exec.Execute(h.ctx, &ast.GrantStmt{
		Privileges: []string{"SELECT"},
		On:         ast.GrantTarget{Database: "testdb", Table: "users"},
		Grantee:    "alice",
	})
	require.NoError(t, err)
	require.True(t, h.auth.CheckPermission("alice", "testdb", "users", "SELECT"))

	_, _, err = h.exec.Execute(h.ctx, &ast.RevokeStmt{
		Privileges: []string{"SELECT"},
		On:         ast.GrantTarget{Database: "testdb", Table: "users"},
		Grantee:    "alice",
	})
	require.NoError(t, err)
	require.False(t, h.auth.CheckPermission("alice", "testdb", "users", "SELECT"))
}

func TestGrantWildcardTargetGrantsEveryTable(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec.Execute(h.ctx, &ast.CreateUserStmt{Username: "bob", Password: "pw"})
	require.NoError(t, err)

	_, _, err = h.exec.Execute(h.ctx, &ast.GrantStmt{
		Privileges: []string{"ALL"},
		On:         ast.GrantTarget{},
		Grantee:    "bob",
	})
	require.NoError(t, err)
	require.True(t, h.auth.CheckPermission("bob", "anydb", "anytable", "ALL"))
}

func TestDropUserCannotRemoveSuperuser(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec.Execute(h.ctx, &ast.DropUserStmt{Username: auth.Superuser})
	require.Error(t, err)
	require.Equal(t, errs.CodePermissionDenied, errs.CodeOf(err))
}

func TestDropUserIfExistsSkipsMissingUser(t *testing.T) {
	h := newHarness(t)
	res, _, err := h.exec.Execute(h.ctx, &ast.DropUserStmt{Username: "ghost", IfExists: true})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestDCLRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.CreateUser(1, "alice", "pw")
	require.NoError(t, err)
	h.ctx.User = "alice"

	_, _, err = h.exec.Execute(h.ctx, &ast.CreateUserStmt{Username: "mallory", Password: "pw"})
	require.Error(t, err)
	require.Equal(t, errs.CodePermissionDenied, errs.CodeOf(err))
}
