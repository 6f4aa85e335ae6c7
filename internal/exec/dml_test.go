package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/errs"
)

func setupUsersTable(t *testing.T, h *harness) {
	t.Helper()
	createTestDatabase(t, h, "testdb")
	create := &ast.CreateTableStmt{
		Name: "users",
		Columns: []ast.ColumnDef{
			{Name: "id", TypeName: "INT", PrimaryKey: true},
			{Name: "name", TypeName: "STRING", NotNull: true},
			{Name: "age", TypeName: "INT"},
		},
	}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)
}

func insertUser(t *testing.T, h *harness, id int64, name string, age int64) {
	t.Helper()
	_, _, err := h.exec.Execute(h.ctx, &ast.InsertStmt{
		Table: "users",
		Rows: [][]ast.Expr{{
			&ast.NumericLiteral{Value: intLit(id)},
			&ast.StringLiteral{Value: name},
			&ast.NumericLiteral{Value: intLit(age)},
		}},
	})
	require.NoError(t, err)
}

func TestInsertThenSelectAll(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)

	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: nil}},
		From:    "users",
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2)
}

func TestInsertRejectsNotNullViolation(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)

	_, _, err := h.exec.Execute(h.ctx, &ast.InsertStmt{
		Table:   "users",
		Columns: []string{"id", "age"},
		Rows:    [][]ast.Expr{{&ast.NumericLiteral{Value: intLit(2)}, &ast.NumericLiteral{Value: intLit(1)}}},
	})
	require.Error(t, err)
	require.Equal(t, errs.CodeNotNullViolation, errs.CodeOf(err))
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)

	_, _, err := h.exec.Execute(h.ctx, &ast.InsertStmt{
		Table: "users",
		Rows: [][]ast.Expr{{
			&ast.NumericLiteral{Value: intLit(1)},
			&ast.StringLiteral{Value: "dup"},
			&ast.NumericLiteral{Value: intLit(1)},
		}},
	})
	require.Error(t, err)
	require.Equal(t, errs.CodePrimaryKeyViolation, errs.CodeOf(err))
}

func TestSelectWithWhereFilters(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)
	insertUser(t, h, 3, "cid", 40)

	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "name"}}},
		From:    "users",
		Where: &ast.BinaryExpr{
			Op:    ast.OpGt,
			Left:  &ast.Identifier{Name: "age"},
			Right: &ast.NumericLiteral{Value: intLit(27)},
		},
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2)
}

func TestUpdateAppliesAssignmentsAndMaintainsUniqueIndex(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)

	res, _, err := h.exec.Execute(h.ctx, &ast.UpdateStmt{
		Table:       "users",
		Assignments: []ast.Assignment{{Column: "age", Value: &ast.NumericLiteral{Value: intLit(31)}}},
		Where:       &ast.BinaryExpr{Op: ast.OpEq, Left: &ast.Identifier{Name: "id"}, Right: &ast.NumericLiteral{Value: intLit(1)}},
	})
	require.NoError(t, err)
	require.Equal(t, "1 row(s) updated", res.Message)

	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "age"}}},
		From:    "users",
		Where:   &ast.BinaryExpr{Op: ast.OpEq, Left: &ast.Identifier{Name: "id"}, Right: &ast.NumericLiteral{Value: intLit(1)}},
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, int64(31), rs.Rows[0].Values[0].I)
}

func TestUpdateRejectsCollidingUniqueValue(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)

	_, _, err := h.exec.Execute(h.ctx, &ast.UpdateStmt{
		Table:       "users",
		Assignments: []ast.Assignment{{Column: "id", Value: &ast.NumericLiteral{Value: intLit(1)}}},
		Where:       &ast.BinaryExpr{Op: ast.OpEq, Left: &ast.Identifier{Name: "id"}, Right: &ast.NumericLiteral{Value: intLit(2)}},
	})
	require.Error(t, err)
	require.Equal(t, errs.CodePrimaryKeyViolation, errs.CodeOf(err))
}

func TestDeleteRemovesMatchingRows(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)

	res, _, err := h.exec.Execute(h.ctx, &ast.DeleteStmt{
		Table: "users",
		Where: &ast.BinaryExpr{Op: ast.OpEq, Left: &ast.Identifier{Name: "id"}, Right: &ast.NumericLiteral{Value: intLit(2)}},
	})
	require.NoError(t, err)
	require.Equal(t, "1 row(s) deleted", res.Message)

	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{Columns: []ast.SelectItem{{Expr: nil}}, From: "users"})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
}

func setupOrdersTable(t *testing.T, h *harness) {
	t.Helper()
	create := &ast.CreateTableStmt{
		Name: "orders",
		Columns: []ast.ColumnDef{
			{Name: "id", TypeName: "INT", PrimaryKey: true},
			{Name: "user_id", TypeName: "INT"},
			{Name: "amount", TypeName: "INT"},
		},
	}
	_, _, err := h.exec.Execute(h.ctx, create)
	require.NoError(t, err)
}

func insertOrder(t *testing.T, h *harness, id, userID, amount int64) {
	t.Helper()
	_, _, err := h.exec.Execute(h.ctx, &ast.InsertStmt{
		Table: "orders",
		Rows: [][]ast.Expr{{
			&ast.NumericLiteral{Value: intLit(id)},
			&ast.NumericLiteral{Value: intLit(userID)},
			&ast.NumericLiteral{Value: intLit(amount)},
		}},
	})
	require.NoError(t, err)
}

func TestSelectWithJoin(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	setupOrdersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)
	insertOrder(t, h, 1, 1, 100)
	insertOrder(t, h, 2, 2, 50)
	insertOrder(t, h, 3, 1, 75)

	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{
			{Expr: &ast.Identifier{Table: "users", Name: "name"}},
			{Expr: &ast.Identifier{Table: "orders", Name: "amount"}},
		},
		From: "users",
		Join: &ast.JoinClause{
			Table: "orders",
			On: &ast.BinaryExpr{
				Op:    ast.OpEq,
				Left:  &ast.Identifier{Table: "users", Name: "id"},
				Right: &ast.Identifier{Table: "orders", Name: "user_id"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 3)
}

func TestSelectGroupByWithHavingAndAggregates(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	setupOrdersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)
	insertOrder(t, h, 1, 1, 100)
	insertOrder(t, h, 2, 1, 50)
	insertOrder(t, h, 3, 2, 10)

	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{
			{Expr: &ast.Identifier{Name: "user_id"}},
			{Expr: &ast.FunctionExpr{Name: "SUM", Args: []ast.Expr{&ast.Identifier{Name: "amount"}}}, Alias: "total"},
		},
		From:     "orders",
		GroupBy:  []string{"user_id"},
		Having:   &ast.BinaryExpr{Op: ast.OpGt, Left: &ast.FunctionExpr{Name: "SUM", Args: []ast.Expr{&ast.Identifier{Name: "amount"}}}, Right: &ast.NumericLiteral{Value: intLit(60)}},
		OrderBy:  []ast.OrderItem{{Column: "user_id"}},
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, int64(1), rs.Rows[0].Values[0].I)
	require.Equal(t, float64(150), rs.Rows[0].Values[1].D)
}

func TestSelectDistinctDedupesRows(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 30)
	insertUser(t, h, 3, "cid", 40)

	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Distinct: true,
		Columns:  []ast.SelectItem{{Expr: &ast.Identifier{Name: "age"}}},
		From:     "users",
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2)
}

func TestSelectOrderByLimitOffset(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)
	insertUser(t, h, 3, "cid", 40)

	lim := int64(1)
	off := int64(1)
	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "name"}}},
		From:    "users",
		OrderBy: []ast.OrderItem{{Column: "name"}},
		Limit:   &lim,
		Offset:  &off,
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "bea", rs.Rows[0].Values[0].S)
}

func TestUnionIntersectExcept(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)
	insertUser(t, h, 3, "cid", 30)

	left := &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "age"}}},
		From:    "users",
		Where:   &ast.BinaryExpr{Op: ast.OpEq, Left: &ast.Identifier{Name: "age"}, Right: &ast.NumericLiteral{Value: intLit(30)}},
	}
	right := &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "age"}}},
		From:    "users",
		Where:   &ast.BinaryExpr{Op: ast.OpEq, Left: &ast.Identifier{Name: "age"}, Right: &ast.NumericLiteral{Value: intLit(25)}},
	}

	_, rs, err := h.exec.Execute(h.ctx, &ast.SetOpStmt{Op: ast.SetOpUnion, Left: left, Right: right})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2) // 30 deduped plus 25

	_, rs, err = h.exec.Execute(h.ctx, &ast.SetOpStmt{Op: ast.SetOpIntersect, Left: left, Right: right})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 0)

	_, rs, err = h.exec.Execute(h.ctx, &ast.SetOpStmt{Op: ast.SetOpExcept, Left: left, Right: right})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
}

func TestExistsSubquery(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	setupOrdersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)
	insertOrder(t, h, 1, 1, 100)

	sub := &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "id"}}},
		From:    "orders",
	}
	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "name"}}},
		From:    "users",
		Where:   &ast.ExistsExpr{Subquery: sub},
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2) // non-correlated: EXISTS is true for every outer row since orders is non-empty
}

func TestInSubquery(t *testing.T) {
	h := newHarness(t)
	setupUsersTable(t, h)
	setupOrdersTable(t, h)
	insertUser(t, h, 1, "ada", 30)
	insertUser(t, h, 2, "bea", 25)
	insertOrder(t, h, 1, 1, 100)

	sub := &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "user_id"}}},
		From:    "orders",
	}
	_, rs, err := h.exec.Execute(h.ctx, &ast.SelectStmt{
		Columns: []ast.SelectItem{{Expr: &ast.Identifier{Name: "name"}}},
		From:    "users",
		Where:   &ast.InExpr{Target: &ast.Identifier{Name: "id"}, Subquery: sub},
	})
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	require.Equal(t, "ada", rs.Rows[0].Values[0].S)
}
