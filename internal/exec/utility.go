package exec

import (
	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/values"
)

// utilityStrategy is the Utility family of spec.md §4.7: USE, SHOW
// DATABASES, SHOW TABLES.
type utilityStrategy struct {
	catalog Catalog
	stores  Stores
}

func (u *utilityStrategy) CheckPermission(ctx *ExecutionContext, stmt ast.Statement) error {
	return nil
}

func (u *utilityStrategy) Validate(ctx *ExecutionContext, stmt ast.Statement) error {
	if s, ok := stmt.(*ast.UseStmt); ok {
		if _, ok := u.catalog.DatabaseID(s.Database); !ok {
			return errs.New("exec", errs.CodeDatabaseNotFound, errs.LevelError, "database not found", s.Database)
		}
	}
	return nil
}

func (u *utilityStrategy) Execute(ctx *ExecutionContext, stmt ast.Statement) (*ExecutionResult, *ResultSet, error) {
	switch s := stmt.(type) {
	case *ast.UseStmt:
		ctx.CurrentDatabase = s.Database
		return &ExecutionResult{Success: true, Message: "database changed"}, nil, nil

	case *ast.ShowDatabasesStmt:
		rows := make([]values.Row, 0)
		for _, name := range u.catalog.ListDatabases() {
			rows = append(rows, values.Row{Values: []values.Value{values.Str(name)}})
		}
		rs := &ResultSet{
			Rows:    rows,
			Columns: []ColumnMetadata{{Name: "database", Type: "STRING"}},
		}
		ctx.Stats.RowsScanned = len(rows)
		return &ExecutionResult{Success: true, Message: "ok"}, rs, nil

	case *ast.ShowTablesStmt:
		store, err := u.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return nil, nil, err
		}
		rows := make([]values.Row, 0)
		for _, name := range store.TableNames() {
			rows = append(rows, values.Row{Values: []values.Value{values.Str(name)}})
		}
		rs := &ResultSet{
			Rows:    rows,
			Columns: []ColumnMetadata{{Name: "table", Type: "STRING"}},
		}
		ctx.Stats.RowsScanned = len(rows)
		return &ExecutionResult{Success: true, Message: "ok"}, rs, nil
	}

	return nil, nil, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "unsupported utility statement", "")
}
