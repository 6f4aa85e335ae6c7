package exec

import (
	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/auth"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/values"
)

// ddlStrategy is the DDL family of spec.md §4.7: CREATE/DROP DATABASE,
// CREATE/DROP/ALTER TABLE, CREATE/DROP INDEX.
type ddlStrategy struct {
	catalog Catalog
	stores  Stores
	auth    Auth
}

func (d *ddlStrategy) CheckPermission(ctx *ExecutionContext, stmt ast.Statement) error {
	// CREATE/DROP DATABASE and CREATE/DROP INDEX are already gated admin-only
	// by the unified executor's step 2. CREATE/DROP/ALTER TABLE require the
	// ordinary per-table CREATE/DROP/ALTER privilege.
	switch s := stmt.(type) {
	case *ast.CreateTableStmt:
		return d.requirePrivilege(ctx, "CREATE", s.Name)
	case *ast.DropTableStmt:
		return d.requirePrivilege(ctx, "DROP", s.Name)
	case *ast.AlterTableStmt:
		return d.requirePrivilege(ctx, "ALTER", s.Table)
	}
	return nil
}

func (d *ddlStrategy) requirePrivilege(ctx *ExecutionContext, action, tbl string) error {
	if ctx.User == auth.Superuser {
		return nil
	}
	if !d.auth.CheckPermission(ctx.User, ctx.CurrentDatabase, tbl, action) {
		return errs.New("exec", errs.CodePermissionDenied, errs.LevelError, action+" privilege required", tbl)
	}
	return nil
}

func (d *ddlStrategy) Validate(ctx *ExecutionContext, stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.CreateDatabaseStmt:
		if s.Name == "" {
			return errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "database name required", "")
		}
		if _, ok := d.catalog.DatabaseID(s.Name); ok {
			return errs.New("exec", errs.CodeDatabaseExists, errs.LevelError, "database already exists", s.Name)
		}
	case *ast.DropDatabaseStmt:
		if _, ok := d.catalog.DatabaseID(s.Name); !ok && !s.IfExists {
			return errs.New("exec", errs.CodeDatabaseNotFound, errs.LevelError, "database not found", s.Name)
		}
	case *ast.CreateTableStmt:
		if len(s.Columns) == 0 {
			return errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "table requires at least one column", s.Name)
		}
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return err
		}
		if _, ok := store.GetMetadata(s.Name); ok {
			return errs.New("exec", errs.CodeTableExists, errs.LevelError, "table already exists", s.Name)
		}
	case *ast.DropTableStmt:
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return err
		}
		if _, ok := store.GetMetadata(s.Name); !ok && !s.IfExists {
			return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Name)
		}
	case *ast.AlterTableStmt:
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return err
		}
		if _, ok := store.GetMetadata(s.Table); !ok {
			return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
		}
	case *ast.CreateIndexStmt:
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return err
		}
		md, ok := store.GetMetadata(s.Table)
		if !ok {
			return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
		}
		if _, ok := md.Ordinal(s.Column); !ok {
			return errs.New("exec", errs.CodeColumnNotFound, errs.LevelError, "column not found", s.Column)
		}
	case *ast.DropIndexStmt:
		// The index manager keys by (table, column), not by a separate
		// index name, so s.Name is taken as the indexed column.
		idx := d.stores.Indexes(ctx.CurrentDatabase)
		if _, ok := idx.Get(s.Table, s.Name); !ok {
			return errs.New("exec", errs.CodeNotFound, errs.LevelError, "index not found", s.Name)
		}
	}
	return nil
}

func (d *ddlStrategy) Execute(ctx *ExecutionContext, stmt ast.Statement) (*ExecutionResult, *ResultSet, error) {
	txnID := currentTxnID(ctx)

	switch s := stmt.(type) {
	case *ast.CreateDatabaseStmt:
		if _, err := d.catalog.CreateDatabase(txnID, s.Name); err != nil {
			return nil, nil, err
		}
		if err := d.stores.OpenDatabase(s.Name); err != nil {
			return nil, nil, err
		}
		ctx.Stats.RowsAffected = 1
		return &ExecutionResult{Success: true, Message: "database created"}, nil, nil

	case *ast.DropDatabaseStmt:
		if _, ok := d.catalog.DatabaseID(s.Name); !ok {
			return &ExecutionResult{Success: true, Message: "database does not exist, skipped"}, nil, nil
		}
		if err := d.stores.CloseDatabase(s.Name); err != nil {
			return nil, nil, err
		}
		if err := d.catalog.DropDatabase(txnID, s.Name); err != nil {
			return nil, nil, err
		}
		ctx.Stats.RowsAffected = 1
		return &ExecutionResult{Success: true, Message: "database dropped"}, nil, nil

	case *ast.CreateTableStmt:
		dbID, _ := d.catalog.DatabaseID(ctx.CurrentDatabase)
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return nil, nil, err
		}
		cols := toColumnDefs(s.Columns)
		cons := toConstraints(s.Constraints)
		md, err := store.CreateTable(txnID, dbID, s.Name, cols, cons)
		if err != nil {
			return nil, nil, err
		}
		if err := d.catalog.RegisterTable(txnID, dbID, md.TableID, s.Name, cols); err != nil {
			return nil, nil, err
		}
		idx := d.stores.Indexes(ctx.CurrentDatabase)
		for _, c := range cols {
			if c.PK || c.Unique {
				if _, err := idx.Create(s.Name, c.Name, true); err != nil {
					return nil, nil, err
				}
			}
		}
		ctx.Stats.RowsAffected = 1
		return &ExecutionResult{Success: true, Message: "table created"}, nil, nil

	case *ast.DropTableStmt:
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return nil, nil, err
		}
		md, ok := store.GetMetadata(s.Name)
		if !ok {
			return &ExecutionResult{Success: true, Message: "table does not exist, skipped"}, nil, nil
		}
		if err := store.DropTable(txnID, s.Name); err != nil {
			return nil, nil, err
		}
		if err := d.catalog.UnregisterTable(txnID, md.TableID); err != nil {
			return nil, nil, err
		}
		d.stores.Indexes(ctx.CurrentDatabase).DropTable(s.Name)
		ctx.Stats.RowsAffected = 1
		return &ExecutionResult{Success: true, Message: "table dropped"}, nil, nil

	case *ast.AlterTableStmt:
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return nil, nil, err
		}
		switch s.Action {
		case ast.AlterAddColumn:
			if err := store.AlterAddColumn(txnID, s.Table, toColumnDefs([]ast.ColumnDef{*s.Column})[0]); err != nil {
				return nil, nil, err
			}
		case ast.AlterRenameTable:
			if err := store.RenameTable(txnID, s.Table, s.NewName); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "unsupported ALTER TABLE action", "")
		}
		ctx.Stats.RowsAffected = 1
		return &ExecutionResult{Success: true, Message: "table altered"}, nil, nil

	case *ast.CreateIndexStmt:
		store, err := d.stores.Store(ctx.CurrentDatabase)
		if err != nil {
			return nil, nil, err
		}
		md, _ := store.GetMetadata(s.Table)
		if _, err := d.catalog.RegisterIndex(txnID, md.TableID, s.Column, s.Unique); err != nil {
			return nil, nil, err
		}
		idx := d.stores.Indexes(ctx.CurrentDatabase)
		ix, err := idx.Create(s.Table, s.Column, s.Unique)
		if err != nil {
			return nil, nil, err
		}
		rows, err := store.ScanTable(s.Table)
		if err != nil {
			return nil, nil, err
		}
		ord, _ := md.Ordinal(s.Column)
		for _, r := range rows {
			if err := ix.Insert(r.Row.Values[ord], r.Handle); err != nil {
				return nil, nil, err
			}
		}
		ctx.Stats.RowsAffected = len(rows)
		return &ExecutionResult{Success: true, Message: "index created"}, nil, nil

	case *ast.DropIndexStmt:
		d.stores.Indexes(ctx.CurrentDatabase).Drop(s.Table, s.Name)
		return &ExecutionResult{Success: true, Message: "index dropped"}, nil, nil
	}

	return nil, nil, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "unsupported DDL statement", "")
}

func toColumnDefs(cols []ast.ColumnDef) []table.ColumnDef {
	out := make([]table.ColumnDef, len(cols))
	for i, c := range cols {
		out[i] = table.ColumnDef{
			Name:     c.Name,
			Type:     c.TypeName,
			Nullable: !c.NotNull,
			PK:       c.PrimaryKey,
			Unique:   c.Unique,
			AutoIncr: c.AutoIncrement,
			Default:  literalDefault(c.Default),
		}
	}
	return out
}

// literalDefault evaluates a DEFAULT clause, which spec.md §6 restricts to a
// bare literal (no expression evaluation needed at DDL time).
func literalDefault(e ast.Expr) *values.Value {
	if e == nil {
		return nil
	}
	switch lit := e.(type) {
	case *ast.NumericLiteral:
		v := lit.Value
		return &v
	case *ast.StringLiteral:
		v := values.Str(lit.Value)
		return &v
	}
	return nil
}

func toConstraints(cons []ast.TableConstraint) []table.Constraint {
	out := make([]table.Constraint, len(cons))
	for i, c := range cons {
		check := ""
		if c.Check != nil {
			check = exprKey(c.Check)
		}
		out[i] = table.Constraint{
			Kind:       string(c.Kind),
			Columns:    c.Columns,
			RefTable:   c.RefTable,
			RefColumns: c.RefColumns,
			CheckExpr:  check,
		}
	}
	return out
}

func currentTxnID(ctx *ExecutionContext) uint64 {
	if ctx.Txn != nil {
		return ctx.Txn.ID
	}
	return 0
}
