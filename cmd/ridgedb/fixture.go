package main

import (
	"encoding/json"
	"fmt"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/values"
)

// fixture is the free-form JSON shape `ridgedb exec` accepts in place of a
// SQL string (spec.md §6: no parser in this core, the AST is the contract a
// caller builds directly). It covers the statement kinds a demonstration or
// integration test plausibly issues by hand; anything requiring a join,
// subquery, or set operation is built through internal/ast directly by an
// embedding caller instead of through this CLI.
type fixture struct {
	Kind string `json:"kind"`

	// CREATE_DATABASE, DROP_DATABASE, USE
	Name     string `json:"name,omitempty"`
	IfExists bool   `json:"if_exists,omitempty"`

	// CREATE_TABLE
	Columns []fixtureColumn `json:"columns,omitempty"`

	// CREATE_INDEX, DROP_INDEX
	Table  string `json:"table,omitempty"`
	Column string `json:"column,omitempty"`
	Unique bool   `json:"unique,omitempty"`

	// DROP_TABLE
	// (reuses Name)

	// INSERT
	InsertColumns []string       `json:"insert_columns,omitempty"`
	Rows          [][]fixtureLit `json:"rows,omitempty"`

	// SELECT
	Select []fixtureItem   `json:"select,omitempty"`
	From   string          `json:"from,omitempty"`
	Where  *fixtureCompare `json:"where,omitempty"`

	// UPDATE
	Set []fixtureAssignment `json:"set,omitempty"`

	// CREATE_USER, DROP_USER
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// GRANT/REVOKE
	Privileges []string `json:"privileges,omitempty"`
	OnDatabase string   `json:"on_database,omitempty"`
	OnTable    string   `json:"on_table,omitempty"`
	Grantee    string   `json:"grantee,omitempty"`

	// BEGIN, SET_TRANSACTION
	Isolation string `json:"isolation,omitempty"`

	// ROLLBACK (to savepoint), SAVEPOINT
	Savepoint string `json:"savepoint,omitempty"`
}

type fixtureColumn struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	NotNull       bool   `json:"not_null,omitempty"`
	PrimaryKey    bool   `json:"primary_key,omitempty"`
	Unique        bool   `json:"unique,omitempty"`
	AutoIncrement bool   `json:"auto_increment,omitempty"`
}

type fixtureLit struct {
	I *int64   `json:"i,omitempty"`
	F *float64 `json:"f,omitempty"`
	S *string  `json:"s,omitempty"`
}

func (l fixtureLit) expr() ast.Expr {
	switch {
	case l.S != nil:
		return &ast.StringLiteral{Value: *l.S}
	case l.I != nil:
		return &ast.NumericLiteral{Value: values.Int(*l.I)}
	case l.F != nil:
		return &ast.NumericLiteral{Value: values.Double(*l.F)}
	default:
		return &ast.StringLiteral{Value: ""}
	}
}

type fixtureItem struct {
	Column string `json:"column,omitempty"` // empty together with Star means `*`
	Star   bool   `json:"star,omitempty"`
	Alias  string `json:"alias,omitempty"`
}

type fixtureCompare struct {
	Column string     `json:"column"`
	Op     string     `json:"op"`
	Value  fixtureLit `json:"value"`
}

func (c fixtureCompare) expr() ast.Expr {
	return &ast.BinaryExpr{
		Op:    ast.BinaryOp(c.Op),
		Left:  &ast.Identifier{Name: c.Column},
		Right: c.Value.expr(),
	}
}

type fixtureAssignment struct {
	Column string     `json:"column"`
	Value  fixtureLit `json:"value"`
}

// decodeFixture parses raw JSON into the ast.Statement it names. Unknown or
// malformed kinds return an error rather than a zero-value statement, so a
// typo in a fixture file fails loudly instead of silently no-op'ing.
func decodeFixture(raw []byte) (ast.Statement, error) {
	var f fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	switch ast.StatementKind(f.Kind) {
	case ast.KindCreateDatabase:
		return &ast.CreateDatabaseStmt{Name: f.Name}, nil
	case ast.KindDropDatabase:
		return &ast.DropDatabaseStmt{Name: f.Name, IfExists: f.IfExists}, nil
	case ast.KindUse:
		return &ast.UseStmt{Database: f.Name}, nil
	case ast.KindShowDatabases:
		return &ast.ShowDatabasesStmt{}, nil
	case ast.KindShowTables:
		return &ast.ShowTablesStmt{}, nil

	case ast.KindCreateTable:
		cols := make([]ast.ColumnDef, len(f.Columns))
		for i, c := range f.Columns {
			cols[i] = ast.ColumnDef{
				Name:          c.Name,
				TypeName:      c.Type,
				NotNull:       c.NotNull,
				PrimaryKey:    c.PrimaryKey,
				Unique:        c.Unique,
				AutoIncrement: c.AutoIncrement,
			}
		}
		return &ast.CreateTableStmt{Name: f.Name, Columns: cols}, nil
	case ast.KindDropTable:
		return &ast.DropTableStmt{Name: f.Name, IfExists: f.IfExists}, nil

	case ast.KindCreateIndex:
		return &ast.CreateIndexStmt{Name: f.Name, Table: f.Table, Column: f.Column, Unique: f.Unique}, nil
	case ast.KindDropIndex:
		return &ast.DropIndexStmt{Name: f.Name, Table: f.Table}, nil

	case ast.KindInsert:
		rows := make([][]ast.Expr, len(f.Rows))
		for i, row := range f.Rows {
			exprs := make([]ast.Expr, len(row))
			for j, lit := range row {
				exprs[j] = lit.expr()
			}
			rows[i] = exprs
		}
		return &ast.InsertStmt{Table: f.Table, Columns: f.InsertColumns, Rows: rows}, nil

	case ast.KindSelect:
		items := make([]ast.SelectItem, len(f.Select))
		for i, it := range f.Select {
			if it.Star {
				items[i] = ast.SelectItem{Alias: it.Alias}
				continue
			}
			items[i] = ast.SelectItem{Expr: &ast.Identifier{Name: it.Column}, Alias: it.Alias}
		}
		var where ast.Expr
		if f.Where != nil {
			where = f.Where.expr()
		}
		return &ast.SelectStmt{Columns: items, From: f.From, Where: where}, nil

	case ast.KindUpdate:
		assigns := make([]ast.Assignment, len(f.Set))
		for i, a := range f.Set {
			assigns[i] = ast.Assignment{Column: a.Column, Value: a.Value.expr()}
		}
		var where ast.Expr
		if f.Where != nil {
			where = f.Where.expr()
		}
		return &ast.UpdateStmt{Table: f.Table, Assignments: assigns, Where: where}, nil

	case ast.KindDelete:
		var where ast.Expr
		if f.Where != nil {
			where = f.Where.expr()
		}
		return &ast.DeleteStmt{Table: f.Table, Where: where}, nil

	case ast.KindCreateUser:
		return &ast.CreateUserStmt{Username: f.Username, Password: f.Password}, nil
	case ast.KindDropUser:
		return &ast.DropUserStmt{Username: f.Username, IfExists: f.IfExists}, nil
	case ast.KindGrant:
		return &ast.GrantStmt{Privileges: f.Privileges, On: ast.GrantTarget{Database: f.OnDatabase, Table: f.OnTable}, Grantee: f.Grantee}, nil
	case ast.KindRevoke:
		return &ast.RevokeStmt{Privileges: f.Privileges, On: ast.GrantTarget{Database: f.OnDatabase, Table: f.OnTable}, Grantee: f.Grantee}, nil

	case ast.KindBegin:
		return &ast.BeginStmt{Isolation: f.Isolation}, nil
	case ast.KindCommit:
		return &ast.CommitStmt{}, nil
	case ast.KindRollback:
		return &ast.RollbackStmt{To: f.Savepoint}, nil
	case ast.KindSavepoint:
		return &ast.SavepointStmt{Name: f.Savepoint}, nil
	case ast.KindSetTransaction:
		return &ast.SetTransactionStmt{Isolation: f.Isolation}, nil

	default:
		return nil, fmt.Errorf("unsupported fixture kind %q", f.Kind)
	}
}
