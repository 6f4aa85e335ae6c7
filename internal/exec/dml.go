package exec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/auth"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/planner"
	"github.com/ridgedb/ridgedb/internal/storage/index"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/values"
)

// dmlStrategy is the DML family of spec.md §4.7 (SELECT/INSERT/UPDATE/
// DELETE), generalized to the JOIN/aggregate/set-operation/subquery
// supplements SPEC_FULL.md §4 adds.
type dmlStrategy struct {
	stores Stores
	auth   Auth
	txns   Txns
	rules  *planner.RuleSet
}

func dmlTable(stmt ast.Statement) (string, string) {
	switch s := stmt.(type) {
	case *ast.SelectStmt:
		return s.From, "SELECT"
	case *ast.InsertStmt:
		return s.Table, "INSERT"
	case *ast.UpdateStmt:
		return s.Table, "UPDATE"
	case *ast.DeleteStmt:
		return s.Table, "DELETE"
	}
	return "", ""
}

func (d *dmlStrategy) CheckPermission(ctx *ExecutionContext, stmt ast.Statement) error {
	if ctx.User == auth.Superuser {
		return nil
	}
	if so, ok := stmt.(*ast.SetOpStmt); ok {
		if err := d.CheckPermission(ctx, so.Left); err != nil {
			return err
		}
		return d.CheckPermission(ctx, so.Right)
	}
	tbl, action := dmlTable(stmt)
	if tbl == "" {
		return nil
	}
	if !d.auth.CheckPermission(ctx.User, ctx.CurrentDatabase, tbl, action) {
		return errs.New("exec", errs.CodePermissionDenied, errs.LevelError, action+" privilege required", tbl)
	}
	if sel, ok := stmt.(*ast.SelectStmt); ok && sel.Join != nil {
		if !d.auth.CheckPermission(ctx.User, ctx.CurrentDatabase, sel.Join.Table, "SELECT") {
			return errs.New("exec", errs.CodePermissionDenied, errs.LevelError, "SELECT privilege required", sel.Join.Table)
		}
	}
	return nil
}

func (d *dmlStrategy) Validate(ctx *ExecutionContext, stmt ast.Statement) error {
	store, err := d.stores.Store(ctx.CurrentDatabase)
	if err != nil {
		return err
	}
	switch s := stmt.(type) {
	case *ast.SetOpStmt:
		if err := d.Validate(ctx, s.Left); err != nil {
			return err
		}
		return d.Validate(ctx, s.Right)
	case *ast.SelectStmt:
		if _, ok := store.GetMetadata(s.From); !ok {
			return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.From)
		}
		if s.Join != nil {
			if _, ok := store.GetMetadata(s.Join.Table); !ok {
				return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Join.Table)
			}
		}
	case *ast.InsertStmt:
		if _, ok := store.GetMetadata(s.Table); !ok {
			return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
		}
	case *ast.UpdateStmt:
		if _, ok := store.GetMetadata(s.Table); !ok {
			return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
		}
	case *ast.DeleteStmt:
		if _, ok := store.GetMetadata(s.Table); !ok {
			return errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
		}
	}
	return nil
}

func (d *dmlStrategy) Execute(ctx *ExecutionContext, stmt ast.Statement) (*ExecutionResult, *ResultSet, error) {
	switch s := stmt.(type) {
	case *ast.SetOpStmt:
		rs, err := d.executeSetOp(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		return &ExecutionResult{Success: true, Message: "ok"}, rs, nil
	case *ast.SelectStmt:
		rs, err := d.executeSelect(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		return &ExecutionResult{Success: true, Message: "ok"}, rs, nil
	case *ast.InsertStmt:
		return d.executeInsert(ctx, s)
	case *ast.UpdateStmt:
		return d.executeUpdate(ctx, s)
	case *ast.DeleteStmt:
		return d.executeDelete(ctx, s)
	}
	return nil, nil, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "unsupported DML statement", "")
}

// -- INSERT --------------------------------------------------------------

func (d *dmlStrategy) executeInsert(ctx *ExecutionContext, s *ast.InsertStmt) (*ExecutionResult, *ResultSet, error) {
	store, err := d.stores.Store(ctx.CurrentDatabase)
	if err != nil {
		return nil, nil, err
	}
	md, ok := store.GetMetadata(s.Table)
	if !ok {
		return nil, nil, errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
	}
	idxMgr := d.stores.Indexes(ctx.CurrentDatabase)

	if err := d.txns.LockForWrite(ctx.Txn, tableScanKey(s.Table)); err != nil {
		return nil, nil, err
	}

	targetCols := s.Columns
	if targetCols == nil {
		targetCols = make([]string, len(md.Columns))
		for i, c := range md.Columns {
			targetCols[i] = c.Name
		}
	}

	inserted := 0
	for _, rowExprs := range s.Rows {
		if len(rowExprs) != len(targetCols) {
			return nil, nil, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "value count does not match column count", s.Table)
		}
		row := values.Row{Values: make([]values.Value, len(md.Columns))}
		set := make([]bool, len(md.Columns))
		for i, colName := range targetCols {
			ord, ok := md.Ordinal(colName)
			if !ok {
				return nil, nil, errs.New("exec", errs.CodeColumnNotFound, errs.LevelError, "column not found", colName)
			}
			v, err := d.evalScalar(ctx, nil, rowExprs[i])
			if err != nil {
				return nil, nil, err
			}
			row.Values[ord] = v
			set[ord] = true
		}
		for i, c := range md.Columns {
			if set[i] {
				continue
			}
			if c.Default != nil {
				row.Values[i] = *c.Default
			} else {
				row.Values[i] = values.Null()
			}
		}
		if err := validateRow(md, row); err != nil {
			return nil, nil, err
		}
		if err := checkUniqueConstraints(idxMgr, md, row, nil); err != nil {
			return nil, nil, err
		}
		if err := checkForeignKeys(store, md, row); err != nil {
			return nil, nil, err
		}
		handle, err := store.InsertRecord(ctx.Txn.ID, s.Table, row)
		if err != nil {
			return nil, nil, err
		}
		for _, col := range idxMgr.ColumnsIndexed(s.Table) {
			ix, ok := idxMgr.Get(s.Table, col)
			if !ok {
				continue
			}
			ord, _ := md.Ordinal(col)
			if err := ix.Insert(row.Values[ord], handle); err != nil {
				return nil, nil, err
			}
		}
		inserted++
	}
	ctx.Stats.RowsAffected = inserted
	return &ExecutionResult{Success: true, Message: fmt.Sprintf("%d row(s) inserted", inserted)}, nil, nil
}

func validateRow(md *table.Metadata, row values.Row) error {
	for i, c := range md.Columns {
		if !c.Nullable && row.Values[i].IsNull() {
			return errs.New("exec", errs.CodeNotNullViolation, errs.LevelError, "NOT NULL violation", c.Name)
		}
	}
	return nil
}

// checkUniqueConstraints checks every unique column set's backing index for
// a colliding key, excluding skipHandle (the row being updated, so it
// doesn't collide with its own prior value).
func checkUniqueConstraints(idxMgr *index.Manager, md *table.Metadata, row values.Row, skipHandle *values.RowHandle) error {
	pkCols := md.PrimaryKeyColumns()
	for _, cols := range md.UniqueColumnSets() {
		if len(cols) != 1 {
			continue // composite unique sets have no backing index and are not checked
		}
		ix, ok := idxMgr.Get(md.Name, cols[0])
		if !ok {
			continue
		}
		ord, ok := md.Ordinal(cols[0])
		if !ok {
			continue
		}
		for _, entry := range ix.Search(row.Values[ord]) {
			if skipHandle != nil && entry.Handle == *skipHandle {
				continue
			}
			if len(pkCols) == 1 && pkCols[0] == cols[0] {
				return errs.New("exec", errs.CodePrimaryKeyViolation, errs.LevelError, "primary key violation", cols[0])
			}
			return errs.New("exec", errs.CodeUniqueViolation, errs.LevelError, "unique constraint violated", cols[0])
		}
	}
	return nil
}

// checkForeignKeys verifies every single-column FOREIGN KEY constraint on md
// against store: a non-null referencing value must already exist in its
// RefTable/RefColumns (spec.md §6 FOREIGN KEY(...) REFERENCES t(...), §7's
// 4xxx family naming FOREIGN_KEY alongside NOT NULL/UNIQUE/PRIMARY KEY).
// Composite (multi-column) foreign keys are not checked, the same scope
// limit checkUniqueConstraints applies to composite UNIQUE sets.
func checkForeignKeys(store *table.Store, md *table.Metadata, row values.Row) error {
	for _, c := range md.Constraints {
		if c.Kind != "FOREIGN_KEY" || len(c.Columns) != 1 {
			continue
		}
		ord, ok := md.Ordinal(c.Columns[0])
		if !ok {
			continue
		}
		v := row.Values[ord]
		if v.IsNull() {
			continue
		}
		refMD, ok := store.GetMetadata(c.RefTable)
		if !ok {
			continue
		}
		refOrd, ok := refMD.Ordinal(c.RefColumns[0])
		if !ok {
			continue
		}
		refRows, err := store.ScanTable(c.RefTable)
		if err != nil {
			return err
		}
		found := false
		for _, rr := range refRows {
			if values.Compare(rr.Row.Values[refOrd], values.OpEq, v) {
				found = true
				break
			}
		}
		if !found {
			return errs.New("exec", errs.CodeForeignKeyViolation, errs.LevelError, "foreign key violation", c.Columns[0])
		}
	}
	return nil
}

// checkForeignKeyReferents enforces the RESTRICT side of a FOREIGN KEY: a
// row cannot be deleted from tableName while some other table's FK column
// still references it. It scans every other table in the database for a
// single-column FK naming tableName as RefTable, spec.md §6/§7 giving
// FOREIGN KEY its own 4xxx code without naming a CASCADE behavior, so the
// conservative default (reject) applies.
func checkForeignKeyReferents(store *table.Store, tableName string, md *table.Metadata, row values.Row) error {
	for _, childName := range store.TableNames() {
		childMD, ok := store.GetMetadata(childName)
		if !ok {
			continue
		}
		for _, c := range childMD.Constraints {
			if c.Kind != "FOREIGN_KEY" || len(c.Columns) != 1 || c.RefTable != tableName {
				continue
			}
			refOrd, ok := md.Ordinal(c.RefColumns[0])
			if !ok {
				continue
			}
			childOrd, ok := childMD.Ordinal(c.Columns[0])
			if !ok {
				continue
			}
			parentValue := row.Values[refOrd]
			childRows, err := store.ScanTable(childName)
			if err != nil {
				return err
			}
			for _, cr := range childRows {
				if values.Compare(cr.Row.Values[childOrd], values.OpEq, parentValue) {
					return errs.New("exec", errs.CodeForeignKeyViolation, errs.LevelError, "foreign key violation: row is referenced by "+childName, c.Columns[0])
				}
			}
		}
	}
	return nil
}

// -- UPDATE ----------------------------------------------------------------

func (d *dmlStrategy) executeUpdate(ctx *ExecutionContext, s *ast.UpdateStmt) (*ExecutionResult, *ResultSet, error) {
	store, err := d.stores.Store(ctx.CurrentDatabase)
	if err != nil {
		return nil, nil, err
	}
	md, ok := store.GetMetadata(s.Table)
	if !ok {
		return nil, nil, errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
	}
	idxMgr := d.stores.Indexes(ctx.CurrentDatabase)

	scanned, err := store.ScanTable(s.Table)
	if err != nil {
		return nil, nil, err
	}
	ctx.Stats.RowsScanned = len(scanned)

	affected := 0
	for _, sc := range scanned {
		bs := []binding{{alias: s.Table, md: md, row: sc.Row}}
		if s.Where != nil {
			ok, err := d.evalBool(ctx, bs, s.Where)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
		}
		if err := d.txns.LockForWrite(ctx.Txn, rowLockKey(md, s.Table, sc.Row, sc.Handle)); err != nil {
			return nil, nil, err
		}

		newRow := values.Row{Values: append([]values.Value(nil), sc.Row.Values...)}
		for _, a := range s.Assignments {
			ord, ok := md.Ordinal(a.Column)
			if !ok {
				return nil, nil, errs.New("exec", errs.CodeColumnNotFound, errs.LevelError, "column not found", a.Column)
			}
			v, err := d.evalScalar(ctx, bs, a.Value)
			if err != nil {
				return nil, nil, err
			}
			newRow.Values[ord] = v
		}
		if err := validateRow(md, newRow); err != nil {
			return nil, nil, err
		}
		if err := checkUniqueConstraints(idxMgr, md, newRow, &sc.Handle); err != nil {
			return nil, nil, err
		}
		if err := checkForeignKeys(store, md, newRow); err != nil {
			return nil, nil, err
		}

		newHandle, err := store.UpdateRecord(ctx.Txn.ID, s.Table, sc.Handle, newRow)
		if err != nil {
			return nil, nil, err
		}
		for _, col := range idxMgr.ColumnsIndexed(s.Table) {
			ix, ok := idxMgr.Get(s.Table, col)
			if !ok {
				continue
			}
			ord, _ := md.Ordinal(col)
			_ = ix.Delete(sc.Row.Values[ord], sc.Handle)
			if err := ix.Insert(newRow.Values[ord], newHandle); err != nil {
				return nil, nil, err
			}
		}
		affected++
	}
	ctx.Stats.RowsAffected = affected
	return &ExecutionResult{Success: true, Message: fmt.Sprintf("%d row(s) updated", affected)}, nil, nil
}

// -- DELETE ----------------------------------------------------------------

func (d *dmlStrategy) executeDelete(ctx *ExecutionContext, s *ast.DeleteStmt) (*ExecutionResult, *ResultSet, error) {
	store, err := d.stores.Store(ctx.CurrentDatabase)
	if err != nil {
		return nil, nil, err
	}
	md, ok := store.GetMetadata(s.Table)
	if !ok {
		return nil, nil, errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", s.Table)
	}
	idxMgr := d.stores.Indexes(ctx.CurrentDatabase)

	scanned, err := store.ScanTable(s.Table)
	if err != nil {
		return nil, nil, err
	}
	ctx.Stats.RowsScanned = len(scanned)

	affected := 0
	for _, sc := range scanned {
		bs := []binding{{alias: s.Table, md: md, row: sc.Row}}
		if s.Where != nil {
			ok, err := d.evalBool(ctx, bs, s.Where)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
		}
		if err := d.txns.LockForWrite(ctx.Txn, rowLockKey(md, s.Table, sc.Row, sc.Handle)); err != nil {
			return nil, nil, err
		}
		if err := checkForeignKeyReferents(store, s.Table, md, sc.Row); err != nil {
			return nil, nil, err
		}
		if err := store.DeleteRecord(ctx.Txn.ID, s.Table, sc.Handle); err != nil {
			return nil, nil, err
		}
		for _, col := range idxMgr.ColumnsIndexed(s.Table) {
			ix, ok := idxMgr.Get(s.Table, col)
			if !ok {
				continue
			}
			ord, _ := md.Ordinal(col)
			_ = ix.Delete(sc.Row.Values[ord], sc.Handle)
		}
		affected++
	}
	ctx.Stats.RowsAffected = affected
	return &ExecutionResult{Success: true, Message: fmt.Sprintf("%d row(s) deleted", affected)}, nil, nil
}

// rowLockKey locks by the row's primary key when one exists, else falls back
// to the whole-table key (spec.md §4.3's SERIALIZABLE simplification).
func rowLockKey(md *table.Metadata, tableName string, row values.Row, handle values.RowHandle) string {
	pkCols := md.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return tableScanKey(tableName)
	}
	ord, ok := md.Ordinal(pkCols[0])
	if !ok {
		return tableScanKey(tableName)
	}
	return lockKey(tableName, row.Values[ord])
}

// -- SELECT ----------------------------------------------------------------

type tableSchema struct {
	alias string
	md    *table.Metadata
}

func (d *dmlStrategy) executeSelect(ctx *ExecutionContext, stmt *ast.SelectStmt) (*ResultSet, error) {
	store, err := d.stores.Store(ctx.CurrentDatabase)
	if err != nil {
		return nil, err
	}
	leftMD, ok := store.GetMetadata(stmt.From)
	if !ok {
		return nil, errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", stmt.From)
	}
	if err := d.txns.LockForRead(ctx.Txn, tableScanKey(stmt.From)); err != nil {
		return nil, err
	}
	defer d.txns.ReleaseReadLock(ctx.Txn, tableScanKey(stmt.From))

	leftRows, err := store.ScanTable(stmt.From)
	if err != nil {
		return nil, err
	}

	schemas := []tableSchema{{alias: stmt.From, md: leftMD}}
	var composite [][]binding

	if stmt.Join != nil {
		rightMD, ok := store.GetMetadata(stmt.Join.Table)
		if !ok {
			return nil, errs.New("exec", errs.CodeTableNotFound, errs.LevelError, "table not found", stmt.Join.Table)
		}
		if err := d.txns.LockForRead(ctx.Txn, tableScanKey(stmt.Join.Table)); err != nil {
			return nil, err
		}
		defer d.txns.ReleaseReadLock(ctx.Txn, tableScanKey(stmt.Join.Table))
		rightRows, err := store.ScanTable(stmt.Join.Table)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, tableSchema{alias: stmt.Join.Table, md: rightMD})
		ctx.Stats.RowsScanned = len(leftRows) * len(rightRows)
		for _, lr := range leftRows {
			for _, rr := range rightRows {
				bs := []binding{{alias: stmt.From, md: leftMD, row: lr.Row}, {alias: stmt.Join.Table, md: rightMD, row: rr.Row}}
				ok, err := d.evalBool(ctx, bs, stmt.Join.On)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				if stmt.Where != nil {
					wok, err := d.evalBool(ctx, bs, stmt.Where)
					if err != nil {
						return nil, err
					}
					if !wok {
						continue
					}
				}
				composite = append(composite, bs)
			}
		}
	} else {
		ctx.Stats.RowsScanned = len(leftRows)
		for _, lr := range leftRows {
			bs := []binding{{alias: stmt.From, md: leftMD, row: lr.Row}}
			if stmt.Where != nil {
				wok, err := d.evalBool(ctx, bs, stmt.Where)
				if err != nil {
					return nil, err
				}
				if !wok {
					continue
				}
			}
			composite = append(composite, bs)
		}
	}

	var outRows []values.Row
	var outCols []ColumnMetadata
	if len(stmt.GroupBy) > 0 || hasAggregate(stmt.Columns) {
		outRows, outCols, err = d.executeGroupBy(ctx, stmt, schemas, composite)
	} else {
		outRows, outCols, err = d.projectRows(ctx, stmt.Columns, schemas, composite)
	}
	if err != nil {
		return nil, err
	}

	if stmt.Distinct {
		outRows = dedupe(outRows)
	}
	if len(stmt.OrderBy) > 0 {
		sortRows(outRows, outCols, stmt.OrderBy)
	}
	if stmt.Offset != nil {
		off := int(*stmt.Offset)
		if off >= len(outRows) {
			outRows = nil
		} else {
			outRows = outRows[off:]
		}
	}
	if stmt.Limit != nil {
		lim := int(*stmt.Limit)
		if lim < len(outRows) {
			outRows = outRows[:lim]
		}
	}

	return &ResultSet{Rows: outRows, Columns: outCols}, nil
}

func hasAggregate(items []ast.SelectItem) bool {
	for _, it := range items {
		if fe, ok := it.Expr.(*ast.FunctionExpr); ok && isAggregateName(fe.Name) {
			return true
		}
	}
	return false
}

func isAggregateName(name string) bool {
	switch strings.ToUpper(name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	}
	return false
}

func exprDisplayName(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.Identifier:
		return v.Name
	case *ast.FunctionExpr:
		if v.Star {
			return v.Name + "(*)"
		}
		return v.Name + "(...)"
	default:
		return "expr"
	}
}

func (d *dmlStrategy) projectRows(ctx *ExecutionContext, items []ast.SelectItem, schemas []tableSchema, composite [][]binding) ([]values.Row, []ColumnMetadata, error) {
	var outCols []ColumnMetadata
	for _, item := range items {
		if item.Expr == nil {
			for _, sc := range schemas {
				for _, c := range sc.md.Columns {
					outCols = append(outCols, ColumnMetadata{Name: c.Name, Type: c.Type, Nullable: c.Nullable, PK: c.PK, Unique: c.Unique, Default: c.Default})
				}
			}
			continue
		}
		name := item.Alias
		if name == "" {
			name = exprDisplayName(item.Expr)
		}
		outCols = append(outCols, ColumnMetadata{Name: name})
	}

	outRows := make([]values.Row, 0, len(composite))
	for _, bs := range composite {
		row := values.Row{}
		for _, item := range items {
			if item.Expr == nil {
				for _, b := range bs {
					row.Values = append(row.Values, b.row.Values...)
				}
				continue
			}
			v, err := d.evalScalar(ctx, bs, item.Expr)
			if err != nil {
				return nil, nil, err
			}
			row.Values = append(row.Values, v)
		}
		outRows = append(outRows, row)
	}
	return outRows, outCols, nil
}

func dedupe(rows []values.Row) []values.Row {
	seen := make(map[string]bool, len(rows))
	out := make([]values.Row, 0, len(rows))
	for _, r := range rows {
		k := r.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func sortRows(rows []values.Row, cols []ColumnMetadata, order []ast.OrderItem) {
	idx := make([]int, len(order))
	for i, o := range order {
		idx[i] = -1
		for j, c := range cols {
			if c.Name == o.Column {
				idx[i] = j
				break
			}
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for i, o := range order {
			ci := idx[i]
			if ci < 0 || ci >= len(rows[a].Values) || ci >= len(rows[b].Values) {
				continue
			}
			va, vb := rows[a].Values[ci], rows[b].Values[ci]
			if values.Compare(va, values.OpEq, vb) {
				continue
			}
			lt := values.Compare(va, values.OpLt, vb)
			if o.Desc {
				return !lt
			}
			return lt
		}
		return false
	})
}

// -- GROUP BY / HAVING ------------------------------------------------------

type groupRow struct {
	key      []values.Value
	rows     [][]binding
	aggCache map[string]values.Value
}

func (d *dmlStrategy) executeGroupBy(ctx *ExecutionContext, stmt *ast.SelectStmt, schemas []tableSchema, composite [][]binding) ([]values.Row, []ColumnMetadata, error) {
	groups := make(map[string]*groupRow)
	var order []string

	for _, bs := range composite {
		key := make([]values.Value, len(stmt.GroupBy))
		for i, col := range stmt.GroupBy {
			v, err := resolveIdentifier(bs, parseGroupColumn(col))
			if err != nil {
				return nil, nil, err
			}
			key[i] = v
		}
		keyStr := groupKeyString(key)
		g, ok := groups[keyStr]
		if !ok {
			g = &groupRow{key: key, aggCache: map[string]values.Value{}}
			groups[keyStr] = g
			order = append(order, keyStr)
		}
		g.rows = append(g.rows, bs)
	}

	var outCols []ColumnMetadata
	for _, item := range stmt.Columns {
		name := item.Alias
		if name == "" {
			name = exprDisplayName(item.Expr)
		}
		outCols = append(outCols, ColumnMetadata{Name: name})
	}

	var outRows []values.Row
	for _, key := range order {
		g := groups[key]
		if stmt.Having != nil {
			ok, err := d.evalGroupBool(ctx, stmt.GroupBy, g, stmt.Having)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
		}
		row := values.Row{}
		for _, item := range stmt.Columns {
			v, err := d.evalGroupScalar(ctx, stmt.GroupBy, g, item.Expr)
			if err != nil {
				return nil, nil, err
			}
			row.Values = append(row.Values, v)
		}
		outRows = append(outRows, row)
	}
	return outRows, outCols, nil
}

func parseGroupColumn(col string) ast.Identifier {
	if i := strings.IndexByte(col, '.'); i >= 0 {
		return ast.Identifier{Table: col[:i], Name: col[i+1:]}
	}
	return ast.Identifier{Name: col}
}

func groupKeyString(vals []values.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\x1f")
}

func (d *dmlStrategy) aggregate(ctx *ExecutionContext, fe *ast.FunctionExpr, rows [][]binding) (values.Value, error) {
	name := strings.ToUpper(fe.Name)
	switch name {
	case "COUNT":
		if fe.Star {
			return values.Int(int64(len(rows))), nil
		}
		var count int64
		for _, bs := range rows {
			v, err := d.evalScalar(ctx, bs, fe.Args[0])
			if err != nil {
				return values.Value{}, err
			}
			if !v.IsNull() {
				count++
			}
		}
		return values.Int(count), nil
	case "SUM", "AVG":
		var sum float64
		var n int
		for _, bs := range rows {
			v, err := d.evalScalar(ctx, bs, fe.Args[0])
			if err != nil {
				return values.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			f, ok := numericOf(v)
			if !ok {
				return values.Value{}, errs.New("exec", errs.CodeTypeMismatch, errs.LevelError, "aggregate requires numeric operand", fe.Name)
			}
			sum += f
			n++
		}
		if name == "SUM" {
			return values.Double(sum), nil
		}
		if n == 0 {
			return values.Null(), nil
		}
		return values.Double(sum / float64(n)), nil
	case "MIN", "MAX":
		var best values.Value
		has := false
		for _, bs := range rows {
			v, err := d.evalScalar(ctx, bs, fe.Args[0])
			if err != nil {
				return values.Value{}, err
			}
			if v.IsNull() {
				continue
			}
			if !has {
				best, has = v, true
				continue
			}
			if name == "MIN" && values.Compare(v, values.OpLt, best) {
				best = v
			}
			if name == "MAX" && values.Compare(v, values.OpGt, best) {
				best = v
			}
		}
		if !has {
			return values.Null(), nil
		}
		return best, nil
	}
	return values.Value{}, errs.New("exec", errs.CodeSemanticError, errs.LevelError, "unsupported aggregate function", fe.Name)
}

func (d *dmlStrategy) evalGroupScalar(ctx *ExecutionContext, groupBy []string, g *groupRow, e ast.Expr) (values.Value, error) {
	switch v := e.(type) {
	case nil:
		return values.Value{}, errs.New("exec", errs.CodeSemanticError, errs.LevelError, "* is not valid with GROUP BY", "")
	case *ast.Identifier:
		for i, col := range groupBy {
			gc := parseGroupColumn(col)
			if gc.Name == v.Name && (v.Table == "" || v.Table == gc.Table) {
				return g.key[i], nil
			}
		}
		return values.Value{}, errs.New("exec", errs.CodeSemanticError, errs.LevelError, "column must appear in GROUP BY or be an aggregate", v.Name)
	case *ast.StringLiteral:
		return values.Str(v.Value), nil
	case *ast.NumericLiteral:
		return v.Value, nil
	case *ast.FunctionExpr:
		key := exprKey(v)
		if cached, ok := g.aggCache[key]; ok {
			return cached, nil
		}
		val, err := d.aggregate(ctx, v, g.rows)
		if err != nil {
			return values.Value{}, err
		}
		g.aggCache[key] = val
		return val, nil
	case *ast.UnaryExpr:
		operand, err := d.evalGroupScalar(ctx, groupBy, g, v.Operand)
		if err != nil {
			return values.Value{}, err
		}
		if v.Op == ast.OpNeg {
			return negate(operand)
		}
		return boolToValue(!truthy(operand)), nil
	case *ast.BinaryExpr:
		if v.Op.IsComparison() || v.Op == ast.OpAnd || v.Op == ast.OpOr {
			b, err := d.evalGroupBool(ctx, groupBy, g, v)
			if err != nil {
				return values.Value{}, err
			}
			return boolToValue(b), nil
		}
		l, err := d.evalGroupScalar(ctx, groupBy, g, v.Left)
		if err != nil {
			return values.Value{}, err
		}
		r, err := d.evalGroupScalar(ctx, groupBy, g, v.Right)
		if err != nil {
			return values.Value{}, err
		}
		return arith(l, v.Op, r)
	}
	return values.Value{}, errs.New("exec", errs.CodeSemanticError, errs.LevelError, "unsupported expression in aggregated context", "")
}

func (d *dmlStrategy) evalGroupBool(ctx *ExecutionContext, groupBy []string, g *groupRow, e ast.Expr) (bool, error) {
	b, ok := e.(*ast.BinaryExpr)
	if ok {
		switch {
		case b.Op.IsComparison():
			l, err := d.evalGroupScalar(ctx, groupBy, g, b.Left)
			if err != nil {
				return false, err
			}
			r, err := d.evalGroupScalar(ctx, groupBy, g, b.Right)
			if err != nil {
				return false, err
			}
			return values.Compare(l, b.Op.CompareOp(), r), nil
		case b.Op == ast.OpAnd:
			l, err := d.evalGroupBool(ctx, groupBy, g, b.Left)
			if err != nil || !l {
				return false, err
			}
			return d.evalGroupBool(ctx, groupBy, g, b.Right)
		case b.Op == ast.OpOr:
			l, err := d.evalGroupBool(ctx, groupBy, g, b.Left)
			if err != nil {
				return false, err
			}
			if l {
				return true, nil
			}
			return d.evalGroupBool(ctx, groupBy, g, b.Right)
		}
	}
	if u, ok := e.(*ast.UnaryExpr); ok && u.Op == ast.OpNot {
		inner, err := d.evalGroupBool(ctx, groupBy, g, u.Operand)
		return !inner, err
	}
	v, err := d.evalGroupScalar(ctx, groupBy, g, e)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func exprKey(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.Identifier:
		return "id:" + v.Table + "." + v.Name
	case *ast.StringLiteral:
		return "s:" + v.Value
	case *ast.NumericLiteral:
		return "n:" + v.Value.String()
	case *ast.FunctionExpr:
		if v.Star {
			return v.Name + "(*)"
		}
		parts := make([]string, len(v.Args))
		for i, a := range v.Args {
			parts[i] = exprKey(a)
		}
		return v.Name + "(" + strings.Join(parts, ",") + ")"
	case *ast.BinaryExpr:
		return "(" + exprKey(v.Left) + string(v.Op) + exprKey(v.Right) + ")"
	case *ast.UnaryExpr:
		return string(v.Op) + exprKey(v.Operand)
	default:
		return fmt.Sprintf("%p", e)
	}
}

// -- set operations -----------------------------------------------------

func (d *dmlStrategy) executeSetOp(ctx *ExecutionContext, s *ast.SetOpStmt) (*ResultSet, error) {
	left, err := d.executeSelect(ctx, s.Left)
	if err != nil {
		return nil, err
	}
	right, err := d.executeSelect(ctx, s.Right)
	if err != nil {
		return nil, err
	}

	rightSet := make(map[string]int)
	for _, r := range right.Rows {
		rightSet[r.String()]++
	}

	var out []values.Row
	switch s.Op {
	case ast.SetOpUnion:
		out = append(out, left.Rows...)
		out = append(out, right.Rows...)
		if !s.All {
			out = dedupe(out)
		}
	case ast.SetOpIntersect:
		for _, r := range left.Rows {
			if rightSet[r.String()] > 0 {
				out = append(out, r)
				if !s.All {
					rightSet[r.String()] = 0
				}
			}
		}
	case ast.SetOpExcept:
		for _, r := range left.Rows {
			if rightSet[r.String()] == 0 {
				out = append(out, r)
			} else if s.All {
				rightSet[r.String()]--
			}
		}
		if !s.All {
			out = dedupe(out)
		}
	}
	return &ResultSet{Rows: out, Columns: left.Columns}, nil
}
