package exec

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/auth"
	"github.com/ridgedb/ridgedb/internal/catalog"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/planner"
	"github.com/ridgedb/ridgedb/internal/storage/index"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/storage/txn"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
)

// Strategy is the small trait spec.md §9 calls for in place of an
// ExecutionStrategy inheritance tree: "a small trait capturing
// check_permission, validate, execute. No virtual-call chain; the
// dispatcher is a single match."
type Strategy interface {
	CheckPermission(ctx *ExecutionContext, stmt ast.Statement) error
	Validate(ctx *ExecutionContext, stmt ast.Statement) error
	Execute(ctx *ExecutionContext, stmt ast.Statement) (*ExecutionResult, *ResultSet, error)
}

// adminKinds are the statement kinds spec.md §4.7 step 2 singles out as
// always requiring admin, independent of any strategy-level check:
// "catalog-affecting DDL (create/drop database, create/drop index) and
// all DCL require admin".
var adminKinds = map[ast.StatementKind]bool{
	ast.KindCreateDatabase: true,
	ast.KindDropDatabase:   true,
	ast.KindCreateIndex:    true,
	ast.KindDropIndex:      true,
	ast.KindCreateUser:     true,
	ast.KindDropUser:       true,
	ast.KindGrant:          true,
	ast.KindRevoke:         true,
}

// dbExemptKinds are the statement kinds spec.md §4.7 step 3 exempts from
// requiring a non-empty current_database: "statement kinds except
// CREATE DATABASE, USE, SHOW DATABASES, and DCL require a non-empty
// current_database".
var dbExemptKinds = map[ast.StatementKind]bool{
	ast.KindCreateDatabase: true,
	ast.KindUse:            true,
	ast.KindShowDatabases:  true,
	ast.KindCreateUser:     true,
	ast.KindDropUser:       true,
	ast.KindGrant:          true,
	ast.KindRevoke:         true,
}

// tclKinds are handled directly by the executor (begin/commit/rollback/
// savepoint/set-transaction mutate ExecutionContext.Txn, a cross-cutting
// concern no catalog-backed strategy owns) rather than through the
// DDL/DML/DCL/Utility strategy map.
var tclKinds = map[ast.StatementKind]bool{
	ast.KindBegin:          true,
	ast.KindCommit:         true,
	ast.KindRollback:       true,
	ast.KindSavepoint:      true,
	ast.KindSetTransaction: true,
}

// Executor is C12, the unified executor: an immutable map kind -> strategy
// plus the collaborators every strategy needs.
type Executor struct {
	strategies map[ast.StatementKind]Strategy
	auth       Auth
	txns       Txns
	stores     Stores
	rules      *planner.RuleSet
	tracer     trace.Tracer
}

// New wires the unified executor over its collaborators, registering one
// strategy instance per statement kind in the four families of spec.md §4.7.
func New(cat Catalog, a Auth, stores Stores, txns Txns) *Executor {
	ddl := &ddlStrategy{catalog: cat, stores: stores, auth: a}
	dml := &dmlStrategy{stores: stores, auth: a, txns: txns, rules: planner.NewRuleSet()}
	dcl := &dclStrategy{auth: a}
	util := &utilityStrategy{catalog: cat, stores: stores}

	strategies := map[ast.StatementKind]Strategy{
		ast.KindCreateDatabase: ddl,
		ast.KindDropDatabase:   ddl,
		ast.KindCreateTable:    ddl,
		ast.KindDropTable:      ddl,
		ast.KindAlterTable:     ddl,
		ast.KindCreateIndex:    ddl,
		ast.KindDropIndex:      ddl,

		ast.KindSelect: dml,
		ast.KindInsert: dml,
		ast.KindUpdate: dml,
		ast.KindDelete: dml,
		ast.KindSetOp:  dml,

		ast.KindCreateUser: dcl,
		ast.KindDropUser:   dcl,
		ast.KindGrant:      dcl,
		ast.KindRevoke:     dcl,

		ast.KindUse:           util,
		ast.KindShowDatabases: util,
		ast.KindShowTables:    util,
	}

	return &Executor{
		strategies: strategies,
		auth:       a,
		txns:       txns,
		stores:     stores,
		rules:      dml.rules,
		tracer:     otel.Tracer("github.com/ridgedb/ridgedb/internal/exec"),
	}
}

// undoSince reverts ctx.Txn's own writes against the current database back
// to fromLSN, then rebuilds every index in that database from the
// now-reverted table contents. Best-effort: a store that was never opened
// for this database (nothing was written in it under this txn) has nothing
// to undo.
//
// The index manager (C5) has no WAL entries of its own — it is rebuilt
// wholesale from a table scan on CREATE INDEX, so the cheapest correct way
// to keep it in step with a physical page undo is the same rebuild, rather
// than threading a parallel undo log through every index mutation.
func (e *Executor) undoSince(ctx *ExecutionContext, txnID txn.ID, fromLSN uint64) {
	if ctx.CurrentDatabase == "" {
		return
	}
	store, err := e.stores.Store(ctx.CurrentDatabase)
	if err != nil {
		return
	}
	if err := store.Undo(txnID, fromLSN); err != nil {
		return
	}
	e.rebuildIndexes(store, e.stores.Indexes(ctx.CurrentDatabase))
}

// rebuildIndexes re-derives every index's contents from store's current rows.
func (e *Executor) rebuildIndexes(store *table.Store, idx *index.Manager) {
	if idx == nil {
		return
	}
	for _, name := range store.TableNames() {
		md, ok := store.GetMetadata(name)
		if !ok {
			continue
		}
		for _, col := range idx.ColumnsIndexed(name) {
			old, ok := idx.Get(name, col)
			if !ok {
				continue
			}
			unique := old.Unique
			idx.Drop(name, col)
			fresh, err := idx.Create(name, col, unique)
			if err != nil {
				continue
			}
			ord, ok := md.Ordinal(col)
			if !ok {
				continue
			}
			rows, err := store.ScanTable(name)
			if err != nil {
				continue
			}
			for _, r := range rows {
				_ = fresh.Insert(r.Row.Values[ord], r.Handle)
			}
		}
	}
}

// currentLSN returns ctx.CurrentDatabase's own data-WAL cursor, or 0 if no
// database is selected or its store isn't open. A transaction's undo
// baseline must live in this namespace, never in txn.Manager's own
// lifecycle WAL, since MODIFY_PAGE records are only ever appended to the
// per-database WAL (spec.md §6 "one WAL file per database").
func (e *Executor) currentLSN(ctx *ExecutionContext) wal.LSN {
	if ctx.CurrentDatabase == "" {
		return 0
	}
	store, err := e.stores.Store(ctx.CurrentDatabase)
	if err != nil {
		return 0
	}
	return store.LastLSN()
}

// Rules exposes the shared RuleSet (spec.md §4.8 "each rule may be enabled/
// disabled at runtime") for administrative toggling.
func (e *Executor) Rules() *planner.RuleSet { return e.rules }

// Execute runs the full spec.md §4.7 pipeline for stmt, or the
// executor-owned TCL handling for BEGIN/COMMIT/ROLLBACK/SAVEPOINT/
// SET_TRANSACTION.
func (e *Executor) Execute(ctx *ExecutionContext, stmt ast.Statement) (*ExecutionResult, *ResultSet, error) {
	ctx.reset()
	kind := stmt.Kind()

	spanCtx, span := e.tracer.Start(ctx.Ctx, "exec."+string(kind), trace.WithAttributes(
		attribute.String("db.statement_kind", string(kind)),
		attribute.String("db.user", ctx.User),
		attribute.String("db.database", ctx.CurrentDatabase),
	))
	ctx.Ctx = spanCtx
	var retErr error
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	if tclKinds[kind] {
		res, err := e.executeTCL(ctx, stmt)
		retErr = err
		return res, nil, err
	}

	// Step 2: global permission check.
	if ctx.User != auth.Superuser {
		if adminKinds[kind] {
			if !e.auth.CheckPermission(ctx.User, catalog.Wildcard, catalog.Wildcard, "ADMIN") {
				retErr = errs.New("exec", errs.CodePermissionDenied, errs.LevelError, "admin privilege required", string(kind))
				return nil, nil, retErr
			}
		}
	}

	// Step 3: global context check.
	if !dbExemptKinds[kind] && ctx.CurrentDatabase == "" {
		retErr = errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "no database selected", string(kind))
		return nil, nil, retErr
	}

	strategy, ok := e.strategies[kind]
	if !ok {
		retErr = errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "unsupported statement kind", string(kind))
		return nil, nil, retErr
	}

	// Step 4: strategy-level permission check and validation.
	if err := strategy.CheckPermission(ctx, stmt); err != nil {
		retErr = err
		return nil, nil, err
	}
	if err := strategy.Validate(ctx, stmt); err != nil {
		retErr = err
		return nil, nil, err
	}

	// Step 5: plan generation for a top-level SELECT; SET_OP operands are not planned.
	if sel, isSelect := stmt.(*ast.SelectStmt); isSelect {
		e.annotatePlan(ctx, sel)
	}

	// Step 6: timed execute. A statement issued outside an explicit BEGIN
	// runs under an implicit autocommit transaction opened and closed here.
	implicit := ctx.Txn == nil
	if implicit {
		t, err := e.txns.Begin(ctx.Isolation)
		if err != nil {
			retErr = err
			return nil, nil, err
		}
		t.LastLSN = e.currentLSN(ctx)
		ctx.Txn = t
	}

	start := time.Now()
	result, rs, err := strategy.Execute(ctx, stmt)
	ctx.Stats.Duration = time.Since(start)

	if implicit {
		if err != nil {
			e.undoSince(ctx, ctx.Txn.ID, ctx.Txn.LastLSN)
			_ = e.txns.Rollback(ctx.Txn)
		} else {
			err = e.txns.Commit(ctx.Txn)
		}
		ctx.Txn = nil
	}

	if err != nil {
		ctx.Fail(err.Error())
		retErr = err
		return &ExecutionResult{Success: false, Message: err.Error()}, nil, err
	}
	return result, rs, nil
}

// annotatePlan runs the planner against sel's own table (ignoring any JOIN
// probe side's own database wiring, which is always the current database)
// and records the diagnostics spec.md §8 Scenario B checks:
// "used_index=true, plan_kind=INDEX_SEEK".
func (e *Executor) annotatePlan(ctx *ExecutionContext, sel *ast.SelectStmt) {
	dml, ok := e.strategies[ast.KindSelect].(*dmlStrategy)
	if !ok {
		return
	}
	idx := dml.stores.Indexes(ctx.CurrentDatabase)
	p := planner.New(e.rules, idx)
	plan := p.Generate(sel)
	plan = p.Optimize(plan)
	ctx.PlanKind = string(plan.Kind)
	ctx.UsedIndex = plan.Kind == planner.IndexSeek || plan.Kind == planner.IndexScan ||
		(plan.Probe != nil && (plan.Probe.Kind == planner.IndexSeek || plan.Probe.Kind == planner.IndexScan))
}

// executeTCL implements BEGIN/COMMIT/ROLLBACK/SAVEPOINT/SET_TRANSACTION
// directly against C4, bypassing the strategy pipeline: these statements
// mutate ExecutionContext.Txn itself rather than any catalog-backed object.
func (e *Executor) executeTCL(ctx *ExecutionContext, stmt ast.Statement) (*ExecutionResult, error) {
	switch s := stmt.(type) {
	case *ast.BeginStmt:
		isolation := ctx.Isolation
		if s.Isolation != "" {
			isolation = txn.Isolation(s.Isolation)
		}
		t, err := e.txns.Begin(isolation)
		if err != nil {
			return nil, err
		}
		t.LastLSN = e.currentLSN(ctx)
		ctx.Txn = t
		return &ExecutionResult{Success: true, Message: "transaction started"}, nil

	case *ast.CommitStmt:
		if ctx.Txn == nil {
			return nil, errs.New("exec", errs.CodeTransactionError, errs.LevelError, "no active transaction", "")
		}
		if err := e.txns.Commit(ctx.Txn); err != nil {
			return nil, err
		}
		ctx.Txn = nil
		return &ExecutionResult{Success: true, Message: "transaction committed"}, nil

	case *ast.RollbackStmt:
		if ctx.Txn == nil {
			return nil, errs.New("exec", errs.CodeTransactionError, errs.LevelError, "no active transaction", "")
		}
		txnID := ctx.Txn.ID
		if s.To != "" {
			lsn, err := e.txns.RollbackToSavepoint(ctx.Txn, s.To)
			if err != nil {
				return nil, err
			}
			e.undoSince(ctx, txnID, lsn)
			return &ExecutionResult{Success: true, Message: "rolled back to savepoint " + s.To}, nil
		}
		beginLSN := ctx.Txn.LastLSN
		e.undoSince(ctx, txnID, beginLSN)
		if err := e.txns.Rollback(ctx.Txn); err != nil {
			return nil, err
		}
		ctx.Txn = nil
		return &ExecutionResult{Success: true, Message: "transaction rolled back"}, nil

	case *ast.SavepointStmt:
		if ctx.Txn == nil {
			return nil, errs.New("exec", errs.CodeTransactionError, errs.LevelError, "no active transaction", "")
		}
		e.txns.Savepoint(ctx.Txn, s.Name, e.currentLSN(ctx))
		return &ExecutionResult{Success: true, Message: "savepoint " + s.Name + " set"}, nil

	case *ast.SetTransactionStmt:
		ctx.Isolation = txn.Isolation(s.Isolation)
		return &ExecutionResult{Success: true, Message: "isolation level set"}, nil

	default:
		return nil, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "unsupported TCL statement", "")
	}
}
