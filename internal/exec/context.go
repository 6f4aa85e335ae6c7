// Package exec implements C10 (the four execution strategies) and C12 (the
// unified executor) of spec.md §4.7, plus the JOIN/set-operation/subquery/
// aggregate/savepoint supplements SPEC_FULL.md §4 adds on top.
package exec

import (
	"context"
	"time"

	"github.com/ridgedb/ridgedb/internal/storage/txn"
)

// Stats is the per-call counters reset at the top of every Execute
// (spec.md §4.7 pipeline step 1), retrievable by the caller afterward.
type Stats struct {
	RowsAffected int
	RowsScanned  int
	Duration     time.Duration
}

// ExecutionContext is the per-call state bag threaded through a strategy's
// CheckPermission/Validate/Execute (spec.md §9 "collapse to one canonical
// set" — no snake_case/camelCase duplication, one field per concept).
type ExecutionContext struct {
	// Ctx carries cancellation/deadlines and is the parent for the
	// executor's OpenTelemetry spans.
	Ctx context.Context

	User            string
	CurrentDatabase string

	// Txn is the active transaction, or nil between explicit BEGIN/COMMIT
	// statements — the executor opens and closes an implicit one around any
	// single statement issued outside an explicit transaction (autocommit).
	Txn       *txn.Txn
	Isolation txn.Isolation

	HasError     bool
	ErrorMessage string

	// UsedIndex and PlanKind are diagnostics set by the unified executor
	// before invoking the DML strategy for a SELECT (spec.md §4.7 step 5;
	// spec.md §8 Scenario B asserts both after a query).
	UsedIndex bool
	PlanKind  string

	Stats Stats

	parent *ExecutionContext
}

// New creates a root ExecutionContext for a fresh connection/session.
func New(ctx context.Context, user, database string, isolation txn.Isolation) *ExecutionContext {
	return &ExecutionContext{Ctx: ctx, User: user, CurrentDatabase: database, Isolation: isolation}
}

// reset clears the per-call fields at the start of every Execute (spec.md
// §4.7 pipeline step 1: "Reset per-call counters on the context").
func (c *ExecutionContext) reset() {
	c.HasError = false
	c.ErrorMessage = ""
	c.UsedIndex = false
	c.PlanKind = ""
	c.Stats = Stats{}
}

// Fail records a strategy failure on the context; the unified executor
// translates this into a non-success ExecutionResult (spec.md §7
// "Propagation policy").
func (c *ExecutionContext) Fail(message string) {
	c.HasError = true
	c.ErrorMessage = message
}

// Clone produces a child ExecutionContext sharing the same transaction and
// database/user, for subquery evaluation (dmlStrategy.runSubquery runs the
// subquery's SELECT on the clone, never by string substitution). The child's own
// diagnostics (Stats, UsedIndex, PlanKind) are independent of the parent's.
func (c *ExecutionContext) Clone() *ExecutionContext {
	return &ExecutionContext{
		Ctx:             c.Ctx,
		User:            c.User,
		CurrentDatabase: c.CurrentDatabase,
		Txn:             c.Txn,
		Isolation:       c.Isolation,
		parent:          c,
	}
}
