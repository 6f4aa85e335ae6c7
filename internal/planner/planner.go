package planner

import (
	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/storage/index"
)

// IndexLookup is the narrow view of C5 the planner needs: whether a column
// has an index, and that index's identity. *index.Manager satisfies this
// directly.
type IndexLookup interface {
	Get(table, column string) (*index.Index, bool)
}

// Planner generates and optimizes SELECT plans (spec.md §4.8).
type Planner struct {
	rules *RuleSet
	index IndexLookup
}

// New wires a Planner over a RuleSet and an index lookup.
func New(rules *RuleSet, index IndexLookup) *Planner {
	return &Planner{rules: rules, index: index}
}

// Rules exposes the planner's rule set for runtime toggling.
func (p *Planner) Rules() *RuleSet { return p.rules }

// Generate builds a Plan for stmt per spec.md §4.8's generation rule, plus
// the JOIN/AGGREGATE/SORT wrapping SPEC_FULL.md §4 supplements.
func (p *Planner) Generate(stmt *ast.SelectStmt) *Plan {
	var base *Plan
	if stmt.Join != nil {
		base = p.generateJoin(stmt)
	} else {
		base = p.scanPlan(stmt.From, stmt.Where)
	}

	if len(stmt.GroupBy) > 0 {
		base = &Plan{
			Kind:         Aggregate,
			Table:        stmt.From,
			Columns:      stmt.GroupBy,
			CostEstimate: baseCost[Aggregate],
			Input:        base,
		}
	}

	if len(stmt.OrderBy) > 0 {
		cols := make([]string, len(stmt.OrderBy))
		for i, o := range stmt.OrderBy {
			cols[i] = o.Column
		}
		base = &Plan{
			Kind:         Sort,
			Table:        stmt.From,
			Columns:      cols,
			CostEstimate: baseCost[Sort],
			Input:        base,
		}
	}

	return base
}

// scanPlan decides FULL_TABLE_SCAN vs INDEX_SCAN vs INDEX_SEEK for a single
// table given an optional WHERE expression, following spec.md §4.8's rule:
// "if the WHERE triple's column has an index and the op is =, emit
// INDEX_SEEK; if op is <,>,<=,>=, emit INDEX_SCAN; otherwise
// FULL_TABLE_SCAN".
func (p *Planner) scanPlan(table string, where ast.Expr) *Plan {
	desc := describe(where)
	fullScan := func() *Plan {
		return &Plan{Kind: FullTableScan, Table: table, CostEstimate: baseCost[FullTableScan], WhereDescription: desc}
	}

	if where == nil || !p.rules.Enabled(RuleIndexSelection) {
		return fullScan()
	}

	col, op, _, ok := ast.Triple(where)
	if !ok {
		return fullScan()
	}

	ix, hasIndex := p.index.Get(table, col.Name)
	if !hasIndex {
		return fullScan()
	}

	switch op {
	case ast.OpEq:
		return &Plan{Kind: IndexSeek, Table: table, IndexName: ix.Name, CostEstimate: baseCost[IndexSeek], WhereDescription: desc}
	case ast.OpLt, ast.OpGt, ast.OpLte, ast.OpGte:
		return &Plan{Kind: IndexScan, Table: table, IndexName: ix.Name, CostEstimate: baseCost[IndexScan], WhereDescription: desc}
	default:
		return fullScan()
	}
}

// generateJoin builds a JOIN plan: the left (FROM) table drives, filtered
// by its own WHERE predicate exactly as a standalone scan would be; the
// right (joined) table is probed per driving row, by index seek when the
// join column is indexed. The FROM table drives whether or not either side
// has an index.
func (p *Planner) generateJoin(stmt *ast.SelectStmt) *Plan {
	driving := p.scanPlan(stmt.From, stmt.Where)

	var probe *Plan
	if p.rules.Enabled(RuleIndexSelection) {
		if col, ok := joinColumnFor(stmt.Join.On, stmt.Join.Table); ok {
			if ix, hasIndex := p.index.Get(stmt.Join.Table, col); hasIndex {
				probe = &Plan{
					Kind:             IndexSeek,
					Table:            stmt.Join.Table,
					IndexName:        ix.Name,
					CostEstimate:     baseCost[IndexSeek],
					WhereDescription: "join probe on " + col,
				}
			}
		}
	}
	if probe == nil {
		probe = &Plan{
			Kind:             FullTableScan,
			Table:            stmt.Join.Table,
			CostEstimate:     baseCost[FullTableScan],
			WhereDescription: "join probe",
		}
	}

	return &Plan{
		Kind:         Join,
		Table:        stmt.From + " JOIN " + stmt.Join.Table,
		CostEstimate: baseCost[Join],
		Input:        driving,
		Probe:        probe,
	}
}

// joinColumnFor extracts the column of rightTable referenced by an
// `ON left.col = right.col` equality, returning false for any shape beyond
// a single qualified-or-unqualified equality.
func joinColumnFor(on ast.Expr, rightTable string) (string, bool) {
	b, isBinary := on.(*ast.BinaryExpr)
	if !isBinary || b.Op != ast.OpEq {
		return "", false
	}
	if id, isID := b.Left.(*ast.Identifier); isID && (id.Table == "" || id.Table == rightTable) {
		return id.Name, true
	}
	if id, isID := b.Right.(*ast.Identifier); isID && (id.Table == "" || id.Table == rightTable) {
		return id.Name, true
	}
	return "", false
}

// Optimize applies enabled rules to plan, recursing into wrapped/probed
// children. Per spec.md §4.8: "Optimization with index_selection enabled
// multiplies cost by 0.8 and flips is_optimized."
func (p *Planner) Optimize(plan *Plan) *Plan {
	if plan == nil {
		return nil
	}
	if plan.Input != nil {
		plan.Input = p.Optimize(plan.Input)
	}
	if plan.Probe != nil {
		plan.Probe = p.Optimize(plan.Probe)
	}
	if p.rules.Enabled(RuleIndexSelection) {
		plan.CostEstimate *= 0.8
		plan.IsOptimized = true
	}
	return plan
}
