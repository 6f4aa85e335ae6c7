// Package planner implements C11: SELECT plan generation and the coarse,
// rule-toggleable cost bias of spec.md §4.8. "Rationale: a real cost model
// is out of scope for the core; this interface ensures it is pluggable
// without touching strategies" — so Plan is a small, serializable value the
// DML strategy (C10) consumes without knowing how it was produced.
package planner

import "github.com/ridgedb/ridgedb/internal/ast"

// Kind enumerates the plan shapes of spec.md §4.8.
type Kind string

const (
	FullTableScan Kind = "FULL_TABLE_SCAN"
	IndexScan     Kind = "INDEX_SCAN"
	IndexSeek     Kind = "INDEX_SEEK"
	Join          Kind = "JOIN"
	Aggregate     Kind = "AGGREGATE"
	Sort          Kind = "SORT"
)

// baseCost is the "small integer bias by kind" of spec.md §4.8 — a coarse
// placeholder, not a statistics-based model.
var baseCost = map[Kind]float64{
	IndexSeek:     10,
	IndexScan:     50,
	FullTableScan: 100,
	Join:          200,
	Aggregate:     80,
	Sort:          120,
}

// Plan describes how a SELECT will be executed. AGGREGATE and SORT wrap an
// underlying scan/seek/join plan in Input; JOIN carries its probe side
// (the non-driving table) in Probe.
type Plan struct {
	Kind             Kind
	Table            string
	IndexName        string // empty unless Kind is INDEX_SCAN/INDEX_SEEK
	Columns          []string
	WhereDescription string
	CostEstimate     float64
	IsOptimized      bool
	Input            *Plan // wrapped child plan (AGGREGATE/SORT), or the join's driving side
	Probe            *Plan // JOIN's probed (inner) side
}

// describe renders an expression as the short human-readable string carried
// on Plan.WhereDescription — diagnostic only, never parsed back.
func describe(e ast.Expr) string {
	if e == nil {
		return "none"
	}
	switch v := e.(type) {
	case *ast.BinaryExpr:
		return describe(v.Left) + " " + string(v.Op) + " " + describe(v.Right)
	case *ast.UnaryExpr:
		return string(v.Op) + " " + describe(v.Operand)
	case *ast.Identifier:
		if v.Table != "" {
			return v.Table + "." + v.Name
		}
		return v.Name
	case *ast.StringLiteral:
		return "'" + v.Value + "'"
	case *ast.NumericLiteral:
		return v.Value.String()
	case *ast.FunctionExpr:
		return v.Name + "(...)"
	case *ast.ExistsExpr:
		return "EXISTS(...)"
	case *ast.InExpr:
		return "IN(...)"
	default:
		return "?"
	}
}
