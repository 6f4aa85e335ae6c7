package ast

import "github.com/ridgedb/ridgedb/internal/values"

// ExprKind discriminates the expression shapes named in spec.md §6.
type ExprKind string

const (
	ExprIdentifier     ExprKind = "IDENTIFIER"
	ExprStringLiteral  ExprKind = "STRING_LITERAL"
	ExprNumericLiteral ExprKind = "NUMERIC_LITERAL"
	ExprBinary         ExprKind = "BINARY"
	ExprUnary          ExprKind = "UNARY"
	ExprFunction       ExprKind = "FUNCTION"
	ExprExists         ExprKind = "EXISTS"
	ExprIn             ExprKind = "IN"
)

// Expr is any expression node. Like Statement, it is a tagged variant
// dispatched on ExprKind() rather than a class hierarchy.
type Expr interface {
	ExprKind() ExprKind
}

// Identifier references a column, optionally table-qualified
// ("t.col") to resolve ambiguity under JOIN.
type Identifier struct {
	Table string // empty if unqualified
	Name  string
}

func (e *Identifier) ExprKind() ExprKind { return ExprIdentifier }

// StringLiteral is a quoted string constant.
type StringLiteral struct {
	Value string
}

func (e *StringLiteral) ExprKind() ExprKind { return ExprStringLiteral }

// NumericLiteral is an integer or floating-point constant.
type NumericLiteral struct {
	Value values.Value // KindInt or KindDouble
}

func (e *NumericLiteral) ExprKind() ExprKind { return ExprNumericLiteral }

// BinaryOp enumerates every infix operator in §6: the six comparisons,
// arithmetic, and the two logical connectives.
type BinaryOp string

const (
	OpEq   BinaryOp = "="
	OpNeq  BinaryOp = "<>"
	OpLt   BinaryOp = "<"
	OpGt   BinaryOp = ">"
	OpLte  BinaryOp = "<="
	OpGte  BinaryOp = ">="
	OpLike BinaryOp = "LIKE"

	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"

	OpAnd BinaryOp = "AND"
	OpOr  BinaryOp = "OR"
)

// IsComparison reports whether op is one of the six comparison operators or
// LIKE, the operators values.Compare understands directly.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpGt, OpLte, OpGte, OpLike:
		return true
	default:
		return false
	}
}

// CompareOp converts a comparison BinaryOp to its values.CompareOp twin.
// Panics if op is not a comparison operator; callers must check
// IsComparison first.
func (op BinaryOp) CompareOp() values.CompareOp {
	if !op.IsComparison() {
		panic("ast: " + string(op) + " is not a comparison operator")
	}
	return values.CompareOp(op)
}

// BinaryExpr is `left op right`.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) ExprKind() ExprKind { return ExprBinary }

// UnaryOp enumerates the prefix operators: boolean NOT and arithmetic
// negation.
type UnaryOp string

const (
	OpNot UnaryOp = "NOT"
	OpNeg UnaryOp = "-"
)

// UnaryExpr is `op operand`.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

func (e *UnaryExpr) ExprKind() ExprKind { return ExprUnary }

// FunctionExpr is a named function call, used both for scalar functions and
// for the GROUP BY aggregates (COUNT/SUM/AVG/MIN/MAX) named in SPEC_FULL.md
// §4's supplemented-features list. `Star` marks the `COUNT(*)` form, which
// carries no Args.
type FunctionExpr struct {
	Name string
	Args []Expr
	Star bool
}

func (e *FunctionExpr) ExprKind() ExprKind { return ExprFunction }

// ExistsExpr is `EXISTS (subquery)`; Subquery is the inner SELECT.
type ExistsExpr struct {
	Subquery *SelectStmt
}

func (e *ExistsExpr) ExprKind() ExprKind { return ExprExists }

// InExpr is `target IN (list)` or `target IN (subquery)`; exactly one of
// List or Subquery is set.
type InExpr struct {
	Target   Expr
	List     []Expr
	Subquery *SelectStmt
	Negate   bool // `NOT IN`
}

func (e *InExpr) ExprKind() ExprKind { return ExprIn }

// Triple extracts the simplified "column op literal" shape spec.md §4.7
// describes WHERE evaluation in terms of: a bare comparison between an
// unqualified-or-qualified column and a literal. The planner uses this to
// choose an index plan; the DML strategy does not call it and evaluates
// every WHERE over a full table scan. It returns ok=false for any
// expression shape beyond a single comparison (AND-joined clauses,
// function calls, subqueries), which the planner plans as a full scan.
func Triple(e Expr) (col Identifier, op BinaryOp, lit values.Value, ok bool) {
	b, isBinary := e.(*BinaryExpr)
	if !isBinary || !b.Op.IsComparison() {
		return Identifier{}, "", values.Value{}, false
	}
	if id, isID := b.Left.(*Identifier); isID {
		if v, litOK := literalValue(b.Right); litOK {
			return *id, b.Op, v, true
		}
	}
	if id, isID := b.Right.(*Identifier); isID {
		if v, litOK := literalValue(b.Left); litOK {
			return *id, flip(b.Op), v, true
		}
	}
	return Identifier{}, "", values.Value{}, false
}

func literalValue(e Expr) (values.Value, bool) {
	switch lit := e.(type) {
	case *StringLiteral:
		return values.Str(lit.Value), true
	case *NumericLiteral:
		return lit.Value, true
	default:
		return values.Value{}, false
	}
}

// flip reverses a comparison when the literal appeared on the left
// ("5 < id" becomes "id > 5").
func flip(op BinaryOp) BinaryOp {
	switch op {
	case OpLt:
		return OpGt
	case OpGt:
		return OpLt
	case OpLte:
		return OpGte
	case OpGte:
		return OpLte
	default:
		return op
	}
}
