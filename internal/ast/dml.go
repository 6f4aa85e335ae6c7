package ast

// SelectItem is one projected expression in a SELECT list, or the `*`
// wildcard when Expr is nil.
type SelectItem struct {
	Expr  Expr // nil for `*`
	Alias string
}

// JoinClause is the single `INNER JOIN t2 ON expr` SPEC_FULL.md §4
// supplements onto the core SELECT grammar.
type JoinClause struct {
	Table string
	On    Expr
}

// OrderItem is one `ORDER BY` key.
type OrderItem struct {
	Column string
	Desc   bool
}

// SelectStmt is `SELECT [DISTINCT] items FROM table [JOIN ...] [WHERE]
// [GROUP BY] [HAVING] [ORDER BY] [LIMIT [OFFSET]]` (spec.md §6, joins and
// aggregates per SPEC_FULL.md §4).
type SelectStmt struct {
	Distinct bool
	Columns  []SelectItem
	From     string
	Join     *JoinClause // nil if no join
	Where    Expr         // nil if no WHERE
	GroupBy  []string
	Having   Expr // nil if no HAVING
	OrderBy  []OrderItem
	Limit    *int64
	Offset   *int64
}

func (s *SelectStmt) Kind() StatementKind { return KindSelect }

// SetOpKind enumerates the three set operations of §6.
type SetOpKind string

const (
	SetOpUnion     SetOpKind = "UNION"
	SetOpIntersect SetOpKind = "INTERSECT"
	SetOpExcept    SetOpKind = "EXCEPT"
)

// SetOpStmt wraps two SELECT operands with a set operation (spec.md §6
// "set-op nodes UNION|INTERSECT|EXCEPT (with an ALL flag) wrapping two
// SELECT operands").
type SetOpStmt struct {
	Op    SetOpKind
	All   bool
	Left  *SelectStmt
	Right *SelectStmt
}

func (s *SetOpStmt) Kind() StatementKind { return KindSetOp }

// InsertStmt is `INSERT INTO table [(columns)] VALUES (row), (row), ...`.
// Columns is nil when the statement omits the column list, meaning every
// row supplies a value for every table column in declared order.
type InsertStmt struct {
	Table   string
	Columns []string
	Rows    [][]Expr
}

func (s *InsertStmt) Kind() StatementKind { return KindInsert }

// Assignment is one `column = expr` pair in an UPDATE SET list.
type Assignment struct {
	Column string
	Value  Expr
}

// UpdateStmt is `UPDATE table SET assignments [WHERE]`.
type UpdateStmt struct {
	Table       string
	Assignments []Assignment
	Where       Expr
}

func (s *UpdateStmt) Kind() StatementKind { return KindUpdate }

// DeleteStmt is `DELETE FROM table [WHERE]`.
type DeleteStmt struct {
	Table string
	Where Expr
}

func (s *DeleteStmt) Kind() StatementKind { return KindDelete }
