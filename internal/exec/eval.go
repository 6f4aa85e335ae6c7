package exec

import (
	"github.com/ridgedb/ridgedb/internal/ast"
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/values"
)

// binding pairs one table's metadata with the current row from that table,
// for resolving possibly table-qualified identifiers across a JOIN.
type binding struct {
	alias string
	md    *table.Metadata
	row   values.Row
}

func resolveIdentifier(bindings []binding, id ast.Identifier) (values.Value, error) {
	var found *binding
	var ord int
	for i := range bindings {
		b := &bindings[i]
		if id.Table != "" && id.Table != b.alias {
			continue
		}
		o, ok := b.md.Ordinal(id.Name)
		if !ok {
			continue
		}
		if found != nil {
			return values.Value{}, errs.New("exec", errs.CodeAmbiguousColumn, errs.LevelError, "ambiguous column reference", id.Name)
		}
		found, ord = b, o
	}
	if found == nil {
		return values.Value{}, errs.New("exec", errs.CodeColumnNotFound, errs.LevelError, "column not found", id.Name)
	}
	return found.row.Values[ord], nil
}

func boolToValue(b bool) values.Value {
	if b {
		return values.Int(1)
	}
	return values.Int(0)
}

func truthy(v values.Value) bool {
	if v.IsNull() {
		return false
	}
	switch v.Kind {
	case values.KindInt:
		return v.I != 0
	case values.KindDouble:
		return v.D != 0
	default:
		return v.String() != ""
	}
}

func negate(v values.Value) (values.Value, error) {
	switch v.Kind {
	case values.KindInt:
		return values.Int(-v.I), nil
	case values.KindDouble:
		return values.Double(-v.D), nil
	default:
		return values.Value{}, errs.New("exec", errs.CodeTypeMismatch, errs.LevelError, "cannot negate non-numeric value", v.String())
	}
}

func arith(l values.Value, op ast.BinaryOp, r values.Value) (values.Value, error) {
	lf, lok := numericOf(l)
	rf, rok := numericOf(r)
	if !lok || !rok {
		return values.Value{}, errs.New("exec", errs.CodeTypeMismatch, errs.LevelError, "arithmetic requires numeric operands", "")
	}
	var result float64
	switch op {
	case ast.OpAdd:
		result = lf + rf
	case ast.OpSub:
		result = lf - rf
	case ast.OpMul:
		result = lf * rf
	case ast.OpDiv:
		if rf == 0 {
			return values.Value{}, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "division by zero", "")
		}
		result = lf / rf
	case ast.OpMod:
		if rf == 0 {
			return values.Value{}, errs.New("exec", errs.CodeInvalidParameter, errs.LevelError, "division by zero", "")
		}
		result = float64(int64(lf) % int64(rf))
	default:
		return values.Value{}, errs.New("exec", errs.CodeSemanticError, errs.LevelError, "unsupported arithmetic operator", string(op))
	}
	if l.Kind == values.KindInt && r.Kind == values.KindInt && op != ast.OpDiv {
		return values.Int(int64(result)), nil
	}
	return values.Double(result), nil
}

func numericOf(v values.Value) (float64, bool) {
	switch v.Kind {
	case values.KindInt:
		return float64(v.I), true
	case values.KindDouble:
		return v.D, true
	default:
		return 0, false
	}
}

// evalScalar evaluates e to a single value against bindings (spec.md §4.7
// WHERE evaluation, over every expression shape in internal/ast; there is
// no index fast path, every candidate row is evaluated). Subquery resolution is delegated back
// to the dmlStrategy that owns table storage access.
func (d *dmlStrategy) evalScalar(ctx *ExecutionContext, bindings []binding, e ast.Expr) (values.Value, error) {
	switch v := e.(type) {
	case *ast.Identifier:
		return resolveIdentifier(bindings, *v)
	case *ast.StringLiteral:
		return values.Str(v.Value), nil
	case *ast.NumericLiteral:
		return v.Value, nil
	case *ast.UnaryExpr:
		switch v.Op {
		case ast.OpNeg:
			operand, err := d.evalScalar(ctx, bindings, v.Operand)
			if err != nil {
				return values.Value{}, err
			}
			return negate(operand)
		case ast.OpNot:
			b, err := d.evalBool(ctx, bindings, v.Operand)
			if err != nil {
				return values.Value{}, err
			}
			return boolToValue(!b), nil
		}
	case *ast.BinaryExpr:
		if v.Op.IsComparison() || v.Op == ast.OpAnd || v.Op == ast.OpOr {
			b, err := d.evalBool(ctx, bindings, v)
			if err != nil {
				return values.Value{}, err
			}
			return boolToValue(b), nil
		}
		l, err := d.evalScalar(ctx, bindings, v.Left)
		if err != nil {
			return values.Value{}, err
		}
		r, err := d.evalScalar(ctx, bindings, v.Right)
		if err != nil {
			return values.Value{}, err
		}
		return arith(l, v.Op, r)
	case *ast.ExistsExpr, *ast.InExpr:
		b, err := d.evalBool(ctx, bindings, e)
		if err != nil {
			return values.Value{}, err
		}
		return boolToValue(b), nil
	}
	return values.Value{}, errs.New("exec", errs.CodeSemanticError, errs.LevelError, "unsupported expression in scalar context", "")
}

// evalBool is the predicate form used by WHERE/HAVING/JOIN ON clauses.
func (d *dmlStrategy) evalBool(ctx *ExecutionContext, bindings []binding, e ast.Expr) (bool, error) {
	switch v := e.(type) {
	case *ast.BinaryExpr:
		switch {
		case v.Op.IsComparison():
			l, err := d.evalScalar(ctx, bindings, v.Left)
			if err != nil {
				return false, err
			}
			r, err := d.evalScalar(ctx, bindings, v.Right)
			if err != nil {
				return false, err
			}
			return values.Compare(l, v.Op.CompareOp(), r), nil
		case v.Op == ast.OpAnd:
			l, err := d.evalBool(ctx, bindings, v.Left)
			if err != nil || !l {
				return false, err
			}
			return d.evalBool(ctx, bindings, v.Right)
		case v.Op == ast.OpOr:
			l, err := d.evalBool(ctx, bindings, v.Left)
			if err != nil {
				return false, err
			}
			if l {
				return true, nil
			}
			return d.evalBool(ctx, bindings, v.Right)
		default:
			val, err := d.evalScalar(ctx, bindings, v)
			if err != nil {
				return false, err
			}
			return truthy(val), nil
		}
	case *ast.UnaryExpr:
		if v.Op == ast.OpNot {
			b, err := d.evalBool(ctx, bindings, v.Operand)
			return !b, err
		}
		val, err := d.evalScalar(ctx, bindings, v)
		if err != nil {
			return false, err
		}
		return truthy(val), nil
	case *ast.ExistsExpr:
		rs, err := d.runSubquery(ctx, v.Subquery)
		if err != nil {
			return false, err
		}
		return len(rs.Rows) > 0, nil
	case *ast.InExpr:
		target, err := d.evalScalar(ctx, bindings, v.Target)
		if err != nil {
			return false, err
		}
		found := false
		if v.Subquery != nil {
			rs, err := d.runSubquery(ctx, v.Subquery)
			if err != nil {
				return false, err
			}
			for _, r := range rs.Rows {
				if len(r.Values) > 0 && values.Compare(target, values.OpEq, r.Values[0]) {
					found = true
					break
				}
			}
		} else {
			for _, item := range v.List {
				lv, err := d.evalScalar(ctx, bindings, item)
				if err != nil {
					return false, err
				}
				if values.Compare(target, values.OpEq, lv) {
					found = true
					break
				}
			}
		}
		if v.Negate {
			return !found, nil
		}
		return found, nil
	default:
		val, err := d.evalScalar(ctx, bindings, e)
		if err != nil {
			return false, err
		}
		return truthy(val), nil
	}
}

// runSubquery executes sub as a nested SELECT through executeSelect on a
// ctx.Clone()'d ExecutionContext, never by string substitution; the
// unified executor's permission and plan steps are not re-run for it.
// Subqueries here are evaluated once per occurrence rather than re-executed
// per outer row: this engine does not yet correlate a subquery's WHERE
// clause against the outer row's bindings.
func (d *dmlStrategy) runSubquery(ctx *ExecutionContext, sub *ast.SelectStmt) (*ResultSet, error) {
	child := ctx.Clone()
	return d.executeSelect(child, sub)
}
