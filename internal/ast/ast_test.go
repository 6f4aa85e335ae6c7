package ast

import (
	"testing"

	"github.com/ridgedb/ridgedb/internal/values"
)

func TestStatementKindDispatch(t *testing.T) {
	stmts := []Statement{
		&CreateDatabaseStmt{Name: "d"},
		&CreateTableStmt{Name: "t"},
		&SelectStmt{From: "t"},
		&InsertStmt{Table: "t"},
		&GrantStmt{Grantee: "u"},
		&BeginStmt{},
	}
	want := []StatementKind{
		KindCreateDatabase, KindCreateTable, KindSelect, KindInsert, KindGrant, KindBegin,
	}
	for i, s := range stmts {
		if s.Kind() != want[i] {
			t.Errorf("stmt %d: got kind %q, want %q", i, s.Kind(), want[i])
		}
	}
}

func TestTripleExtractsColumnOpLiteral(t *testing.T) {
	expr := &BinaryExpr{
		Op:   OpEq,
		Left: &Identifier{Name: "id"},
		Right: &NumericLiteral{Value: values.Int(2)},
	}
	col, op, lit, ok := Triple(expr)
	if !ok {
		t.Fatal("expected triple extraction to succeed")
	}
	if col.Name != "id" || op != OpEq || lit.I != 2 {
		t.Errorf("got col=%v op=%v lit=%v", col, op, lit)
	}
}

func TestTripleFlipsLiteralOnLeft(t *testing.T) {
	expr := &BinaryExpr{
		Op:    OpLt,
		Left:  &NumericLiteral{Value: values.Int(5)},
		Right: &Identifier{Name: "age"},
	}
	col, op, lit, ok := Triple(expr)
	if !ok {
		t.Fatal("expected triple extraction to succeed")
	}
	if col.Name != "age" || op != OpGt || lit.I != 5 {
		t.Errorf("got col=%v op=%v lit=%v", col, op, lit)
	}
}

func TestTripleRejectsNonComparisonShapes(t *testing.T) {
	and := &BinaryExpr{
		Op:   OpAnd,
		Left: &Identifier{Name: "a"},
		Right: &Identifier{Name: "b"},
	}
	if _, _, _, ok := Triple(and); ok {
		t.Error("AND expression should not extract a triple")
	}

	call := &FunctionExpr{Name: "COUNT", Star: true}
	if _, _, _, ok := Triple(call); ok {
		t.Error("function expression should not extract a triple")
	}
}

func TestCompareOpPanicsOnNonComparison(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic converting a non-comparison op")
		}
	}()
	_ = OpAnd.CompareOp()
}
