// Package table implements C6: slotted-page record storage with insert,
// update, delete, scan, and a schema/metadata cache, over the sharded
// buffer pool (C3) and WAL (C2).
package table

import (
	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/page"
	"github.com/ridgedb/ridgedb/internal/values"
)

// ColumnDef describes one declared column (spec.md §3).
type ColumnDef struct {
	Name     string
	Type     string
	Nullable bool
	Default  *values.Value
	PK       bool
	Unique   bool
	AutoIncr bool
}

// Constraint is a table-level constraint (PRIMARY KEY(...), UNIQUE(...),
// FOREIGN KEY(...), CHECK(...)) — see spec.md §6.
type Constraint struct {
	Kind       string // "PRIMARY_KEY", "UNIQUE", "FOREIGN_KEY", "CHECK"
	Columns    []string
	RefTable   string   // FOREIGN KEY only
	RefColumns []string // FOREIGN KEY only
	CheckExpr  string   // CHECK only, opaque to storage
}

// Metadata is a table's schema: dense 0..n-1 ordinals, at most one PK,
// every UNIQUE/PK column backed by a secondary index (enforced by the DDL
// strategy, not here) (spec.md §3).
type Metadata struct {
	TableID    uint64
	DatabaseID uint64
	Name       string
	Columns    []ColumnDef
	Constraints []Constraint
	ordinal    map[string]int
	RootPage   page.ID
}

func newMetadata(id, dbID uint64, name string, cols []ColumnDef, cons []Constraint, root page.ID) *Metadata {
	ord := make(map[string]int, len(cols))
	for i, c := range cols {
		ord[c.Name] = i
	}
	return &Metadata{TableID: id, DatabaseID: dbID, Name: name, Columns: cols, Constraints: cons, ordinal: ord, RootPage: root}
}

// Ordinal returns the dense column index for name, or (-1, false).
func (m *Metadata) Ordinal(name string) (int, bool) {
	i, ok := m.ordinal[name]
	return i, ok
}

// PrimaryKeyColumns returns the column names making up the PK, from either
// a column-level PK flag or a table-level PRIMARY KEY(...) constraint.
func (m *Metadata) PrimaryKeyColumns() []string {
	for _, c := range m.Constraints {
		if c.Kind == "PRIMARY_KEY" {
			return c.Columns
		}
	}
	var out []string
	for _, c := range m.Columns {
		if c.PK {
			out = append(out, c.Name)
		}
	}
	return out
}

// UniqueColumnSets returns every set of columns that must be unique,
// including the primary key and every UNIQUE(...) / column-level UNIQUE.
func (m *Metadata) UniqueColumnSets() [][]string {
	var out [][]string
	if pk := m.PrimaryKeyColumns(); len(pk) > 0 {
		out = append(out, pk)
	}
	for _, c := range m.Constraints {
		if c.Kind == "UNIQUE" {
			out = append(out, c.Columns)
		}
	}
	for _, c := range m.Columns {
		if c.Unique && !c.PK {
			out = append(out, []string{c.Name})
		}
	}
	return out
}

func errColumnNotFound(table, col string) error {
	return errs.New("table", errs.CodeColumnNotFound, errs.LevelError, "column not found", table+"."+col)
}
