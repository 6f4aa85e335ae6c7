package exec

import "github.com/ridgedb/ridgedb/internal/values"

// ExecutionResult is the universal per-call outcome (spec.md §6 "Execution
// result surface. Every execute returns {success: bool, message: string}").
type ExecutionResult struct {
	Success bool
	Message string
}

// ColumnMetadata describes one result-set column; order is authoritative
// for decoding the parallel ResultSet.Rows entries (spec.md §6).
type ColumnMetadata struct {
	Name     string
	Type     string
	Nullable bool
	PK       bool
	Unique   bool
	Default  *values.Value
}

// ResultSet is the SELECT-only result surface, returned alongside an
// ExecutionResult (spec.md §6 "Result sets for SELECT are returned as a
// separate structure").
type ResultSet struct {
	Rows    []values.Row
	Columns []ColumnMetadata
}
