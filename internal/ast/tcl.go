package ast

// BeginStmt is `BEGIN [ISOLATION LEVEL level]`. Isolation is empty to mean
// the engine's configured default.
type BeginStmt struct {
	Isolation string
}

func (s *BeginStmt) Kind() StatementKind { return KindBegin }

// CommitStmt is `COMMIT`.
type CommitStmt struct{}

func (s *CommitStmt) Kind() StatementKind { return KindCommit }

// RollbackStmt is `ROLLBACK [TO SAVEPOINT name]`. To is empty for a full
// transaction rollback.
type RollbackStmt struct {
	To string
}

func (s *RollbackStmt) Kind() StatementKind { return KindRollback }

// SavepointStmt is `SAVEPOINT name`.
type SavepointStmt struct {
	Name string
}

func (s *SavepointStmt) Kind() StatementKind { return KindSavepoint }

// SetTransactionStmt is `SET TRANSACTION ISOLATION LEVEL level`.
type SetTransactionStmt struct {
	Isolation string
}

func (s *SetTransactionStmt) Kind() StatementKind { return KindSetTransaction }
