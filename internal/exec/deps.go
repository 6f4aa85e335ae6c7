package exec

import (
	"github.com/ridgedb/ridgedb/internal/storage/index"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/storage/txn"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
	"github.com/ridgedb/ridgedb/internal/values"
)

// Catalog is the narrow view of C7 the executor needs. *catalog.Catalog
// satisfies it directly.
type Catalog interface {
	ListDatabases() []string
	DatabaseID(name string) (uint64, bool)
	CreateDatabase(txnID wal.TxnID, name string) (uint64, error)
	DropDatabase(txnID wal.TxnID, name string) error
	RegisterTable(txnID wal.TxnID, dbID, tableID uint64, name string, cols []table.ColumnDef) error
	UnregisterTable(txnID wal.TxnID, tableID uint64) error
	RegisterIndex(txnID wal.TxnID, tableID uint64, column string, unique bool) (uint64, error)
	NextTableID() uint64
}

// Auth is the narrow view of C8 the executor needs. *auth.Manager
// satisfies it directly.
type Auth interface {
	CheckPermission(username, database, table, action string) bool
	CreateUser(txnID wal.TxnID, username, plaintext string) (uint64, error)
	DropUser(txnID wal.TxnID, username string) error
	Grant(txnID wal.TxnID, granteeType, granteeName, database, tbl, action, grantor string) error
	Revoke(txnID wal.TxnID, granteeType, granteeName, database, tbl, action string) error
}

// Stores resolves the per-database table storage and index manager a
// statement needs once ExecutionContext.CurrentDatabase is known. The
// engine owns one table.Store/index.Manager pair per database directory
// (spec.md §6 "Persisted layout. One directory per engine instance. Each
// database is a subdirectory...").
type Stores interface {
	Store(database string) (*table.Store, error)
	Indexes(database string) *index.Manager
	OpenDatabase(database string) error
	CloseDatabase(database string) error
}

// Txns is the narrow view of C4 the executor needs. *txn.Manager satisfies
// it directly.
type Txns interface {
	Begin(isolation txn.Isolation) (*txn.Txn, error)
	Commit(t *txn.Txn) error
	Rollback(t *txn.Txn) error
	LockForWrite(t *txn.Txn, key string) error
	LockForRead(t *txn.Txn, key string) error
	ReleaseReadLock(t *txn.Txn, key string)
	Savepoint(t *txn.Txn, name string, lsn wal.LSN)
	RollbackToSavepoint(t *txn.Txn, name string) (wal.LSN, error)
}

// lockKey builds the striped-lock key for a row: spec.md §4.3 locks at key
// granularity, and §4.3's SERIALIZABLE note simplifies predicate locking to
// "the full key of any scanned table" — tableScanKey is that full-table form.
func lockKey(table string, pk values.Value) string {
	return table + ":" + pk.String()
}

func tableScanKey(table string) string {
	return table + ":*"
}
