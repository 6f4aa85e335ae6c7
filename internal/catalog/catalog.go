package catalog

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ridgedb/ridgedb/internal/errs"
	"github.com/ridgedb/ridgedb/internal/storage/table"
	"github.com/ridgedb/ridgedb/internal/storage/wal"
	"github.com/ridgedb/ridgedb/internal/values"
)

// idCounter is a monotonically increasing surrogate id generator for one
// catalog table, seeded from whatever is already on disk at Rehydrate time
// (spec.md §4.6 "Surrogate IDs: generated monotonically ... stable for the
// object's lifetime").
type idCounter struct {
	mu sync.Mutex
	n  uint64
}

func (c *idCounter) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *idCounter) observe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id > c.n {
		c.n = id
	}
}

// Catalog is the in-memory mirror of the system database, backed by an
// ordinary table.Store over the reserved "system" database. It is the only
// component permitted to write catalog rows outside the unified executor
// pipeline, and only during Bootstrap (spec.md §4.6).
type Catalog struct {
	store *table.Store

	mu        sync.RWMutex
	databases map[string]uint64 // name -> database_id

	ids map[string]*idCounter
}

// New wires a Catalog over store, the table.Store for the "system" database.
func New(store *table.Store) *Catalog {
	c := &Catalog{
		store:     store,
		databases: make(map[string]uint64),
		ids:       make(map[string]*idCounter),
	}
	for _, s := range schemas() {
		c.ids[s.Name] = &idCounter{}
	}
	return c
}

// Bootstrap creates every catalog table if absent and registers the
// "system" database itself in sys_databases. Idempotent: calling it again
// against an already-bootstrapped store is a no-op (spec.md §4.6 bootstrap
// invariant — the system database exists before any user-visible operation).
func (c *Catalog) Bootstrap(txnID wal.TxnID) error {
	for _, s := range schemas() {
		if _, ok := c.store.GetMetadata(s.Name); ok {
			continue
		}
		if _, err := c.store.CreateTable(txnID, 0, s.Name, s.Cols, nil); err != nil {
			return err
		}
	}
	if err := c.Rehydrate(); err != nil {
		return err
	}
	if _, ok := c.databases[SystemDatabase]; !ok {
		if _, err := c.CreateDatabase(txnID, SystemDatabase); err != nil {
			return err
		}
	}
	return nil
}

// Rehydrate reloads the in-memory database-name cache and every surrogate id
// counter by scanning the catalog tables, so a restarted engine resumes
// where it left off (spec.md §4.6: "At startup the engine reads these
// tables to rebuild in-memory managers").
func (c *Catalog) Rehydrate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, counter := range c.ids {
		rows, err := c.store.ScanTable(name)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if len(r.Row.Values) > 0 {
				counter.observe(uint64(r.Row.Values[0].I))
			}
		}
	}
	rows, err := c.store.ScanTable(TableDatabases)
	if err != nil {
		return err
	}
	c.databases = make(map[string]uint64, len(rows))
	for _, r := range rows {
		c.databases[r.Row.Values[1].S] = uint64(r.Row.Values[0].I)
	}
	return nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// CreateDatabase registers a new database in sys_databases. Returns
// errs.ErrAlreadyExists if name is taken.
func (c *Catalog) CreateDatabase(txnID wal.TxnID, name string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.databases[name]; exists {
		return 0, errs.Wrapf(errs.ErrAlreadyExists, "database %s", name)
	}
	id := c.ids[TableDatabases].next()
	row := values.Row{Values: []values.Value{values.Int(int64(id)), values.Str(name), values.Str(now())}}
	if _, err := c.store.InsertRecord(txnID, TableDatabases, row); err != nil {
		return 0, err
	}
	c.databases[name] = id
	return id, nil
}

// DropDatabase removes a database's sys_databases row. Returns
// errs.ErrNotFound if it doesn't exist. The system database cannot be dropped.
func (c *Catalog) DropDatabase(txnID wal.TxnID, name string) error {
	if name == SystemDatabase {
		return errs.New("catalog", errs.CodePermissionDenied, errs.LevelError, "cannot drop the system database", "")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.databases[name]; !exists {
		return errs.Wrapf(errs.ErrNotFound, "database %s", name)
	}
	handle, ok, err := c.findRow(TableDatabases, func(r values.Row) bool { return r.Values[1].S == name })
	if err != nil {
		return err
	}
	if ok {
		if err := c.store.DeleteRecord(txnID, TableDatabases, handle); err != nil {
			return err
		}
	}
	delete(c.databases, name)
	return nil
}

// ListDatabases returns every known database name, "system" included.
func (c *Catalog) ListDatabases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.databases))
	for name := range c.databases {
		out = append(out, name)
	}
	return out
}

// DatabaseID returns the surrogate id for name, or (0, false).
func (c *Catalog) DatabaseID(name string) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.databases[name]
	return id, ok
}

// TableIndexSpec describes one sys_indexes row joined against its owning
// table's name, for rehydrating a database's in-memory index.Manager at
// startup. Index content is never persisted (spec.md §4.4): only the
// table/column/uniqueness triple survives a restart, via the catalog.
type TableIndexSpec struct {
	Table  string
	Column string
	Unique bool
}

// IndexesForDatabase joins sys_tables and sys_indexes to list every index
// registered against any table of the named database, so internal/engine
// can rebuild index.Manager for that database from a fresh table scan
// (the same rebuild-from-scan `CreateIndexStmt` performs, just run once at
// startup instead of on demand).
func (c *Catalog) IndexesForDatabase(database string) ([]TableIndexSpec, error) {
	dbID, ok := c.DatabaseID(database)
	if !ok {
		return nil, fmt.Errorf("database %q: %w", database, errs.ErrNotFound)
	}
	tableRows, err := c.store.ScanTable(TableTables)
	if err != nil {
		return nil, err
	}
	names := make(map[uint64]string, len(tableRows))
	for _, r := range tableRows {
		if uint64(r.Row.Values[1].I) == dbID {
			names[uint64(r.Row.Values[0].I)] = r.Row.Values[2].S
		}
	}
	idxRows, err := c.store.ScanTable(TableIndexes)
	if err != nil {
		return nil, err
	}
	out := make([]TableIndexSpec, 0, len(idxRows))
	for _, r := range idxRows {
		name, ok := names[uint64(r.Row.Values[1].I)]
		if !ok {
			continue
		}
		out = append(out, TableIndexSpec{Table: name, Column: r.Row.Values[2].S, Unique: r.Row.Values[3].I != 0})
	}
	return out, nil
}

// RegisterTable writes a sys_tables row plus one sys_columns row per column
// (spec.md §4.6: "All CREATE/DROP/ALTER DDL on user objects writes a
// corresponding row to sys_tables/sys_columns").
func (c *Catalog) RegisterTable(txnID wal.TxnID, dbID, tableID uint64, name string, cols []table.ColumnDef) error {
	row := values.Row{Values: []values.Value{values.Int(int64(tableID)), values.Int(int64(dbID)), values.Str(name)}}
	if _, err := c.store.InsertRecord(txnID, TableTables, row); err != nil {
		return err
	}
	for i, col := range cols {
		id := c.ids[TableColumns].next()
		cr := values.Row{Values: []values.Value{
			values.Int(int64(id)),
			values.Int(int64(tableID)),
			values.Str(col.Name),
			values.Str(col.Type),
			boolValue(col.Nullable),
			values.Int(int64(i)),
			boolValue(col.PK),
			boolValue(col.Unique),
		}}
		if _, err := c.store.InsertRecord(txnID, TableColumns, cr); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterTable removes a table's sys_tables row and every sys_columns row
// referencing it.
func (c *Catalog) UnregisterTable(txnID wal.TxnID, tableID uint64) error {
	if handle, ok, err := c.findRow(TableTables, func(r values.Row) bool { return uint64(r.Values[0].I) == tableID }); err != nil {
		return err
	} else if ok {
		if err := c.store.DeleteRecord(txnID, TableTables, handle); err != nil {
			return err
		}
	}
	rows, err := c.store.ScanTable(TableColumns)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if uint64(r.Row.Values[1].I) == tableID {
			if err := c.store.DeleteRecord(txnID, TableColumns, r.Handle); err != nil {
				return err
			}
		}
	}
	return nil
}

// RegisterIndex writes a sys_indexes row for a new secondary index.
func (c *Catalog) RegisterIndex(txnID wal.TxnID, tableID uint64, column string, unique bool) (uint64, error) {
	id := c.ids[TableIndexes].next()
	row := values.Row{Values: []values.Value{values.Int(int64(id)), values.Int(int64(tableID)), values.Str(column), boolValue(unique)}}
	if _, err := c.store.InsertRecord(txnID, TableIndexes, row); err != nil {
		return 0, err
	}
	return id, nil
}

// NextTableID allocates the next surrogate table_id (tables themselves are
// stored by the engine's per-database table.Store, which has no id of its
// own, so the catalog is the single source of table identity).
func (c *Catalog) NextTableID() uint64 { return c.ids[TableTables].next() }

// CreateUser writes a new sys_users row. Returns errs.ErrAlreadyExists if
// username is taken.
func (c *Catalog) CreateUser(txnID wal.TxnID, username, passwordHash string) (uint64, error) {
	if _, ok, err := c.findRow(TableUsers, func(r values.Row) bool { return r.Values[1].S == username }); err != nil {
		return 0, err
	} else if ok {
		return 0, errs.Wrapf(errs.ErrAlreadyExists, "user %s", username)
	}
	id := c.ids[TableUsers].next()
	row := values.Row{Values: []values.Value{
		values.Int(int64(id)), values.Str(username), values.Str(passwordHash), values.Int(1), values.Str(now()),
	}}
	if _, err := c.store.InsertRecord(txnID, TableUsers, row); err != nil {
		return 0, err
	}
	return id, nil
}

// DropUser removes a sys_users row by name.
func (c *Catalog) DropUser(txnID wal.TxnID, username string) error {
	handle, ok, err := c.findRow(TableUsers, func(r values.Row) bool { return r.Values[1].S == username })
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "user %s", username)
	}
	return c.store.DeleteRecord(txnID, TableUsers, handle)
}

// FindUser returns the sys_users row for username, if present.
func (c *Catalog) FindUser(username string) (values.Row, bool, error) {
	rows, err := c.store.ScanTable(TableUsers)
	if err != nil {
		return values.Row{}, false, err
	}
	for _, r := range rows {
		if r.Row.Values[1].S == username {
			return r.Row, true, nil
		}
	}
	return values.Row{}, false, nil
}

// GranteeUser and GranteeRole are the recognized grantee_type values
// (spec.md §3 Privilege: "grantee_type ∈ {USER, ROLE}").
const (
	GranteeUser = "USER"
	GranteeRole = "ROLE"
)

// Wildcard matches any database/table at check time (spec.md §3).
const Wildcard = "*"

// Grant writes a sys_privileges row for
// {granteeType, granteeName, database, table, privilege, grantor}. database
// and table may be Wildcard to mean "all" (spec.md §3).
func (c *Catalog) Grant(txnID wal.TxnID, granteeType, granteeName, database, tbl, privilege, grantor string) error {
	id := c.ids[TablePrivileges].next()
	row := values.Row{Values: []values.Value{
		values.Int(int64(id)), values.Str(granteeType), values.Str(granteeName),
		values.Str(database), values.Str(tbl), values.Str(privilege), values.Str(grantor),
	}}
	_, err := c.store.InsertRecord(txnID, TablePrivileges, row)
	return err
}

// Revoke removes the sys_privileges row matching
// (granteeType, granteeName, database, table, privilege), if any.
func (c *Catalog) Revoke(txnID wal.TxnID, granteeType, granteeName, database, tbl, privilege string) error {
	handle, ok, err := c.findRow(TablePrivileges, func(r values.Row) bool {
		return r.Values[1].S == granteeType && r.Values[2].S == granteeName &&
			r.Values[3].S == database && r.Values[4].S == tbl && r.Values[5].S == privilege
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.store.DeleteRecord(txnID, TablePrivileges, handle)
}

// Privileges returns every sys_privileges row granted to
// (granteeType, granteeName).
func (c *Catalog) Privileges(granteeType, granteeName string) ([]values.Row, error) {
	rows, err := c.store.ScanTable(TablePrivileges)
	if err != nil {
		return nil, err
	}
	var out []values.Row
	for _, r := range rows {
		if r.Row.Values[1].S == granteeType && r.Row.Values[2].S == granteeName {
			out = append(out, r.Row)
		}
	}
	return out, nil
}

// AllPrivileges returns every row in sys_privileges, used by the auth
// manager to warm its in-memory cache at startup (spec.md §4.9 "Startup
// reconstructs the cache from sys_privileges").
func (c *Catalog) AllPrivileges() ([]values.Row, error) {
	rows, err := c.store.ScanTable(TablePrivileges)
	if err != nil {
		return nil, err
	}
	out := make([]values.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Row)
	}
	return out, nil
}

// SetPassword updates username's password_hash in sys_users in place.
func (c *Catalog) SetPassword(txnID wal.TxnID, username, passwordHash string) error {
	handle, row, ok, err := c.findRowWithData(TableUsers, func(r values.Row) bool { return r.Values[1].S == username })
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "user %s", username)
	}
	row.Values[2] = values.Str(passwordHash)
	_, err = c.store.UpdateRecord(txnID, TableUsers, handle, row)
	return err
}

func (c *Catalog) findRowWithData(tableName string, match func(values.Row) bool) (values.RowHandle, values.Row, bool, error) {
	rows, err := c.store.ScanTable(tableName)
	if err != nil {
		return values.RowHandle{}, values.Row{}, false, err
	}
	for _, r := range rows {
		if match(r.Row) {
			return r.Handle, r.Row, true, nil
		}
	}
	return values.RowHandle{}, values.Row{}, false, nil
}

func (c *Catalog) findRow(tableName string, match func(values.Row) bool) (values.RowHandle, bool, error) {
	rows, err := c.store.ScanTable(tableName)
	if err != nil {
		return values.RowHandle{}, false, err
	}
	for _, r := range rows {
		if match(r.Row) {
			return r.Handle, true, nil
		}
	}
	return values.RowHandle{}, false, nil
}

func boolValue(b bool) values.Value {
	if b {
		return values.Int(1)
	}
	return values.Int(0)
}

// FormatBool renders a sys_* boolean-as-INT column back to text, used by
// SHOW-style introspection.
func FormatBool(v values.Value) string {
	if v.I != 0 {
		return "true"
	}
	return "false"
}

// ParseID is a small helper for callers building predicates against
// catalog foreign-key style INT columns from string input (e.g. CLI args).
func ParseID(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errs.Wrap("catalog", errs.CodeInvalidParameter, errs.LevelError, "invalid id", err)
	}
	return n, nil
}
