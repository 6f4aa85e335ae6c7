// Package catalog implements C7: the bootstrapped "system" database of
// meta-tables that describes every database, table, column, index, user,
// role, and privilege the engine knows about. Catalog tables are ordinary
// tables (spec.md §3) — this package drives the same table.Store any user
// table uses, it just owns a reserved database and a fixed set of schemas.
package catalog

import "github.com/ridgedb/ridgedb/internal/storage/table"

// SystemDatabase is the reserved name bootstrapped before any user-visible
// operation (spec.md §3 "Bootstrap invariant").
const SystemDatabase = "system"

// Names of every recognized catalog table (spec.md §3).
const (
	TableDatabases       = "sys_databases"
	TableUsers           = "sys_users"
	TableRoles           = "sys_roles"
	TableTables          = "sys_tables"
	TableColumns         = "sys_columns"
	TableIndexes         = "sys_indexes"
	TableConstraints     = "sys_constraints"
	TableViews           = "sys_views"
	TablePrivileges      = "sys_privileges"
	TableAuditLogs       = "sys_audit_logs"
	TableTransactions    = "sys_transactions"
	TableSavepoints      = "sys_savepoints"
	TableClusterNodes    = "sys_cluster_nodes"
	TableDistributedTxns = "sys_distributed_txns"
	TableTemporalTables  = "sys_temporal_tables"
)

func col(name, typ string, nullable bool) table.ColumnDef {
	return table.ColumnDef{Name: name, Type: typ, Nullable: nullable}
}

// schemas returns every catalog table's column list, in the order they must
// be created during bootstrap. Every catalog table carries a surrogate
// `*_id` primary key (spec.md §3).
func schemas() []struct {
	Name string
	Cols []table.ColumnDef
} {
	return []struct {
		Name string
		Cols []table.ColumnDef
	}{
		{TableDatabases, []table.ColumnDef{
			{Name: "database_id", Type: "INT", PK: true},
			col("name", "STRING", false),
			col("created_at", "STRING", false),
		}},
		{TableUsers, []table.ColumnDef{
			{Name: "user_id", Type: "INT", PK: true},
			col("username", "STRING", false),
			col("password_hash", "STRING", false),
			col("active", "INT", false),
			col("created_at", "STRING", false),
		}},
		{TableRoles, []table.ColumnDef{
			{Name: "role_id", Type: "INT", PK: true},
			col("name", "STRING", false),
		}},
		{TableTables, []table.ColumnDef{
			{Name: "table_id", Type: "INT", PK: true},
			col("database_id", "INT", false),
			col("name", "STRING", false),
		}},
		{TableColumns, []table.ColumnDef{
			{Name: "column_id", Type: "INT", PK: true},
			col("table_id", "INT", false),
			col("name", "STRING", false),
			col("type", "STRING", false),
			col("nullable", "INT", false),
			col("ordinal", "INT", false),
			col("is_pk", "INT", false),
			col("is_unique", "INT", false),
		}},
		{TableIndexes, []table.ColumnDef{
			{Name: "index_id", Type: "INT", PK: true},
			col("table_id", "INT", false),
			col("column_name", "STRING", false),
			col("is_unique", "INT", false),
		}},
		{TableConstraints, []table.ColumnDef{
			{Name: "constraint_id", Type: "INT", PK: true},
			col("table_id", "INT", false),
			col("kind", "STRING", false),
			col("columns", "STRING", false),
			col("ref_table", "STRING", true),
			col("ref_columns", "STRING", true),
			col("check_expr", "STRING", true),
		}},
		{TableViews, []table.ColumnDef{
			{Name: "view_id", Type: "INT", PK: true},
			col("database_id", "INT", false),
			col("name", "STRING", false),
			col("definition", "STRING", false),
		}},
		{TablePrivileges, []table.ColumnDef{
			{Name: "privilege_id", Type: "INT", PK: true},
			col("grantee_type", "STRING", false), // USER or ROLE
			col("grantee_name", "STRING", false),
			col("database", "STRING", false), // may be "*"
			col("table", "STRING", false),     // may be "*"
			col("privilege", "STRING", false), // SELECT/INSERT/UPDATE/DELETE/CREATE/DROP/ALTER/ALL
			col("grantor", "STRING", false),
		}},
		{TableAuditLogs, []table.ColumnDef{
			{Name: "audit_id", Type: "INT", PK: true},
			col("username", "STRING", false),
			col("action", "STRING", false),
			col("at", "STRING", false),
		}},
		{TableTransactions, []table.ColumnDef{
			{Name: "txn_id", Type: "INT", PK: true},
			col("status", "STRING", false),
			col("isolation", "STRING", false),
			col("started_at", "STRING", false),
		}},
		{TableSavepoints, []table.ColumnDef{
			{Name: "savepoint_id", Type: "INT", PK: true},
			col("txn_id", "INT", false),
			col("name", "STRING", false),
		}},
		{TableClusterNodes, []table.ColumnDef{
			{Name: "node_id", Type: "INT", PK: true},
			col("address", "STRING", false),
			col("role", "STRING", false),
		}},
		{TableDistributedTxns, []table.ColumnDef{
			{Name: "distributed_txn_id", Type: "INT", PK: true},
			col("coordinator_node_id", "INT", false),
			col("status", "STRING", false),
		}},
		{TableTemporalTables, []table.ColumnDef{
			{Name: "temporal_id", Type: "INT", PK: true},
			col("table_id", "INT", false),
			col("as_of_policy", "STRING", false),
		}},
	}
}
