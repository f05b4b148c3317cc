// Package tools is the Tool Registry (C5): it declares the Agent
// Protocol tools with their input/output schemas and translates each
// invocation into parameterised SQL against the Connection Manager,
// shaping the driver result back into the tool's declared output.
//
// Grounded on the teacher's cmd/mysql-mcp-server/types.go (the
// input/output struct shapes) and tools.go (one handler function per
// tool), adapted from MySQL's SHOW-statement introspection to
// Postgres's information_schema/pg_catalog introspection.
package tools

import "github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"

type ExecuteQueryInput struct {
	SQL     string `json:"sql" jsonschema:"SQL statement to execute"`
	Params  []any  `json:"params,omitempty" jsonschema:"positional query parameters bound as $1, $2, ..."`
	MaxRows *int   `json:"max_rows,omitempty" jsonschema:"optional row limit applied after the configured maximum; it can only lower the number of rows returned"`
}

type QueryResult struct {
	Columns   []string         `json:"columns" jsonschema:"column names, in order"`
	Rows      [][]any          `json:"rows" jsonschema:"rows of values, one slice per row"`
	RowCount  int              `json:"row_count" jsonschema:"number of rows returned"`
	Truncated bool             `json:"truncated" jsonschema:"true if more rows existed than max_rows allowed"`
	Command   string           `json:"command,omitempty" jsonschema:"driver command tag"`
	Tokens    *tokenestimate.Usage `json:"tokens,omitempty" jsonschema:"estimated token usage, present only when token tracking is enabled"`
}

type ExplainQueryInput struct {
	SQL     string `json:"sql" jsonschema:"read-only SQL statement to explain"`
	Params  []any  `json:"params,omitempty" jsonschema:"positional query parameters bound as $1, $2, ..."`
	Analyze bool   `json:"analyze,omitempty" jsonschema:"actually execute the statement and report real timings, default false"`
	Format  string `json:"format,omitempty" jsonschema:"plan output format: text, json, yaml, or xml, default text"`
}

type ListSchemasInput struct {
	IncludeSystem bool `json:"includeSystem,omitempty" jsonschema:"include pg_catalog/information_schema/pg_toast/pg_temp schemas, default false"`
}

type SchemaInfo struct {
	Name  string `json:"schema_name" jsonschema:"schema name"`
	Owner string `json:"schema_owner" jsonschema:"role that owns the schema"`
	Type  string `json:"schema_type" jsonschema:"system or user"`
}

type ListSchemasOutput struct {
	Schemas []SchemaInfo `json:"schemas" jsonschema:"schemas in the current database"`
}

type ListTablesInput struct {
	Schema       string `json:"schema,omitempty" jsonschema:"schema name to list tables from (all non-system schemas if empty)"`
	IncludeViews bool   `json:"includeViews,omitempty" jsonschema:"include views and materialized views alongside base tables, default false"`
}

type TableInfo struct {
	Schema            string `json:"schema" jsonschema:"schema name"`
	Name              string `json:"table_name" jsonschema:"table name"`
	Type              string `json:"table_type" jsonschema:"table, view, or materialized view"`
	EstimatedRowCount int64  `json:"estimated_row_count" jsonschema:"planner row estimate from pg_class.reltuples"`
	TotalSizeBytes    int64  `json:"total_size" jsonschema:"total on-disk size in bytes, including indexes and toast"`
}

type ListTablesOutput struct {
	Tables []TableInfo `json:"tables" jsonschema:"tables visible in the selected schema(s)"`
}

type DescribeTableInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"schema name, default public"`
	Table  string `json:"table" jsonschema:"table name"`
}

type ColumnInfo struct {
	Name     string `json:"name" jsonschema:"column name"`
	Type     string `json:"type" jsonschema:"Postgres data type"`
	Nullable bool   `json:"nullable" jsonschema:"true if the column accepts NULL"`
	Default  string `json:"default,omitempty" jsonschema:"default expression, if any"`
}

type ConstraintInfo struct {
	Name             string `json:"name" jsonschema:"constraint name"`
	Type             string `json:"type" jsonschema:"constraint type: p=primary key, f=foreign key, u=unique, c=check"`
	Columns          string `json:"columns" jsonschema:"constraint definition from pg_get_constraintdef, naming the constrained columns"`
	ReferencedTable  string `json:"referenced_table,omitempty" jsonschema:"referenced table, for foreign keys"`
	ReferencedColumn string `json:"referenced_column,omitempty" jsonschema:"referenced column, for foreign keys"`
}

type IndexInfo struct {
	Name      string `json:"name" jsonschema:"index name"`
	Columns   string `json:"columns" jsonschema:"index definition from pg_get_indexdef, including the indexed columns or expression"`
	IsUnique  bool   `json:"is_unique" jsonschema:"true if the index enforces uniqueness"`
	IsPrimary bool   `json:"is_primary" jsonschema:"true if the index backs the primary key"`
}

type DescribeTableOutput struct {
	Columns     []ColumnInfo     `json:"columns" jsonschema:"column definitions, in ordinal order"`
	Constraints []ConstraintInfo `json:"constraints" jsonschema:"primary/foreign/unique/check constraints"`
	Indexes     []IndexInfo      `json:"indexes" jsonschema:"indexes defined on the table"`
}

type ListDatabasesInput struct{}

type DatabaseInfo struct {
	Name      string `json:"name" jsonschema:"database name"`
	Owner     string `json:"owner" jsonschema:"role that owns the database"`
	Encoding  string `json:"encoding" jsonschema:"server-side character encoding"`
	Collation string `json:"collation" jsonschema:"default collation (LC_COLLATE)"`
	Size      string `json:"size" jsonschema:"human-readable on-disk size"`
}

type ListDatabasesOutput struct {
	Databases []DatabaseInfo `json:"databases" jsonschema:"databases visible to the connected role"`
}

type GetConnectionStatusInput struct{}

type TunnelStatusInfo struct {
	State     string `json:"state" jsonschema:"tunnel state: disconnected, connecting, connected, reconnecting, failed"`
	LocalPort int    `json:"local_port,omitempty" jsonschema:"local forwarding port, when connected"`
}

type GetConnectionStatusOutput struct {
	Initialized          bool              `json:"initialized" jsonschema:"true if the connection manager has a usable pool"`
	Tunnel               *TunnelStatusInfo `json:"tunnel,omitempty" jsonschema:"SSH tunnel status, present only when tunneling is configured"`
	SSLEnabled            bool             `json:"ssl_enabled" jsonschema:"true if the pool connects over TLS"`
	Port                  int              `json:"port" jsonschema:"port the pool currently connects to"`
	InFlight              int              `json:"in_flight" jsonschema:"queries currently past the concurrency gate"`
	Waiters               int              `json:"waiters" jsonschema:"queries queued behind the concurrency gate"`
	MaxConcurrentQueries  int              `json:"max_concurrent_queries" jsonschema:"configured concurrency gate size"`
}

type GetDatabaseVersionInput struct{}

type GetDatabaseVersionOutput struct {
	Version string `json:"version" jsonschema:"full version() string"`
}

type GetDatabaseSizeInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of largest tables to report, default 10"`
}

type TableSizeInfo struct {
	Schema     string `json:"schema" jsonschema:"schema name"`
	Table      string `json:"table" jsonschema:"table name"`
	SizeBytes  int64  `json:"size_bytes" jsonschema:"total on-disk size in bytes, including indexes and toast"`
	SizePretty string `json:"size_pretty" jsonschema:"human-readable size"`
}

type GetDatabaseSizeOutput struct {
	Database      string          `json:"database" jsonschema:"current database name"`
	SizeBytes     int64           `json:"size_bytes" jsonschema:"total on-disk size of the database in bytes"`
	SizePretty    string          `json:"size_pretty" jsonschema:"human-readable database size"`
	LargestTables []TableSizeInfo `json:"largestTables" jsonschema:"largest tables in the database by total size, descending"`
}

type GetTableStatsInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"schema name, default public"`
	Table  string `json:"table" jsonschema:"table name"`
}

type GetTableStatsOutput struct {
	RowEstimate     int64 `json:"row_estimate" jsonschema:"planner row estimate from pg_class.reltuples"`
	TableSizeBytes  int64 `json:"table_size_bytes" jsonschema:"heap size in bytes"`
	IndexSizeBytes  int64 `json:"index_size_bytes" jsonschema:"combined index size in bytes"`
	TotalSizeBytes  int64 `json:"total_size_bytes" jsonschema:"table + indexes + toast size in bytes"`
}

type ListActiveConnectionsInput struct{}

type ActiveConnectionInfo struct {
	PID        int    `json:"pid" jsonschema:"backend process id"`
	Username   string `json:"username,omitempty" jsonschema:"connected role"`
	Database   string `json:"database,omitempty" jsonschema:"connected database"`
	State      string `json:"state,omitempty" jsonschema:"backend state (active, idle, idle in transaction, ...)"`
	Query      string `json:"query,omitempty" jsonschema:"most recent query text"`
	QueryStart string `json:"query_start,omitempty" jsonschema:"when the current/last query started, RFC3339"`
}

type ListActiveConnectionsOutput struct {
	Connections []ActiveConnectionInfo `json:"connections" jsonschema:"backends visible in pg_stat_activity"`
}

type ListLongRunningQueriesInput struct {
	MinDurationSeconds int `json:"min_duration_seconds,omitempty" jsonschema:"minimum running time to report, default 5"`
}

type LongRunningQueryInfo struct {
	PID         int    `json:"pid" jsonschema:"backend process id"`
	DurationSec int64  `json:"duration_seconds" jsonschema:"how long the current query has been running"`
	State       string `json:"state,omitempty" jsonschema:"backend state"`
	Query       string `json:"query,omitempty" jsonschema:"query text"`
}

type ListLongRunningQueriesOutput struct {
	Queries []LongRunningQueryInfo `json:"queries" jsonschema:"backends whose current query has run longer than the threshold"`
}
