package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
	"github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"
)

// Registry is the Tool Registry (C5): it binds the Connection Manager
// and the ambient logging/token-estimation stack into the twelve tool
// handlers and registers them against an MCP server.
//
// Unlike the teacher's package-level db/logInfo/tokenTracking globals,
// every dependency here is a constructor argument, per the
// specification's design note on parsing config once and passing it by
// value into component constructors.
type Registry struct {
	manager       *pgdb.Manager
	logger        *logging.Logger
	audit         *logging.AuditLogger
	estimator     tokenestimate.Estimator
	tokenTracking bool
}

// New constructs a Registry. estimator and audit may be nil; audit is
// treated as disabled (Log is then a no-op) and estimator is only
// dereferenced when tokenTracking is true.
func New(manager *pgdb.Manager, logger *logging.Logger, audit *logging.AuditLogger, estimator tokenestimate.Estimator, tokenTracking bool) *Registry {
	return &Registry{
		manager:       manager,
		logger:        logger,
		audit:         audit,
		estimator:     estimator,
		tokenTracking: tokenTracking,
	}
}

// Register adds all twelve tools to server, in the fixed order the
// specification's testable properties enumerate them.
func (r *Registry) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "execute_query",
		Description: "Execute a SQL statement against the configured PostgreSQL database, subject to the read-only guard when enabled",
	}, r.ExecuteQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "explain_query",
		Description: "Return the query plan for a read-only SQL statement via EXPLAIN",
	}, wrapTool(r, "explain_query", r.ExplainQuery))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_schemas",
		Description: "List non-system schemas in the current database",
	}, wrapTool(r, "list_schemas", r.ListSchemas))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tables",
		Description: "List base tables, optionally filtered to one schema",
	}, wrapTool(r, "list_tables", r.ListTables))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "describe_table",
		Description: "Describe a table's columns, constraints, and indexes",
	}, wrapTool(r, "describe_table", r.DescribeTable))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_databases",
		Description: "List databases visible to the connected role",
	}, wrapTool(r, "list_databases", r.ListDatabases))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_connection_status",
		Description: "Report SSH tunnel, pool, and concurrency gate status",
	}, wrapTool(r, "get_connection_status", r.GetConnectionStatus))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_active_connections",
		Description: "List backends currently connected to the server",
	}, wrapTool(r, "list_active_connections", r.ListActiveConnections))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_long_running_queries",
		Description: "List backends whose current query has run longer than a threshold",
	}, wrapTool(r, "list_long_running_queries", r.ListLongRunningQueries))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_database_version",
		Description: "Report the connected server's version string",
	}, wrapTool(r, "get_database_version", r.GetDatabaseVersion))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_database_size",
		Description: "Report a database's on-disk size",
	}, wrapTool(r, "get_database_size", r.GetDatabaseSize))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_table_stats",
		Description: "Report a table's row estimate and on-disk size breakdown",
	}, wrapTool(r, "get_table_stats", r.GetTableStats))
}
