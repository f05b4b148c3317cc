package tools

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
)

// expectedToolNames is the specification's fixed tool list, in the
// order Register adds them.
var expectedToolNames = []string{
	"execute_query",
	"explain_query",
	"list_schemas",
	"list_tables",
	"describe_table",
	"list_databases",
	"get_connection_status",
	"list_active_connections",
	"list_long_running_queries",
	"get_database_version",
	"get_database_size",
	"get_table_stats",
}

func TestExpectedToolNamesAreTwelveAndUnique(t *testing.T) {
	if len(expectedToolNames) != 12 {
		t.Fatalf("expected 12 tool names, got %d", len(expectedToolNames))
	}
	seen := make(map[string]bool, len(expectedToolNames))
	for _, name := range expectedToolNames {
		if seen[name] {
			t.Errorf("duplicate tool name %q", name)
		}
		seen[name] = true
	}
}

// TestRegisterDoesNotPanic exercises Register against a real, unconnected
// Manager and server, verifying the wiring (handler signatures, AddTool
// type parameters) is consistent without requiring a live database.
func TestRegisterDoesNotPanic(t *testing.T) {
	manager := pgdb.New(pgdb.Config{})
	logger := logging.New(false)
	audit, err := logging.NewAuditLogger("")
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	registry := New(manager, logger, audit, nil, false)

	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.0"}, nil)
	registry.Register(server)
}
