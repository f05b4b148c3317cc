// Package server implements the Protocol Server (C6): construction of
// the MCP server object and registration of the Tool Registry against
// it. It carries no transport concerns of its own — the Stdio (C7) and
// HTTP (C8) transports each call New to obtain a freshly wired server.
//
// Grounded on the teacher's cmd/mysql-mcp-server/main.go mcp.NewServer
// construction and tool-registration call sequence.
package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
	"github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"
	"github.com/askdba/postgres-ssh-mcp/internal/tools"
)

// Name is the Implementation.Name the Agent Protocol's initialize
// response reports as result.serverInfo.name.
const Name = "postgresql-ssh-mcp"

// Version is the Implementation.Version reported in initialize.
const Version = "0.1.0"

// New constructs an *mcp.Server with all twelve tools registered against
// manager. logger, audit, and estimator follow the Tool Registry's own
// nil-tolerance (see tools.New).
func New(manager *pgdb.Manager, logger *logging.Logger, audit *logging.AuditLogger, estimator tokenestimate.Estimator, tokenTracking bool) *mcp.Server {
	impl := &mcp.Implementation{
		Name:    Name,
		Version: Version,
	}
	srv := mcp.NewServer(impl, nil)

	registry := tools.New(manager, logger, audit, estimator, tokenTracking)
	registry.Register(srv)

	return srv
}
