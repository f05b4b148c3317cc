// Command postgres-ssh-mcp is the Stdio Transport (C7) entry point: it
// parses configuration, constructs the Connection Manager, builds the
// Protocol Server, and connects it to the process's stdin/stdout.
//
// Grounded on the teacher's cmd/mysql-mcp-server/main.go construction
// sequence (config -> db handle -> mcp.NewServer -> server.Run), with
// initialize() moved to a background retry loop per the specification:
// the stdio listener must stay alive and responsive even while the
// database (and its SSH tunnel) is still unreachable.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/config"
	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
	"github.com/askdba/postgres-ssh-mcp/internal/server"
	"github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"
)

// initRetryInterval is how often a failed initialize() is retried.
// Fixed per the specification rather than configurable: the stdio
// transport's readiness story hinges on this exact cadence being
// predictable for trust-on-first-use host-key rewrites.
const initRetryInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.JSONLogging)

	audit, err := logging.NewAuditLogger(cfg.AuditLogPath)
	if err != nil {
		log.Fatalf("audit log init error: %v", err)
	}
	defer audit.Close()

	var estimator tokenestimate.Estimator
	if cfg.TokenTracking {
		estimator, err = tokenestimate.New(cfg.TokenModel)
		if err != nil {
			log.Fatalf("token estimator init error: %v", err)
		}
	}

	manager := pgdb.New(cfg.PgdbConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-retryTimer.C:
				if err := manager.Initialize(ctx); err != nil {
					logger.Error("connection manager initialize failed, retrying", map[string]any{
						"error":         err.Error(),
						"retry_seconds": initRetryInterval.Seconds(),
					})
					_ = manager.Close()
					retryTimer.Reset(initRetryInterval)
					continue
				}
				logger.Info("connection manager ready", nil)
				return
			}
		}
	}()

	srv := server.New(manager, logger, audit, estimator, cfg.TokenTracking)

	runErrCh := make(chan error, 1)
	go func() {
		t := &mcp.LoggingTransport{Transport: &mcp.StdioTransport{}, Writer: os.Stderr}
		runErrCh <- srv.Run(ctx, t)
	}()

	select {
	case <-ctx.Done():
		retryTimer.Stop()
		if err := manager.Close(); err != nil {
			logger.Warn("error closing connection manager during shutdown", map[string]any{"error": err.Error()})
		}
		os.Exit(0)
	case err := <-runErrCh:
		retryTimer.Stop()
		_ = manager.Close()
		if err != nil {
			logger.Error("protocol server exited with error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		os.Exit(0)
	}
}
