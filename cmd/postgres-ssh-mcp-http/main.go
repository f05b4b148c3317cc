// Command postgres-ssh-mcp-http is the HTTP Transport (C8) entry point:
// the streamable-HTTP binding of the Agent Protocol over /mcp, plus
// liveness/readiness/OAuth-metadata endpoints.
//
// Grounded on tendant-postgres-mcp-go's main.go runHTTP (pool/database
// setup before serving, signal-driven graceful shutdown) and the
// teacher's cmd/mysql-mcp-server/http.go startHTTPServer shape.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/config"
	"github.com/askdba/postgres-ssh-mcp/internal/httptransport"
	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
	"github.com/askdba/postgres-ssh-mcp/internal/server"
	"github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"
)

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

	if err := manager.Initialize(ctx); err != nil {
		log.Fatalf("connection manager initialize failed: %v", err)
	}

	httpServer, err := httptransport.New(httptransport.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.MCPHost, cfg.Port),
		NewServer: func() *mcp.Server {
			return server.New(manager, logger, audit, estimator, cfg.TokenTracking)
		},
		Manager:                manager,
		Logger:                 logger,
		Stateless:              cfg.Stateless,
		ServerPoolSize:         cfg.ServerPoolSize,
		SessionTTL:             cfg.SessionTTL,
		SessionCleanupInterval: cfg.SessionCleanupInterval,
		AllowedOrigins:         cfg.AllowedOrigins,
		AllowedHosts:           cfg.AllowedHosts,
		AuthMode:               cfg.AuthMode,
		OAuth: httptransport.OAuthConfig{
			Domain:                cfg.Auth0Domain,
			Audience:              cfg.Auth0Audience,
			ResourceDocumentation: cfg.ResourceDocumentation,
		},
		RateLimitEnabled: cfg.RateLimitEnabled,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
	})
	if err != nil {
		log.Fatalf("http transport init error: %v", err)
	}

	logger.Info("postgres-ssh-mcp-http listening", map[string]any{"addr": cfg.MCPHost, "port": cfg.Port})

	if err := httpServer.ListenAndServe(ctx); err != nil {
		logger.Error("http server exited with error", map[string]any{"error": err.Error()})
		_ = manager.Close()
		os.Exit(1)
	}

	_ = manager.Close()
	os.Exit(0)
}
