//go:build integration

package pgdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcwait "github.com/testcontainers/testcontainers-go/wait"

	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
)

// TestManagerAgainstRealPostgres exercises Initialize and ExecuteQuery
// (plain SELECT, cursor truncation, and the read-only guard) against a
// disposable Postgres container. Grounded on the teacher's
// tests/integration container-lifecycle pattern, swapped from the MySQL
// testcontainers module to the Postgres one.
func TestManagerAgainstRealPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mcp_test"),
		postgres.WithUsername("mcp_test"),
		postgres.WithPassword("mcp_test"),
		testcontainers.WithWaitStrategy(tcwait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	m := pgdb.New(pgdb.Config{
		Host:                 host,
		Port:                 mappedPort.Int(),
		User:                 "mcp_test",
		Password:             "mcp_test",
		Database:             "mcp_test",
		ReadOnly:             true,
		MaxRows:              5,
		MaxConcurrentQueries: 4,
	})
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer m.Close()

	t.Run("plain select", func(t *testing.T) {
		res, err := m.ExecuteQuery(ctx, "SELECT 1 AS one", nil)
		if err != nil {
			t.Fatalf("ExecuteQuery: %v", err)
		}
		if res.RowCount != 1 || res.Truncated {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("cursor truncation", func(t *testing.T) {
		res, err := m.ExecuteQuery(ctx, "SELECT generate_series(1,100) AS n", nil)
		if err != nil {
			t.Fatalf("ExecuteQuery: %v", err)
		}
		if res.RowCount != 5 || !res.Truncated {
			t.Fatalf("expected 5 truncated rows, got %+v", res)
		}
	})

	t.Run("read-only guard rejects DELETE before touching postgres", func(t *testing.T) {
		if _, err := m.ExecuteQuery(ctx, "DELETE FROM pg_database", nil); err == nil {
			t.Fatal("expected DELETE to be rejected by the read-only guard")
		}
	})

	t.Run("health check", func(t *testing.T) {
		if err := m.HealthCheck(ctx); err != nil {
			t.Fatalf("HealthCheck: %v", err)
		}
	})
}
