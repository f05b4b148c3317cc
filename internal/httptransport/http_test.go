package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
)

func newTestServer(t *testing.T, stateless bool) *Server {
	t.Helper()
	manager := pgdb.New(pgdb.Config{})
	logger := logging.New(false)

	srv, err := New(Options{
		Addr: "127.0.0.1:0",
		NewServer: func() *mcp.Server {
			return mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.0"}, nil)
		},
		Manager:                manager,
		Logger:                 logger,
		Stateless:              stateless,
		ServerPoolSize:         2,
		SessionTTL:             time.Hour,
		SessionCleanupInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !stateless {
		t.Cleanup(func() { srv.sessions.Stop() })
	}
	return srv
}

func TestHandleHealthReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleReadyReportsNotReadyWhenUninitialized(t *testing.T) {
	manager := pgdb.New(pgdb.Config{})
	handler := handleReady(manager)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for an uninitialized manager, got %d", rec.Code)
	}
}

func TestStatelessModeRejectsGETAndDELETE(t *testing.T) {
	srv := newTestServer(t, true)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req := httptest.NewRequest(method, "/mcp", nil)
		rec := httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405 for %s /mcp in stateless mode, got %d", method, rec.Code)
		}
	}
}

func TestStatefulModeRejectsMissingSessionIDOnGET(t *testing.T) {
	srv := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for GET /mcp with no mcp-session-id, got %d", rec.Code)
	}
}
