package httptransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/obfuscate"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
)

// Version is reported in GET /health responses.
const Version = "0.1.0"

// Options configures the HTTP transport's construction, mirroring the
// environment surface config.Config exposes for MCP_* settings.
type Options struct {
	Addr                   string
	NewServer              func() *mcp.Server
	Manager                *pgdb.Manager
	Logger                 *logging.Logger
	Stateless              bool
	ServerPoolSize         int
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration
	AllowedOrigins         []string
	AllowedHosts           []string
	AuthMode               string
	OAuth                  OAuthConfig
	RateLimitEnabled       bool
	RateLimitRPS           float64
	RateLimitBurst         int
}

// Server wraps the *http.Server serving the Agent Protocol's streamable
// HTTP binding plus liveness/readiness endpoints, grounded on the
// teacher's startHTTPServer graceful-shutdown shape and go-sdk's
// mcp.NewStreamableHTTPHandler reference usage.
type Server struct {
	httpServer  *http.Server
	sessions    *SessionStore
	logger      *logging.Logger
	rateLimiter *RateLimiter
}

type serverKeyType struct{}

var serverKey = serverKeyType{}

// New builds the HTTP transport's handler tree and wraps it in an
// *http.Server, but does not start listening.
func New(opts Options) (*Server, error) {
	var verifier *OAuthVerifier
	if opts.AuthMode == "oauth" {
		v, err := NewOAuthVerifier(context.Background(), opts.OAuth)
		if err != nil {
			return nil, fmt.Errorf("oauth verifier init: %w", err)
		}
		verifier = v
	}

	var sessions *SessionStore
	var pool *ServerPool[*mcp.Server]
	if opts.Stateless {
		pool = NewServerPool(opts.ServerPoolSize, opts.NewServer)
	} else {
		sessions = NewSessionStore(opts.SessionTTL, opts.SessionCleanupInterval)
	}

	getServer := func(r *http.Request) *mcp.Server {
		if srv, ok := r.Context().Value(serverKey).(*mcp.Server); ok {
			return srv
		}
		return opts.NewServer()
	}
	mcpHandler := mcp.NewStreamableHTTPHandler(getServer, &mcp.StreamableHTTPOptions{
		Stateless: opts.Stateless,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/health/ready", handleReady(opts.Manager))

	var rateLimiter *RateLimiter
	if opts.RateLimitEnabled {
		rateLimiter = NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	mcpFn := buildMCPHandler(opts, mcpHandler, pool, sessions)
	middlewares := []func(http.HandlerFunc) http.HandlerFunc{
		func(h http.HandlerFunc) http.HandlerFunc { return WithCORS(opts.AllowedOrigins, h) },
		func(h http.HandlerFunc) http.HandlerFunc { return WithHostGuard(opts.AllowedHosts, h) },
	}
	if verifier != nil {
		verifier := verifier
		middlewares = append(middlewares, func(h http.HandlerFunc) http.HandlerFunc {
			return WithOAuth(verifier, h)
		})
	}
	// Rate limiting runs after OAuth verification so rateLimitKey can
	// bucket by the verified subject claim rather than peer IP.
	middlewares = append(middlewares, WithRateLimit(rateLimiter))
	middlewares = append(middlewares,
		func(h http.HandlerFunc) http.HandlerFunc { return WithTimeout(DefaultRequestTimeout, h) },
	)
	mux.HandleFunc("/mcp", Chain(mcpFn, middlewares...))

	if opts.AuthMode == "oauth" {
		metaHandler := ResourceMetadataHandler(opts.OAuth)
		mux.HandleFunc("/.well-known/oauth-protected-resource", metaHandler)
		mux.HandleFunc("/mcp/.well-known/oauth-protected-resource", metaHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions:    sessions,
		logger:      opts.Logger,
		rateLimiter: rateLimiter,
	}, nil
}

// buildMCPHandler dispatches /mcp per method and mode, per spec §4.8:
// POST always allowed; GET/DELETE are stateful-only (405 otherwise).
func buildMCPHandler(opts Options, mcpHandler http.Handler, pool *ServerPool[*mcp.Server], sessions *SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if opts.Stateless {
			if r.Method == http.MethodGet || r.Method == http.MethodDelete {
				WriteMethodNotAllowed(w, "GET and DELETE are unsupported in stateless mode")
				return
			}
			srv, release, err := pool.Acquire(r.Context())
			if err != nil {
				WriteRPCError(w, http.StatusServiceUnavailable, CodeInternal, "server pool exhausted", nil)
				return
			}
			defer release()
			ctx := context.WithValue(r.Context(), serverKey, srv)
			mcpHandler.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		WithSessionLiveness(sessions, func(w http.ResponseWriter, r *http.Request) {
			mcpHandler.ServeHTTP(w, r)
			RegisterSession(sessions, w)
		})(w, r)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

func handleReady(manager *pgdb.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.HealthCheck(r.Context()); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "not_ready",
				"database": "disconnected",
				"error":    obfuscate.Error(err).Error(),
			})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ready",
			"database": "connected",
		})
	}
}

// ListenAndServe starts serving and blocks until ctx is cancelled, at
// which point it shuts the listener and session store down. Grounded
// on the teacher's startHTTPServer signal-channel shutdown shape and
// tendant-postgres-mcp-go's ctx.Done()/errCh select.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.stopBackground()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.stopBackground()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) stopBackground() {
	if s.sessions != nil {
		s.sessions.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
