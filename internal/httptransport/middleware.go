package httptransport

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds how long a single /mcp request may run.
const DefaultRequestTimeout = 60 * time.Second

// Chain applies middlewares to handler in order, so Chain(h, a, b) runs
// a, then b, then h.
func Chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// WithTimeout bounds the request context to timeout.
func WithTimeout(timeout time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(origin), "/"))
}

// originAllowed implements the specification's allowedOrigins rule: an
// empty list, or a list containing "*", accepts any Origin.
func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	normalized := normalizeOrigin(origin)
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		if normalizeOrigin(a) == normalized {
			return true
		}
	}
	return false
}

// WithCORS enforces the specification's origin allow-list and emits the
// CORS headers a browser-based client needs to read mcp-session-id and
// send the headers /mcp requires.
func WithCORS(allowedOrigins []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !originAllowed(origin, allowedOrigins) {
				WriteRPCError(w, http.StatusForbidden, CodeGenericProtocol, "origin not allowed", nil)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Expose-Headers", "mcp-session-id")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, mcp-session-id, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// hostAllowed implements the specification's allowedHosts rule: an
// empty list disables the check entirely (defence against DNS
// rebinding is opt-in).
func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	h := strings.ToLower(strings.TrimSpace(host))
	if idx := strings.LastIndexByte(h, ':'); idx >= 0 {
		if _, err := strconv.Atoi(h[idx+1:]); err == nil {
			h = h[:idx]
		}
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimSpace(a)) == h {
			return true
		}
	}
	return false
}

// WithHostGuard rejects requests whose Host header doesn't match one of
// allowedHosts, when that list is non-empty.
func WithHostGuard(allowedHosts []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hostAllowed(r.Host, allowedHosts) {
			WriteRPCError(w, http.StatusForbidden, CodeGenericProtocol, "host not allowed", nil)
			return
		}
		next(w, r)
	}
}
