package httptransport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// OAuthConfig carries the bearer-token verification settings for
// authMode=oauth, mirroring spec §4.8's required Auth0 fields.
type OAuthConfig struct {
	Domain                string
	Audience              string
	ResourceDocumentation string
}

// JWKSURL is the well-known JWKS endpoint the specification requires
// verification to be performed against.
func (c OAuthConfig) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Domain)
}

func (c OAuthConfig) issuer() string {
	return fmt.Sprintf("https://%s/", c.Domain)
}

// OAuthVerifier verifies bearer tokens against a cached, auto-refreshing
// JWKS, grounded on the teacher-adjacent agentcard.JWSVerifier's use of
// jwk.NewCache/jwk.Cache.Get for efficient repeated key lookups.
type OAuthVerifier struct {
	cfg   OAuthConfig
	cache *jwk.Cache
}

// NewOAuthVerifier registers cfg's JWKS URL with an auto-refreshing cache.
// Call with a long-lived context (the process lifetime context); the
// cache keeps refreshing in the background until that context is done.
func NewOAuthVerifier(ctx context.Context, cfg OAuthConfig) (*OAuthVerifier, error) {
	c := jwk.NewCache(ctx)
	if err := c.Register(cfg.JWKSURL(), jwk.WithMinRefreshInterval(5*time.Minute)); err != nil {
		return nil, fmt.Errorf("registering JWKS URL %s: %w", cfg.JWKSURL(), err)
	}
	return &OAuthVerifier{cfg: cfg, cache: c}, nil
}

// invalidTokenMessage is returned to the caller on any verification
// failure per spec §4.8 — deliberately uninformative about the cause.
const invalidTokenMessage = "Invalid or expired token"

// wwwAuthenticate builds the WWW-Authenticate challenge header value.
func (v *OAuthVerifier) wwwAuthenticate(r *http.Request) string {
	scheme := "https"
	resourceMetadata := fmt.Sprintf("%s://%s/.well-known/oauth-protected-resource", scheme, r.Host)
	return fmt.Sprintf(`Bearer realm="mcp", resource_metadata="%s", scope="openid profile email"`, resourceMetadata)
}

// WithOAuth is bearer-token middleware run before /mcp when authMode=oauth.
func WithOAuth(v *OAuthVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		scheme, tokenStr, ok := strings.Cut(authHeader, " ")
		if authHeader == "" || !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
			w.Header().Set("WWW-Authenticate", v.wwwAuthenticate(r))
			WriteRPCError(w, http.StatusUnauthorized, CodeAuth, "missing or invalid Authorization header", nil)
			return
		}

		keySet, err := v.cache.Get(r.Context(), v.cfg.JWKSURL())
		if err != nil {
			w.Header().Set("WWW-Authenticate", v.wwwAuthenticate(r))
			WriteRPCError(w, http.StatusUnauthorized, CodeAuth, invalidTokenMessage, nil)
			return
		}

		token, err := jwt.Parse([]byte(tokenStr),
			jwt.WithKeySet(keySet),
			jwt.WithValidate(true),
			jwt.WithIssuer(v.cfg.issuer()),
			jwt.WithAudience(v.cfg.Audience),
		)
		if err != nil {
			w.Header().Set("WWW-Authenticate", v.wwwAuthenticate(r))
			WriteRPCError(w, http.StatusUnauthorized, CodeAuth, invalidTokenMessage, nil)
			return
		}

		ctx := context.WithValue(r.Context(), authPayloadKey{}, token)
		next(w, r.WithContext(ctx))
	}
}

type authPayloadKey struct{}

// AuthPayload returns the verified JWT attached to r by WithOAuth, if any.
func AuthPayload(r *http.Request) (jwt.Token, bool) {
	tok, ok := r.Context().Value(authPayloadKey{}).(jwt.Token)
	return tok, ok
}

// resourceMetadataDocument is the body served at
// /.well-known/oauth-protected-resource and /mcp/.well-known/oauth-protected-resource.
type resourceMetadataDocument struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported"`
	ResourceDocs         string   `json:"resource_documentation,omitempty"`
}

// ResourceMetadataHandler serves the OAuth protected-resource metadata
// document advertising cfg's Auth0 domain as authorization server.
func ResourceMetadataHandler(cfg OAuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := resourceMetadataDocument{
			Resource:             fmt.Sprintf("https://%s/mcp", r.Host),
			AuthorizationServers: []string{cfg.issuer()},
			ScopesSupported:      []string{"openid", "profile", "email"},
			ResourceDocs:         cfg.ResourceDocumentation,
		}
		WriteJSON(w, http.StatusOK, doc)
	}
}
