// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
	"github.com/askdba/postgres-ssh-mcp/internal/tunnel"
)

// Defaults mirror the specification's environment variable table (§6).
const (
	DefaultDatabasePort             = 5432
	DefaultSSHPort                  = 22
	DefaultSSHKeepaliveIntervalMs   = 10000
	DefaultSSHMaxReconnectAttempts  = 5
	DefaultQueryTimeoutMs           = 30000
	DefaultMaxRows                  = 1000
	DefaultMaxConcurrentQueries     = 10
	DefaultPoolDrainTimeoutMs       = 5000
	DefaultPort                     = 3000
	DefaultMCPHost                  = "0.0.0.0"
	DefaultServerPoolSize           = 4
	DefaultSessionTTLMinutes        = 30
	DefaultSessionCleanupIntervalMs = 300000
)

// Config is the immutable, fully-parsed process configuration. It is
// built once at startup by Load and passed by value into component
// constructors, per the specification's design note against reaching
// into global process env from deep inside components.
type Config struct {
	// Database connection.
	DatabaseURI                   string
	DatabaseHost                  string
	DatabasePort                  int
	DatabaseName                  string
	DatabaseUser                  string
	DatabasePassword              string
	DatabaseSSL                   *bool // nil = auto-detect from host
	DatabaseSSLCA                 string
	DatabaseSSLRejectUnauthorized bool

	// SSH tunnel.
	SSHEnabled               bool
	SSHHost                  string
	SSHPort                  int
	SSHUser                  string
	SSHPrivateKeyPath        string
	SSHPrivateKeyPassphrase  string
	SSHPassword              string
	SSHStrictHostKeyChecking bool
	SSHTrustOnFirstUse       bool
	SSHKnownHostsPath        string
	SSHKeepaliveInterval     time.Duration
	SSHMaxReconnectAttempts  int

	// Query execution.
	ReadOnly             bool
	QueryTimeout         time.Duration
	MaxRows              int
	MaxConcurrentQueries int
	PoolDrainTimeout     time.Duration

	// HTTP transport.
	Port                         int
	MCPHost                      string
	AuthMode                     string // "none" or "oauth"
	Auth0Domain                  string
	Auth0Audience                string
	Stateless                    bool
	ServerPoolSize               int
	SessionTTL                   time.Duration
	SessionCleanupInterval       time.Duration
	AllowedOrigins               []string
	AllowedHosts                 []string
	ResourceDocumentation        string

	// Ambient logging/audit, grounded on the teacher's feature set.
	JSONLogging   bool
	AuditLogPath  string
	TokenTracking bool
	TokenModel    string

	// Ambient rate limiting, grounded on the teacher's internal/api
	// rate limiter (carried forward even though the specification does
	// not name it explicitly — see SPEC_FULL.md's Supplemented Features).
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Load parses the process environment into a Config, applying the
// defaults the specification's §6 table names.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseHost:                  os.Getenv("DATABASE_HOST"),
		DatabasePort:                  readIntWithDefault("DATABASE_PORT", DefaultDatabasePort),
		DatabaseName:                  os.Getenv("DATABASE_NAME"),
		DatabaseUser:                  os.Getenv("DATABASE_USER"),
		DatabasePassword:              os.Getenv("DATABASE_PASSWORD"),
		DatabaseSSLCA:                 os.Getenv("DATABASE_SSL_CA"),
		DatabaseSSLRejectUnauthorized: readBoolWithDefault("DATABASE_SSL_REJECT_UNAUTHORIZED", true),

		SSHEnabled:               readBoolWithDefault("SSH_ENABLED", false),
		SSHHost:                  os.Getenv("SSH_HOST"),
		SSHPort:                  readIntWithDefault("SSH_PORT", DefaultSSHPort),
		SSHUser:                  os.Getenv("SSH_USER"),
		SSHPrivateKeyPath:        os.Getenv("SSH_PRIVATE_KEY_PATH"),
		SSHPrivateKeyPassphrase:  os.Getenv("SSH_PRIVATE_KEY_PASSPHRASE"),
		SSHPassword:              os.Getenv("SSH_PASSWORD"),
		SSHStrictHostKeyChecking: readBoolWithDefault("SSH_STRICT_HOST_KEY", true),
		SSHTrustOnFirstUse:       readBoolWithDefault("SSH_TRUST_ON_FIRST_USE", true),
		SSHKnownHostsPath:        defaultKnownHostsPath(),
		SSHKeepaliveInterval:     time.Duration(readIntWithDefault("SSH_KEEPALIVE_INTERVAL", DefaultSSHKeepaliveIntervalMs)) * time.Millisecond,
		SSHMaxReconnectAttempts:  readIntWithDefault("SSH_MAX_RECONNECT_ATTEMPTS", DefaultSSHMaxReconnectAttempts),

		ReadOnly:             readBoolWithDefault("READ_ONLY", true),
		QueryTimeout:         time.Duration(readIntWithDefault("QUERY_TIMEOUT", DefaultQueryTimeoutMs)) * time.Millisecond,
		MaxRows:              readIntWithDefault("MAX_ROWS", DefaultMaxRows),
		MaxConcurrentQueries: readIntWithDefault("MAX_CONCURRENT_QUERIES", DefaultMaxConcurrentQueries),
		PoolDrainTimeout:     time.Duration(readIntWithDefault("POOL_DRAIN_TIMEOUT_MS", DefaultPoolDrainTimeoutMs)) * time.Millisecond,

		Port:                   readIntWithDefault("PORT", DefaultPort),
		MCPHost:                envOrDefault("MCP_HOST", DefaultMCPHost),
		AuthMode:               envOrDefault("MCP_AUTH_MODE", "none"),
		Auth0Domain:            os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:          os.Getenv("AUTH0_AUDIENCE"),
		Stateless:              readBoolWithDefault("MCP_STATELESS", true),
		ServerPoolSize:         readIntWithDefault("MCP_SERVER_POOL_SIZE", DefaultServerPoolSize),
		SessionTTL:             time.Duration(readIntWithDefault("MCP_SESSION_TTL_MINUTES", DefaultSessionTTLMinutes)) * time.Minute,
		SessionCleanupInterval: time.Duration(readIntWithDefault("MCP_SESSION_CLEANUP_INTERVAL_MS", DefaultSessionCleanupIntervalMs)) * time.Millisecond,
		AllowedOrigins:         splitCommaList(os.Getenv("MCP_ALLOWED_ORIGINS")),
		AllowedHosts:           splitCommaList(os.Getenv("MCP_ALLOWED_HOSTS")),
		ResourceDocumentation:  os.Getenv("MCP_RESOURCE_DOCUMENTATION"),

		JSONLogging:   readBoolWithDefault("JSON_LOGGING", true),
		AuditLogPath:  os.Getenv("AUDIT_LOG_PATH"),
		TokenTracking: readBoolWithDefault("TOKEN_TRACKING", false),
		TokenModel:    envOrDefault("TOKEN_MODEL", "cl100k_base"),

		RateLimitEnabled: readBoolWithDefault("RATE_LIMIT_ENABLED", false),
		RateLimitRPS:     readFloatWithDefault("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   readIntWithDefault("RATE_LIMIT_BURST", 20),
	}

	if v, ok := os.LookupEnv("DATABASE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DATABASE_SSL must be true or false, got %q", v)
		}
		cfg.DatabaseSSL = &b
	}

	if uri := os.Getenv("DATABASE_URI"); uri != "" {
		stripped, warned := stripSSLMode(uri)
		if warned {
			fmt.Fprintln(os.Stderr, "warning: DATABASE_URI contains sslmode=...; ignoring it, use DATABASE_SSL instead")
		}
		cfg.DatabaseURI = stripped
	}

	if path := FindConfigFile(); path != "" {
		fc, err := LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		cfg = fc.Merge(cfg, envSetVars())
	}

	if cfg.DatabaseURI == "" && cfg.DatabaseHost == "" {
		return nil, fmt.Errorf("DATABASE_URI or DATABASE_HOST is required")
	}
	if cfg.SSHEnabled && cfg.SSHHost == "" {
		return nil, fmt.Errorf("SSH_HOST is required when SSH_ENABLED=true")
	}
	if cfg.AuthMode == "oauth" && (cfg.Auth0Domain == "" || cfg.Auth0Audience == "") {
		return nil, fmt.Errorf("AUTH0_DOMAIN and AUTH0_AUDIENCE are required when MCP_AUTH_MODE=oauth")
	}

	return cfg, nil
}

// envSetVars reports which of the recognised environment variables
// (the §6 set plus the logging, token and rate-limit ones) were
// explicitly set, so a config file's values only fill in the ones the
// environment left unset.
func envSetVars() map[string]bool {
	names := []string{
		"DATABASE_URI", "DATABASE_HOST", "DATABASE_PORT", "DATABASE_NAME", "DATABASE_USER", "DATABASE_PASSWORD",
		"DATABASE_SSL", "DATABASE_SSL_CA", "DATABASE_SSL_REJECT_UNAUTHORIZED",
		"SSH_ENABLED", "SSH_HOST", "SSH_PORT", "SSH_USER", "SSH_PRIVATE_KEY_PATH", "SSH_PRIVATE_KEY_PASSPHRASE",
		"SSH_PASSWORD", "SSH_STRICT_HOST_KEY", "SSH_TRUST_ON_FIRST_USE", "SSH_KNOWN_HOSTS_PATH",
		"SSH_KEEPALIVE_INTERVAL", "SSH_MAX_RECONNECT_ATTEMPTS",
		"READ_ONLY", "QUERY_TIMEOUT", "MAX_ROWS", "MAX_CONCURRENT_QUERIES", "POOL_DRAIN_TIMEOUT_MS",
		"PORT", "MCP_HOST", "MCP_AUTH_MODE", "AUTH0_DOMAIN", "AUTH0_AUDIENCE", "MCP_STATELESS",
		"MCP_SERVER_POOL_SIZE", "MCP_SESSION_TTL_MINUTES", "MCP_SESSION_CLEANUP_INTERVAL_MS",
		"MCP_ALLOWED_ORIGINS", "MCP_ALLOWED_HOSTS", "MCP_RESOURCE_DOCUMENTATION",
		"JSON_LOGGING", "AUDIT_LOG_PATH", "TOKEN_TRACKING", "TOKEN_MODEL",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := os.LookupEnv(n); ok {
			set[n] = true
		}
	}
	return set
}

// PgdbConfig builds the Connection Manager's configuration from the
// parsed process config, wiring in an SSH tunnel.Config only when
// SSHEnabled is set.
func (c *Config) PgdbConfig() pgdb.Config {
	host, port, user, password, database := c.DatabaseHost, c.DatabasePort, c.DatabaseUser, c.DatabasePassword, c.DatabaseName
	if c.DatabaseURI != "" {
		if u, err := url.Parse(c.DatabaseURI); err == nil {
			host = u.Hostname()
			if p := u.Port(); p != "" {
				if n, err := strconv.Atoi(p); err == nil {
					port = n
				}
			}
			if u.User != nil {
				user = u.User.Username()
				if pw, ok := u.User.Password(); ok {
					password = pw
				}
			}
			database = strings.TrimPrefix(u.Path, "/")
		}
	}

	pc := pgdb.Config{
		Host:                  host,
		Port:                  port,
		User:                  user,
		Password:              password,
		Database:              database,
		SSLExplicit:           c.DatabaseSSL,
		SSLCAPath:             c.DatabaseSSLCA,
		SSLRejectUnauthorized: c.DatabaseSSLRejectUnauthorized,
		ReadOnly:              c.ReadOnly,
		QueryTimeout:          c.QueryTimeout,
		MaxRows:               c.MaxRows,
		MaxConcurrentQueries:  c.MaxConcurrentQueries,
		PoolDrainTimeout:      c.PoolDrainTimeout,
	}

	if c.SSHEnabled {
		pc.TunnelConfig = &tunnel.Config{
			SSHHost:               c.SSHHost,
			SSHPort:               c.SSHPort,
			SSHUser:               c.SSHUser,
			PrivateKeyPath:        c.SSHPrivateKeyPath,
			PrivateKeyPassphrase:  c.SSHPrivateKeyPassphrase,
			Password:              c.SSHPassword,
			TargetHost:            host,
			TargetPort:            port,
			KnownHostsPath:        c.SSHKnownHostsPath,
			StrictHostKeyChecking: c.SSHStrictHostKeyChecking,
			TrustOnFirstUse:       c.SSHTrustOnFirstUse,
			KeepaliveInterval:     c.SSHKeepaliveInterval,
			MaxReconnectAttempts:  c.SSHMaxReconnectAttempts,
		}
	}

	return pc
}

func readIntWithDefault(env string, def int) int {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func readBoolWithDefault(env string, def bool) bool {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefault(env, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func readFloatWithDefault(env string, def float64) float64 {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func splitCommaList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func defaultKnownHostsPath() string {
	if v := os.Getenv("SSH_KNOWN_HOSTS_PATH"); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.ssh/known_hosts"
	}
	return ".ssh/known_hosts"
}

// stripSSLMode removes a sslmode=... query parameter from a DSN URI, per
// the specification's "ignore it and warn" rule: SSL is configured
// exclusively through DATABASE_SSL and its related variables.
func stripSSLMode(uri string) (stripped string, warned bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return uri, false
	}
	q := u.Query()
	if !q.Has("sslmode") {
		return uri, false
	}
	q.Del("sslmode")
	u.RawQuery = q.Encode()
	return u.String(), true
}
