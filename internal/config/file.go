// internal/config/file.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk supplement to the environment: any field set
// here is used as a default, then overridden by whichever environment
// variable in §6 names the same setting.
type FileConfig struct {
	Database FileDatabaseConfig `yaml:"database" json:"database"`
	SSH      FileSSHConfig      `yaml:"ssh" json:"ssh"`
	Query    FileQueryConfig    `yaml:"query" json:"query"`
	HTTP     FileHTTPConfig     `yaml:"http" json:"http"`
	Logging  FileLoggingConfig  `yaml:"logging" json:"logging"`
}

// FileDatabaseConfig mirrors the DATABASE_* environment variables.
type FileDatabaseConfig struct {
	URI                   string `yaml:"uri" json:"uri"`
	Host                  string `yaml:"host" json:"host"`
	Port                  int    `yaml:"port" json:"port"`
	Name                  string `yaml:"name" json:"name"`
	User                  string `yaml:"user" json:"user"`
	Password              string `yaml:"password" json:"password"`
	SSL                   string `yaml:"ssl" json:"ssl"` // "true", "false", or "" for auto-detect
	SSLCA                 string `yaml:"ssl_ca" json:"ssl_ca"`
	SSLRejectUnauthorized *bool  `yaml:"ssl_reject_unauthorized" json:"ssl_reject_unauthorized"`
}

// FileSSHConfig mirrors the SSH_* environment variables.
type FileSSHConfig struct {
	Enabled               bool   `yaml:"enabled" json:"enabled"`
	Host                  string `yaml:"host" json:"host"`
	Port                  int    `yaml:"port" json:"port"`
	User                  string `yaml:"user" json:"user"`
	PrivateKeyPath        string `yaml:"private_key_path" json:"private_key_path"`
	PrivateKeyPassphrase  string `yaml:"private_key_passphrase" json:"private_key_passphrase"`
	Password              string `yaml:"password" json:"password"`
	StrictHostKeyChecking *bool  `yaml:"strict_host_key" json:"strict_host_key"`
	TrustOnFirstUse       *bool  `yaml:"trust_on_first_use" json:"trust_on_first_use"`
	KnownHostsPath        string `yaml:"known_hosts_path" json:"known_hosts_path"`
	KeepaliveIntervalMs   int    `yaml:"keepalive_interval_ms" json:"keepalive_interval_ms"`
	MaxReconnectAttempts  *int   `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
}

// FileQueryConfig mirrors the query-execution environment variables.
type FileQueryConfig struct {
	ReadOnly             *bool `yaml:"read_only" json:"read_only"`
	TimeoutMs            int   `yaml:"timeout_ms" json:"timeout_ms"`
	MaxRows              int   `yaml:"max_rows" json:"max_rows"`
	MaxConcurrentQueries int   `yaml:"max_concurrent_queries" json:"max_concurrent_queries"`
	PoolDrainTimeoutMs   int   `yaml:"pool_drain_timeout_ms" json:"pool_drain_timeout_ms"`
}

// FileHTTPConfig mirrors the HTTP transport and OAuth environment
// variables.
type FileHTTPConfig struct {
	Port                         int      `yaml:"port" json:"port"`
	Host                         string   `yaml:"host" json:"host"`
	AuthMode                     string   `yaml:"auth_mode" json:"auth_mode"`
	Auth0Domain                  string   `yaml:"auth0_domain" json:"auth0_domain"`
	Auth0Audience                string   `yaml:"auth0_audience" json:"auth0_audience"`
	Stateless                    *bool    `yaml:"stateless" json:"stateless"`
	ServerPoolSize               int      `yaml:"server_pool_size" json:"server_pool_size"`
	SessionTTLMinutes            int      `yaml:"session_ttl_minutes" json:"session_ttl_minutes"`
	SessionCleanupIntervalMs     int      `yaml:"session_cleanup_interval_ms" json:"session_cleanup_interval_ms"`
	AllowedOrigins               []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedHosts                 []string `yaml:"allowed_hosts" json:"allowed_hosts"`
	ResourceDocumentation        string   `yaml:"resource_documentation" json:"resource_documentation"`
}

// FileLoggingConfig mirrors the ambient logging/audit settings.
type FileLoggingConfig struct {
	JSONFormat    *bool  `yaml:"json_format" json:"json_format"`
	AuditLogPath  string `yaml:"audit_log_path" json:"audit_log_path"`
	TokenTracking bool   `yaml:"token_tracking" json:"token_tracking"`
	TokenModel    string `yaml:"token_model" json:"token_model"`

	RateLimitEnabled bool    `yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst   int     `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// ConfigFilePath holds an explicit path to the config file. When it is
// empty, FindConfigFile falls back to the environment variable and the
// standard search locations. The commands in cmd/ do not set it.
var ConfigFilePath string

// FindConfigFile searches for a config file in standard locations, in
// the teacher's search order: flag, env var, working directory, user
// config directory, system config directory.
func FindConfigFile() string {
	if ConfigFilePath != "" {
		return ConfigFilePath
	}

	if envPath := os.Getenv("POSTGRES_SSH_MCP_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"postgres-ssh-mcp.yaml",
		"postgres-ssh-mcp.yml",
		"postgres-ssh-mcp.json",
	}
	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigPaths := []string{
			filepath.Join(homeDir, ".config", "postgres-ssh-mcp", "config.yaml"),
			filepath.Join(homeDir, ".config", "postgres-ssh-mcp", "config.yml"),
			filepath.Join(homeDir, ".config", "postgres-ssh-mcp", "config.json"),
		}
		for _, path := range userConfigPaths {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	systemConfigPaths := []string{
		"/etc/postgres-ssh-mcp/config.yaml",
		"/etc/postgres-ssh-mcp/config.yml",
		"/etc/postgres-ssh-mcp/config.json",
	}
	for _, path := range systemConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// LoadConfigFile loads configuration from a file (YAML or JSON).
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		// Use separate variables to avoid state contamination if YAML
		// partially populates the struct before failing.
		var yamlCfg FileConfig
		if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
			var jsonCfg FileConfig
			if err := json.Unmarshal(data, &jsonCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
			}
			cfg = jsonCfg
		} else {
			cfg = yamlCfg
		}
	}

	return &cfg, nil
}

// ValidateConfigFile validates a config file without building a runtime
// Config from it.
func ValidateConfigFile(path string) error {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return err
	}
	if cfg.Database.URI == "" && cfg.Database.Host == "" {
		return fmt.Errorf("config file must set database.uri or database.host")
	}
	if cfg.SSH.Enabled && cfg.SSH.Host == "" {
		return fmt.Errorf("config file sets ssh.enabled but no ssh.host")
	}
	return nil
}

// Merge layers the file config's values under the already-parsed
// environment config: any field the environment left at its default is
// overridden by the file's value. Environment variables always win,
// consistent with the specification treating them as the primary
// configuration surface and the file as a supplement.
func (fc *FileConfig) Merge(cfg *Config, setFromEnv map[string]bool) *Config {
	if !setFromEnv["DATABASE_URI"] && fc.Database.URI != "" {
		cfg.DatabaseURI = fc.Database.URI
	}
	if !setFromEnv["DATABASE_HOST"] && fc.Database.Host != "" {
		cfg.DatabaseHost = fc.Database.Host
	}
	if !setFromEnv["DATABASE_PORT"] && fc.Database.Port > 0 {
		cfg.DatabasePort = fc.Database.Port
	}
	if !setFromEnv["DATABASE_NAME"] && fc.Database.Name != "" {
		cfg.DatabaseName = fc.Database.Name
	}
	if !setFromEnv["DATABASE_USER"] && fc.Database.User != "" {
		cfg.DatabaseUser = fc.Database.User
	}
	if !setFromEnv["DATABASE_PASSWORD"] && fc.Database.Password != "" {
		cfg.DatabasePassword = fc.Database.Password
	}
	if !setFromEnv["DATABASE_SSL"] && fc.Database.SSL != "" {
		if b, err := parseTriState(fc.Database.SSL); err == nil {
			cfg.DatabaseSSL = b
		}
	}
	if !setFromEnv["DATABASE_SSL_CA"] && fc.Database.SSLCA != "" {
		cfg.DatabaseSSLCA = fc.Database.SSLCA
	}
	if !setFromEnv["DATABASE_SSL_REJECT_UNAUTHORIZED"] && fc.Database.SSLRejectUnauthorized != nil {
		cfg.DatabaseSSLRejectUnauthorized = *fc.Database.SSLRejectUnauthorized
	}

	if !setFromEnv["SSH_ENABLED"] && fc.SSH.Enabled {
		cfg.SSHEnabled = true
	}
	if !setFromEnv["SSH_HOST"] && fc.SSH.Host != "" {
		cfg.SSHHost = fc.SSH.Host
	}
	if !setFromEnv["SSH_PORT"] && fc.SSH.Port > 0 {
		cfg.SSHPort = fc.SSH.Port
	}
	if !setFromEnv["SSH_USER"] && fc.SSH.User != "" {
		cfg.SSHUser = fc.SSH.User
	}
	if !setFromEnv["SSH_PRIVATE_KEY_PATH"] && fc.SSH.PrivateKeyPath != "" {
		cfg.SSHPrivateKeyPath = fc.SSH.PrivateKeyPath
	}
	if !setFromEnv["SSH_PRIVATE_KEY_PASSPHRASE"] && fc.SSH.PrivateKeyPassphrase != "" {
		cfg.SSHPrivateKeyPassphrase = fc.SSH.PrivateKeyPassphrase
	}
	if !setFromEnv["SSH_PASSWORD"] && fc.SSH.Password != "" {
		cfg.SSHPassword = fc.SSH.Password
	}
	if !setFromEnv["SSH_STRICT_HOST_KEY"] && fc.SSH.StrictHostKeyChecking != nil {
		cfg.SSHStrictHostKeyChecking = *fc.SSH.StrictHostKeyChecking
	}
	if !setFromEnv["SSH_TRUST_ON_FIRST_USE"] && fc.SSH.TrustOnFirstUse != nil {
		cfg.SSHTrustOnFirstUse = *fc.SSH.TrustOnFirstUse
	}
	if !setFromEnv["SSH_KNOWN_HOSTS_PATH"] && fc.SSH.KnownHostsPath != "" {
		cfg.SSHKnownHostsPath = fc.SSH.KnownHostsPath
	}
	if !setFromEnv["SSH_KEEPALIVE_INTERVAL"] && fc.SSH.KeepaliveIntervalMs > 0 {
		cfg.SSHKeepaliveInterval = time.Duration(fc.SSH.KeepaliveIntervalMs) * time.Millisecond
	}
	if !setFromEnv["SSH_MAX_RECONNECT_ATTEMPTS"] && fc.SSH.MaxReconnectAttempts != nil {
		cfg.SSHMaxReconnectAttempts = *fc.SSH.MaxReconnectAttempts
	}

	if !setFromEnv["READ_ONLY"] && fc.Query.ReadOnly != nil {
		cfg.ReadOnly = *fc.Query.ReadOnly
	}
	if !setFromEnv["QUERY_TIMEOUT"] && fc.Query.TimeoutMs > 0 {
		cfg.QueryTimeout = time.Duration(fc.Query.TimeoutMs) * time.Millisecond
	}
	if !setFromEnv["MAX_ROWS"] && fc.Query.MaxRows > 0 {
		cfg.MaxRows = fc.Query.MaxRows
	}
	if !setFromEnv["MAX_CONCURRENT_QUERIES"] && fc.Query.MaxConcurrentQueries > 0 {
		cfg.MaxConcurrentQueries = fc.Query.MaxConcurrentQueries
	}
	if !setFromEnv["POOL_DRAIN_TIMEOUT_MS"] && fc.Query.PoolDrainTimeoutMs > 0 {
		cfg.PoolDrainTimeout = time.Duration(fc.Query.PoolDrainTimeoutMs) * time.Millisecond
	}

	if !setFromEnv["PORT"] && fc.HTTP.Port > 0 {
		cfg.Port = fc.HTTP.Port
	}
	if !setFromEnv["MCP_HOST"] && fc.HTTP.Host != "" {
		cfg.MCPHost = fc.HTTP.Host
	}
	if !setFromEnv["MCP_AUTH_MODE"] && fc.HTTP.AuthMode != "" {
		cfg.AuthMode = fc.HTTP.AuthMode
	}
	if !setFromEnv["AUTH0_DOMAIN"] && fc.HTTP.Auth0Domain != "" {
		cfg.Auth0Domain = fc.HTTP.Auth0Domain
	}
	if !setFromEnv["AUTH0_AUDIENCE"] && fc.HTTP.Auth0Audience != "" {
		cfg.Auth0Audience = fc.HTTP.Auth0Audience
	}
	if !setFromEnv["MCP_STATELESS"] && fc.HTTP.Stateless != nil {
		cfg.Stateless = *fc.HTTP.Stateless
	}
	if !setFromEnv["MCP_SERVER_POOL_SIZE"] && fc.HTTP.ServerPoolSize > 0 {
		cfg.ServerPoolSize = fc.HTTP.ServerPoolSize
	}
	if !setFromEnv["MCP_SESSION_TTL_MINUTES"] && fc.HTTP.SessionTTLMinutes > 0 {
		cfg.SessionTTL = time.Duration(fc.HTTP.SessionTTLMinutes) * time.Minute
	}
	if !setFromEnv["MCP_SESSION_CLEANUP_INTERVAL_MS"] && fc.HTTP.SessionCleanupIntervalMs > 0 {
		cfg.SessionCleanupInterval = time.Duration(fc.HTTP.SessionCleanupIntervalMs) * time.Millisecond
	}
	if !setFromEnv["MCP_ALLOWED_ORIGINS"] && len(fc.HTTP.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.HTTP.AllowedOrigins
	}
	if !setFromEnv["MCP_ALLOWED_HOSTS"] && len(fc.HTTP.AllowedHosts) > 0 {
		cfg.AllowedHosts = fc.HTTP.AllowedHosts
	}
	if !setFromEnv["MCP_RESOURCE_DOCUMENTATION"] && fc.HTTP.ResourceDocumentation != "" {
		cfg.ResourceDocumentation = fc.HTTP.ResourceDocumentation
	}

	if !setFromEnv["JSON_LOGGING"] && fc.Logging.JSONFormat != nil {
		cfg.JSONLogging = *fc.Logging.JSONFormat
	}
	if !setFromEnv["AUDIT_LOG_PATH"] && fc.Logging.AuditLogPath != "" {
		cfg.AuditLogPath = fc.Logging.AuditLogPath
	}
	if !setFromEnv["TOKEN_TRACKING"] && fc.Logging.TokenTracking {
		cfg.TokenTracking = true
	}
	if !setFromEnv["TOKEN_MODEL"] && fc.Logging.TokenModel != "" {
		cfg.TokenModel = fc.Logging.TokenModel
	}
	if !setFromEnv["RATE_LIMIT_ENABLED"] && fc.Logging.RateLimitEnabled {
		cfg.RateLimitEnabled = true
	}
	if !setFromEnv["RATE_LIMIT_RPS"] && fc.Logging.RateLimitRPS > 0 {
		cfg.RateLimitRPS = fc.Logging.RateLimitRPS
	}
	if !setFromEnv["RATE_LIMIT_BURST"] && fc.Logging.RateLimitBurst > 0 {
		cfg.RateLimitBurst = fc.Logging.RateLimitBurst
	}

	return cfg
}

// PrintConfig renders cfg as YAML with credentials masked, for
// diagnostic output (e.g. a --print-config flag).
func PrintConfig(cfg *Config) string {
	fc := &FileConfig{
		Database: FileDatabaseConfig{
			URI:                   maskURI(cfg.DatabaseURI),
			Host:                  cfg.DatabaseHost,
			Port:                  cfg.DatabasePort,
			Name:                  cfg.DatabaseName,
			User:                  cfg.DatabaseUser,
			Password:              maskSecret(cfg.DatabasePassword),
			SSLRejectUnauthorized: &cfg.DatabaseSSLRejectUnauthorized,
		},
		SSH: FileSSHConfig{
			Enabled:              cfg.SSHEnabled,
			Host:                 cfg.SSHHost,
			Port:                 cfg.SSHPort,
			User:                 cfg.SSHUser,
			PrivateKeyPath:       cfg.SSHPrivateKeyPath,
			PrivateKeyPassphrase: maskSecret(cfg.SSHPrivateKeyPassphrase),
			Password:             maskSecret(cfg.SSHPassword),
			KnownHostsPath:       cfg.SSHKnownHostsPath,
			KeepaliveIntervalMs:  int(cfg.SSHKeepaliveInterval.Milliseconds()),
		},
		Query: FileQueryConfig{
			ReadOnly:             &cfg.ReadOnly,
			TimeoutMs:            int(cfg.QueryTimeout.Milliseconds()),
			MaxRows:              cfg.MaxRows,
			MaxConcurrentQueries: cfg.MaxConcurrentQueries,
			PoolDrainTimeoutMs:   int(cfg.PoolDrainTimeout.Milliseconds()),
		},
		HTTP: FileHTTPConfig{
			Port:                  cfg.Port,
			Host:                  cfg.MCPHost,
			AuthMode:              cfg.AuthMode,
			Auth0Domain:           cfg.Auth0Domain,
			Auth0Audience:         cfg.Auth0Audience,
			Stateless:             &cfg.Stateless,
			ServerPoolSize:        cfg.ServerPoolSize,
			SessionTTLMinutes:     int(cfg.SessionTTL.Minutes()),
			AllowedOrigins:        cfg.AllowedOrigins,
			AllowedHosts:          cfg.AllowedHosts,
			ResourceDocumentation: cfg.ResourceDocumentation,
		},
		Logging: FileLoggingConfig{
			JSONFormat:       &cfg.JSONLogging,
			AuditLogPath:     cfg.AuditLogPath,
			TokenTracking:    cfg.TokenTracking,
			TokenModel:       cfg.TokenModel,
			RateLimitEnabled: cfg.RateLimitEnabled,
			RateLimitRPS:     cfg.RateLimitRPS,
			RateLimitBurst:   cfg.RateLimitBurst,
		},
	}

	data, _ := yaml.Marshal(fc)
	return string(data)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// maskURI masks the password component of a DSN/URI for safe printing.
func maskURI(uri string) string {
	if uri == "" {
		return ""
	}
	if idx := strings.Index(uri, "://"); idx >= 0 {
		rest := uri[idx+3:]
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			if colon := strings.Index(rest[:at], ":"); colon >= 0 {
				return uri[:idx+3] + rest[:colon+1] + "****" + rest[at:]
			}
		}
	}
	return uri
}

func parseTriState(s string) (*bool, error) {
	b, err := boolFromString(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func boolFromString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
