// Package logging implements the bridge's structured stderr logging,
// file-based audit logging, and query timing helpers.
//
// Grounded on the teacher's cmd/mysql-mcp-server/logging.go, lifted out
// of package main so jsonLogging is a constructor parameter on a Logger
// value rather than a package-level global, per the specification's
// design notes on passing parsed config by value into constructors.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/askdba/postgres-ssh-mcp/internal/obfuscate"
	"github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"
)

// Entry is a structured log line.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger writes structured (JSON) or plain log lines to stderr,
// obfuscating any credential-shaped substrings first.
type Logger struct {
	jsonLogging bool
}

// New constructs a Logger. jsonLogging selects JSON-lines output over
// stdlib log.Printf-style plain text.
func New(jsonLogging bool) *Logger {
	return &Logger{jsonLogging: jsonLogging}
}

func (l *Logger) log(level, message string, fields map[string]any) {
	message = obfuscate.Text(message)
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   message,
		Fields:    obfuscateFields(fields),
	}
	if l.jsonLogging {
		data, _ := json.Marshal(entry)
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	if len(entry.Fields) > 0 {
		log.Printf("[%s] %s %v", level, message, entry.Fields)
	} else {
		log.Printf("[%s] %s", level, message)
	}
}

func obfuscateFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = obfuscate.Text(s)
			continue
		}
		out[k] = v
	}
	return out
}

func (l *Logger) Info(message string, fields map[string]any)  { l.log("INFO", message, fields) }
func (l *Logger) Warn(message string, fields map[string]any)  { l.log("WARN", message, fields) }
func (l *Logger) Error(message string, fields map[string]any) { l.log("ERROR", message, fields) }

// AuditEntry is one query-tracking audit log line.
type AuditEntry struct {
	Timestamp    string `json:"timestamp"`
	Tool         string `json:"tool"`
	Database     string `json:"database,omitempty"`
	Query        string `json:"query,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	RowCount     int    `json:"row_count,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// AuditLogger appends AuditEntry lines to a file. A logger constructed
// with an empty path is disabled and Log becomes a no-op, so callers
// don't need to branch on whether auditing is configured.
type AuditLogger struct {
	file    *os.File
	mu      sync.Mutex
	enabled bool
}

// NewAuditLogger opens path for append, creating it with 0600
// permissions if needed. An empty path disables the logger.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if path == "" {
		return &AuditLogger{enabled: false}, nil
	}
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the trusted AUDIT_LOG_PATH environment variable, not request input
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLogger{file: f, enabled: true}, nil
}

// Log appends entry, obfuscating its Query and Error fields first.
func (a *AuditLogger) Log(entry AuditEntry) {
	if !a.enabled {
		return
	}
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	entry.Query = obfuscate.Text(entry.Query)
	entry.Error = obfuscate.Text(entry.Error)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.file.Write(append(data, '\n'))
}

func (a *AuditLogger) Close() error {
	if a.file == nil {
		return nil
	}
	return a.file.Close()
}

// QueryTimer tracks a single tool invocation's execution time and
// renders the LogSuccess/LogFailure lines the Tool Registry emits around
// every call.
type QueryTimer struct {
	start time.Time
	tool  string
}

func NewQueryTimer(tool string) *QueryTimer {
	return &QueryTimer{start: time.Now(), tool: tool}
}

func (t *QueryTimer) Elapsed() time.Duration { return time.Since(t.start) }
func (t *QueryTimer) ElapsedMs() int64       { return t.Elapsed().Milliseconds() }

const maxLoggedQueryLen = 200

// LogSuccess logs a completed tool call. tokens may be nil when token
// tracking is disabled.
func (l *Logger) LogSuccess(timer *QueryTimer, rowCount int, query string, tokens *tokenestimate.Usage) {
	fields := map[string]any{
		"tool":        timer.tool,
		"duration_ms": timer.ElapsedMs(),
		"row_count":   rowCount,
	}
	if query != "" && len(query) <= maxLoggedQueryLen {
		fields["query"] = query
	}
	if tokens != nil {
		fields["tokens"] = tokens
	}
	l.Info("query executed", fields)
}

// LogFailure logs a failed tool call. tokens may be nil when token
// tracking is disabled.
func (l *Logger) LogFailure(timer *QueryTimer, err error, query string, tokens *tokenestimate.Usage) {
	fields := map[string]any{
		"tool":        timer.tool,
		"duration_ms": timer.ElapsedMs(),
		"error":       err.Error(),
	}
	if query != "" && len(query) <= maxLoggedQueryLen {
		fields["query"] = query
	}
	if tokens != nil {
		fields["tokens"] = tokens
	}
	l.Error("query failed", fields)
}
