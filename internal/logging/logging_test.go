package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewAuditLoggerDisabledOnEmptyPath(t *testing.T) {
	a, err := NewAuditLogger("")
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	a.Log(AuditEntry{Tool: "execute_query", Success: true})
	if a.file != nil {
		t.Fatal("expected no file to be opened for an empty path")
	}
}

func TestAuditLoggerWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	a, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer a.Close()

	a.Log(AuditEntry{Tool: "execute_query", Query: "SELECT 1", Success: true, DurationMs: 5})
	a.Log(AuditEntry{Tool: "execute_query", Success: false, Error: "boom"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d: %q", len(lines), data)
	}
}

func TestAuditLoggerObfuscatesQueryAndError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	a, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer a.Close()

	a.Log(AuditEntry{Tool: "execute_query", Query: "-- password=hunter2", Error: "token=abc123 failed"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if strings.Contains(string(data), "hunter2") || strings.Contains(string(data), "abc123") {
		t.Fatalf("expected secrets to be redacted from audit log, got %q", data)
	}
}

func TestFilePermissionsAreOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	a, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	defer a.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected audit log mode 0600, got %v", info.Mode().Perm())
	}
}

func TestQueryTimerElapsedIsNonNegative(t *testing.T) {
	timer := NewQueryTimer("execute_query")
	if timer.ElapsedMs() < 0 {
		t.Error("expected non-negative elapsed time")
	}
}

func TestLogSuccessAndLogFailureDoNotPanic(t *testing.T) {
	logger := New(true)
	timer := NewQueryTimer("execute_query")
	logger.LogSuccess(timer, 3, "SELECT 1", nil)
	logger.LogFailure(timer, errors.New("boom"), "SELECT 1", nil)
}
