package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestAsStringHandlesNilAndTypedValues(t *testing.T) {
	if got := asString(nil); got != "" {
		t.Errorf("asString(nil) = %q, want empty", got)
	}
	if got := asString("hello"); got != "hello" {
		t.Errorf("asString(%q) = %q", "hello", got)
	}
}

func TestAsInt64CoercesNumericTypes(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{int64(42), 42},
		{int32(7), 7},
		{42, 42},
		{float64(9), 9},
		{"not a number", 0},
		{nil, 0},
	}
	for _, c := range cases {
		if got := asInt64(c.in); got != c.want {
			t.Errorf("asInt64(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestIsNullableYes(t *testing.T) {
	if !isNullableYes("YES") {
		t.Error("expected YES to be nullable")
	}
	if isNullableYes("NO") {
		t.Error("expected NO to not be nullable")
	}
	if isNullableYes(nil) {
		t.Error("expected nil to not be nullable")
	}
}

func TestAsTimeRFC3339(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := asTimeRFC3339(now); got != now.Format(time.RFC3339) {
		t.Errorf("asTimeRFC3339() = %q", got)
	}
	if got := asTimeRFC3339("not a time"); got != "" {
		t.Errorf("expected empty string for non-time value, got %q", got)
	}
}

func TestParamsFromAnyConvertsMixedTypes(t *testing.T) {
	params, err := paramsFromAny([]any{"x", 1, 3.5, true, nil})
	if err != nil {
		t.Fatalf("paramsFromAny: %v", err)
	}
	if len(params) != 5 {
		t.Fatalf("expected 5 params, got %d", len(params))
	}
}

func TestParamsFromAnyRejectsUnsupportedType(t *testing.T) {
	_, err := paramsFromAny([]any{map[string]any{"a": 1}})
	if err == nil {
		t.Fatal("expected an error for an unsupported parameter type")
	}
}

func TestTruncateForAuditLeavesShortQueriesUntouched(t *testing.T) {
	q := "SELECT 1"
	if got := truncateForAudit(q); got != q {
		t.Errorf("truncateForAudit(%q) = %q", q, got)
	}
}

func TestWrapToolObfuscatesErrors(t *testing.T) {
	r := &Registry{tokenTracking: false}
	h := func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, struct{}, error) {
		return nil, struct{}{}, fmt.Errorf("dial tcp: password=hunter2")
	}
	wrapped := wrapTool(r, "test_tool", h)

	_, _, err := wrapped(context.Background(), &mcp.CallToolRequest{}, struct{}{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("expected wrapTool to obfuscate the error, got %q", err.Error())
	}
}

func TestTruncateForAuditCapsLongQueries(t *testing.T) {
	long := make([]byte, maxAuditQueryLen+500)
	for i := range long {
		long[i] = 'a'
	}
	got := truncateForAudit(string(long))
	if len(got) <= maxAuditQueryLen {
		t.Fatalf("expected truncation marker appended, got length %d", len(got))
	}
}
