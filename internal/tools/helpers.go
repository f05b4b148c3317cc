package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/obfuscate"
	"github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"
)

// wrapTool times a generic tool invocation, obfuscates any error it
// returns before it can reach the transport, and, when token tracking is
// enabled, logs estimated input/output token usage alongside it.
// execute_query bypasses this wrapper: it keeps its own dedicated
// query/audit logging (including row counts), mirroring the teacher's
// tool_wrappers.go carve-out for run_query.
func wrapTool[I any, O any](r *Registry, toolName string, h mcp.ToolHandlerFor[I, O]) mcp.ToolHandlerFor[I, O] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input I) (*mcp.CallToolResult, O, error) {
		start := time.Now()
		res, out, err := h(ctx, req, input)
		// Handlers already obfuscate their own errors; this call is the
		// last line of defense so no handler can leak a raw driver or
		// SSH error to the transport by omission.
		err = obfuscate.Error(err)

		if !r.tokenTracking {
			return res, out, err
		}

		inputTokens, _ := r.estimator.EstimateValue(input)
		outputTokens := 0
		if err == nil {
			outputTokens, _ = r.estimator.EstimateValue(out)
		}
		tokens := tokenestimate.Usage{
			InputEstimated:  inputTokens,
			OutputEstimated: outputTokens,
			TotalEstimated:  inputTokens + outputTokens,
			Model:           r.estimator.Model(),
		}
		fields := map[string]any{
			"tool":        toolName,
			"duration_ms": time.Since(start).Milliseconds(),
			"tokens":      tokens,
		}
		if err != nil {
			fields["error"] = err.Error()
			r.logger.Error("tool failed", fields)
		} else {
			r.logger.Info("tool executed", fields)
		}
		return res, out, err
	}
}

// asString coerces a driver-returned value to a string, treating nil as
// the empty string.
func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return ""
}

// asInt64 coerces a driver-returned numeric value to int64, treating nil
// (and anything else unexpected) as zero.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// asBool coerces a driver-returned boolean-shaped value, treating
// anything unexpected as false. Postgres "is_nullable" columns in
// information_schema are text ('YES'/'NO'), handled separately by
// isNullableYes.
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func isNullableYes(v any) bool {
	return asString(v) == "YES"
}

// asTimeRFC3339 formats a driver-returned timestamp, or "" if v is nil
// or not a time.Time.
func asTimeRFC3339(v any) string {
	t, ok := v.(time.Time)
	if !ok {
		return ""
	}
	return t.Format(time.RFC3339)
}
