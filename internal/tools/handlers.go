package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/askdba/postgres-ssh-mcp/internal/logging"
	"github.com/askdba/postgres-ssh-mcp/internal/obfuscate"
	"github.com/askdba/postgres-ssh-mcp/internal/pgdb"
	"github.com/askdba/postgres-ssh-mcp/internal/tokenestimate"
)

const defaultSchema = "public"

func toQueryResult(res *pgdb.Result) QueryResult {
	return QueryResult{
		Columns:   res.Fields,
		Rows:      res.Rows,
		RowCount:  res.RowCount,
		Truncated: res.Truncated,
		Command:   res.Command,
	}
}

func paramsFromAny(in []any) ([]pgdb.QueryParam, error) {
	params := make([]pgdb.QueryParam, len(in))
	for i, v := range in {
		p, err := pgdb.ParamFromAny(v)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		params[i] = p
	}
	return params, nil
}

const maxAuditQueryLen = 2000

func truncateForAudit(s string) string {
	if len(s) <= maxAuditQueryLen {
		return s
	}
	return s[:maxAuditQueryLen] + "...(truncated)"
}

// ExecuteQuery runs the caller's SQL through the Connection Manager,
// keeping its own query/audit logging with estimated token usage rather
// than going through wrapTool's generic path.
func (r *Registry) ExecuteQuery(ctx context.Context, req *mcp.CallToolRequest, input ExecuteQueryInput) (*mcp.CallToolResult, QueryResult, error) {
	timer := logging.NewQueryTimer("execute_query")
	params, err := paramsFromAny(input.Params)
	if err != nil {
		return nil, QueryResult{}, obfuscate.Error(fmt.Errorf("invalid params: %w", err))
	}

	res, err := r.manager.ExecuteQuery(ctx, input.SQL, params)
	tokens := r.estimateUsage(input, res, err)

	if err != nil {
		r.logger.LogFailure(timer, err, truncateForAudit(input.SQL), tokens)
		r.logAudit("execute_query", input.SQL, timer, 0, tokens, err)
		return nil, QueryResult{}, obfuscate.Error(err)
	}

	out := toQueryResult(res)
	if input.MaxRows != nil && *input.MaxRows >= 0 && *input.MaxRows < out.RowCount {
		out.Rows = out.Rows[:*input.MaxRows]
		out.RowCount = *input.MaxRows
		out.Truncated = true
	}
	out.Tokens = tokens

	r.logger.LogSuccess(timer, out.RowCount, truncateForAudit(input.SQL), tokens)
	r.logAudit("execute_query", input.SQL, timer, out.RowCount, tokens, nil)
	return nil, out, nil
}

func (r *Registry) estimateUsage(input ExecuteQueryInput, res *pgdb.Result, execErr error) *tokenestimate.Usage {
	if !r.tokenTracking || r.estimator == nil {
		return nil
	}
	inputTokens, _ := r.estimator.EstimateValue(input)
	outputTokens := 0
	if execErr == nil && res != nil {
		outputTokens, _ = r.estimator.EstimateValue(res.Rows)
	}
	return &tokenestimate.Usage{
		InputEstimated:  inputTokens,
		OutputEstimated: outputTokens,
		TotalEstimated:  inputTokens + outputTokens,
		Model:           r.estimator.Model(),
	}
}

func (r *Registry) logAudit(tool, query string, timer *logging.QueryTimer, rowCount int, tokens *tokenestimate.Usage, execErr error) {
	if r.audit == nil {
		return
	}
	entry := logging.AuditEntry{
		Tool:       tool,
		Query:      truncateForAudit(query),
		DurationMs: timer.ElapsedMs(),
		RowCount:   rowCount,
		Success:    execErr == nil,
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}
	if tokens != nil {
		entry.InputTokens = tokens.InputEstimated
		entry.OutputTokens = tokens.OutputEstimated
	}
	r.audit.Log(entry)
}

// ExplainQuery wraps input.SQL in an EXPLAIN clause built from Analyze
// and Format and runs it through the same path as execute_query; the SQL
// Safety Validator's validateExplain enforces that ANALYZE may only
// target a read-only statement.
func (r *Registry) ExplainQuery(ctx context.Context, req *mcp.CallToolRequest, input ExplainQueryInput) (*mcp.CallToolResult, QueryResult, error) {
	params, err := paramsFromAny(input.Params)
	if err != nil {
		return nil, QueryResult{}, obfuscate.Error(fmt.Errorf("invalid params: %w", err))
	}
	format, err := normalizeExplainFormat(input.Format)
	if err != nil {
		return nil, QueryResult{}, obfuscate.Error(err)
	}
	sqlText := buildExplainSQL(input.SQL, input.Analyze, format)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, QueryResult{}, obfuscate.Error(err)
	}
	return nil, toQueryResult(res), nil
}

func (r *Registry) ListSchemas(ctx context.Context, req *mcp.CallToolRequest, input ListSchemasInput) (*mcp.CallToolResult, ListSchemasOutput, error) {
	sqlText, args := buildListSchemasQuery(input.IncludeSystem)
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, ListSchemasOutput{}, obfuscate.Error(err)
	}
	out := ListSchemasOutput{Schemas: []SchemaInfo{}}
	for _, row := range res.Rows {
		out.Schemas = append(out.Schemas, SchemaInfo{
			Name:  asString(row[0]),
			Owner: asString(row[1]),
			Type:  asString(row[2]),
		})
	}
	return nil, out, nil
}

func (r *Registry) ListTables(ctx context.Context, req *mcp.CallToolRequest, input ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
	sqlText, args := buildListTablesQuery(strings.TrimSpace(input.Schema), input.IncludeViews)
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, ListTablesOutput{}, obfuscate.Error(err)
	}
	out := ListTablesOutput{Tables: []TableInfo{}}
	for _, row := range res.Rows {
		out.Tables = append(out.Tables, TableInfo{
			Schema:            asString(row[0]),
			Name:              asString(row[1]),
			Type:              asString(row[2]),
			EstimatedRowCount: asInt64(row[3]),
			TotalSizeBytes:    asInt64(row[4]),
		})
	}
	return nil, out, nil
}

func (r *Registry) DescribeTable(ctx context.Context, req *mcp.CallToolRequest, input DescribeTableInput) (*mcp.CallToolResult, DescribeTableOutput, error) {
	schema := strings.TrimSpace(input.Schema)
	if schema == "" {
		schema = defaultSchema
	}
	table := strings.TrimSpace(input.Table)
	if table == "" {
		return nil, DescribeTableOutput{}, obfuscate.Error(fmt.Errorf("table is required"))
	}

	out := DescribeTableOutput{Columns: []ColumnInfo{}, Constraints: []ConstraintInfo{}, Indexes: []IndexInfo{}}

	// Three logically independent introspection queries; run
	// sequentially since each already goes through the pooled
	// concurrency gate.
	colSQL, colArgs := buildDescribeTableColumnsQuery(schema, table)
	colParams, _ := paramsFromAny(colArgs)
	colRes, err := r.manager.ExecuteQuery(ctx, colSQL, colParams)
	if err != nil {
		return nil, DescribeTableOutput{}, obfuscate.Error(fmt.Errorf("describe columns: %w", err))
	}
	for _, row := range colRes.Rows {
		out.Columns = append(out.Columns, ColumnInfo{
			Name:     asString(row[0]),
			Type:     asString(row[1]),
			Nullable: isNullableYes(row[2]),
			Default:  asString(row[3]),
		})
	}

	consSQL, consArgs := buildDescribeTableConstraintsQuery(schema, table)
	consParams, _ := paramsFromAny(consArgs)
	consRes, err := r.manager.ExecuteQuery(ctx, consSQL, consParams)
	if err != nil {
		return nil, DescribeTableOutput{}, obfuscate.Error(fmt.Errorf("describe constraints: %w", err))
	}
	for _, row := range consRes.Rows {
		out.Constraints = append(out.Constraints, ConstraintInfo{
			Name:            asString(row[0]),
			Type:            asString(row[1]),
			Columns:         asString(row[2]),
			ReferencedTable: asString(row[3]),
		})
	}

	idxSQL, idxArgs := buildDescribeTableIndexesQuery(schema, table)
	idxParams, _ := paramsFromAny(idxArgs)
	idxRes, err := r.manager.ExecuteQuery(ctx, idxSQL, idxParams)
	if err != nil {
		return nil, DescribeTableOutput{}, obfuscate.Error(fmt.Errorf("describe indexes: %w", err))
	}
	for _, row := range idxRes.Rows {
		out.Indexes = append(out.Indexes, IndexInfo{
			Name:      asString(row[0]),
			Columns:   asString(row[1]),
			IsUnique:  asBool(row[2]),
			IsPrimary: asBool(row[3]),
		})
	}

	return nil, out, nil
}

func (r *Registry) ListDatabases(ctx context.Context, req *mcp.CallToolRequest, input ListDatabasesInput) (*mcp.CallToolResult, ListDatabasesOutput, error) {
	sqlText, args := buildListDatabasesQuery()
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, ListDatabasesOutput{}, obfuscate.Error(err)
	}
	out := ListDatabasesOutput{Databases: []DatabaseInfo{}}
	for _, row := range res.Rows {
		out.Databases = append(out.Databases, DatabaseInfo{
			Name:      asString(row[0]),
			Owner:     asString(row[1]),
			Encoding:  asString(row[2]),
			Collation: asString(row[3]),
			Size:      asString(row[4]),
		})
	}
	return nil, out, nil
}

func (r *Registry) GetConnectionStatus(ctx context.Context, req *mcp.CallToolRequest, input GetConnectionStatusInput) (*mcp.CallToolResult, GetConnectionStatusOutput, error) {
	st := r.manager.GetStatus()
	out := GetConnectionStatusOutput{
		Initialized:          st.Initialized,
		SSLEnabled:           st.SSLEnabled,
		Port:                 st.Port,
		InFlight:             st.InFlight,
		Waiters:              st.Waiters,
		MaxConcurrentQueries: st.MaxConcurrentQueries,
	}
	if st.Tunnel != nil {
		out.Tunnel = &TunnelStatusInfo{State: st.Tunnel.State, LocalPort: st.Tunnel.LocalPort}
	}
	return nil, out, nil
}

func (r *Registry) GetDatabaseVersion(ctx context.Context, req *mcp.CallToolRequest, input GetDatabaseVersionInput) (*mcp.CallToolResult, GetDatabaseVersionOutput, error) {
	sqlText, args := buildVersionQuery()
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, GetDatabaseVersionOutput{}, obfuscate.Error(err)
	}
	if len(res.Rows) == 0 {
		return nil, GetDatabaseVersionOutput{}, obfuscate.Error(fmt.Errorf("version() returned no rows"))
	}
	return nil, GetDatabaseVersionOutput{Version: asString(res.Rows[0][0])}, nil
}

func (r *Registry) GetDatabaseSize(ctx context.Context, req *mcp.CallToolRequest, input GetDatabaseSizeInput) (*mcp.CallToolResult, GetDatabaseSizeOutput, error) {
	sqlText, args := buildDatabaseSizeQuery()
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, GetDatabaseSizeOutput{}, obfuscate.Error(err)
	}
	if len(res.Rows) == 0 {
		return nil, GetDatabaseSizeOutput{}, obfuscate.Error(fmt.Errorf("database size query returned no rows"))
	}
	row := res.Rows[0]
	out := GetDatabaseSizeOutput{
		Database:      asString(row[0]),
		SizeBytes:     asInt64(row[1]),
		SizePretty:    asString(row[2]),
		LargestTables: []TableSizeInfo{},
	}

	tablesSQL, tablesArgs := buildLargestTablesQuery(input.Limit)
	tablesParams, _ := paramsFromAny(tablesArgs)
	tablesRes, err := r.manager.ExecuteQuery(ctx, tablesSQL, tablesParams)
	if err != nil {
		return nil, GetDatabaseSizeOutput{}, obfuscate.Error(err)
	}
	for _, tr := range tablesRes.Rows {
		out.LargestTables = append(out.LargestTables, TableSizeInfo{
			Schema:     asString(tr[0]),
			Table:      asString(tr[1]),
			SizeBytes:  asInt64(tr[2]),
			SizePretty: asString(tr[3]),
		})
	}
	return nil, out, nil
}

func (r *Registry) GetTableStats(ctx context.Context, req *mcp.CallToolRequest, input GetTableStatsInput) (*mcp.CallToolResult, GetTableStatsOutput, error) {
	schema := strings.TrimSpace(input.Schema)
	if schema == "" {
		schema = defaultSchema
	}
	table := strings.TrimSpace(input.Table)
	if table == "" {
		return nil, GetTableStatsOutput{}, obfuscate.Error(fmt.Errorf("table is required"))
	}
	sqlText, args := buildTableStatsQuery(schema, table)
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, GetTableStatsOutput{}, obfuscate.Error(err)
	}
	if len(res.Rows) == 0 {
		return nil, GetTableStatsOutput{}, obfuscate.Error(fmt.Errorf("table %s.%s not found", schema, table))
	}
	row := res.Rows[0]
	return nil, GetTableStatsOutput{
		RowEstimate:    asInt64(row[0]),
		TableSizeBytes: asInt64(row[1]),
		IndexSizeBytes: asInt64(row[2]),
		TotalSizeBytes: asInt64(row[3]),
	}, nil
}

func (r *Registry) ListActiveConnections(ctx context.Context, req *mcp.CallToolRequest, input ListActiveConnectionsInput) (*mcp.CallToolResult, ListActiveConnectionsOutput, error) {
	sqlText, args := buildActiveConnectionsQuery()
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, ListActiveConnectionsOutput{}, obfuscate.Error(err)
	}
	out := ListActiveConnectionsOutput{Connections: []ActiveConnectionInfo{}}
	for _, row := range res.Rows {
		out.Connections = append(out.Connections, ActiveConnectionInfo{
			PID:        int(asInt64(row[0])),
			Username:   asString(row[1]),
			Database:   asString(row[2]),
			State:      asString(row[3]),
			Query:      asString(row[4]),
			QueryStart: asTimeRFC3339(row[5]),
		})
	}
	return nil, out, nil
}

func (r *Registry) ListLongRunningQueries(ctx context.Context, req *mcp.CallToolRequest, input ListLongRunningQueriesInput) (*mcp.CallToolResult, ListLongRunningQueriesOutput, error) {
	sqlText, args := buildLongRunningQuery(input.MinDurationSeconds)
	params, _ := paramsFromAny(args)
	res, err := r.manager.ExecuteQuery(ctx, sqlText, params)
	if err != nil {
		return nil, ListLongRunningQueriesOutput{}, obfuscate.Error(err)
	}
	out := ListLongRunningQueriesOutput{Queries: []LongRunningQueryInfo{}}
	for _, row := range res.Rows {
		out.Queries = append(out.Queries, LongRunningQueryInfo{
			PID:         int(asInt64(row[0])),
			DurationSec: asInt64(row[1]),
			State:       asString(row[2]),
			Query:       asString(row[3]),
		})
	}
	return nil, out, nil
}
