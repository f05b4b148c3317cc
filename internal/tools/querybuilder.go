package tools

import (
	"fmt"
	"strings"
)

// The functions in this file build the introspection SQL each catalog
// tool runs, kept separate from execution so the SQL text and its bind
// arguments can be asserted on directly in tests without a live
// database.

// schemaTypeCase classifies a schema as "system" (pg_catalog,
// information_schema, pg_toast*, pg_temp*) or "user".
const schemaTypeCase = `CASE WHEN n.nspname IN ('pg_catalog', 'information_schema')
  OR n.nspname LIKE 'pg_toast%' OR n.nspname LIKE 'pg_temp%'
  THEN 'system' ELSE 'user' END`

func buildListSchemasQuery(includeSystem bool) (string, []any) {
	base := `SELECT n.nspname, pg_catalog.pg_get_userbyid(n.nspowner), ` + schemaTypeCase + `
FROM pg_catalog.pg_namespace n`
	if includeSystem {
		return base + ` ORDER BY n.nspname`, nil
	}
	return base + ` WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
  AND n.nspname NOT LIKE 'pg_toast%' AND n.nspname NOT LIKE 'pg_temp%'
ORDER BY n.nspname`, nil
}

// tableTypeCase classifies a pg_class relkind as the table_type the tool
// reports: 'r' (ordinary table) is "table", 'v' is "view", 'm' is
// "materialized view".
const tableTypeCase = `CASE c.relkind
  WHEN 'r' THEN 'table' WHEN 'v' THEN 'view' WHEN 'm' THEN 'materialized view'
  ELSE c.relkind::text END`

func buildListTablesQuery(schema string, includeViews bool) (string, []any) {
	relkindFilter := "c.relkind = 'r'"
	if includeViews {
		relkindFilter = "c.relkind IN ('r', 'v', 'm')"
	}
	base := fmt.Sprintf(`SELECT n.nspname, c.relname, %s,
  COALESCE(c.reltuples, 0)::bigint, pg_total_relation_size(c.oid)
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE %s AND n.nspname NOT IN ('pg_catalog', 'information_schema')`, tableTypeCase, relkindFilter)
	if schema == "" {
		return base + ` ORDER BY n.nspname, c.relname`, nil
	}
	return base + ` AND n.nspname = $1 ORDER BY c.relname`, []any{schema}
}

func buildDescribeTableColumnsQuery(schema, table string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`, []any{schema, table}
}

func buildDescribeTableConstraintsQuery(schema, table string) (string, []any) {
	return `SELECT
  c.conname,
  c.contype,
  pg_get_constraintdef(c.oid) AS definition,
  COALESCE(f.relname, '') AS referenced_table
FROM pg_constraint c
JOIN pg_class t ON t.oid = c.conrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
LEFT JOIN pg_class f ON f.oid = c.confrelid
WHERE n.nspname = $1 AND t.relname = $2
ORDER BY c.conname`, []any{schema, table}
}

func buildDescribeTableIndexesQuery(schema, table string) (string, []any) {
	return `SELECT i.relname, pg_get_indexdef(ix.indexrelid), ix.indisunique, ix.indisprimary
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
WHERE n.nspname = $1 AND t.relname = $2
ORDER BY i.relname`, []any{schema, table}
}

func buildListDatabasesQuery() (string, []any) {
	return `SELECT d.datname, pg_catalog.pg_get_userbyid(d.datdba),
  pg_encoding_to_char(d.encoding), d.datcollate,
  pg_size_pretty(pg_database_size(d.datname))
FROM pg_database d
WHERE d.datistemplate = false
ORDER BY d.datname`, nil
}

func buildVersionQuery() (string, []any) {
	return `SELECT version()`, nil
}

func buildDatabaseSizeQuery() (string, []any) {
	return `SELECT current_database(), pg_database_size(current_database()), pg_size_pretty(pg_database_size(current_database()))`, nil
}

const defaultLargestTablesLimit = 10

// buildLargestTablesQuery ranks every table in the current database (any
// non-system schema) by total on-disk size, descending, capped at limit.
func buildLargestTablesQuery(limit int) (string, []any) {
	if limit <= 0 {
		limit = defaultLargestTablesLimit
	}
	return `SELECT schemaname, tablename,
  pg_total_relation_size(format('%I.%I', schemaname, tablename)::regclass),
  pg_size_pretty(pg_total_relation_size(format('%I.%I', schemaname, tablename)::regclass))
FROM pg_tables
WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
ORDER BY pg_total_relation_size(format('%I.%I', schemaname, tablename)::regclass) DESC
LIMIT $1`, []any{limit}
}

func buildTableStatsQuery(schema, table string) (string, []any) {
	qualified := fmt.Sprintf("%s.%s", quoteIdent(schema), quoteIdent(table))
	return `SELECT
  COALESCE(c.reltuples, 0)::bigint,
  pg_table_size($3::regclass),
  pg_indexes_size($3::regclass),
  pg_total_relation_size($3::regclass)
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2`, []any{schema, table, qualified}
}

// quoteIdent double-quotes a Postgres identifier, doubling any embedded
// quote characters so it can only ever be read back as one identifier.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// explainFormats maps the tool's accepted format names to the keyword
// Postgres's EXPLAIN (FORMAT …) option expects.
var explainFormats = map[string]string{
	"":     "TEXT",
	"text": "TEXT",
	"json": "JSON",
	"yaml": "YAML",
	"xml":  "XML",
}

func normalizeExplainFormat(format string) (string, error) {
	f, ok := explainFormats[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return "", fmt.Errorf("unsupported explain format: %s", format)
	}
	return f, nil
}

// buildExplainSQL prefixes sqlText with an EXPLAIN clause carrying the
// requested options. The parenthesised option-list form is used
// unconditionally (rather than the bare "EXPLAIN ANALYZE" form) so FORMAT
// can always be specified; the SQL Safety Validator's validateExplain
// recognises ANALYZE inside this form.
func buildExplainSQL(sqlText string, analyze bool, format string) string {
	opts := make([]string, 0, 2)
	if analyze {
		opts = append(opts, "ANALYZE")
	}
	opts = append(opts, "FORMAT "+format)
	return "EXPLAIN (" + strings.Join(opts, ", ") + ") " + sqlText
}

func buildActiveConnectionsQuery() (string, []any) {
	return `SELECT pid, COALESCE(usename, ''), COALESCE(datname, ''), COALESCE(state, ''), COALESCE(query, ''), query_start
FROM pg_stat_activity
WHERE pid <> pg_backend_pid()
ORDER BY pid`, nil
}

const defaultLongRunningThresholdSeconds = 5

func buildLongRunningQuery(minDurationSeconds int) (string, []any) {
	if minDurationSeconds <= 0 {
		minDurationSeconds = defaultLongRunningThresholdSeconds
	}
	return `SELECT pid, EXTRACT(EPOCH FROM (now() - query_start))::bigint AS duration_seconds, COALESCE(state, ''), COALESCE(query, '')
FROM pg_stat_activity
WHERE state <> 'idle' AND query_start IS NOT NULL
  AND now() - query_start > make_interval(secs => $1)
ORDER BY duration_seconds DESC`, []any{minDurationSeconds}
}
