package tools

import (
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// runAgainstMock executes sqlText/args against a go-sqlmock expectation,
// proving the query builder's output is both syntactically runnable SQL
// and binds exactly the arguments the caller supplied. This exercises
// the builder boundary independent of the live pgx driver pool.
func runAgainstMock(t *testing.T, sqlText string, args []any, rows *sqlmock.Rows) *sql.Rows {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	driverArgs := make([]driver.Value, len(args))
	for i, a := range args {
		driverArgs[i] = a
	}
	expectation := mock.ExpectQuery(regexp.QuoteMeta(sqlText)).WithArgs(driverArgs...)
	if rows != nil {
		expectation.WillReturnRows(rows)
	} else {
		expectation.WillReturnRows(sqlmock.NewRows(nil))
	}

	got, err := db.Query(sqlText, args...)
	if err != nil {
		t.Fatalf("db.Query: %v", err)
	}
	t.Cleanup(func() { _ = got.Close() })

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
	return got
}

func TestBuildListSchemasQueryHasNoArgs(t *testing.T) {
	sqlText, args := buildListSchemasQuery(false)
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
	runAgainstMock(t, sqlText, args, sqlmock.NewRows([]string{"nspname", "owner", "type"}).AddRow("public", "app", "user"))
}

func TestBuildListSchemasQueryIncludeSystemDropsFilter(t *testing.T) {
	sqlText, _ := buildListSchemasQuery(true)
	if strings.Contains(sqlText, "NOT IN") {
		t.Fatalf("expected includeSystem=true to drop the system-schema filter, got %q", sqlText)
	}
}

func TestBuildListTablesQueryFiltersBySchema(t *testing.T) {
	sqlText, args := buildListTablesQuery("analytics", false)
	if len(args) != 1 || args[0] != "analytics" {
		t.Fatalf("expected single schema arg, got %v", args)
	}
	runAgainstMock(t, sqlText, args, sqlmock.NewRows([]string{"nspname", "relname", "type", "reltuples", "total_size"}).
		AddRow("analytics", "events", "table", int64(100), int64(8192)))
}

func TestBuildListTablesQueryWithoutSchemaHasNoArgs(t *testing.T) {
	sqlText, args := buildListTablesQuery("", false)
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
	runAgainstMock(t, sqlText, args, nil)
}

func TestBuildListTablesQueryIncludeViewsWidensFilter(t *testing.T) {
	sqlText, _ := buildListTablesQuery("", true)
	if !strings.Contains(sqlText, "c.relkind IN ('r', 'v', 'm')") {
		t.Fatalf("expected includeViews=true to admit views and materialized views, got %q", sqlText)
	}
}

func TestBuildDescribeTableQueriesBindSchemaAndTable(t *testing.T) {
	colSQL, colArgs := buildDescribeTableColumnsQuery("public", "accounts")
	if len(colArgs) != 2 || colArgs[0] != "public" || colArgs[1] != "accounts" {
		t.Fatalf("unexpected column query args: %v", colArgs)
	}
	runAgainstMock(t, colSQL, colArgs, sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}).
		AddRow("id", "bigint", "NO", nil))

	consSQL, consArgs := buildDescribeTableConstraintsQuery("public", "accounts")
	runAgainstMock(t, consSQL, consArgs, sqlmock.NewRows([]string{"conname", "contype", "definition", "referenced_table"}))

	idxSQL, idxArgs := buildDescribeTableIndexesQuery("public", "accounts")
	runAgainstMock(t, idxSQL, idxArgs, sqlmock.NewRows([]string{"relname", "indexdef", "indisunique", "indisprimary"}))
}

func TestBuildTableStatsQueryQuotesIdentifiers(t *testing.T) {
	sqlText, args := buildTableStatsQuery("public", `wei"rd`)
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
	qualified, ok := args[2].(string)
	if !ok || qualified != `"public"."wei""rd"` {
		t.Fatalf("expected doubled-quote-escaped qualified name, got %v", args[2])
	}
	runAgainstMock(t, sqlText, args, sqlmock.NewRows([]string{"reltuples", "table_size", "indexes_size", "total_size"}).
		AddRow(int64(100), int64(8192), int64(4096), int64(12288)))
}

func TestBuildDatabaseSizeQueryHasNoArgs(t *testing.T) {
	sqlText, args := buildDatabaseSizeQuery()
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
	runAgainstMock(t, sqlText, args, sqlmock.NewRows([]string{"name", "bytes", "pretty"}).AddRow("app", int64(1024), "1024 bytes"))
}

func TestBuildLargestTablesQueryDefaultsLimit(t *testing.T) {
	sqlText, args := buildLargestTablesQuery(0)
	if len(args) != 1 || args[0] != defaultLargestTablesLimit {
		t.Fatalf("expected default limit %d, got %v", defaultLargestTablesLimit, args)
	}
	runAgainstMock(t, sqlText, args, sqlmock.NewRows([]string{"schemaname", "tablename", "bytes", "pretty"}).
		AddRow("public", "events", int64(4096), "4096 bytes"))
}

func TestBuildLargestTablesQueryHonorsExplicitLimit(t *testing.T) {
	_, args := buildLargestTablesQuery(5)
	if args[0] != 5 {
		t.Fatalf("expected explicit limit 5, got %v", args)
	}
}

func TestNormalizeExplainFormatDefaultsToText(t *testing.T) {
	got, err := normalizeExplainFormat("")
	if err != nil || got != "TEXT" {
		t.Fatalf("normalizeExplainFormat(\"\") = %q, %v, want TEXT, nil", got, err)
	}
}

func TestNormalizeExplainFormatRejectsUnknown(t *testing.T) {
	if _, err := normalizeExplainFormat("sql"); err == nil {
		t.Fatalf("expected an error for an unsupported explain format")
	}
}

func TestBuildExplainSQLIncludesAnalyzeAndFormat(t *testing.T) {
	got := buildExplainSQL("SELECT 1", true, "JSON")
	want := "EXPLAIN (ANALYZE, FORMAT JSON) SELECT 1"
	if got != want {
		t.Fatalf("buildExplainSQL() = %q, want %q", got, want)
	}
}

func TestBuildExplainSQLWithoutAnalyze(t *testing.T) {
	got := buildExplainSQL("SELECT 1", false, "TEXT")
	want := "EXPLAIN (FORMAT TEXT) SELECT 1"
	if got != want {
		t.Fatalf("buildExplainSQL() = %q, want %q", got, want)
	}
}

func TestBuildLongRunningQueryDefaultsThreshold(t *testing.T) {
	_, args := buildLongRunningQuery(0)
	if len(args) != 1 || args[0] != defaultLongRunningThresholdSeconds {
		t.Fatalf("expected default threshold %d, got %v", defaultLongRunningThresholdSeconds, args)
	}
	_, args = buildLongRunningQuery(30)
	if args[0] != 30 {
		t.Fatalf("expected explicit threshold 30, got %v", args)
	}
}

func TestQuoteIdentDoublesEmbeddedQuotes(t *testing.T) {
	got := quoteIdent(`a"b`)
	want := `"a""b"`
	if got != want {
		t.Fatalf("quoteIdent() = %q, want %q", got, want)
	}
}
