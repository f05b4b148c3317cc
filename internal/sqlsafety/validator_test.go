package sqlsafety

import "testing"

func TestValidateReadOnlyAcceptsPlainSelect(t *testing.T) {
	cases := []string{
		"SELECT * FROM accounts",
		"  -- comment\nSELECT 1",
		"SELECT 1;",
		"select id from customers where id = $1",
		"TABLE accounts",
		"VALUES (1), (2)",
		"SHOW search_path",
	}
	for _, sql := range cases {
		if err := ValidateReadOnly(sql); err != nil {
			t.Errorf("ValidateReadOnly(%q) = %v, want nil", sql, err)
		}
	}
}

func TestValidateReadOnlyRejectsDataModifyingStatements(t *testing.T) {
	cases := []string{
		"DELETE FROM accounts WHERE id = 1",
		"UPDATE accounts SET balance = 0",
		"INSERT INTO accounts VALUES (1)",
		"DROP TABLE accounts",
		"TRUNCATE accounts",
		"CALL do_something()",
		"DO $$ BEGIN NULL; END $$",
		"COPY accounts TO STDOUT",
		"GRANT SELECT ON accounts TO bob",
	}
	for _, sql := range cases {
		if err := ValidateReadOnly(sql); err == nil {
			t.Errorf("ValidateReadOnly(%q) = nil, want rejection", sql)
		}
	}
}

func TestValidateReadOnlyRejectsMultipleStatements(t *testing.T) {
	cases := []string{
		"SELECT 1; SELECT 2",
		"SELECT 1; DELETE FROM accounts",
		"SELECT 1;;",
	}
	for _, sql := range cases {
		if err := ValidateReadOnly(sql); err == nil {
			t.Errorf("ValidateReadOnly(%q) = nil, want multi-statement rejection", sql)
		}
	}
}

func TestValidateReadOnlyAllowsTrailingSemicolonAndComment(t *testing.T) {
	cases := []string{
		"SELECT 1;",
		"SELECT 1; -- trailing note",
		"SELECT 1; /* trailing block */",
		"SELECT 1 ;  \n",
	}
	for _, sql := range cases {
		if err := ValidateReadOnly(sql); err != nil {
			t.Errorf("ValidateReadOnly(%q) = %v, want nil", sql, err)
		}
	}
}

func TestValidateReadOnlyRejectsSelectInto(t *testing.T) {
	if err := ValidateReadOnly("SELECT * INTO new_table FROM accounts"); err == nil {
		t.Fatal("expected SELECT INTO to be rejected")
	}
}

func TestValidateReadOnlyIgnoresIntoInsideStringOrSubquery(t *testing.T) {
	// "INTO" appearing only inside a string literal must not trigger the
	// SELECT INTO rejection.
	if err := ValidateReadOnly("SELECT 'copy into nowhere' AS note"); err != nil {
		t.Fatalf("ValidateReadOnly = %v, want nil", err)
	}
}

func TestValidateReadOnlyAcceptsReadOnlyCTE(t *testing.T) {
	sql := "WITH recent AS (SELECT * FROM events WHERE created_at > now() - interval '1 day') SELECT * FROM recent"
	if err := ValidateReadOnly(sql); err != nil {
		t.Fatalf("ValidateReadOnly = %v, want nil", err)
	}
}

func TestValidateReadOnlyRejectsDataModifyingCTE(t *testing.T) {
	sql := "WITH moved AS (DELETE FROM staging RETURNING *) SELECT * FROM moved"
	if err := ValidateReadOnly(sql); err == nil {
		t.Fatal("expected CTE containing DELETE to be rejected")
	}
}

func TestValidateReadOnlyRejectsNestedDataModifyingCTE(t *testing.T) {
	sql := "WITH outer_cte AS (WITH inner_cte AS (INSERT INTO t VALUES (1) RETURNING id) SELECT * FROM inner_cte) SELECT * FROM outer_cte"
	if err := ValidateReadOnly(sql); err == nil {
		t.Fatal("expected nested data-modifying CTE to be rejected")
	}
}

func TestValidateReadOnlyRejectsWithFinalNonSelect(t *testing.T) {
	sql := "WITH x AS (SELECT 1) DELETE FROM accounts"
	if err := ValidateReadOnly(sql); err == nil {
		t.Fatal("expected WITH with non-read-only final statement to be rejected")
	}
}

func TestValidateReadOnlyExplainPlainSelect(t *testing.T) {
	if err := ValidateReadOnly("EXPLAIN SELECT * FROM accounts"); err != nil {
		t.Fatalf("ValidateReadOnly = %v, want nil", err)
	}
}

func TestValidateReadOnlyExplainAnalyzeSelect(t *testing.T) {
	cases := []string{
		"EXPLAIN ANALYZE SELECT * FROM accounts",
		"EXPLAIN (ANALYZE, BUFFERS) SELECT * FROM accounts",
		"EXPLAIN (ANALYZE true, FORMAT JSON) SELECT * FROM accounts",
	}
	for _, sql := range cases {
		if err := ValidateReadOnly(sql); err != nil {
			t.Errorf("ValidateReadOnly(%q) = %v, want nil", sql, err)
		}
	}
}

func TestValidateReadOnlyExplainAnalyzeRejectsDML(t *testing.T) {
	if err := ValidateReadOnly("EXPLAIN ANALYZE DELETE FROM accounts"); err == nil {
		t.Fatal("expected EXPLAIN ANALYZE DELETE to be rejected")
	}
}

func TestValidateReadOnlyRejectsEmpty(t *testing.T) {
	cases := []string{"", "   ", "-- only a comment\n"}
	for _, sql := range cases {
		if err := ValidateReadOnly(sql); err == nil {
			t.Errorf("ValidateReadOnly(%q) = nil, want rejection", sql)
		}
	}
}

func TestStripLeadingCommentsIsIdempotent(t *testing.T) {
	cases := []string{
		"  -- note\n/* block */  SELECT 1",
		"SELECT 1",
		"/* a */ /* b */ SELECT 1",
		"",
	}
	for _, sql := range cases {
		once := StripLeadingComments(sql)
		twice := StripLeadingComments(once)
		if once != twice {
			t.Errorf("StripLeadingComments not idempotent for %q: once=%q twice=%q", sql, once, twice)
		}
	}
}

func TestCursorEligible(t *testing.T) {
	if !CursorEligible("SELECT * FROM accounts") {
		t.Error("expected plain SELECT to be cursor-eligible")
	}
	if CursorEligible("EXPLAIN SELECT * FROM accounts") {
		t.Error("expected EXPLAIN not to be cursor-eligible")
	}
	if !CursorEligible("WITH x AS (SELECT 1) SELECT * FROM x") {
		t.Error("expected read-only WITH to be cursor-eligible")
	}
}
