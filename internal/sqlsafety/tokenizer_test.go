package sqlsafety

import "testing"

func TestMaskPreservesLength(t *testing.T) {
	cases := []string{
		"SELECT 'it''s fine' FROM t",
		"SELECT $$raw ; text$$",
		"SELECT $tag$nested ) ( stuff$tag$",
		"SELECT 1 -- trailing\nFROM t",
		"SELECT /* a /* nested */ b */ 1",
		`SELECT "weird ""col""" FROM t`,
	}
	for _, sql := range cases {
		if got := len(Mask(sql)); got != len(sql) {
			t.Errorf("Mask(%q) changed length: got %d want %d", sql, got, len(sql))
		}
	}
}

func TestMaskHidesKeywordsInsideStrings(t *testing.T) {
	masked := Mask("SELECT 'DELETE FROM accounts' AS note")
	if containsWordAnyDepth(masked, "DELETE") {
		t.Errorf("Mask left DELETE visible inside a string literal: %q", masked)
	}
}

func TestMaskHidesKeywordsInsideDollarQuotes(t *testing.T) {
	masked := Mask("SELECT $$DELETE FROM accounts$$ AS note")
	if containsWordAnyDepth(masked, "DELETE") {
		t.Errorf("Mask left DELETE visible inside a dollar-quoted block: %q", masked)
	}
}

func TestMaskHidesKeywordsInsideComments(t *testing.T) {
	masked := Mask("SELECT 1 -- DELETE FROM accounts\nFROM t")
	if containsWordAnyDepth(masked, "DELETE") {
		t.Errorf("Mask left DELETE visible inside a line comment: %q", masked)
	}
	masked2 := Mask("SELECT 1 /* DELETE FROM accounts */ FROM t")
	if containsWordAnyDepth(masked2, "DELETE") {
		t.Errorf("Mask left DELETE visible inside a block comment: %q", masked2)
	}
}

func TestFirstKeywordSkipsComments(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                      "SELECT",
		"  -- note\nSELECT 1":           "SELECT",
		"/* block */ select 1":          "SELECT",
		"/* a */ -- b\n  EXPLAIN SELECT 1": "EXPLAIN",
	}
	for sql, want := range cases {
		if got := FirstKeyword(sql); got != want {
			t.Errorf("FirstKeyword(%q) = %q, want %q", sql, got, want)
		}
	}
}
