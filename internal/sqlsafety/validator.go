package sqlsafety

import (
	"strings"

	"github.com/askdba/postgres-ssh-mcp/internal/apperrors"
)

// blockedStatements maps the first keyword of a statement type this
// validator never admits to the message returned to the caller.
var blockedStatements = map[string]string{
	"INSERT":   "INSERT statements are not allowed",
	"UPDATE":   "UPDATE statements are not allowed",
	"DELETE":   "DELETE statements are not allowed",
	"MERGE":    "MERGE statements are not allowed",
	"CREATE":   "CREATE statements are not allowed",
	"DROP":     "DROP statements are not allowed",
	"ALTER":    "ALTER statements are not allowed",
	"TRUNCATE": "TRUNCATE statements are not allowed",
	"GRANT":    "GRANT statements are not allowed",
	"REVOKE":   "REVOKE statements are not allowed",
	"COPY":     "COPY statements are not allowed",
	"CALL":     "CALL statements are not allowed",
	"DO":       "DO blocks are not allowed",
	"PREPARE":  "PREPARE statements are not allowed",
	"EXECUTE":  "EXECUTE statements are not allowed",
	"DEALLOCATE": "DEALLOCATE statements are not allowed",
	"LISTEN":   "LISTEN statements are not allowed",
	"NOTIFY":   "NOTIFY statements are not allowed",
	"VACUUM":   "VACUUM statements are not allowed",
	"REINDEX":  "REINDEX statements are not allowed",
	"SET":      "SET statements are not allowed",
	"LOCK":     "LOCK statements are not allowed",
	"BEGIN":    "explicit transaction control statements are not allowed",
	"COMMIT":   "explicit transaction control statements are not allowed",
	"ROLLBACK": "explicit transaction control statements are not allowed",
}

var dmlTokens = []string{"INSERT", "UPDATE", "DELETE", "MERGE"}

// ValidateReadOnly reports whether sqlText is a single, read-only
// statement, per the rules in the specification's SQL Safety Validator
// section: exactly one top-level statement; only SELECT, EXPLAIN (of a
// read-only target), SHOW, TABLE, VALUES, and WITH (whose every CTE is
// free of data-modifying statements and whose final statement is itself
// read-only) are admitted; everything else is rejected by name.
func ValidateReadOnly(sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return apperrors.Validation("empty SQL statement")
	}

	masked := Mask(trimmed)
	if err := checkSingleStatement(masked); err != nil {
		return err
	}

	stripped := StripLeadingComments(trimmed)
	kw := FirstKeyword(stripped)

	switch kw {
	case "SELECT":
		return checkNoTopLevelInto(stripped)
	case "EXPLAIN":
		return validateExplain(stripped)
	case "SHOW", "VALUES", "TABLE":
		return nil
	case "WITH":
		return validateWith(stripped)
	case "":
		return apperrors.Validation("could not determine statement type")
	default:
		if msg, blocked := blockedStatements[kw]; blocked {
			return apperrors.Validation("%s", msg)
		}
		return apperrors.Validation("statement type not allowed: %s", kw)
	}
}

// checkSingleStatement rejects sql containing more than one top-level
// statement. A trailing ';' is allowed; a ';' followed by anything other
// than whitespace or a (already-masked) comment fails.
func checkSingleStatement(masked string) error {
	idx := strings.IndexByte(masked, ';')
	if idx < 0 {
		return nil
	}
	if strings.TrimSpace(masked[idx+1:]) != "" {
		return apperrors.Validation("multiple statements are not allowed")
	}
	return nil
}

func checkNoTopLevelInto(stripped string) error {
	masked := Mask(stripped)
	if containsWordAtDepth0(masked, "INTO") {
		return apperrors.Validation("SELECT INTO is not allowed")
	}
	return nil
}

// validateExplain admits EXPLAIN [ ( option [, ...] ) ] statement and
// bare EXPLAIN [ ANALYZE ] [ VERBOSE ] statement, where statement is
// itself a read-only target. ANALYZE is only admitted over SELECT,
// TABLE, VALUES, or a WITH whose final statement is one of those, since
// EXPLAIN ANALYZE actually executes its target.
func validateExplain(stripped string) error {
	s := stripped[len("EXPLAIN"):]
	s = strings.TrimLeft(s, " \t\r\n")
	analyze := false

	if strings.HasPrefix(s, "(") {
		masked := Mask(s)
		end := scanBlockOrParenGroup(masked)
		if strings.Contains(strings.ToUpper(s[:end]), "ANALYZE") {
			analyze = true
		}
		s = strings.TrimLeft(s[end:], " \t\r\n")
	} else {
		upper := strings.ToUpper(s)
		for {
			consumed := false
			for _, opt := range []string{"ANALYZE", "VERBOSE", "COSTS", "SETTINGS", "BUFFERS", "WAL", "TIMING", "SUMMARY"} {
				if strings.HasPrefix(upper, opt) && (len(upper) == len(opt) || !isIdentChar(upper[len(opt)])) {
					if opt == "ANALYZE" {
						analyze = true
					}
					s = strings.TrimLeft(s[len(opt):], " \t\r\n")
					upper = strings.ToUpper(s)
					consumed = true
					break
				}
			}
			if strings.HasPrefix(upper, "FORMAT") {
				s = strings.TrimLeft(s[len("FORMAT"):], " \t\r\n")
				i := 0
				for i < len(s) && isIdentChar(s[i]) {
					i++
				}
				s = strings.TrimLeft(s[i:], " \t\r\n")
				upper = strings.ToUpper(s)
				consumed = true
			}
			if !consumed {
				break
			}
		}
	}

	targetKw := FirstKeyword(s)
	if msg, blocked := blockedStatements[targetKw]; blocked {
		return apperrors.Validation("EXPLAIN target rejected: %s", msg)
	}

	switch targetKw {
	case "SELECT":
		if err := checkNoTopLevelInto(s); err != nil {
			return err
		}
	case "TABLE", "VALUES":
		// fine
	case "WITH":
		if err := validateWith(s); err != nil {
			return err
		}
	default:
		return apperrors.Validation("EXPLAIN target statement type not allowed: %s", targetKw)
	}

	if analyze {
		switch targetKw {
		case "SELECT", "TABLE", "VALUES", "WITH":
			// EXPLAIN ANALYZE is fine over any already-validated read-only target.
		default:
			return apperrors.Validation("EXPLAIN ANALYZE is only allowed over SELECT, TABLE, VALUES, or WITH")
		}
	}
	return nil
}

// scanBlockOrParenGroup returns the index just past the balanced
// parenthesised group starting at masked[0] == '('.
func scanBlockOrParenGroup(masked string) int {
	depth := 0
	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(masked)
}

// validateWith admits a WITH statement iff no CTE body contains a
// data-modifying statement and the final statement (after the top-level
// CTE list) is itself SELECT, TABLE, or VALUES, with SELECT further
// checked for a top-level INTO.
//
// This walks the top-level WITH scanning for each "as (" at depth-0
// parens (careful that "as" is matched as a whole word, not a substring
// of a longer identifier), extracts the balanced parenthesised body, and
// reports a CTE as data-modifying iff any token inside it is INSERT,
// UPDATE, DELETE, or MERGE — at any nesting depth within that body.
func validateWith(stripped string) error {
	masked := Mask(stripped)
	rest := masked[len("WITH"):]

	trimmedRest := strings.TrimLeft(rest, " \t\r\n")
	if wordAt(trimmedRest, 0, "RECURSIVE") {
		rest = trimmedRest[len("RECURSIVE"):]
	} else {
		rest = trimmedRest
	}

	hasDML, finalStart := scanCTEList(rest)
	if hasDML {
		return apperrors.Validation("WITH is only allowed when no CTE contains a data-modifying statement")
	}

	final := strings.TrimSpace(rest[finalStart:])
	finalKw := leadingWord(final)
	switch finalKw {
	case "SELECT":
		if containsWordAtDepth0(final, "INTO") {
			return apperrors.Validation("SELECT INTO is not allowed")
		}
		return nil
	case "TABLE", "VALUES":
		return nil
	default:
		return apperrors.Validation("WITH is only allowed when the final statement is SELECT, TABLE, or VALUES")
	}
}

// scanCTEList walks masked (the text after "WITH [RECURSIVE]") looking
// for every top-level "AS (" construct, extracting each CTE body and
// checking it for data-modifying tokens. It returns whether any body
// contained one, and the index just past the last top-level CTE's
// closing parenthesis (where the final statement begins).
func scanCTEList(masked string) (hasDML bool, finalStart int) {
	depth := 0
	n := len(masked)
	lastClose := 0
	for i := 0; i < n; i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && wordAt(masked, i, "AS") {
				j := i + 2
				for j < n && strings.IndexByte(" \t\r\n", masked[j]) >= 0 {
					j++
				}
				if j < n && masked[j] == '(' {
					bodyEnd := scanBlockOrParenGroup(masked[j:]) + j
					body := masked[j+1 : bodyEnd-1]
					if containsDML(body) {
						hasDML = true
					}
					lastClose = bodyEnd
					k := bodyEnd
					for k < n && strings.IndexByte(" \t\r\n", masked[k]) >= 0 {
						k++
					}
					if k >= n || masked[k] != ',' {
						// No further CTE follows: the final statement starts here.
						return hasDML, lastClose
					}
					i = bodyEnd - 1
				}
			}
		}
	}
	return hasDML, lastClose
}

func containsDML(body string) bool {
	for _, tok := range dmlTokens {
		if containsWordAnyDepth(body, tok) {
			return true
		}
	}
	return false
}

// CursorEligible reports whether the Connection Manager may safely wrap
// sqlText in a server-side cursor for row-limited fetching: a plain
// SELECT, VALUES, or TABLE is always eligible; a WITH is eligible iff no
// CTE contains a data-modifying statement and its final statement begins
// with SELECT, TABLE, or VALUES. EXPLAIN and everything else is executed
// directly instead.
func CursorEligible(sqlText string) bool {
	stripped := StripLeadingComments(strings.TrimSpace(sqlText))
	switch FirstKeyword(stripped) {
	case "SELECT", "VALUES", "TABLE":
		return true
	case "WITH":
		return validateWith(stripped) == nil
	default:
		return false
	}
}
