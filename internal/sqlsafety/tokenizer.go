// Package sqlsafety implements the SQL Safety Validator (C3): a comment-,
// string-, and dollar-quote-aware SQL pre-parser that admits only a
// precisely defined read-only subset.
//
// This is a hand-written single-pass tokenizer, not a SQL grammar parser —
// per the specification's own design notes, a full grammar parser is the
// wrong tool here; the point is a safe, conservative subset over a
// stateless scan. No parser in the example pack could have served this
// role anyway: the only SQL parser available (xwb1989/sqlparser) is
// MySQL-dialect and has no notion of Postgres dollar-quoting.
package sqlsafety

import "strings"

// Mask returns a same-length copy of sql where every byte inside a
// single-quoted string, a double-quoted identifier, a dollar-quoted
// block, a line comment, or a block comment is replaced with a space
// (newline bytes are left in place).
// Downstream keyword and paren-depth scanning operates on the masked
// text so that no keyword is ever recognised inside any of those
// constructs.
func Mask(sql string) string {
	out := []byte(sql)
	n := len(out)
	i := 0
	for i < n {
		switch {
		case out[i] == '\'':
			end := scanQuoted(out, i, '\'')
			maskRange(out, i, end)
			i = end
		case out[i] == '"':
			end := scanQuoted(out, i, '"')
			maskRange(out, i, end)
			i = end
		case out[i] == '$':
			if end, ok := scanDollarQuote(out, i); ok {
				maskRange(out, i, end)
				i = end
				continue
			}
			i++
		case out[i] == '-' && i+1 < n && out[i+1] == '-':
			end := i
			for end < n && out[end] != '\n' {
				end++
			}
			maskRange(out, i, end)
			i = end
		case out[i] == '/' && i+1 < n && out[i+1] == '*':
			end := scanBlockComment(out, i)
			maskRange(out, i, end)
			i = end
		default:
			i++
		}
	}
	return string(out)
}

func maskRange(b []byte, start, end int) {
	for k := start; k < end && k < len(b); k++ {
		if b[k] != '\n' {
			b[k] = ' '
		}
	}
}

// scanQuoted returns the index just past the closing quote of a
// single/double-quoted literal starting at start, honouring the SQL
// doubled-quote escape ('' or "").
func scanQuoted(b []byte, start int, q byte) int {
	n := len(b)
	i := start + 1
	for i < n {
		if b[i] == q {
			if i+1 < n && b[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return n
}

// scanDollarQuote recognises a $tag$ ... $tag$ block starting at start
// (where b[start] == '$'), returning the index just past the closing tag
// and ok=true if a matching closing tag is found.
func scanDollarQuote(b []byte, start int) (int, bool) {
	n := len(b)
	j := start + 1
	for j < n && isTagChar(b[j]) {
		j++
	}
	if j >= n || b[j] != '$' {
		return 0, false
	}
	tag := string(b[start : j+1])
	rest := string(b[j+1:])
	closeIdx := strings.Index(rest, tag)
	if closeIdx < 0 {
		return 0, false
	}
	return j + 1 + closeIdx + len(tag), true
}

func isTagChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// scanBlockComment returns the index just past the end of a (possibly
// nested) /* ... */ comment starting at start.
func scanBlockComment(b []byte, start int) int {
	n := len(b)
	depth := 1
	i := start + 2
	for i < n && depth > 0 {
		if i+1 < n && b[i] == '/' && b[i+1] == '*' {
			depth++
			i += 2
			continue
		}
		if i+1 < n && b[i] == '*' && b[i+1] == '/' {
			depth--
			i += 2
			continue
		}
		i++
	}
	return i
}

// StripLeadingComments removes leading whitespace and comments from sql,
// returning the remaining text unchanged in content (not masked). It is
// idempotent: applying it again to its own output returns the same
// string, since the output has no leading whitespace or comment left.
func StripLeadingComments(sql string) string {
	s := sql
	for {
		trimmed := strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(trimmed, "--"):
			idx := strings.IndexByte(trimmed, '\n')
			if idx < 0 {
				return ""
			}
			s = trimmed[idx+1:]
		case strings.HasPrefix(trimmed, "/*"):
			end := scanBlockComment([]byte(trimmed), 0)
			s = trimmed[end:]
		default:
			return trimmed
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// FirstKeyword returns the upper-cased leading identifier of sql after
// stripping leading comments and whitespace, or "" if sql has none.
func FirstKeyword(sql string) string {
	s := StripLeadingComments(sql)
	return leadingWord(s)
}

func leadingWord(s string) string {
	i := 0
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return strings.ToUpper(s[:i])
}

// wordAt reports whether s has the case-insensitive whole word w
// starting at index i (word boundaries: neither the preceding nor the
// following byte, if present, is an identifier character).
func wordAt(s string, i int, w string) bool {
	if i+len(w) > len(s) {
		return false
	}
	if !strings.EqualFold(s[i:i+len(w)], w) {
		return false
	}
	if i > 0 && isIdentChar(s[i-1]) {
		return false
	}
	if i+len(w) < len(s) && isIdentChar(s[i+len(w)]) {
		return false
	}
	return true
}

// containsWordAtDepth0 scans masked text (paren-depth aware) for a whole
// word match of w at bracket depth 0.
func containsWordAtDepth0(masked string, w string) bool {
	depth := 0
	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && wordAt(masked, i, w) {
				return true
			}
		}
	}
	return false
}

// containsWordAnyDepth scans masked text for a whole word match of w at
// any bracket depth.
func containsWordAnyDepth(masked string, w string) bool {
	for i := 0; i < len(masked); i++ {
		if wordAt(masked, i, w) {
			return true
		}
	}
	return false
}
