// Package obfuscate redacts credentials from strings before they are
// logged, returned as tool errors, or otherwise leave the process.
// Grounded on the teacher's internal/util.MaskDSN; expanded to the full
// substitution table a connection-string-and-SSH-key bridge needs.
package obfuscate

import "regexp"

var substitutions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	// user:password@ inside a connection URI.
	{regexp.MustCompile(`(?i)(:)([^:@/]+)(@)`), "$1****$3"},
	{regexp.MustCompile(`(?i)password\s*[=:]\s*\S+`), "password=****"},
	{regexp.MustCompile(`(?i)private[_-]?key\s*[=:]\s*\S+`), "privateKey=****"},
	{regexp.MustCompile(`(?i)passphrase\s*[=:]\s*\S+`), "passphrase=****"},
	{regexp.MustCompile(`(?i)secret\s*[=:]\s*\S+`), "secret=****"},
	{regexp.MustCompile(`(?i)token\s*[=:]\s*\S+`), "token=****"},
	{regexp.MustCompile(`(?i)api[_-]?key\s*[=:]\s*\S+`), "apiKey=****"},
	{regexp.MustCompile(`(?i)authorization\s*[=:]\s*\S+`), "authorization=****"},
}

// Text applies every redaction rule once to s and returns the result.
// Applying Text to an already-obfuscated string is a no-op (Text is
// idempotent): every replacement is a fixed "key=****" or ":****@"
// literal, so on a second pass a pattern that matches an earlier
// redaction only rewrites it to the same text, and no other text changes.
func Text(s string) string {
	for _, sub := range substitutions {
		s = sub.pattern.ReplaceAllString(s, sub.replacement)
	}
	return s
}

// Error obfuscates err's message and returns a plain error carrying only
// the redacted text; the original error and anything it wraps is
// discarded so a caller cannot unwrap back to the unredacted cause.
func Error(err error) error {
	if err == nil {
		return nil
	}
	return plainError(Text(err.Error()))
}

type plainError string

func (e plainError) Error() string { return string(e) }
