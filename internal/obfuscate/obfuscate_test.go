package obfuscate

import (
	"errors"
	"strings"
	"testing"
)

func TestTextRedactsConnectionURI(t *testing.T) {
	got := Text("postgresql://u:secretpass@h/db password=other token=abc")
	want := "postgresql://u:****@h/db password=**** token=****"
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestTextIdempotent(t *testing.T) {
	s := "password=hunter2 privateKey=abc secret=xyz"
	once := Text(s)
	twice := Text(once)
	if once != twice {
		t.Fatalf("Text not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestTextRedactsAllPatterns(t *testing.T) {
	cases := []string{
		"privateKey=AAAA",
		"passphrase=hunter2",
		"secret=abc123",
		"token=abc123",
		"apiKey=abc123",
		"authorization=Bearer abc",
	}
	for _, c := range cases {
		got := Text(c)
		if strings.Contains(got, "abc123") || strings.Contains(got, "AAAA") || strings.Contains(got, "hunter2") || strings.Contains(got, "Bearer abc") {
			t.Errorf("Text(%q) = %q still leaks secret", c, got)
		}
	}
}

func TestErrorDiscardsCause(t *testing.T) {
	cause := errors.New("dial failed: password=hunter2")
	out := Error(cause)
	if strings.Contains(out.Error(), "hunter2") {
		t.Fatalf("Error() leaked secret: %q", out.Error())
	}
	if errors.Unwrap(out) != nil {
		t.Fatalf("Error() result must not unwrap to the original cause")
	}
}

func TestErrorNil(t *testing.T) {
	if Error(nil) != nil {
		t.Fatalf("Error(nil) should return nil")
	}
}
