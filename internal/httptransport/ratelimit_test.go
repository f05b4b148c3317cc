package httptransport

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

func TestRateLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("ip:10.0.0.1") {
			t.Fatalf("expected request %d to be allowed within burst", i)
		}
	}
	if rl.Allow("ip:10.0.0.1") {
		t.Fatal("expected the 4th request to exceed the burst and be blocked")
	}
}

func TestRateLimitKeyPrefersVerifiedSubjectOverIP(t *testing.T) {
	tok, err := jwt.NewBuilder().Subject("agent-42").Build()
	if err != nil {
		t.Fatalf("building token: %v", err)
	}

	req := httptest.NewRequest("POST", "/mcp", nil)
	req.RemoteAddr = "203.0.113.5:443"
	ctx := context.WithValue(req.Context(), authPayloadKey{}, tok)
	req = req.WithContext(ctx)

	got := rateLimitKey(req)
	want := "sub:agent-42"
	if got != want {
		t.Errorf("rateLimitKey() = %q, want %q", got, want)
	}
}

func TestRateLimitKeyFallsBackToIPWithoutVerifiedIdentity(t *testing.T) {
	req := httptest.NewRequest("POST", "/mcp", nil)
	req.RemoteAddr = "203.0.113.5:443"

	got := rateLimitKey(req)
	want := "ip:203.0.113.5"
	if got != want {
		t.Errorf("rateLimitKey() = %q, want %q", got, want)
	}
}

func TestRateLimitKeySharesBucketAcrossIPsForSameSubject(t *testing.T) {
	tok, err := jwt.NewBuilder().Subject("agent-42").Build()
	if err != nil {
		t.Fatalf("building token: %v", err)
	}

	reqA := httptest.NewRequest("POST", "/mcp", nil)
	reqA.RemoteAddr = "203.0.113.5:443"
	reqA = reqA.WithContext(context.WithValue(reqA.Context(), authPayloadKey{}, tok))

	reqB := httptest.NewRequest("POST", "/mcp", nil)
	reqB.RemoteAddr = "198.51.100.9:443"
	reqB = reqB.WithContext(context.WithValue(reqB.Context(), authPayloadKey{}, tok))

	if rateLimitKey(reqA) != rateLimitKey(reqB) {
		t.Error("expected the same verified subject to share one bucket regardless of source IP")
	}
}
