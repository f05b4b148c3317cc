package tunnel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHostKeyVerifierTrustOnFirstUse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")

	v, err := NewHostKeyVerifier(path, true)
	if err != nil {
		t.Fatalf("NewHostKeyVerifier: %v", err)
	}

	keyA := []byte("fake-key-bytes-a")
	res := v.Verify("example.com", 22, "ssh-ed25519", keyA)
	if !res.Verified {
		t.Fatalf("expected first-sight key to be trusted, got reason %q", res.Reason)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read known_hosts: %v", err)
	}
	if !strings.Contains(string(data), "example.com ssh-ed25519") {
		t.Fatalf("known_hosts was not appended: %q", string(data))
	}

	keyB := []byte("different-key-bytes")
	res2 := v.Verify("example.com", 22, "ssh-ed25519", keyB)
	if res2.Verified {
		t.Fatalf("expected mismatch for a different key on a known host")
	}
	if !strings.Contains(res2.Reason, "HOST KEY MISMATCH") {
		t.Fatalf("expected HOST KEY MISMATCH reason, got %q", res2.Reason)
	}
}

func TestHostKeyVerifierNoTOFURejectsUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")

	v, err := NewHostKeyVerifier(path, false)
	if err != nil {
		t.Fatalf("NewHostKeyVerifier: %v", err)
	}

	res := v.Verify("example.com", 22, "ssh-ed25519", []byte("key"))
	if res.Verified {
		t.Fatalf("expected unknown host to be rejected when TOFU is disabled")
	}
	if !strings.Contains(res.Reason, "UNKNOWN HOST") {
		t.Fatalf("expected UNKNOWN HOST reason, got %q", res.Reason)
	}
}

func TestHostKeyVerifierRepeatVerificationOfTrustedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")

	v, err := NewHostKeyVerifier(path, true)
	if err != nil {
		t.Fatalf("NewHostKeyVerifier: %v", err)
	}
	key := []byte("key-bytes")
	if res := v.Verify("db.internal", 22, "ssh-rsa", key); !res.Verified {
		t.Fatalf("expected trust on first use to succeed")
	}
	// Re-verifying the exact same (host, key) must still succeed.
	if res := v.Verify("db.internal", 22, "ssh-rsa", key); !res.Verified {
		t.Fatalf("expected repeat verification of trusted key to succeed")
	}
}

func TestHostKeyVerifierNonStandardPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")
	if err := os.WriteFile(path, []byte("[bastion.example.com]:2222 ssh-ed25519 a2V5"), 0600); err != nil {
		t.Fatal(err)
	}
	v, err := NewHostKeyVerifier(path, true)
	if err != nil {
		t.Fatalf("NewHostKeyVerifier: %v", err)
	}
	res := v.Verify("bastion.example.com", 2222, "ssh-ed25519", []byte("key"))
	if !res.Verified {
		t.Fatalf("expected bracketed non-22 matcher to match, got reason %q", res.Reason)
	}
}
