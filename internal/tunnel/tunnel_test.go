package tunnel

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestBackoffForCapsAtThirtySeconds(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 30 * time.Second}, // 32s would exceed the cap
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		if got := backoffFor(c.attempt); got != c.want {
			t.Errorf("backoffFor(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestNewManagerDefaults(t *testing.T) {
	dir := t.TempDir()
	m, err := New(Config{
		SSHHost:        "bastion.example.com",
		SSHPort:        22,
		KnownHostsPath: dir + "/known_hosts",
	}, Events{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.cfg.KeepaliveInterval != 10*time.Second {
		t.Errorf("expected default keepalive interval 10s, got %v", m.cfg.KeepaliveInterval)
	}
	if m.cfg.MaxReconnectAttempts != 5 {
		t.Errorf("expected default max reconnect attempts 5, got %d", m.cfg.MaxReconnectAttempts)
	}
	if m.State() != StateDisconnected {
		t.Errorf("expected initial state disconnected, got %v", m.State())
	}
}

func TestCheckKeyPermissionsRejectsGroupReadable(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/id_rsa"
	if err := writeFileMode(path, 0640); err != nil {
		t.Fatal(err)
	}
	if err := checkKeyPermissions(path); err == nil {
		t.Fatal("expected rejection of group-readable private key")
	}
}

func TestCheckKeyPermissionsAcceptsOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/id_rsa"
	if err := writeFileMode(path, 0600); err != nil {
		t.Fatal(err)
	}
	if err := checkKeyPermissions(path); err != nil {
		t.Fatalf("expected owner-only key to be accepted: %v", err)
	}
}

func TestConnectSetsStateFailedOnKeyPermissionRejection(t *testing.T) {
	dir := t.TempDir()
	keyPath := dir + "/id_rsa"
	if err := writeFileMode(keyPath, 0640); err != nil {
		t.Fatal(err)
	}
	m, err := New(Config{
		SSHHost:        "bastion.example.com",
		SSHPort:        22,
		PrivateKeyPath: keyPath,
		KnownHostsPath: dir + "/known_hosts",
	}, Events{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail for a group-readable private key")
	}
	if m.State() != StateFailed {
		t.Errorf("expected state StateFailed after a failed initial connect, got %v", m.State())
	}
}

func writeFileMode(path string, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	return f.Close()
}
