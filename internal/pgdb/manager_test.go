package pgdb

import (
	"context"
	"testing"
)

func TestDecideSSLExplicitWins(t *testing.T) {
	yes, no := true, false
	m1 := New(Config{SSLExplicit: &yes})
	if !m1.decideSSL("localhost") {
		t.Error("expected explicit true to enable SSL even for localhost")
	}
	m2 := New(Config{SSLExplicit: &no})
	if m2.decideSSL("db.example.com") {
		t.Error("expected explicit false to disable SSL even for a remote host")
	}
}

func TestDecideSSLAutoDetectsLoopback(t *testing.T) {
	m := New(Config{})
	loopbackHosts := []string{"localhost", "127.0.0.1", "::1"}
	for _, h := range loopbackHosts {
		if m.decideSSL(h) {
			t.Errorf("expected auto-detect to disable SSL for loopback host %q", h)
		}
	}
	if !m.decideSSL("db.internal.example.com") {
		t.Error("expected auto-detect to enable SSL for a non-loopback host")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	m := New(Config{})
	if m.cfg.MaxRows != 1000 {
		t.Errorf("expected default MaxRows 1000, got %d", m.cfg.MaxRows)
	}
	if m.cfg.MaxConcurrentQueries != 10 {
		t.Errorf("expected default MaxConcurrentQueries 10, got %d", m.cfg.MaxConcurrentQueries)
	}
	if m.sem.max != 10 {
		t.Errorf("expected semaphore sized to MaxConcurrentQueries, got %d", m.sem.max)
	}
}

func TestExecuteQueryFailsFastWhenUninitialized(t *testing.T) {
	m := New(Config{})
	_, err := m.ExecuteQuery(context.Background(), "SELECT 1", nil)
	if err == nil {
		t.Fatal("expected error for uninitialized manager")
	}
}

func TestGetStatusReflectsConcurrencyGate(t *testing.T) {
	m := New(Config{MaxConcurrentQueries: 3})
	release, err := m.sem.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	st := m.GetStatus()
	if st.InFlight != 1 {
		t.Errorf("expected InFlight=1, got %d", st.InFlight)
	}
	if st.MaxConcurrentQueries != 3 {
		t.Errorf("expected MaxConcurrentQueries=3, got %d", st.MaxConcurrentQueries)
	}
	release()
}
