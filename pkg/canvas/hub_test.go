package canvas

import (
	"log/slog"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func TestHubJoinLeave(t *testing.T) {
	hub := NewHub(testLogger(), testMetrics())

	c1 := &Conn{id: "c1"}
	c2 := &Conn{id: "c2"}

	hub.Join(c1, "a")
	hub.Join(c2, "a")

	if got := hub.Connections("a"); len(got) != 2 {
		t.Fatalf("Connections(a) = %d, want 2", len(got))
	}
	if !hub.HasClients("a") {
		t.Fatal("HasClients(a) = false, want true")
	}
	if sid, ok := hub.SessionOf(c1); !ok || sid != "a" {
		t.Fatalf("SessionOf(c1) = %q, %v", sid, ok)
	}

	hub.Leave(c1)
	if got := hub.Connections("a"); len(got) != 1 {
		t.Fatalf("after leave, Connections(a) = %d, want 1", len(got))
	}
	if _, ok := hub.SessionOf(c1); ok {
		t.Fatal("SessionOf(c1) still resolves after Leave")
	}

	// Leaving twice is harmless.
	hub.Leave(c1)
	if hub.ConnCount() != 1 {
		t.Fatalf("ConnCount = %d, want 1", hub.ConnCount())
	}
}

func TestHubRebind(t *testing.T) {
	hub := NewHub(testLogger(), testMetrics())

	var emptied []string
	hub.SetOnSessionEmpty(func(sessionID string) {
		emptied = append(emptied, sessionID)
	})

	c := &Conn{id: "c"}
	hub.Join(c, "a")
	hub.Join(c, "b")

	if hub.HasClients("a") {
		t.Fatal("session a should be empty after rebind")
	}
	if !hub.HasClients("b") {
		t.Fatal("session b should have the connection")
	}
	if sid, _ := hub.SessionOf(c); sid != "b" {
		t.Fatalf("SessionOf = %q, want b", sid)
	}
	if len(emptied) != 1 || emptied[0] != "a" {
		t.Fatalf("emptied = %v, want [a]", emptied)
	}

	// Rebinding to the current session is a no-op.
	hub.Join(c, "b")
	if len(emptied) != 1 {
		t.Fatalf("emptied = %v after same-session rejoin", emptied)
	}
}

func TestHubOnSessionEmptyOnLeave(t *testing.T) {
	hub := NewHub(testLogger(), testMetrics())

	var emptied []string
	hub.SetOnSessionEmpty(func(sessionID string) {
		emptied = append(emptied, sessionID)
	})

	c1 := &Conn{id: "c1"}
	c2 := &Conn{id: "c2"}
	hub.Join(c1, "a")
	hub.Join(c2, "a")

	hub.Leave(c1)
	if len(emptied) != 0 {
		t.Fatalf("session emptied with a client still attached: %v", emptied)
	}
	hub.Leave(c2)
	if len(emptied) != 1 || emptied[0] != "a" {
		t.Fatalf("emptied = %v, want [a]", emptied)
	}
}
