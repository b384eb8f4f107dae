package instance

import (
	"os"
	"testing"
)

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv(EnvInstanceID, "api-7")
	t.Setenv(envDyno, "web.1")

	if got := GetID(); got != "api-7" {
		t.Fatalf("expected api-7, got %q", got)
	}
}

func TestGetIDFallsBackToDyno(t *testing.T) {
	t.Setenv(EnvInstanceID, "  ")
	t.Setenv(envDyno, "worker.2")

	if got := GetID(); got != "worker.2" {
		t.Fatalf("expected worker.2, got %q", got)
	}
}

func TestGetIDUsesHostname(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	t.Setenv(envDyno, "")

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fallbackID
	}
	if got := GetID(); got != host {
		t.Fatalf("expected %q, got %q", host, got)
	}
}
