package instance

import (
	"os"
	"strings"
)

const (
	EnvInstanceID = "SLYE_INSTANCE_ID"
	envDyno       = "DYNO"
	fallbackID    = "local"
)

// GetID identifies the running process in logs and lock ownership.
// Lookup order is SLYE_INSTANCE_ID, DYNO, then the hostname.
func GetID() string {
	for _, key := range []string{EnvInstanceID, envDyno} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return fallbackID
}
