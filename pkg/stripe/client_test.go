package stripe

import (
	"context"
	"testing"

	"github.com/slye-labs/slye-backend/pkg/config"
	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
)

func TestNewClientValidatesConfiguration(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.StripeConfig
	}{
		{name: "missing key", cfg: config.StripeConfig{Secret: "whsec_1"}},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_1"}},
		{name: "live key in test env", cfg: config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec_1", Env: "test"}},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1", Env: "staging"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(context.Background(), tc.cfg, nil)
			if !pkgerrors.Is(err, pkgerrors.CodeConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestNewClientAcceptsTestKey(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_abc"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != "test" {
		t.Fatalf("unexpected env %q", client.Environment())
	}
	if client.SigningSecret() != "whsec_abc" {
		t.Fatalf("unexpected secret %q", client.SigningSecret())
	}
	if _, err := client.ConstructEvent([]byte(`{}`), "t=1,v1=bad"); err == nil {
		t.Fatal("expected signature verification failure")
	}
}
