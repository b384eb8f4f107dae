package registry

import (
	"encoding/json"
	"testing"

	"github.com/slye-labs/slye-backend/pkg/enums"
	"github.com/slye-labs/slye-backend/pkg/outbox/payloads"
)

func TestLedgerDecoderRegistry(t *testing.T) {
	reg := NewLedgerDecoderRegistry()

	input := json.RawMessage(`{"package_id":"popular","credits":150,"currency":"usd"}`)
	output, err := reg.Decode(enums.EventCreditsPurchased, 1, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	purchased, ok := output.(*payloads.CreditsPurchasedEvent)
	if !ok {
		t.Fatalf("unexpected output type %T", output)
	}
	if purchased.PackageID != "popular" || purchased.Credits != 150 {
		t.Fatalf("unexpected payload %+v", purchased)
	}

	if _, err := reg.Decode(enums.EventCreditsPurchased, 2, input); err == nil {
		t.Fatal("expected missing decoder error for v2")
	}
}
